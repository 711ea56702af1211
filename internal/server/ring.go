package server

import (
	"context"
	"sync"

	"github.com/mbd888/spendwatch/internal/report"
)

// flagRing retains the most recent flags for the /v1/flags endpoint. It
// implements report.FlagWriter so it sits in the pipeline's sink chain.
type flagRing struct {
	mu  sync.RWMutex
	buf []*report.FlagRecord
	max int
}

var _ report.FlagWriter = (*flagRing)(nil)

func newFlagRing(max int) *flagRing {
	return &flagRing{max: max}
}

func (r *flagRing) WriteFlag(_ context.Context, rec *report.FlagRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf = append(r.buf, rec)
	if len(r.buf) > r.max {
		r.buf = r.buf[len(r.buf)-r.max:]
	}
	return nil
}

// Recent returns up to limit flags, newest first.
func (r *flagRing) Recent(limit int) []*report.FlagRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if limit > len(r.buf) {
		limit = len(r.buf)
	}
	out := make([]*report.FlagRecord, 0, limit)
	for i := len(r.buf) - 1; i >= len(r.buf)-limit; i-- {
		out = append(out, r.buf[i])
	}
	return out
}
