// Package report emits the run's two output records: flagged purchases and
// invalid input lines.
package report

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/mbd888/spendwatch/internal/anomaly"
	"github.com/mbd888/spendwatch/internal/event"
)

// FlagRecord is one flagged purchase. All values are serialized as text and
// the JSON key order is fixed by field order.
type FlagRecord struct {
	EventType string `json:"event_type"`
	Timestamp string `json:"timestamp"`
	ID        string `json:"id"`
	Amount    string `json:"amount"`
	Mean      string `json:"mean"`
	SD        string `json:"sd"`
}

// NewFlagRecord builds the flag record for a purchase event and the
// evaluation that flagged it. Mean and stddev are rounded to 2 decimals.
func NewFlagRecord(ev *event.Event, res anomaly.Result) *FlagRecord {
	return &FlagRecord{
		EventType: string(ev.Type),
		Timestamp: ev.Timestamp.Format(event.TimeLayout),
		ID:        strconv.FormatInt(ev.ID, 10),
		Amount:    strconv.FormatFloat(ev.Amount, 'f', -1, 64),
		Mean:      fmt.Sprintf("%.2f", res.Mean),
		SD:        fmt.Sprintf("%.2f", res.Stddev),
	}
}

// FlagWriter receives flagged purchases.
type FlagWriter interface {
	WriteFlag(ctx context.Context, rec *FlagRecord) error
}

// InvalidWriter receives rejected input lines verbatim.
type InvalidWriter interface {
	WriteInvalid(ctx context.Context, line string) error
}

// MultiWriter fans a flag out to several writers. All writers are attempted;
// errors are joined.
type MultiWriter struct {
	writers []FlagWriter
}

// NewMultiWriter combines writers into one FlagWriter.
func NewMultiWriter(writers ...FlagWriter) *MultiWriter {
	return &MultiWriter{writers: writers}
}

func (m *MultiWriter) WriteFlag(ctx context.Context, rec *FlagRecord) error {
	var errs []error
	for _, w := range m.writers {
		if err := w.WriteFlag(ctx, rec); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MemoryWriter is an in-memory FlagWriter and InvalidWriter for tests and
// for the server's recent-flags ring.
type MemoryWriter struct {
	mu      sync.RWMutex
	flags   []*FlagRecord
	invalid []string
}

// Compile-time checks.
var (
	_ FlagWriter    = (*MemoryWriter)(nil)
	_ InvalidWriter = (*MemoryWriter)(nil)
)

// NewMemoryWriter creates an empty memory writer.
func NewMemoryWriter() *MemoryWriter {
	return &MemoryWriter{}
}

func (m *MemoryWriter) WriteFlag(_ context.Context, rec *FlagRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flags = append(m.flags, rec)
	return nil
}

func (m *MemoryWriter) WriteInvalid(_ context.Context, line string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalid = append(m.invalid, line)
	return nil
}

// Flags returns a copy of the recorded flags.
func (m *MemoryWriter) Flags() []*FlagRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*FlagRecord, len(m.flags))
	copy(out, m.flags)
	return out
}

// Invalid returns a copy of the recorded invalid lines.
func (m *MemoryWriter) Invalid() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.invalid))
	copy(out, m.invalid)
	return out
}
