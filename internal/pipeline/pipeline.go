// Package pipeline orchestrates the two-phase run: batch ingestion to seed
// the network, then stream ingestion with per-purchase anomaly detection.
package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/mbd888/spendwatch/internal/anomaly"
	"github.com/mbd888/spendwatch/internal/event"
	"github.com/mbd888/spendwatch/internal/ledger"
	"github.com/mbd888/spendwatch/internal/metrics"
	"github.com/mbd888/spendwatch/internal/network"
	"github.com/mbd888/spendwatch/internal/report"
)

var (
	// ErrConfigMissing is returned when the first batch line is not a valid
	// {D,T} record. This is the one decode failure that aborts the run.
	ErrConfigMissing = errors.New("pipeline: batch header is not a valid {D,T} record")

	// ErrUnexpectedConfig marks a {D,T} record seen anywhere other than the
	// batch header. The record is logged to the invalid sink and skipped.
	ErrUnexpectedConfig = errors.New("pipeline: config record outside batch header")
)

// maxLineSize bounds a single log line.
const maxLineSize = 1 << 20

// DefaultStdThreshold is the flagging threshold in standard deviations.
const DefaultStdThreshold = 3

// Pipeline holds the evolving network state and its collaborators. All
// mutation runs on a single goroutine; callers that share a Pipeline must
// serialize access themselves.
type Pipeline struct {
	dec    *event.Decoder
	graph  *network.Graph
	ledger *ledger.Ledger

	flags   report.FlagWriter
	invalid report.InvalidWriter
	logger  *slog.Logger

	degree       int
	window       int
	stdThreshold float64
	configured   bool

	flagged int64
}

// Option configures the Pipeline.
type Option func(*Pipeline)

// WithLogger sets a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// WithStdThreshold overrides the default flagging threshold.
func WithStdThreshold(s float64) Option {
	return func(p *Pipeline) { p.stdThreshold = s }
}

// New creates a Pipeline writing flags and rejected lines to the given sinks.
func New(flags report.FlagWriter, invalid report.InvalidWriter, opts ...Option) *Pipeline {
	p := &Pipeline{
		dec:          event.NewDecoder(),
		graph:        network.NewGraph(),
		ledger:       ledger.New(),
		flags:        flags,
		invalid:      invalid,
		logger:       slog.Default(),
		stdThreshold: DefaultStdThreshold,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RunBatch ingests the initialization log. The first line must decode to a
// {D,T} config record; everything after it populates the graph and ledger
// with no detection. Invalid body lines go to the invalid sink.
func (p *Pipeline) RunBatch(ctx context.Context, r io.Reader) error {
	scanner := newLineScanner(r)

	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return err
		}
		return ErrConfigMissing
	}
	header := scanner.Text()
	ev, err := p.dec.Decode(header)
	if err != nil || ev.Type != event.TypeConfig {
		return fmt.Errorf("%w: %q", ErrConfigMissing, header)
	}
	p.degree = ev.D
	p.window = ev.T
	p.configured = true
	p.logger.Info("run config loaded", "degree", p.degree, "window", p.window, "std_threshold", p.stdThreshold)

	for scanner.Scan() {
		if err := p.processLine(ctx, scanner.Text(), false); err != nil && !isSkippable(err) {
			return err
		}
	}
	return scanner.Err()
}

// RunStream ingests the stream log line by line, running detection on each
// purchase before applying it. RunBatch must have succeeded first.
func (p *Pipeline) RunStream(ctx context.Context, r io.Reader) error {
	if !p.configured {
		return ErrConfigMissing
	}
	scanner := newLineScanner(r)
	for scanner.Scan() {
		if _, err := p.ProcessStreamLine(ctx, scanner.Text()); err != nil && !isSkippable(err) {
			return err
		}
	}
	return scanner.Err()
}

// ProcessStreamLine handles one raw stream record: decode, detect (purchases
// only, against state as of just before this event), then apply. The returned
// record is non-nil iff the purchase was flagged. Rejected records are
// written to the invalid sink and reported via a skippable error.
func (p *Pipeline) ProcessStreamLine(ctx context.Context, line string) (*report.FlagRecord, error) {
	if !p.configured {
		return nil, ErrConfigMissing
	}
	return p.process(ctx, line, true)
}

func (p *Pipeline) processLine(ctx context.Context, line string, detect bool) error {
	_, err := p.process(ctx, line, detect)
	return err
}

func (p *Pipeline) process(ctx context.Context, line string, detect bool) (*report.FlagRecord, error) {
	ev, err := p.dec.Decode(line)
	if err != nil {
		return nil, p.reject(ctx, line, err)
	}
	if ev.Type == event.TypeConfig {
		return nil, p.reject(ctx, line, ErrUnexpectedConfig)
	}
	metrics.EventsDecodedTotal.WithLabelValues(string(ev.Type)).Inc()

	var rec *report.FlagRecord
	if detect && ev.Type == event.TypePurchase {
		var err error
		if rec, err = p.detect(ctx, ev); err != nil {
			return nil, err
		}
	}

	// Detection done; the event now becomes part of the state later
	// decisions see.
	p.apply(ev)
	return rec, nil
}

// detect runs the neighbor search, purchase pooling, and evaluation for one
// stream purchase. Returns the flag record written, if any.
func (p *Pipeline) detect(ctx context.Context, ev *event.Event) (*report.FlagRecord, error) {
	neighbors := p.graph.FindWithin(ev.ID, p.degree)
	if len(neighbors) == 0 {
		metrics.DetectionsSkippedTotal.WithLabelValues("no_network").Inc()
		return nil, nil
	}

	pool := p.ledger.Pool(neighbors, p.window)
	res, ok := anomaly.Evaluate(pool, ev.Amount, p.stdThreshold)
	if !ok {
		metrics.DetectionsSkippedTotal.WithLabelValues("pool_too_small").Inc()
		return nil, nil
	}
	if !res.Flagged {
		return nil, nil
	}

	rec := report.NewFlagRecord(ev, res)
	if err := p.flags.WriteFlag(ctx, rec); err != nil {
		return nil, fmt.Errorf("pipeline: write flag: %w", err)
	}
	p.flagged++
	metrics.FlaggedPurchasesTotal.Inc()
	p.logger.Info("purchase flagged",
		"customer", ev.ID,
		"amount", ev.Amount,
		"mean", rec.Mean,
		"sd", rec.SD,
	)
	return rec, nil
}

// apply folds a decoded event into the graph and ledger. A purchase for an
// unknown customer introduces them as a node first.
func (p *Pipeline) apply(ev *event.Event) {
	switch ev.Type {
	case event.TypePurchase:
		p.graph.AddNode(ev.ID)
		p.ledger.Record(ev.ID, ev.Seq, ev.Timestamp, ev.Amount)
	case event.TypeBefriend:
		p.graph.AddEdge(ev.ID1, ev.ID2)
	case event.TypeUnfriend:
		p.graph.RemoveEdge(ev.ID1, ev.ID2)
	}
	metrics.NetworkNodes.Set(float64(p.graph.NodeCount()))
	metrics.NetworkEdges.Set(float64(p.graph.EdgeCount()))
}

// reject writes the offending line to the invalid sink. A sink failure
// outranks the original rejection; otherwise the rejection itself is
// returned so callers can decide whether it is fatal.
func (p *Pipeline) reject(ctx context.Context, line string, cause error) error {
	metrics.InvalidRecordsTotal.WithLabelValues(rejectReason(cause)).Inc()
	p.logger.Debug("record rejected", "reason", rejectReason(cause), "line", line)
	if err := p.invalid.WriteInvalid(ctx, line); err != nil {
		return fmt.Errorf("pipeline: write invalid record: %w", err)
	}
	return cause
}

// isSkippable reports whether err is a per-record rejection rather than a
// run-level failure.
func isSkippable(err error) bool {
	return errors.Is(err, event.ErrMalformed) ||
		errors.Is(err, event.ErrSchema) ||
		errors.Is(err, event.ErrCoercion) ||
		errors.Is(err, ErrUnexpectedConfig)
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, event.ErrMalformed):
		return "malformed"
	case errors.Is(err, event.ErrSchema):
		return "schema_mismatch"
	case errors.Is(err, event.ErrCoercion):
		return "coercion_failure"
	case errors.Is(err, ErrUnexpectedConfig):
		return "unexpected_config"
	default:
		return "other"
	}
}

func newLineScanner(r io.Reader) *bufio.Scanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return scanner
}

// Stats is a point-in-time snapshot of the run.
type Stats struct {
	Degree       int     `json:"degree"`
	Window       int     `json:"window"`
	StdThreshold float64 `json:"stdThreshold"`
	Nodes        int     `json:"nodes"`
	Edges        int     `json:"edges"`
	Customers    int     `json:"customers"`
	Purchases    int64   `json:"purchases"`
	Flagged      int64   `json:"flagged"`
}

// Graph exposes the friendship graph. Callers must respect the pipeline's
// single-threaded contract.
func (p *Pipeline) Graph() *network.Graph {
	return p.graph
}

// Ledger exposes the purchase ledger. Same contract as Graph.
func (p *Pipeline) Ledger() *ledger.Ledger {
	return p.ledger
}

// Stats reports current configuration and state sizes.
func (p *Pipeline) Stats() Stats {
	return Stats{
		Degree:       p.degree,
		Window:       p.window,
		StdThreshold: p.stdThreshold,
		Nodes:        p.graph.NodeCount(),
		Edges:        p.graph.EdgeCount(),
		Customers:    p.ledger.CustomerCount(),
		Purchases:    p.dec.Seq(),
		Flagged:      p.flagged,
	}
}
