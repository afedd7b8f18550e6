package collector

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/yairfalse/tally/pkg/report"
)

// Recorder receives per-category telemetry.
type Recorder interface {
	StartSpan(ctx context.Context, name string) (context.Context, trace.Span)
	RecordCategory(ctx context.Context, category string, status report.Status, rows int, d time.Duration)
}

// Options tunes a Collector. Zero fields take defaults.
type Options struct {
	Timeout        time.Duration // per attempt
	MaxAttempts    uint
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Progress       io.Writer
	Recorder       Recorder
}

// Defaults.
const (
	DefaultTimeout        = 2 * time.Minute
	DefaultMaxAttempts    = 3
	DefaultInitialBackoff = 500 * time.Millisecond
	DefaultMaxBackoff     = 10 * time.Second
)

// Collector runs categories one after another.
type Collector struct {
	registry *Registry
	opts     Options
}

// New creates a collector over registry.
func New(registry *Registry, opts Options) *Collector {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = DefaultMaxAttempts
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = DefaultInitialBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = DefaultMaxBackoff
	}
	if opts.Progress == nil {
		opts.Progress = io.Discard
	}
	return &Collector{registry: registry, opts: opts}
}

// Collect builds the tables for every name, in order. Category failures
// become error rows; only a cancelled ctx stops the run.
func (c *Collector) Collect(ctx context.Context, names []string) (report.Report, error) {
	rep := report.Report{
		GeneratedAt: time.Now(),
		Tables:      make([]report.Table, 0, len(names)),
	}

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return rep, fmt.Errorf("collection interrupted before %s: %w", name, err)
		}
		rep.Tables = append(rep.Tables, c.CollectCategory(ctx, name)...)
	}

	if err := ctx.Err(); err != nil {
		return rep, fmt.Errorf("collection interrupted: %w", err)
	}
	return rep, nil
}

// CollectCategory builds the tables for a single category. Most categories
// produce one table; a multi-sheet category produces one per group, or a
// single placeholder table when it has no groups or fails.
func (c *Collector) CollectCategory(ctx context.Context, name string) []report.Table {
	cat, ok := c.registry.Get(name)
	if ok {
		name = cat.Name
	}
	fmt.Fprintf(c.opts.Progress, "Fetching %s data...\n", name)

	ctx, span := c.startSpan(ctx, "collect "+name)
	defer span.End()

	start := time.Now()
	var tables []report.Table
	status := report.StatusOK

	switch {
	case !ok:
		log.Debug().Str("category", name).Msg("no extractor registered")
		status = report.StatusUnimplemented
		tables = []report.Table{{Category: name, Rows: []report.Row{report.UnimplementedRow(name)}}}
	default:
		var err error
		tables, err = c.extract(ctx, cat)
		switch {
		case err != nil:
			code := ErrorCode(err)
			log.Warn().Err(err).Str("category", name).Str("code", code).Msg("category collection failed")
			span.RecordError(err)
			status = report.StatusError
			tables = []report.Table{{Category: name, Rows: []report.Row{report.ErrorRow(errors.Unwrap(err), code)}}}
		case len(tables) == 0:
			tables = []report.Table{{Category: name}}
		}
	}

	d := time.Since(start)
	resources := 0
	for i := range tables {
		tbl := &tables[i]
		if tbl.Category == "" {
			tbl.Category = name
		}
		if cat.Tables != nil && status == report.StatusOK && tbl.Category != name {
			tbl.Group = name
		}
		tbl.Duration = d
		switch {
		case status != report.StatusOK:
			tbl.Status = status
		case len(tbl.Rows) == 0:
			tbl.Status = report.StatusEmpty
			tbl.Rows = []report.Row{report.NoResourcesRow()}
		default:
			tbl.Status = report.StatusOK
		}
		resources += tbl.Resources()
	}
	if status == report.StatusOK && resources == 0 {
		status = report.StatusEmpty
	}

	if c.opts.Recorder != nil {
		c.opts.Recorder.RecordCategory(ctx, name, status, resources, d)
	}
	log.Debug().
		Str("category", name).
		Str("status", string(status)).
		Int("tables", len(tables)).
		Int("resources", resources).
		Dur("duration", d).
		Msg("category collected")

	return tables
}

func (c *Collector) extract(ctx context.Context, cat Category) ([]report.Table, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.opts.InitialBackoff
	bo.MaxInterval = c.opts.MaxBackoff

	attempt := 0
	op := func() ([]report.Table, error) {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, c.opts.Timeout)
		defer cancel()

		tables, err := cat.tables(attemptCtx)
		if err == nil {
			return tables, nil
		}
		if ctx.Err() != nil || !Retryable(err) {
			return nil, backoff.Permanent(err)
		}
		return nil, err
	}

	tables, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(c.opts.MaxAttempts),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, wait time.Duration) {
			log.Debug().Err(err).
				Str("category", cat.Name).
				Int("attempt", attempt).
				Dur("wait", wait).
				Msg("retrying category")
		}),
	)
	if err != nil {
		return nil, &CategoryError{Category: cat.Name, Err: err}
	}
	return tables, nil
}

func (c *Collector) startSpan(ctx context.Context, name string) (context.Context, trace.Span) {
	if c.opts.Recorder == nil {
		return noop.NewTracerProvider().Tracer("").Start(ctx, name)
	}
	return c.opts.Recorder.StartSpan(ctx, name)
}
