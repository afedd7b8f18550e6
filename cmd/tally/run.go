package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/yairfalse/tally/internal/collector"
	"github.com/yairfalse/tally/internal/config"
	"github.com/yairfalse/tally/internal/emitter"
	"github.com/yairfalse/tally/internal/filter"
	"github.com/yairfalse/tally/internal/plugin/aws"
	"github.com/yairfalse/tally/internal/telemetry"
)

type runFlags struct {
	configPath string
	output     string
	region     string
	categories []string
	debug      bool
}

// categorySource provides the categories of one account and region.
type categorySource interface {
	Region() string
	Account() string
	Register(reg *collector.Registry) error
}

type sourceFunc func(ctx context.Context, cfg aws.Config) (categorySource, error)

func newAWSSource(ctx context.Context, cfg aws.Config) (categorySource, error) {
	return aws.New(ctx, cfg)
}

// run performs one report: config, collection, workbook. Category failures
// end up in the workbook; everything returned here is fatal.
func run(ctx context.Context, stdout io.Writer, f runFlags, newSource sourceFunc) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}

	if err := setupLogging(cfg.Log.Level, f.debug); err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}

	var promReg *prometheus.Registry
	var telOpts []telemetry.Option
	if cfg.Metrics.Textfile != "" {
		promReg = prometheus.NewRegistry()
		telOpts = append(telOpts, telemetry.WithPrometheusRegistry(promReg))
	}

	tel, err := telemetry.NewProvider(ctx, cfg.OTEL, telOpts...)
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("Telemetry shutdown failed")
		}
	}()

	source, err := newSource(ctx, aws.Config{Region: cfg.AWS.Region, Profile: cfg.AWS.Profile})
	if err != nil {
		return err
	}

	reg := collector.NewRegistry()
	if err := source.Register(reg); err != nil {
		return fmt.Errorf("register categories: %w", err)
	}
	names := filter.New(cfg.Report.Categories, cfg.Report.Exclude).Apply(reg.Names())
	if len(names) == 0 {
		return errNoCategories
	}

	log.Info().
		Str("account", source.Account()).
		Str("region", source.Region()).
		Int("categories", len(names)).
		Msg("tally starting")

	fmt.Fprintln(stdout, "Fetching AWS resource data...")

	c := collector.New(reg, collector.Options{
		Timeout:        cfg.Collector.Timeout,
		MaxAttempts:    cfg.Collector.MaxAttempts,
		InitialBackoff: cfg.Collector.InitialBackoff,
		Progress:       stdout,
		Recorder:       tel,
	})
	rep, err := c.Collect(ctx, names)
	if err != nil {
		return err
	}
	rep.Account = source.Account()
	rep.Region = source.Region()

	emit, err := buildEmitter(cfg, promReg)
	if err != nil {
		return err
	}
	if err := emit.Emit(ctx, rep); err != nil {
		_ = emit.Close()
		return fmt.Errorf("write report: %w", err)
	}
	if err := emit.Close(); err != nil {
		return fmt.Errorf("close report: %w", err)
	}

	fmt.Fprintf(stdout, "Report saved to %s\n", cfg.Report.Output)
	return nil
}

var errNoCategories = errors.New("no categories left to report after include/exclude filtering")

func loadConfig(f runFlags) (*config.Config, error) {
	cfg := config.Default()
	if f.configPath != "" {
		loaded, err := config.Load(f.configPath)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if f.output != "" {
		cfg.Report.Output = f.output
	}
	if f.region != "" {
		cfg.AWS.Region = f.region
	}
	if len(f.categories) > 0 {
		cfg.Report.Categories = f.categories
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func buildEmitter(cfg *config.Config, promReg *prometheus.Registry) (emitter.Emitter, error) {
	emitters := []emitter.Emitter{
		emitter.NewXLSXEmitter(cfg.Report.Output, emitter.WithSummary(cfg.Report.SummaryEnabled())),
	}

	if cfg.Metrics.Textfile != "" {
		var extra []prometheus.Gatherer
		if promReg != nil {
			extra = append(extra, promReg)
		}
		m, err := emitter.NewMetricsEmitter(cfg.Metrics.Textfile, extra...)
		if err != nil {
			return nil, err
		}
		emitters = append(emitters, m)
	}

	return emitter.NewMultiEmitter(emitters...), nil
}
