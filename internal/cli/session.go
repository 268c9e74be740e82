package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"

	"github.com/spf13/cobra"

	"github.com/roach88/structprune/internal/config"
	"github.com/roach88/structprune/internal/split"
	"github.com/roach88/structprune/internal/store"
)

// session is the per-invocation state shared by every command: a run id, a
// logger carrying it, and the output formatter.
type session struct {
	cmd   *cobra.Command
	opts  *RootOptions
	runID string
	log   *slog.Logger
	out   *OutputFormatter
}

func newSession(cmd *cobra.Command, opts *RootOptions) *session {
	runID := opts.newRunID()

	level := slog.LevelInfo
	if opts.Verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if opts.Format == "json" {
		handler = slog.NewJSONHandler(cmd.ErrOrStderr(), hopts)
	} else {
		handler = slog.NewTextHandler(cmd.ErrOrStderr(), hopts)
	}

	return &session{
		cmd:   cmd,
		opts:  opts,
		runID: runID,
		log:   slog.New(handler).With("run_id", runID, "command", cmd.Name()),
		out: &OutputFormatter{
			Format:    opts.Format,
			Writer:    cmd.OutOrStdout(),
			ErrWriter: cmd.ErrOrStderr(),
			Verbose:   opts.Verbose,
			RunID:     runID,
		},
	}
}

func (s *session) ctx() context.Context {
	if ctx := s.cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// fail emits the single error record for err and returns it with the exit
// code for its kind.
func (s *session) fail(message string, err error) error {
	var (
		code    = "UNEXPECTED"
		attrs   = []any{"error", err.Error()}
		details map[string]string
		e       *split.Error
	)
	if errors.As(err, &e) {
		code = string(e.Kind)
		attrs = append(attrs, e.LogAttrs()...)
		details = e.Details
	} else {
		attrs = append(attrs, "kind", code)
	}

	s.log.Error(message, attrs...)
	_ = s.out.Error(code, fmt.Sprintf("%s: %v", message, err), details)
	return WrapExitError(ExitCodeFor(err), message, err)
}

// loadConfig merges the config file with explicitly set flags and
// validates the result.
func (s *session) loadConfig(requireStore bool, overrides ...func(*config.Config)) (config.Config, error) {
	cfg, err := config.Load(s.opts.ConfigPath)
	if err != nil {
		return cfg, err
	}
	for _, o := range overrides {
		o(&cfg)
	}
	if err := cfg.Validate(requireStore); err != nil {
		return cfg, err
	}

	s.log.Debug("configuration",
		"store", redactURI(cfg.Store),
		"database", cfg.Database,
		"batch_size", cfg.BatchSize,
		"delay", cfg.DelayDuration(),
		"retain", cfg.Retain,
		"ignore_missing", cfg.IgnoreMissing,
	)
	return cfg, nil
}

func (s *session) openStore(cfg config.Config) (store.Store, error) {
	s.log.Info("opening store", "store", redactURI(cfg.Store), "database", cfg.Database)
	return store.Open(s.ctx(), cfg.Store, store.Options{Database: cfg.Database})
}

func (s *session) closeStore(st store.Store) {
	if err := st.Close(context.WithoutCancel(s.ctx())); err != nil {
		s.log.Warn("closing store", "error", err)
	}
}

func batchFor(cfg config.Config) store.Batch {
	return store.Batch{Size: cfg.BatchSize, Delay: cfg.DelayDuration()}
}

// redactURI hides credentials embedded in a connection string.
func redactURI(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.User == nil {
		return uri
	}
	return u.Redacted()
}

// storeFlags are the flags shared by verbs that talk to a store. Only flags
// the operator set override the config file.
type storeFlags struct {
	store     string
	database  string
	batchSize int
	delay     float64
}

func (f *storeFlags) register(cmd *cobra.Command) {
	d := config.Default()
	fl := cmd.Flags()
	fl.StringVar(&f.store, "store", "", "store URI (mongodb://..., sqlite:PATH or PATH.db)")
	fl.StringVar(&f.database, "database", d.Database, "Mongo database holding the modulestore collections")
	fl.IntVar(&f.batchSize, "batch-size", d.BatchSize, "documents per read or write batch")
	fl.Float64Var(&f.delay, "delay", d.Delay, "seconds to sleep between batches")
}

func (f *storeFlags) apply(cmd *cobra.Command) func(*config.Config) {
	return func(cfg *config.Config) {
		fl := cmd.Flags()
		if fl.Changed("store") {
			cfg.Store = f.store
		}
		if fl.Changed("database") {
			cfg.Database = f.database
		}
		if fl.Changed("batch-size") {
			cfg.BatchSize = f.batchSize
		}
		if fl.Changed("delay") {
			cfg.Delay = f.delay
		}
	}
}
