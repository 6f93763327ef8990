package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/macropulse/macropulse/internal/config"
	"github.com/macropulse/macropulse/internal/flags"
	"github.com/macropulse/macropulse/internal/log"
	"github.com/macropulse/macropulse/internal/pipeline"
	"github.com/macropulse/macropulse/internal/pubsub"
	"github.com/macropulse/macropulse/internal/render"
	"github.com/macropulse/macropulse/internal/runlock"
)

// shutdownTimeout bounds trace flushing after a run.
const shutdownTimeout = 5 * time.Second

func runPipeline(cmd *cobra.Command, args []string) error {
	opts, err := runOptions(cmd)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	secrets := config.LoadSecrets()
	fl := flags.New(cfg.Flags)

	tp, err := newTracing(ctx, cfg, layout)
	if err != nil {
		return fmt.Errorf("initializing tracing: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(sctx); err != nil {
			log.Warn(log.CatTrace, "Failed to flush traces", "error", err.Error())
		}
	}()

	store, err := openStore(ctx, cfg, layout)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Warn(log.CatDB, "Failed to close run store", "error", err.Error())
		}
	}()

	client := newHTTPClient(cfg)
	distributor, err := newDistributor(cfg, layout, secrets, fl)
	if err != nil {
		return err
	}

	pc := pipeline.Config{
		Signal:      cfg.Signal,
		Judgment:    cfg.Judgment,
		Layout:      layout,
		Fetcher:     newFetcher(cfg, layout, client, secrets, fl, tp.Tracer()),
		Distributor: distributor,
		Runs:        store.Runs(),
		Tracer:      tp.Tracer(),
		DiffLog:     fl.Enabled(flags.FlagPublishDiffLog),
		WorkingCopy: true,
	}
	// A nil *brief.Service must stay a nil interface.
	if svc := newBriefService(ctx, cfg, client, secrets, fl, store.Snapshots(), tp.Tracer()); svc != nil {
		pc.Brief = svc
	}

	quiet, _ := cmd.Flags().GetBool("quiet")
	if !quiet {
		broker := pubsub.NewBroker[pipeline.Progress](pubsub.DefaultBuffer)
		done := printProgress(cmd.ErrOrStderr(), broker.Subscribe(ctx))
		pc.Events = broker
		defer func() {
			broker.Close()
			<-done
		}()
	}

	rep, err := pipeline.New(pc).Run(ctx, opts)
	if rep != nil {
		fmt.Fprint(cmd.OutOrStdout(), render.RunReport(rep, err))
	}
	if errors.Is(err, runlock.ErrLocked) {
		return fmt.Errorf("%w (remove %s if no run is active)", err, layout.LockFile)
	}
	return err
}

// printProgress writes run events until events closes.
func printProgress(w io.Writer, events <-chan pubsub.Event[pipeline.Progress]) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			if line := render.Progress(ev); line != "" {
				fmt.Fprintln(w, line)
			}
		}
	}()
	return done
}

// runOptions reads the run flags.
func runOptions(cmd *cobra.Command) (pipeline.Options, error) {
	f := cmd.Flags()
	modeFlag, _ := f.GetString("mode")
	mode, err := pipeline.ParseMode(modeFlag)
	if err != nil {
		return pipeline.Options{}, err
	}
	opts := pipeline.Options{Mode: mode}
	opts.ClearCache, _ = f.GetBool("clear-cache")
	opts.NoBrief, _ = f.GetBool("no-brief")
	opts.NoPush, _ = f.GetBool("no-push")
	opts.DryRun, _ = f.GetBool("dry-run")

	start := cfg.Fetch.Start
	if s, _ := f.GetString("start"); s != "" {
		start = s
	}
	if start != "" {
		t, err := time.Parse(time.DateOnly, start)
		if err != nil {
			return pipeline.Options{}, fmt.Errorf("invalid start date %q: want YYYY-MM-DD", start)
		}
		opts.Start = t
	}
	if opts.NoBrief && mode == pipeline.ModeBrief {
		return pipeline.Options{}, errors.New("--no-brief cannot be combined with --mode brief")
	}
	return opts, nil
}
