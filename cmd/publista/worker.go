package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Niabag/Plublista-sub000/internal/ai"
	"github.com/Niabag/Plublista-sub000/internal/config"
	"github.com/Niabag/Plublista-sub000/internal/credits"
	"github.com/Niabag/Plublista-sub000/internal/instagram"
	"github.com/Niabag/Plublista-sub000/internal/jobs"
	"github.com/Niabag/Plublista-sub000/internal/logger"
	"github.com/Niabag/Plublista-sub000/internal/media"
	"github.com/Niabag/Plublista-sub000/internal/profile"
	"github.com/Niabag/Plublista-sub000/internal/render"
	"github.com/Niabag/Plublista-sub000/internal/storage"
	"github.com/Niabag/Plublista-sub000/internal/store"
	"github.com/Niabag/Plublista-sub000/pkg/queue"
)

var ErrShutdownTimeout = errors.New("workers did not stop before the shutdown timeout")

func newWorkerCommand() *cobra.Command {
	var queues []string
	var noScheduler bool

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Run the queue workers and the periodic scheduler",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runWorkers(ctx, queues, !noScheduler)
		},
	}
	cmd.Flags().StringSliceVar(&queues, "queue", nil, "Queues to consume (default: all)")
	cmd.Flags().BoolVar(&noScheduler, "no-scheduler", false, "Do not register periodic tasks")
	return cmd
}

func runWorkers(ctx context.Context, only []string, withScheduler bool) error {
	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	wantRender := len(only) == 0 || slices.Contains(only, jobs.QueueRender)
	proc, err := a.processor(ctx, wantRender)
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	started := 0
	for _, spec := range proc.Queues() {
		if len(only) > 0 && !slices.Contains(only, spec.Name) {
			continue
		}
		w, err := queue.NewWorker(a.queue,
			queue.WithQueues(spec.Name),
			queue.WithMaxConcurrentTasks(spec.Concurrency),
			queue.WithPullInterval(a.qcfg.PollInterval),
			queue.WithLockTimeout(a.qcfg.LockTimeout),
			queue.WithWorkerLogger(a.log.With(logger.Queue(spec.Name))),
		)
		if err != nil {
			return err
		}
		w.RegisterHandlers(spec.Handlers...)
		g.Go(w.Run(gctx))
		started++
	}
	if started == 0 {
		return fmt.Errorf("no known queue in %v", only)
	}

	if withScheduler {
		s, err := queue.NewScheduler(a.queue, queue.WithSchedulerLogger(a.log))
		if err != nil {
			return err
		}
		if err := jobs.Schedule(s); err != nil {
			return err
		}
		g.Go(s.Run(gctx))
	}

	a.log.InfoContext(ctx, "workers started")

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}

	select {
	case err := <-done:
		a.log.Info("workers stopped")
		return err
	case <-time.After(a.qcfg.ShutdownTimeout):
		return ErrShutdownTimeout
	}
}

// processor wires the job handlers. Render collaborators are built only
// when the render queue runs in this process.
func (a *app) processor(ctx context.Context, withRender bool) (*jobs.Processor, error) {
	cipher, err := a.cipher()
	if err != nil {
		return nil, err
	}
	agg, err := a.aggregator()
	if err != nil {
		return nil, err
	}
	enq, err := a.enqueuer()
	if err != nil {
		return nil, err
	}

	var storageCfg storage.Config
	if err := config.Load(&storageCfg); err != nil {
		return nil, err
	}
	objects, err := storage.New(ctx, storageCfg)
	if err != nil {
		return nil, err
	}

	var igCfg instagram.Config
	if err := config.Load(&igCfg); err != nil {
		return nil, err
	}
	var mediaCfg media.Config
	if err := config.Load(&mediaCfg); err != nil {
		return nil, err
	}

	st := store.New(a.pool)
	costs := a.costs()
	deps := jobs.Deps{
		Store:      st,
		Ledger:     credits.NewPostgresLedger(a.pool),
		Objects:    objects,
		Instagram:  instagram.New(igCfg),
		Aggregator: agg,
		Profiles:   profile.New(st, agg, cipher),
		Media:      media.NewProcessor(objects, mediaCfg, media.WithLogger(a.log)),
		Tokens:     cipher,
		Enqueuer:   enq,
		Costs:      costs,
	}

	if withRender {
		var aiCfg ai.Config
		if err := config.Load(&aiCfg); err != nil {
			return nil, err
		}
		gemini, err := ai.NewGemini(ctx, aiCfg, ai.WithCostLogger(costs), ai.WithLogger(a.log))
		if err != nil {
			return nil, err
		}
		fal, err := ai.NewFal(aiCfg, ai.WithFalCostLogger(costs))
		if err != nil {
			return nil, err
		}
		var renderCfg render.Config
		if err := config.Load(&renderCfg); err != nil {
			return nil, err
		}
		deps.Analyzer = gemini
		deps.Music = fal
		deps.Renderer = render.New(renderCfg, render.WithLogger(a.log))
	}

	return jobs.New(deps, jobs.WithLogger(a.log)), nil
}
