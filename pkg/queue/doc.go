// Package queue is a storage-agnostic background task queue with immediate,
// delayed and periodic execution.
//
// Three components talk to storage only through small repository interfaces:
//
//   - Enqueuer adds one-time tasks.
//   - Scheduler turns Schedule definitions into periodic tasks.
//   - Worker claims due tasks and dispatches them to a Handler.
//
// MemoryStorage and RedisStorage implement every repository interface.
//
// # Attempts and failure hooks
//
// Each task carries a delivery budget (MaxAttempts) and a counter of failed
// deliveries (AttemptsMade). After a failed attempt the worker calls the
// handler's FailureHandler hook, if any, with an Attempt describing the
// delivery. The hook returns Retry to let the BackoffStrategy reschedule the
// task, or Discard to skip the remaining attempts. Discarded and exhausted
// tasks land in the dead letter queue.
//
//	handler := queue.NewTaskHandler(
//	    func(ctx context.Context, job RenderJob) error { ... },
//	    queue.WithFailureFunc(func(ctx context.Context, job RenderJob, a queue.Attempt, err error) queue.Outcome {
//	        if a.Exhausted() {
//	            // release reserved resources
//	        }
//	        return queue.Retry
//	    }),
//	)
//
// # Usage
//
//	storage, _ := queue.NewRedisStorage(client, queue.WithKeyPrefix("app:queue"))
//
//	enq, _ := queue.NewEnqueuer(storage)
//	_ = enq.Enqueue(ctx, RenderJob{ContentItemID: id}, queue.WithQueue("render"))
//
//	worker, _ := queue.NewWorker(storage, queue.WithQueues("render"), queue.WithMaxConcurrentTasks(2))
//	worker.RegisterHandlers(handler)
//
//	sched, _ := queue.NewScheduler(storage)
//	_ = sched.AddTask("cleanup", queue.MustParseSchedule("@every 6h"))
//
//	g, ctx := errgroup.WithContext(ctx)
//	g.Go(worker.Run(ctx))
//	g.Go(sched.Run(ctx))
//	_ = g.Wait()
//
// Tasks are delivered at least once. A worker whose lock expires loses the
// task to another worker, so handlers must tolerate duplicate delivery.
package queue
