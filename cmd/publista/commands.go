package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Niabag/Plublista-sub000/internal/config"
	"github.com/Niabag/Plublista-sub000/internal/content"
	"github.com/Niabag/Plublista-sub000/internal/db"
	"github.com/Niabag/Plublista-sub000/internal/jobs"
	"github.com/Niabag/Plublista-sub000/internal/publishing"
	"github.com/Niabag/Plublista-sub000/pkg/queue"
)

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			a, err := openApp(ctx, false)
			if err != nil {
				return err
			}
			defer a.Close()

			var cfg db.Config
			if err := config.Load(&cfg); err != nil {
				return err
			}
			return db.Migrate(ctx, a.pool, cfg, a.log)
		},
	}
}

func newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status <user-id> <content-item-id>",
		Short: "Show the latest publish jobs of a content item",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, itemID, err := parseIDs(args[0], args[1])
			if err != nil {
				return err
			}
			return withPublishing(cmd.Context(), func(svc *publishing.Service) error {
				rows, err := svc.Status(cmd.Context(), userID, itemID)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderJobs(rows))
				return nil
			})
		},
	}
}

func renderJobs(rows []content.PublishJob) string {
	if len(rows) == 0 {
		return "No publish jobs"
	}
	out := make([][]string, len(rows))
	for i, r := range rows {
		out[i] = []string{
			r.ID.String(),
			string(r.Platform),
			string(r.Status),
			strconv.Itoa(r.AttemptCount),
			deref(r.PublishedURL),
			deref(r.ErrorMessage),
			r.CreatedAt.Format(time.RFC3339),
		}
	}
	return renderTable(
		[]string{"ID", "Platform", "Status", "Attempts", "URL", "Error", "Created"},
		out,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight},
	)
}

func newQueueCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect the job queues",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show task counts per queue",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withQueue(cmd.Context(), func(a *app) error {
				var rows [][]string
				for _, name := range queueNames() {
					s, err := a.queue.Stats(cmd.Context(), name)
					if err != nil {
						return err
					}
					rows = append(rows, []string{
						name,
						strconv.FormatInt(s.Pending, 10),
						strconv.FormatInt(s.Processing, 10),
						strconv.FormatInt(s.Completed, 10),
						strconv.FormatInt(s.Failed, 10),
						strconv.FormatInt(s.Dead, 10),
					})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"Queue", "Pending", "Processing", "Completed", "Failed", "Dead"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight},
				))
				return nil
			})
		},
	})

	var limit int
	dead := &cobra.Command{
		Use:   "dead <queue>",
		Short: "List dead-lettered tasks of a queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withQueue(cmd.Context(), func(a *app) error {
				tasks, err := a.queue.ListDead(cmd.Context(), args[0], limit)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderDead(tasks))
				return nil
			})
		},
	}
	dead.Flags().IntVar(&limit, "limit", 20, "Maximum tasks to list")
	cmd.AddCommand(dead)

	return cmd
}

func renderDead(tasks []*queue.DeadTask) string {
	if len(tasks) == 0 {
		return "Dead letter queue is empty"
	}
	rows := make([][]string, len(tasks))
	for i, t := range tasks {
		rows[i] = []string{
			t.TaskID.String(),
			t.TaskName,
			strconv.Itoa(int(t.AttemptsMade)),
			t.Error,
			t.FailedAt.Format(time.RFC3339),
		}
	}
	return renderTable(
		[]string{"Task", "Name", "Attempts", "Error", "Failed"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignRight},
	)
}

func queueNames() []string {
	return []string{jobs.QueueRender, jobs.QueuePublish, jobs.QueueAggregator, jobs.QueueCleanup, jobs.QueueSchedule}
}

// newPublishCommands are the producer operations, for support and scripts.
func newPublishCommands() []*cobra.Command {
	publish := &cobra.Command{
		Use:   "publish <user-id> <content-item-id> [platform...]",
		Short: "Publish now; without platforms the item goes to Instagram directly",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, itemID, err := parseIDs(args[0], args[1])
			if err != nil {
				return err
			}
			return withPublishing(cmd.Context(), func(svc *publishing.Service) error {
				if len(args) == 2 {
					id, err := svc.PublishNow(cmd.Context(), userID, itemID)
					if err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "queued publish job %s\n", id)
					return nil
				}
				ids, err := svc.PublishMulti(cmd.Context(), userID, itemID, args[2:])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "queued %d publish jobs\n", len(ids))
				return nil
			})
		},
	}

	var at string
	schedule := &cobra.Command{
		Use:   "schedule <user-id> <content-item-id> <platform>...",
		Short: "Schedule a publish for later",
		Args:  cobra.MinimumNArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, itemID, err := parseIDs(args[0], args[1])
			if err != nil {
				return err
			}
			when, err := time.Parse(time.RFC3339, at)
			if err != nil {
				return fmt.Errorf("invalid --at: %w", err)
			}
			return withPublishing(cmd.Context(), func(svc *publishing.Service) error {
				ids, err := svc.Schedule(cmd.Context(), userID, itemID, args[2:], when)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "scheduled %d publish jobs at %s\n", len(ids), when.UTC().Format(time.RFC3339))
				return nil
			})
		},
	}
	schedule.Flags().StringVar(&at, "at", "", "Publish time, RFC 3339")
	_ = schedule.MarkFlagRequired("at")

	cancel := &cobra.Command{
		Use:   "cancel <user-id> <content-item-id>",
		Short: "Cancel a scheduled publish",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, itemID, err := parseIDs(args[0], args[1])
			if err != nil {
				return err
			}
			return withPublishing(cmd.Context(), func(svc *publishing.Service) error {
				return svc.CancelSchedule(cmd.Context(), userID, itemID)
			})
		},
	}

	renderCmd := &cobra.Command{
		Use:   "render <user-id> <content-item-id>",
		Short: "Charge and queue a reel render",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, itemID, err := parseIDs(args[0], args[1])
			if err != nil {
				return err
			}
			return withPublishing(cmd.Context(), func(svc *publishing.Service) error {
				return svc.RequestRender(cmd.Context(), userID, itemID)
			})
		},
	}

	connect := &cobra.Command{
		Use:   "connect <user-id>",
		Short: "Show the aggregator linking URL and connected platforms",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			userID, err := uuid.Parse(args[0])
			if err != nil {
				return fmt.Errorf("invalid user id: %w", err)
			}
			return withPublishing(cmd.Context(), func(svc *publishing.Service) error {
				c, err := svc.ConnectionURL(cmd.Context(), userID)
				if err != nil {
					return err
				}
				if c.URL != "" {
					fmt.Fprintf(cmd.OutOrStdout(), "link accounts at %s\n", c.URL)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "connected: %s\n", strings.Join(c.Platforms, ", "))
				return nil
			})
		},
	}

	return []*cobra.Command{publish, schedule, cancel, renderCmd, connect}
}

func withPublishing(ctx context.Context, fn func(*publishing.Service) error) error {
	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	svc, err := a.publishing()
	if err != nil {
		return err
	}
	return fn(svc)
}

func withQueue(ctx context.Context, fn func(*app) error) error {
	log, err := newLogger()
	if err != nil {
		return err
	}
	a := &app{log: log}
	defer a.Close()
	if err := a.openQueue(ctx); err != nil {
		return err
	}
	return fn(a)
}

func parseIDs(user, item string) (uuid.UUID, uuid.UUID, error) {
	userID, err := uuid.Parse(user)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid user id: %w", err)
	}
	itemID, err := uuid.Parse(item)
	if err != nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("invalid content item id: %w", err)
	}
	return userID, itemID, nil
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
