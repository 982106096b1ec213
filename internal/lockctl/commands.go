package lockctl

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"eventmarket/internal/locks/keeper"
	"eventmarket/pkg/logger"
	"eventmarket/pkg/model"

	"github.com/spf13/cobra"
)

const timeLayout = time.RFC3339

func (c *cli) statusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status TYPE ID",
		Short: "Show whether a resource is locked and by whom",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseKey(args)
			if err != nil {
				return err
			}
			actor, err := c.actor()
			if err != nil {
				return err
			}

			status, err := c.client().Status(cmd.Context(), actor, key)
			if err != nil {
				return fmt.Errorf("failed to get status of %s: %w", key, err)
			}
			if c.json() {
				return c.printJSON(status)
			}
			return c.printLocks([]*model.LockStatus{status})
		},
	}
}

func (c *cli) waitCommand() *cobra.Command {
	var maxWait time.Duration
	cmd := &cobra.Command{
		Use:   "wait TYPE ID",
		Short: "Block until a resource is released or the wait times out",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseKey(args)
			if err != nil {
				return err
			}
			actor, err := c.actor()
			if err != nil {
				return err
			}

			outcome, err := c.client().Wait(cmd.Context(), actor, key, maxWait)
			if err != nil {
				return fmt.Errorf("failed to wait for %s: %w", key, err)
			}
			if c.json() {
				return c.printJSON(outcome)
			}
			fmt.Fprintf(c.out, "%s: %s after %s\n", key, outcome.Status, outcome.Waited.Round(time.Millisecond))
			if outcome.LastHolder != nil && outcome.LastHolder.Locked {
				return c.printLocks([]*model.LockStatus{outcome.LastHolder})
			}
			return nil
		},
	}
	cmd.Flags().DurationVar(&maxWait, "max-wait", 0, "longest time to wait (0 uses the server default)")
	return cmd
}

func (c *cli) listCommand() *cobra.Command {
	var (
		resourceType string
		limit        int
		offset       int64
	)
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List live locks (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			actor, err := c.actor()
			if err != nil {
				return err
			}

			locks, total, err := c.client().List(cmd.Context(), actor, model.ResourceType(resourceType), limit, offset)
			if err != nil {
				return fmt.Errorf("failed to list locks: %w", err)
			}
			if c.json() {
				return c.printJSON(map[string]any{"data": locks, "total_count": total})
			}
			if len(locks) == 0 {
				fmt.Fprintln(c.out, "No locks held.")
				return nil
			}
			if err := c.printLocks(locks); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "\n%d of %d shown\n", len(locks), total)
			return nil
		},
	}
	cmd.Flags().StringVarP(&resourceType, "type", "t", "", "only locks on this resource type")
	cmd.Flags().IntVar(&limit, "limit", 50, "page size")
	cmd.Flags().Int64Var(&offset, "offset", 0, "page offset")
	return cmd
}

func (c *cli) forceReleaseCommand() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "force-release TYPE ID",
		Short: "Release a lock held by someone else (admin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseKey(args)
			if err != nil {
				return err
			}
			actor, err := c.actor()
			if err != nil {
				return err
			}

			result, err := c.client().ForceRelease(cmd.Context(), actor, key, reason)
			if err != nil {
				return fmt.Errorf("failed to force release %s: %w", key, err)
			}
			if c.json() {
				return c.printJSON(result)
			}
			if !result.Released {
				fmt.Fprintf(c.out, "%s was not locked\n", key)
				return nil
			}
			fmt.Fprintf(c.out, "Released %s (was held by %s)\n", key, holderName(result.PreviousHolder))
			return nil
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "why the lock is being taken away (required)")
	_ = cmd.MarkFlagRequired("reason")
	return cmd
}

func (c *cli) purgeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "purge",
		Short: "Delete every expired lock now (admin)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			actor, err := c.actor()
			if err != nil {
				return err
			}

			result, err := c.client().Purge(cmd.Context(), actor)
			if err != nil {
				return fmt.Errorf("failed to purge locks: %w", err)
			}
			if c.json() {
				return c.printJSON(result)
			}
			fmt.Fprintf(c.out, "Purged %d expired lock(s)\n", result.Purged)
			return nil
		},
	}
}

// holdCommand acquires a lock and heartbeats it until interrupted. It is
// handy for reproducing contention by hand.
func (c *cli) holdCommand() *cobra.Command {
	var (
		operation string
		heartbeat time.Duration
		duration  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "hold TYPE ID",
		Short: "Acquire a lock and keep it alive until interrupted",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := parseKey(args)
			if err != nil {
				return err
			}
			actor, err := c.actor()
			if err != nil {
				return err
			}

			log := logger.New(logger.Config{Level: "info", Format: logger.TEXT, Output: os.Stderr, Service: "lockctl"})
			k := keeper.New(c.client(), actor, heartbeat, log)

			ctx := cmd.Context()
			if duration > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, duration)
				defer cancel()
			}
			ctx, lost := context.WithCancelCause(ctx)
			defer lost(nil)
			k.OnLost = func(_ model.ResourceKey, err error) { lost(fmt.Errorf("lock lost: %w", err)) }

			outcome, err := k.Acquire(ctx, &model.AcquireRequest{
				ResourceType: key.Type,
				ResourceID:   key.RecordID,
				Operation:    model.Operation(operation),
			})
			if err != nil {
				return fmt.Errorf("failed to acquire %s: %w", key, err)
			}
			if !outcome.Granted() {
				if c.json() {
					return c.printJSON(outcome)
				}
				return fmt.Errorf("%s is held by %s", key, holderName(outcome.Holder))
			}

			fmt.Fprintf(c.out, "Holding %s (lease %s), press Ctrl-C to release\n", key, outcome.LeaseID)
			k.Start(ctx)
			<-ctx.Done()
			k.Stop()

			if cause := context.Cause(ctx); cause != nil && cause != context.Canceled && cause != context.DeadlineExceeded {
				return cause
			}

			releaseCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := k.ReleaseAll(releaseCtx); err != nil {
				return fmt.Errorf("failed to release %s: %w", key, err)
			}
			fmt.Fprintf(c.out, "Released %s\n", key)
			return nil
		},
	}
	cmd.Flags().StringVar(&operation, "operation", string(model.OperationEdit), "operation recorded on the lock")
	cmd.Flags().DurationVar(&heartbeat, "heartbeat", 30*time.Second, "renewal interval")
	cmd.Flags().DurationVar(&duration, "for", 0, "release automatically after this long (0 holds until interrupted)")
	return cmd
}

func (c *cli) printLocks(locks []*model.LockStatus) error {
	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "RESOURCE\tLOCKED\tHOLDER\tOPERATION\tEXPIRES")
	for _, l := range locks {
		expires := "-"
		if l.ExpiresAt != nil {
			expires = l.ExpiresAt.Local().Format(timeLayout)
		}
		operation := string(l.Operation)
		if operation == "" {
			operation = "-"
		}
		fmt.Fprintf(w, "%s\t%t\t%s\t%s\t%s\n", l.ResourceKey, l.Locked, holderName(l.Holder), operation, expires)
	}
	return w.Flush()
}

func holderName(h *model.Holder) string {
	switch {
	case h == nil:
		return "-"
	case h.DisplayName != "":
		return fmt.Sprintf("%s (%s)", h.DisplayName, h.ID)
	default:
		return h.ID
	}
}
