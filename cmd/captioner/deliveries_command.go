package main

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"captioner/internal/delivery"
	"captioner/internal/outbox"
)

func newDeliveriesCommand(ctx *commandContext) *cobra.Command {
	deliveriesCmd := &cobra.Command{
		Use:   "deliveries",
		Short: "Inspect and re-drive persisted callback deliveries",
	}
	deliveriesCmd.AddCommand(newDeliveriesListCommand(ctx))
	deliveriesCmd.AddCommand(newDeliveriesResumeCommand(ctx))
	deliveriesCmd.AddCommand(newDeliveriesDropCommand(ctx))
	return deliveriesCmd
}

func (c *commandContext) withOutbox(fn func(*outbox.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := outbox.Open(cfg.OutboxPath())
	if err != nil {
		return fmt.Errorf("open delivery outbox: %w", err)
	}
	defer store.Close()
	return fn(store)
}

func newDeliveriesListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List deliveries waiting for a successful callback",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withOutbox(func(store *outbox.Store) error {
				records, err := store.Pending(cmd.Context())
				if err != nil {
					return err
				}
				if records == nil {
					records = []outbox.Record{}
				}
				return ctx.emit(cmd, records, func() string { return renderDeliveries(records) })
			})
		},
	}
}

func renderDeliveries(records []outbox.Record) string {
	if len(records) == 0 {
		return "No pending deliveries"
	}
	rows := make([][]string, 0, len(records))
	for _, rec := range records {
		status := "-"
		if rec.LastStatus > 0 {
			status = strconv.Itoa(rec.LastStatus)
		}
		rows = append(rows, []string{
			strconv.FormatInt(rec.ID, 10),
			rec.JobID,
			rec.Endpoint,
			strconv.Itoa(rec.Attempts),
			status,
			rec.LastOutcome,
			rec.CreatedAt.Local().Format(time.DateTime),
		})
	}
	return renderTable(
		[]string{"ID", "Job", "Endpoint", "Attempts", "Last status", "Last outcome", "Created"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight},
	)
}

func newDeliveriesResumeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Retry every pending delivery",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			logger, err := ctx.ensureLogger()
			if err != nil {
				return err
			}
			return ctx.withOutbox(func(store *outbox.Store) error {
				dispatcher := delivery.NewDispatcher(delivery.PolicyFromConfig(cfg), logger, delivery.WithOutbox(store))
				summary, err := dispatcher.Resume(cmd.Context())
				if err != nil {
					if errors.Is(err, outbox.ErrLocked) {
						return fmt.Errorf("another process is resuming deliveries: %w", err)
					}
					return err
				}
				return ctx.emit(cmd, summary, func() string {
					return renderFields([][2]string{
						{"Pending", strconv.Itoa(summary.Pending)},
						{"Delivered", strconv.Itoa(summary.Delivered)},
						{"Failed", strconv.Itoa(summary.Failed)},
					})
				})
			})
		},
	}
}

func newDeliveriesDropCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "drop ID",
		Short: "Discard a pending delivery",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil || id <= 0 {
				return fmt.Errorf("invalid delivery id %q", args[0])
			}
			return ctx.withOutbox(func(store *outbox.Store) error {
				if err := store.Remove(cmd.Context(), id); err != nil {
					if errors.Is(err, outbox.ErrNotFound) {
						return fmt.Errorf("delivery %d not found", id)
					}
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Dropped delivery %d\n", id)
				return nil
			})
		},
	}
}
