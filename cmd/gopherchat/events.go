package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/suPer8Hu/gopherchat/internal/db"
	"github.com/suPer8Hu/gopherchat/internal/store/rabbitmq"
	"github.com/suPer8Hu/gopherchat/internal/store/sqlstore"
	"github.com/suPer8Hu/gopherchat/internal/stream"
)

func eventsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Generation event log",
		Long: `The server publishes generation lifecycle events (started, completed,
aborted, errored) to RabbitMQ when rabbit_url is set. "events consume"
records them in the SQL database; "events list" shows the newest ones.`,
	}
	cmd.AddCommand(eventsConsumeCmd(), eventsListCmd())
	return cmd
}

func openEventLog(ctx context.Context) (*sqlstore.EventLog, func(), error) {
	gdb, err := db.Open(cfg.DBDSN)
	if err != nil {
		return nil, nil, err
	}
	closeDB := func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	}
	el := sqlstore.NewEventLog(gdb)
	if err := el.Migrate(ctx); err != nil {
		closeDB()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return el, closeDB, nil
}

func eventsConsumeCmd() *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "consume",
		Short: "Record generation events from the queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.RabbitURL == "" {
				return errors.New("rabbit_url is not configured")
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			el, closeDB, err := openEventLog(ctx)
			if err != nil {
				return err
			}
			defer closeDB()

			handle := func(ctx context.Context, e stream.Event) error {
				start := time.Now()
				if err := el.Record(ctx, e); err != nil {
					return err
				}
				log.Debug("event recorded", "generation", e.GenerationID, "kind", e.Kind, "cost", time.Since(start))
				return nil
			}
			err = rabbitmq.Consume(ctx, cfg.RabbitURL, cfg.RabbitQueue, concurrency, handle, log)
			if err != nil {
				return err
			}
			log.Info("event consumer stopped")
			return nil
		},
	}

	cmd.Flags().IntVar(&concurrency, "concurrency", 2, "Number of workers (1-50)")
	return cmd
}

func eventsListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show recorded generation events",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			el, closeDB, err := openEventLog(ctx)
			if err != nil {
				return err
			}
			defer closeDB()

			events, err := el.Recent(ctx, limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "AT\tKIND\tCONVERSATION\tMODEL\tSNAPSHOTS\tERROR")
			for _, e := range events {
				errText := ""
				if e.Error != nil {
					errText = *e.Error
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
					e.At.Local().Format(time.DateTime), e.Kind, e.ConversationID, e.Model, e.Snapshots, errText)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of events to show (max 100)")
	return cmd
}
