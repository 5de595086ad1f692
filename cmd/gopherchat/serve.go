package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/suPer8Hu/gopherchat/internal/httpapi"
	"github.com/suPer8Hu/gopherchat/internal/httpapi/handlers"
	"github.com/suPer8Hu/gopherchat/internal/store/rabbitmq"
)

const shutdownTimeout = 10 * time.Second

func serveCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				cfg.HTTPAddr = addr
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := newApp(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			if cfg.RabbitURL != "" {
				pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue, log)
				if err != nil {
					return err
				}
				defer pub.Close()
				a.ctrl.Subscribe(pub)
				log.Info("publishing generation events", "queue", cfg.RabbitQueue)
			}

			h := handlers.NewHandler(a.repo, a.ctrl, a.catalog, *cfg)
			srv := &http.Server{
				Addr:              cfg.HTTPAddr,
				Handler:           httpapi.NewRouter(*cfg, h, log),
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				log.Info("http server listening", "addr", cfg.HTTPAddr, "auth", cfg.AuthEnabled, "store", cfg.StoreBackend, "provider", cfg.AIProvider)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return err
				}
			case <-ctx.Done():
				log.Info("shutting down")
			}

			// stop in-flight generations so their final state is saved
			for _, cv := range a.repo.Conversations() {
				if g, ok := a.ctrl.Active(cv.ID); ok {
					a.ctrl.Stop(cv.ID)
					g.Wait()
				}
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides http_addr)")
	return cmd
}
