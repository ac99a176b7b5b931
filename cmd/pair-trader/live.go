package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"pair-trader/internal/amqp"
	"pair-trader/internal/db"
	"pair-trader/internal/live"
	"pair-trader/internal/metrics"
	"pair-trader/internal/websocket"
)

// drainDuration clears stale broker backlog before the session goes live.
const drainDuration = 10 * time.Second

func liveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "live",
		Short: "Trade live against a broker over RabbitMQ",
		Long: `Consumes bar, execution and account queues from RabbitMQ, drives the
pair ratio strategy, publishes order commands, and serves the dashboard
WebSocket plus Prometheus metrics.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			var journal *db.Journal
			if cfg.PostgresDSN != "" {
				journal, err = db.NewJournal(cfg.PostgresDSN)
				if err != nil {
					log.Warn().Err(err).Msg("decision journal unavailable, continuing without")
					journal = nil
				} else {
					defer journal.Close()
					journal.StartRun("live", cfg.AssetA, cfg.AssetB, map[string]any{
						"swingLeft":      cfg.SwingLeft,
						"swingRight":     cfg.SwingRight,
						"splitRatio":     cfg.SplitRatio,
						"ratioThreshold": cfg.RatioThreshold,
					})
				}
			}

			publisher, err := amqp.NewPublisher(cfg.AmqpURI)
			if err != nil {
				return err
			}
			defer publisher.Close()

			hub := websocket.NewHub()
			go hub.Run()

			engine, err := live.NewEngine(cfg, publisher, hub, journal)
			if err != nil {
				return err
			}

			handler := amqp.NewMessageHandler(engine)
			consumer, err := amqp.NewConsumer(cfg.AmqpURI, handler)
			if err != nil {
				return err
			}
			defer consumer.Close()

			// Clear any backlog left from a previous session so the engine
			// starts from live data, not history replayed at full speed.
			if err := consumer.DrainQueues(drainDuration); err != nil {
				log.Warn().Err(err).Msg("drain queues failed, continuing")
			}

			handler.Start()
			defer handler.Stop()
			if err := consumer.StartConsumers(); err != nil {
				return err
			}

			engine.Start()
			defer engine.Stop()

			mux := http.NewServeMux()
			mux.HandleFunc("/ws", hub.ServeWs)
			mux.Handle("/metrics", metrics.Handler())
			srv := &http.Server{Addr: cfg.ListenAddr, Handler: mux}
			go func() {
				log.Info().Str("addr", cfg.ListenAddr).Msg("http server listening")
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Error().Err(err).Msg("http server failed")
				}
			}()

			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			<-quit
			log.Info().Msg("shutdown signal received, closing connections")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)

			if journal != nil {
				journal.StopRun("stopped")
			}
			return nil
		},
	}
}
