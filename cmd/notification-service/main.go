package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nazeru/escrow-fulfillment-go/internal/app"
	"github.com/nazeru/escrow-fulfillment-go/internal/notify"
	"github.com/nazeru/escrow-fulfillment-go/pkg/config"
	"github.com/nazeru/escrow-fulfillment-go/pkg/db"
	"github.com/nazeru/escrow-fulfillment-go/pkg/kafka"
	"github.com/nazeru/escrow-fulfillment-go/pkg/logging"
	"github.com/nazeru/escrow-fulfillment-go/pkg/metrics"
)

func main() {
	cfg, err := config.Load("notification-service")
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.New(cfg.Service)
	srvMetrics := metrics.NewServerMetrics("notification_service")

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	pool, err := db.Connect(initCtx, cfg.DatabaseURL)
	cancel()
	if err != nil {
		log.Fatalf("db connect error: %v", err)
	}
	defer pool.Close()

	var workers []app.Worker
	client := kafka.NewClient(cfg.KafkaBrokers)
	if client.Enabled() {
		reader := client.NewReader(cfg.KafkaTopic, cfg.KafkaGroupID)
		defer reader.Close()
		consumer := &notify.Consumer{Reader: reader, DB: pool, Log: logger}
		workers = append(workers, consumer.Run)
	} else {
		logger.Log(logging.Fields{Step: "kafka_consume", Status: "disabled", Message: "KAFKA_BROKERS is empty"})
	}

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		code := http.StatusOK
		if err := db.Ping(r.Context(), pool); err != nil {
			code = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		if code == http.StatusOK {
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		} else {
			_, _ = w.Write([]byte(`{"status":"db_error"}`))
		}
		srvMetrics.ObserveRequest("/health", code, start)
	})
	r.Method(http.MethodGet, "/metrics", srvMetrics.Handler())

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: r, ReadHeaderTimeout: 5 * time.Second}
	if err := app.Run(ctx, logger, srv, workers...); err != nil {
		log.Printf("notification-service stopped: %v", err)
	}
}
