package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nazeru/escrow-fulfillment-go/internal/app"
	"github.com/nazeru/escrow-fulfillment-go/internal/httpapi"
	"github.com/nazeru/escrow-fulfillment-go/pkg/config"
	"github.com/nazeru/escrow-fulfillment-go/pkg/logging"
	"github.com/nazeru/escrow-fulfillment-go/pkg/metrics"
)

func main() {
	cfg, err := config.Load("courier-service")
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := logging.New(cfg.Service)
	srvMetrics := metrics.NewServerMetrics("courier_service")

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	orders, err := app.NewOrders(initCtx, cfg, logger, srvMetrics)
	cancel()
	if err != nil {
		log.Fatalf("startup error: %v", err)
	}
	defer orders.Close()

	handler := httpapi.CourierRouter(orders.Engine, httpapi.Server{Log: logger, Metrics: srvMetrics, Health: orders.Store.Ping})
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: handler, ReadHeaderTimeout: 5 * time.Second}
	if err := app.Run(ctx, logger, srv, orders.Workers...); err != nil {
		log.Printf("courier-service stopped: %v", err)
	}
}
