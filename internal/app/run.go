// Package app wires configuration, storage, the ledger and Kafka into the
// long-running services.
package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nazeru/escrow-fulfillment-go/pkg/logging"
)

// Worker is a background loop that returns once ctx is done.
type Worker func(ctx context.Context) error

// Run serves srv and the workers until ctx is cancelled or one of them
// fails; the first failure stops the rest.
func Run(ctx context.Context, log logging.Logger, srv *http.Server, workers ...Worker) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Log(logging.Fields{Step: "listen", Status: "started", Message: srv.Addr})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	for _, w := range workers {
		w := w
		g.Go(func() error { return w(ctx) })
	}

	err := g.Wait()
	log.Log(logging.Fields{Step: "shutdown", Status: "done"})
	return err
}
