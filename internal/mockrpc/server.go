package mockrpc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 5 * time.Second

// Serve listens on every address with the same handler until ctx is cancelled.
func Serve(ctx context.Context, addrs []string, handler http.Handler, logger zerolog.Logger) error {
	if len(addrs) == 0 {
		return errors.New("no listen addresses")
	}
	logger = logger.With().Str("component", "mockrpc_server").Logger()

	g, gctx := errgroup.WithContext(ctx)
	for _, addr := range addrs {
		srv := &http.Server{
			Addr:              addr,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		}
		g.Go(func() error {
			logger.Info().Str("addr", addr).Msg("mock upstream listening")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("listen %s: %w", addr, err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	err := g.Wait()
	logger.Info().Msg("mock upstream stopped")
	return err
}
