// internal/server/timeouts.go
//
// HTTP server helper with fixed timeouts and graceful shutdown.
//
//   - ReadHeaderTimeout  abort slow-loris headers (5 s)
//   - ReadTimeout        cap body upload (10 s)
//   - WriteTimeout       cap total response time (35 s, above the router's
//     30 s handler timeout)
//   - IdleTimeout        close idle keep-alives (60 s)
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// New constructs an *http.Server with the defaults above.
func New(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

// Run serves srv until ctx ends, then drains in-flight requests for at
// most grace.
func Run(ctx context.Context, srv *http.Server, grace time.Duration, log *zap.Logger) error {
	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down http server", zap.Duration("grace", grace))
	sctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	return srv.Shutdown(sctx)
}
