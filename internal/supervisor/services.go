package supervisor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"rating-service/internal/util"
)

// Sweeper is satisfied by *ratelimit.Sweeper.
type Sweeper interface {
	SweepExpiredEntries(ctx context.Context, margin time.Duration) (int, error)
	DefaultMargin() time.Duration
}

// SweeperService runs the ledger sweep every interval. A failed run is
// logged and retried at the next tick.
type SweeperService struct {
	sweeper  Sweeper
	interval time.Duration
	timeout  time.Duration
}

func NewSweeperService(sweeper Sweeper, interval time.Duration) *SweeperService {
	timeout := interval / 2
	if timeout > 10*time.Minute {
		timeout = 10 * time.Minute
	}
	return &SweeperService{
		sweeper:  sweeper,
		interval: interval,
		timeout:  timeout,
	}
}

func (s *SweeperService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	util.Info("Ledger sweeper scheduled", zap.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

func (s *SweeperService) runOnce(ctx context.Context) {
	sctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	// the sweeper logs and records its own outcome
	_, _ = s.sweeper.SweepExpiredEntries(sctx, s.sweeper.DefaultMargin())
}

func (s *SweeperService) String() string { return "ledger-sweeper" }

// HTTPServer is satisfied by *http.Server.
type HTTPServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// HTTPServerService runs the API server and shuts it down gracefully when
// the tree stops.
type HTTPServerService struct {
	server          HTTPServer
	shutdownTimeout time.Duration
}

func NewHTTPServerService(server HTTPServer, shutdownTimeout time.Duration) *HTTPServerService {
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	return &HTTPServerService{server: server, shutdownTimeout: shutdownTimeout}
}

func (h *HTTPServerService) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := h.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), h.shutdownTimeout)
		defer cancel()

		util.Info("Shutting down HTTP server")
		if err := h.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http server shutdown failed: %w", err)
		}
		<-errCh
		return ctx.Err()
	}
}

func (h *HTTPServerService) String() string { return "http-server" }
