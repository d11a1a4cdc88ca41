package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rating-service/internal/factory"
	"rating-service/internal/handler"
	"rating-service/internal/supervisor"
	ratingtls "rating-service/internal/tls"
	"rating-service/internal/util"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	defer stop()

	// Initialize factory (which loads config and initializes all clients)
	f, err := factory.NewFactory(ctx)
	if err != nil {
		util.Fatal("Failed to initialize factory", util.ErrorField(err))
	}
	defer f.Close()

	cfg := f.Config()

	server := &http.Server{
		Addr:         cfg.GetServerAddress(),
		Handler:      setupRouter(f),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	tree := supervisor.NewSupervisorTree(supervisor.DefaultTreeConfig())
	if cfg.Server.TLS.Enabled {
		manager, err := ratingtls.NewTLSManager(cfg.Server.TLS)
		if err != nil {
			util.Fatal("Failed to initialize TLS", util.ErrorField(err))
		}
		tree.AddAPIService(supervisor.NewHTTPServerService(manager.Serve(server), 30*time.Second))
		if challenge := manager.ChallengeServer(); challenge != nil {
			tree.AddAPIService(supervisor.NewHTTPServerService(challenge, 5*time.Second))
		}
	} else {
		tree.AddAPIService(supervisor.NewHTTPServerService(server, 30*time.Second))
	}
	tree.AddMaintenanceService(supervisor.NewSweeperService(f.Sweeper(), cfg.Sweeper.Interval))
	if archiver := f.Archiver(); archiver != nil {
		tree.AddMessagingService(archiver)
	}

	util.Info("Server starting",
		util.String("environment", cfg.Environment),
		util.String("address", server.Addr),
		util.Bool("tls", cfg.Server.TLS.Enabled),
		util.Duration("sweeper_interval", cfg.Sweeper.Interval),
	)

	treeCtx, cancelTree := context.WithCancel(ctx)
	defer cancelTree()

	err = supervisor.Wait(treeCtx, tree.ServeBackground(treeCtx))
	if err != nil {
		util.Error("Supervisor tree exited", util.ErrorField(err))
		cancelTree()
	}
	if unstopped, rerr := tree.UnstoppedServiceReport(); rerr == nil && len(unstopped) > 0 {
		util.Warn("Services did not stop cleanly", util.Int("count", len(unstopped)))
	}
	if err != nil {
		f.Close()
		os.Exit(1)
	}
}

// setupRouter creates the HTTP router with all handlers using Chi
func setupRouter(f *factory.Factory) http.Handler {
	cfg := f.Config()
	services := f.ServiceFactory()

	if cfg.CronSecret == "" {
		util.Warn("CRON_SECRET not set, maintenance endpoints are unauthenticated")
	}

	return handler.NewRouter(handler.RouterConfig{
		Submissions:       handler.NewSubmissionHandler(services.RatingService(), services.CommentService()),
		Stats:             handler.NewStatsHandler(services.StatsService()),
		Maintenance:       handler.NewMaintenanceHandler(f.Sweeper(), services.Aggregator(), cfg.CronSecret),
		Health:            f,
		AllowedOrigins:    cfg.Server.AllowedOrigins,
		RateLimitRequests: cfg.HTTPRateLimit.Requests,
		RateLimitWindow:   cfg.HTTPRateLimit.Window,
	})
}
