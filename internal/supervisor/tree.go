// Package supervisor runs the long-lived background services under a
// suture tree so a crashed service is restarted with backoff.
package supervisor

import (
	"context"
	"errors"
	"time"

	"github.com/thejerf/suture/v4"
	"go.uber.org/zap"

	"rating-service/internal/util"
)

type TreeConfig struct {
	FailureThreshold float64
	FailureDecay     float64
	FailureBackoff   time.Duration
	ShutdownTimeout  time.Duration
}

func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// SupervisorTree has one branch for maintenance jobs, one for the event
// pipeline and one for the HTTP API, so a crash loop in one branch does not
// take the others down.
type SupervisorTree struct {
	root        *suture.Supervisor
	maintenance *suture.Supervisor
	messaging   *suture.Supervisor
	api         *suture.Supervisor
}

func NewSupervisorTree(config TreeConfig) *SupervisorTree {
	defaults := DefaultTreeConfig()
	if config.FailureThreshold == 0 {
		config.FailureThreshold = defaults.FailureThreshold
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = defaults.FailureDecay
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = defaults.FailureBackoff
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = defaults.ShutdownTimeout
	}

	rootSpec := suture.Spec{
		EventHook:        logEvent,
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}
	childSpec := suture.Spec{
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}

	root := suture.New("rating-service", rootSpec)
	maintenance := suture.New("maintenance", childSpec)
	messaging := suture.New("messaging", childSpec)
	api := suture.New("api", childSpec)

	root.Add(maintenance)
	root.Add(messaging)
	root.Add(api)

	return &SupervisorTree{
		root:        root,
		maintenance: maintenance,
		messaging:   messaging,
		api:         api,
	}
}

func (t *SupervisorTree) AddMaintenanceService(svc suture.Service) suture.ServiceToken {
	return t.maintenance.Add(svc)
}

func (t *SupervisorTree) AddMessagingService(svc suture.Service) suture.ServiceToken {
	return t.messaging.Add(svc)
}

func (t *SupervisorTree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// ServeBackground starts the tree. The channel yields the tree's exit error
// once ctx is cancelled and every service has stopped.
func (t *SupervisorTree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// ErrStoppedEarly is returned by Wait when the tree exits before shutdown
// was requested.
var ErrStoppedEarly = errors.New("supervisor tree stopped before shutdown")

// Wait blocks until ctx is cancelled or errCh yields. After cancellation it
// drains errCh and returns nil; an exit before cancellation is an error.
func Wait(ctx context.Context, errCh <-chan error) error {
	select {
	case <-ctx.Done():
		util.Info("Received shutdown signal")
		if err := <-errCh; err != nil && !errors.Is(err, context.Canceled) {
			util.Warn("Supervisor tree stopped with error", util.ErrorField(err))
		}
		return nil
	case err := <-errCh:
		if err == nil {
			return ErrStoppedEarly
		}
		return errors.Join(ErrStoppedEarly, err)
	}
}

func (t *SupervisorTree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}

// logEvent forwards suture events to the service logger.
func logEvent(e suture.Event) {
	fields := make([]zap.Field, 0, 4)
	for k, v := range e.Map() {
		fields = append(fields, zap.Any(k, v))
	}

	switch e.(type) {
	case suture.EventServicePanic:
		util.Error("Supervised service panicked", fields...)
	case suture.EventServiceTerminate:
		util.Warn("Supervised service terminated", fields...)
	case suture.EventStopTimeout:
		util.Warn("Supervised service did not stop in time", fields...)
	case suture.EventBackoff:
		util.Warn("Supervisor entering backoff", fields...)
	case suture.EventResume:
		util.Info("Supervisor resuming", fields...)
	default:
		util.Info(e.String(), fields...)
	}
}
