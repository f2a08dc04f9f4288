package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-kit/log/level"
	"github.com/grafana/dskit/services"
	"github.com/grafana/dskit/signals"

	"github.com/logdock/logdock/internal/engine"
	"github.com/logdock/logdock/internal/logging"
)

// Run starts the writer and HTTP server services and blocks until a
// signal is received or either service fails, mirroring cmd/tempo/app.App
// .Run()'s services.Manager + ManagerListener wiring, minus the
// module-manager indirection: this gateway only ever has two services.
func (a *App) Run() error {
	writerService := a.writer.NewService()
	serverService := a.newServerService()

	sm, err := services.NewManager(writerService, serverService)
	if err != nil {
		return fmt.Errorf("failed to build service manager: %w", err)
	}

	healthy := func() { level.Info(logging.Logger).Log("msg", "logdock started") }
	stopped := func() { level.Info(logging.Logger).Log("msg", "logdock stopped") }
	serviceFailed := func(service services.Service) {
		sm.StopAsync()

		err := service.FailureCase()
		switch {
		case errors.Is(err, context.Canceled):
			return
		case service == writerService:
			level.Error(logging.Logger).Log("msg", "writer service failed", "err", err)
		case service == serverService:
			level.Error(logging.Logger).Log("msg", "server service failed", "err", err)
		default:
			level.Error(logging.Logger).Log("msg", "service failed", "err", err)
		}
	}
	sm.AddListener(services.NewManagerListener(healthy, stopped, serviceFailed))

	// One non-fatal probe of the index at startup: a failure is logged as a
	// warning and serving goes on regardless.
	go func() {
		if _, err := a.engine.Search(context.Background(), engine.Query{Limit: 1}); err != nil {
			level.Warn(logging.Logger).Log("msg", "search engine index probe failed", "err", err)
		}
	}()

	handler := signals.NewHandler(logging.Logger)
	go func() {
		handler.Loop()
		sm.StopAsync()
	}()

	if err := sm.StartAsync(context.Background()); err != nil {
		return fmt.Errorf("failed to start service manager: %w", err)
	}

	return sm.AwaitStopped(context.Background())
}

// newServerService wraps the assembled http.Server in a dskit
// services.Service, the way cmd/tempo/app/server_service.go's
// NewServerService wraps the external server component: starting does
// nothing, running blocks on ListenAndServe, stopping calls Shutdown and
// waits for Run to return.
func (a *App) newServerService() services.Service {
	serverDone := make(chan error, 1)

	running := func(ctx context.Context) error {
		go func() {
			defer close(serverDone)
			serverDone <- a.server.ListenAndServe()
		}()

		select {
		case <-ctx.Done():
			return nil
		case err := <-serverDone:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		}
	}

	stopping := func(_ error) error {
		if err := a.server.Shutdown(context.Background()); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		<-serverDone
		level.Info(logging.Logger).Log("msg", "http server stopped")

		// No HTTP handler can still be sending into the pipeline now that
		// Shutdown has returned, so it's safe to close it: this is what lets
		// the writer's drain-then-flush shutdown path (writer.go's
		// drainChannel) actually run instead of racing ctx cancellation.
		a.pipeline.Close()
		return nil
	}

	return services.NewBasicService(nil, running, stopping)
}
