package app

import (
	"net/http"
	"strconv"

	"github.com/logdock/logdock/cmd/logdock/build"
	"github.com/logdock/logdock/internal/api"
	"github.com/logdock/logdock/internal/engine"
	"github.com/logdock/logdock/internal/ingest"
	"github.com/logdock/logdock/internal/logging"
	"github.com/logdock/logdock/internal/subscriber"
	"github.com/logdock/logdock/internal/writer"
)

// App is the assembled gateway: one subscriber registry, one ingest
// pipeline feeding it and the batch writer, one engine client, and the
// HTTP server serving internal/api's router. It mirrors the shape of
// cmd/tempo/app.App, minus the module-manager indirection this single-
// binary gateway has no need for.
type App struct {
	cfg Config

	registry *subscriber.Registry
	pipeline *ingest.Pipeline
	writer   *writer.Writer
	engine   engine.Client
	server   *http.Server
}

// New constructs an App from cfg. It does not start anything; call Run.
func New(cfg Config) (*App, error) {
	logging.Init(cfg.LogLevel, cfg.LogFormat)

	eng := engine.New(engine.Config{Host: cfg.MeiliHost, Key: cfg.MeiliKey})

	registry := subscriber.NewRegistry()
	pipeline := ingest.New(registry)
	w := writer.New(pipeline.Channel(), eng)

	router := api.Router(pipeline, registry, eng, api.BuildInfo{
		Version:   build.Version,
		Revision:  build.Revision,
		BuildDate: build.Date,
		GoVersion: build.GoVersion(),
	})

	return &App{
		cfg:      cfg,
		registry: registry,
		pipeline: pipeline,
		writer:   w,
		engine:   eng,
		server: &http.Server{
			Addr:    addr(cfg.Port),
			Handler: router,
		},
	}, nil
}

func addr(port int) string {
	return ":" + strconv.Itoa(port)
}
