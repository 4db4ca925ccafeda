// Package restserver serves the HTTP API used to submit, cancel and inspect gap-fill runs.
package restserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chrissnell/wxgapfill/internal/log"
	"github.com/chrissnell/wxgapfill/pkg/config"
	"github.com/chrissnell/wxgapfill/pkg/responseformat"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	defaultListenAddr = "0.0.0.0"
	defaultPort       = 8090
	shutdownTimeout   = 10 * time.Second
)

// Controller represents the REST server controller
type Controller struct {
	ctx       context.Context
	wg        *sync.WaitGroup
	cfg       config.ServerData
	Server    http.Server
	backend   Backend
	runner    *Runner
	formatter *responseformat.Formatter
	logger    *zap.SugaredLogger
}

// NewController creates a new REST server controller
func NewController(ctx context.Context, wg *sync.WaitGroup, backend Backend, sc config.ServerData, logger *zap.SugaredLogger) *Controller {
	// If a ListenAddr was not provided, listen on all interfaces
	if sc.ListenAddr == "" {
		logger.Infof("server.listen-addr not provided; defaulting to %s (all interfaces)", defaultListenAddr)
		sc.ListenAddr = defaultListenAddr
	}
	if sc.Port == 0 {
		logger.Infof("server.port not provided; defaulting to %d", defaultPort)
		sc.Port = defaultPort
	}

	ctrl := &Controller{
		ctx:       ctx,
		wg:        wg,
		cfg:       sc,
		backend:   backend,
		runner:    NewRunner(backend, 0, logger),
		formatter: responseformat.NewFormatter(),
		logger:    logger,
	}

	ctrl.Server.Addr = fmt.Sprintf("%v:%v", sc.ListenAddr, sc.Port)
	ctrl.Server.Handler = ctrl.Router()
	return ctrl
}

// StartController starts the job runner and the HTTP server. Both stop when ctx is done.
func (c *Controller) StartController() error {
	log.Info("Starting REST server controller...")
	c.runner.Start(c.ctx, c.wg)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		var err error
		if c.cfg.Cert != "" && c.cfg.Key != "" {
			err = c.Server.ListenAndServeTLS(c.cfg.Cert, c.cfg.Key)
		} else {
			err = c.Server.ListenAndServe()
		}
		if !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("REST server error: %v", err)
		}
	}()

	go func() {
		<-c.ctx.Done()
		log.Info("Shutting down the REST server...")
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		c.Server.Shutdown(ctx)
	}()

	return nil
}

// Router builds the HTTP routes.
func (c *Controller) Router() *mux.Router {
	router := mux.NewRouter()
	router.Use(log.HTTPMiddleware(c.logger))
	router.Use(handlers.RecoveryHandler(
		handlers.RecoveryLogger(zap.NewStdLog(c.logger.Desugar())),
		handlers.PrintRecoveryStack(true),
	))
	router.Use(handlers.CompressHandler)

	api := router.PathPrefix("/api/v1").Subrouter()
	api.HandleFunc("/runs", c.submitRun).Methods(http.MethodPost)
	api.HandleFunc("/runs", c.listRuns).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}", c.getRun).Methods(http.MethodGet)
	api.HandleFunc("/runs/{id}", c.cancelRun).Methods(http.MethodDelete)
	api.HandleFunc("/runs/{id}/report", c.getReport).Methods(http.MethodGet)
	api.HandleFunc("/stations", c.listStations).Methods(http.MethodGet)
	api.HandleFunc("/history", c.listHistory).Methods(http.MethodGet)
	api.HandleFunc("/history/{id}", c.getHistoryRun).Methods(http.MethodGet)
	api.HandleFunc("/health", c.health).Methods(http.MethodGet)

	router.Handle("/metrics", promhttp.Handler())
	return router
}
