package main

import (
	"context"
	"entity-store/config"
	"entity-store/core"
	"entity-store/entities"
	"entity-store/events"
	"entity-store/handlers/api/records"
	"entity-store/stores"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithField("error", err).Fatal("Invalid configuration")
	}
	logrus.SetLevel(cfg.LogLevel)

	ctx := context.Background()
	backend, err := stores.Open(ctx, cfg.Storage)
	if err != nil {
		logrus.WithField("error", err).Fatal("Failed to open storage")
	}
	defer backend.Close()

	broadcaster := events.NewBroadcaster(cfg.AllowedOrigins, cfg.MaxUploadBytes)
	notifier := events.Fanout{broadcaster}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher := events.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		defer publisher.Close()
		notifier = append(notifier, publisher)
		logrus.WithFields(logrus.Fields{
			"brokers": cfg.Kafka.Brokers,
			"topic":   cfg.Kafka.Topic,
		}).Info("Publishing record events to Kafka")
	}

	r, err := newRouter(cfg, backend, notifier)
	if err != nil {
		logrus.WithField("error", err).Fatal("Failed to set up routes")
	}
	r.Handle("/socket.io/", broadcaster.Handler())

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
	go func() {
		logrus.WithField("addr", srv.Addr).Info("Server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithField("error", err).Fatal("Server stopped")
		}
	}()

	exit := make(chan struct{})
	SignalC := make(chan os.Signal, 1)

	signal.Notify(SignalC, os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	go func() {
		for s := range SignalC {
			switch s {
			case os.Interrupt, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT:
				close(exit)
				return
			}
		}
	}()

	<-exit
	logrus.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	broadcaster.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithField("error", err).Error("Graceful shutdown failed")
	}
}

func newRouter(cfg config.Config, backend *stores.Backend, notifier core.Notifier) (*chi.Mux, error) {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type", "Content-Length", "Origin", "X-Requested-With"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any of major browsers
	}))

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("you are all set"))
	})
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, map[string]string{"status": "ok"})
	})

	var routeErr error
	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Timeout(cfg.RequestTimeout))
		for _, schema := range entities.All() {
			store, err := backend.RecordStore(schema.Collection)
			if err != nil {
				routeErr = err
				return
			}
			resource := &records.Resource{
				Store:          store,
				Schema:         schema,
				Notifier:       notifier,
				MaxUploadBytes: cfg.MaxUploadBytes,
			}
			r.Route("/"+schema.Name, resource.Routes)
		}
	})
	return r, routeErr
}
