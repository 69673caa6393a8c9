package app

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/storefront/order-service/internal/config"
	mw "github.com/storefront/order-service/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

const gracefulShutdownTimeout = 5 * time.Second

type application struct {
	logger *slog.Logger

	router  chi.Router
	httpSrv *http.Server

	group   *errgroup.Group
	closers []func() error
}

func New(logger *slog.Logger, cfg config.Config) *application {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(mw.Logger(logger))
	router.Use(mw.Metrics)
	router.Use(middleware.Recoverer)
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Cors.AllowedOrigins,
	}))

	router.Handle("/metrics", promhttp.Handler())

	httpSrv := &http.Server{
		Handler: router,
		Addr:    net.JoinHostPort(cfg.Http.Host, cfg.Http.Port),
	}

	return &application{
		logger:  logger,
		httpSrv: httpSrv,
		router:  router,
	}
}

type HTTPHandler interface {
	Init(r chi.Router)
}

// SetHTTPHandlers mounts handlers on the router, wrapped with the given
// route-group middleware (auth for the user façade, auth + admin role for
// the back office).
func (a *application) SetHTTPHandlers(middlewares []func(http.Handler) http.Handler, handlers ...HTTPHandler) {
	a.router.Group(func(r chi.Router) {
		r.Use(middlewares...)
		for _, h := range handlers {
			h.Init(r)
		}
	})
}

// AddCloser registers a resource closed during shutdown.
func (a *application) AddCloser(fn func() error) {
	a.closers = append(a.closers, fn)
}

func (a *application) Start(ctx context.Context) {
	a.group, _ = errgroup.WithContext(ctx)

	a.group.Go(func() error {
		a.logger.Info("starting http server", slog.String("addr", a.httpSrv.Addr))
		if err := a.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	a.logger.Info("application started")
}

func (a *application) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	if err := a.httpSrv.Shutdown(ctx); err != nil {
		a.logger.Error("failed to shutdown http server", slog.Any("error", err))
	}

	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			a.logger.Error("failed to close resource", slog.Any("error", err))
		}
	}

	if err := a.group.Wait(); err != nil {
		return err
	}

	a.logger.Info("application stopped")
	return nil
}
