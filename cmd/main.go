package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/storefront/order-service/internal/app"
	"github.com/storefront/order-service/internal/catalog"
	"github.com/storefront/order-service/internal/config"
	"github.com/storefront/order-service/internal/events"
	"github.com/storefront/order-service/internal/handler"
	mw "github.com/storefront/order-service/internal/middleware"
	"github.com/storefront/order-service/internal/ordernum"
	"github.com/storefront/order-service/internal/postgres"
	"github.com/storefront/order-service/internal/repo"
	"github.com/storefront/order-service/internal/service"
	"github.com/storefront/order-service/internal/stock"
	"github.com/storefront/order-service/pkg/cache"
	"github.com/storefront/order-service/pkg/trm"

	"github.com/joho/godotenv"
)

func main() {
	conf := config.New()
	logger := newLogger(conf.Env)
	panicIfErr("invalid config", conf.Validate())

	db, err := postgres.New(conf.Postgres)
	panicIfErr("failed to connect to db", err)
	defer db.Close()
	logger.Info("postgres connected")

	orderRepo := repo.NewPostgresRepo(db)
	txManager := trm.NewManager(db)
	orderCache := cache.NewLRUCache(conf.Cache.Capacity, conf.Cache.TTL)

	catalogClient := catalog.NewClient(logger, conf.Catalog)
	stockClient := stock.NewReservationClient(logger, catalogClient, orderRepo, conf.Catalog.RetryAttempts)
	publisher := events.NewPublisher(conf.Kafka)

	orderService := service.NewOrderService(
		logger, txManager, orderRepo, catalogClient, stockClient, publisher,
		ordernum.New(), orderCache,
		conf.Order.Currency, conf.Order.VATRateBP,
	)

	httpHandler := handler.NewHTTPHandler(logger, orderService)
	adminHandler := handler.NewAdminHandler(logger, orderService)

	application := app.New(logger, conf)
	application.SetHTTPHandlers(
		[]func(http.Handler) http.Handler{mw.Auth(conf.JWT.Secret)},
		httpHandler,
	)
	application.SetHTTPHandlers(
		[]func(http.Handler) http.Handler{mw.Auth(conf.JWT.Secret), mw.RequireAdmin},
		adminHandler,
	)
	application.AddCloser(publisher.Close)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	orderCache.StartJanitor(ctx)
	application.Start(ctx)
	<-ctx.Done()
	panicIfErr("failed to stop app", application.Stop())
}

func init() {
	godotenv.Load()
}

func newLogger(env string) *slog.Logger {
	switch env {
	case "production":
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
}

func panicIfErr(prefix string, err error) {
	if err != nil {
		panic(prefix + ": " + err.Error())
	}
}
