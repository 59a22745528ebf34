package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"

	"github.com/freelancehub/hub/internal/config"
	"github.com/freelancehub/hub/internal/infra/database"
	"github.com/freelancehub/hub/internal/infra/repository"
	"github.com/freelancehub/hub/internal/present/rest"
	"github.com/freelancehub/hub/internal/present/rest/middleware"
	"github.com/freelancehub/hub/internal/service"
	"github.com/freelancehub/hub/internal/telemetry"
	"github.com/freelancehub/hub/internal/usecase"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to the config file")
	flag.Parse()

	conf, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	ctx := context.Background()

	if conf.Server.EnableTrace {
		shutdown, err := telemetry.Setup(ctx, "hubd", conf.Server.TraceEndpoint)
		if err != nil {
			slog.Error("failed to initialise tracing", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer shutdown(ctx)
	}

	db, err := database.NewPostgres(conf.Server.PostgresDsn)
	if err != nil {
		slog.Error("failed to connect database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if err := database.MigratePostgres(db); err != nil {
		slog.Error("failed to migrate database", slog.String("error", err.Error()))
		os.Exit(1)
	}

	rdb := database.NewRedis(conf.Server.RedisAddr, "", conf.Server.RedisDB)
	mc := database.NewMemcached(conf.Server.MemcachedAddr)

	messageRepo := repository.NewMessageRepository(db)
	gigRepo := repository.NewGigRepository(db)
	orderRepo := repository.NewOrderRepository(db, mc)
	reviewRepo := repository.NewReviewRepository(db)

	chatlog := usecase.NewChatLogUsecase(messageRepo)
	catalog := usecase.NewCatalogUsecase(gigRepo)
	orders := usecase.NewOrderUsecase(orderRepo)
	reviews := usecase.NewReviewUsecase(reviewRepo, orderRepo, gigRepo)
	signal := service.NewSignalService(rdb)

	handler := rest.NewHandler(chatlog, catalog, orders, reviews, signal)

	e := echo.New()
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())
	e.Use(echomw.CORS())
	if conf.Server.EnableTrace {
		e.Use(otelecho.Middleware("hubd"))
	}
	e.Use(middleware.IdentifyIdentity)

	handler.RegisterRoutes(e)

	e.Logger.Fatal(e.Start(conf.Server.ListenAddr))
}
