package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-saga-commerce/internal/app"
	"github.com/ariefcatur/go-saga-commerce/internal/cache"
	"github.com/ariefcatur/go-saga-commerce/internal/catalog"
	"github.com/ariefcatur/go-saga-commerce/internal/httpx"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := app.Start(ctx, "catalog", catalog.Migrations)
	if err != nil {
		log.Fatalf("start: %v", err)
	}

	c := cache.New(cache.NewRedisStore(p.Redis), cache.TTL(p.Cfg.Cache), p.Log)
	svc := catalog.NewService(&catalog.PgStore{DB: p.DB}, c, p.Pub, p.Log)
	if err := svc.RegisterInventoryHandlers(p.Consumer); err != nil {
		p.Log.Fatal("register inventory handlers", zap.Error(err))
	}

	router := httpx.NewRouter(&httpx.CatalogHandler{Catalog: svc, Log: p.Log})
	if err := p.Run(ctx, router); err != nil {
		p.Log.Fatal("run", zap.Error(err))
	}
}
