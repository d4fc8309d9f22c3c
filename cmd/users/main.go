package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-saga-commerce/internal/app"
	"github.com/ariefcatur/go-saga-commerce/internal/httpx"
	"github.com/ariefcatur/go-saga-commerce/internal/users"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := app.Start(ctx, "users", users.Migrations)
	if err != nil {
		log.Fatalf("start: %v", err)
	}

	// users only publishes (EMAIL_VERIFIED); it has no inbound handlers
	svc := users.NewService(&users.PgStore{DB: p.DB}, p.Pub, users.DefaultTTLs, p.Log)

	router := httpx.NewRouter(&httpx.UsersHandler{Users: svc, Log: p.Log})
	if err := p.Run(ctx, router); err != nil {
		p.Log.Fatal("run", zap.Error(err))
	}
}
