package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-saga-commerce/internal/app"
	"github.com/ariefcatur/go-saga-commerce/internal/httpx"
	"github.com/ariefcatur/go-saga-commerce/internal/payments"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := app.Start(ctx, "payments", payments.Migrations)
	if err != nil {
		log.Fatalf("start: %v", err)
	}

	svc := payments.NewService(&payments.PgStore{DB: p.DB}, p.Pub, p.Log)
	if err := svc.RegisterHandlers(p.Consumer); err != nil {
		p.Log.Fatal("register payment handlers", zap.Error(err))
	}

	router := httpx.NewRouter(&httpx.PaymentsHandler{Payments: svc, Log: p.Log})
	if err := p.Run(ctx, router); err != nil {
		p.Log.Fatal("run", zap.Error(err))
	}
}
