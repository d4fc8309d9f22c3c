package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/ariefcatur/go-saga-commerce/internal/app"
	"github.com/ariefcatur/go-saga-commerce/internal/cart"
	"github.com/ariefcatur/go-saga-commerce/internal/httpx"
	"github.com/ariefcatur/go-saga-commerce/internal/orders"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := app.Start(ctx, "orders", orders.Migrations)
	if err != nil {
		log.Fatalf("start: %v", err)
	}

	carts := cart.NewStore(p.Redis, p.Log)
	svc := orders.NewService(&orders.PgStore{DB: p.DB}, carts, p.Pub, orders.Pricing(p.Cfg.Pricing), p.Log)

	// inbound: payment, shipping and delivery drive the state machine; placing an order empties the cart
	if err := svc.RegisterHandlers(p.Consumer); err != nil {
		p.Log.Fatal("register order handlers", zap.Error(err))
	}
	if err := carts.RegisterHandlers(p.Consumer); err != nil {
		p.Log.Fatal("register cart handlers", zap.Error(err))
	}

	router := httpx.NewRouter(
		&httpx.OrdersHandler{Orders: svc, Log: p.Log},
		&httpx.CartHandler{Cart: carts, Log: p.Log},
	)
	if err := p.Run(ctx, router); err != nil {
		p.Log.Fatal("run", zap.Error(err))
	}
}
