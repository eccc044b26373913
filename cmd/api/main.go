package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ariefcatur/go-school-library/internal/config"
	"github.com/ariefcatur/go-school-library/internal/httpx"
	kafkax "github.com/ariefcatur/go-school-library/internal/kafka"
	"github.com/ariefcatur/go-school-library/internal/library"
	"github.com/ariefcatur/go-school-library/internal/loans"
	"github.com/ariefcatur/go-school-library/internal/postgres"
	"github.com/ariefcatur/go-school-library/internal/redisx"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers, one per topic
	events := kafkax.NewRouter(cfg.KafkaBrokers, loans.Topics, 1024)
	events.Start(ctx)

	svc := &library.Service{
		Store:    &postgres.Store{DB: db},
		Events:   events,
		Policy:   cfg.Policy(),
		Producer: cfg.ServiceName,
	}
	router := httpx.NewRouter()
	lh := &httpx.LibraryHandler{
		Svc:   svc,
		Cache: &redisx.Cache{RDB: rdb},
	}
	lh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	go func() {
		log.Printf("HTTP listening at %s (tz=%s, loan period=%s, fine/day=%s)",
			cfg.HTTPAddr, cfg.Location, cfg.LoanPeriod, cfg.FinePerDay)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	events.Close() // flush every producer and wait
	cancel()
}
