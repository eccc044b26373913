package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/ariefcatur/go-school-library/internal/config"
	kafkax "github.com/ariefcatur/go-school-library/internal/kafka"
	"github.com/ariefcatur/go-school-library/internal/library"
	"github.com/ariefcatur/go-school-library/internal/loans"
	"github.com/ariefcatur/go-school-library/internal/notifier"
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
		log.Fatalf("db: %v", err)
	}
	defer db.Close()

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Materializing a fine publishes FineMaterialized like the api does.
	events := kafkax.NewRouter(cfg.KafkaBrokers, []string{loans.TopicFineMaterialized}, 256)
	events.Start(ctx)

	name := cfg.ServiceName + "-notifier"
	svc := &notifier.Service{
		Fines: &library.Service{
			Store:    &postgres.Store{DB: db},
			Events:   events,
			Policy:   cfg.Policy(),
			Producer: name,
		},
		Cache:       &redisx.Cache{RDB: rdb},
		Sink:        notifier.LogSink{},
		ServiceName: name,
	}

	cons := kafkax.NewConsumer(cfg.KafkaBrokers, cfg.NotifierGroup, notifier.Topics, cfg.NotifierWorkers)
	done := make(chan struct{})
	go func() {
		defer close(done)
		log.Printf("notifier started: group=%s topics=%s workers=%d",
			cfg.NotifierGroup, strings.Join(notifier.Topics, ","), cfg.NotifierWorkers)
		if err := cons.Start(ctx, svc.Handle); err != nil {
			log.Printf("consumer exit: %v", err)
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-sig:
	case <-ctx.Done():
	}
	log.Println("shutting down consumer...")
	cancel()
	// handlers publish to events until every worker has returned
	<-done
	events.Close()
}
