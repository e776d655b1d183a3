package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"

	"github.com/erikldr/sortear/internal/audit"
	"github.com/erikldr/sortear/internal/config"
	"github.com/erikldr/sortear/internal/draw"
	"github.com/erikldr/sortear/internal/httpserver"
	"github.com/erikldr/sortear/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("open db: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		log.Fatalf("ping db: %v", err)
	}

	st := store.NewPGStore(db)

	var auditLog draw.EventSink
	auditPG := audit.NewPGStore(db)
	if cfg.AuditDir != "" {
		auditLog = audit.NewFileStore(cfg.AuditDir)
	} else {
		auditLog = auditPG
	}

	engine := draw.New(st, auditLog, draw.Config{})
	server := httpserver.New(engine, st, []byte(cfg.JWTSecret))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reconciler := draw.NewReconciler(st, draw.ReconcilerConfig{
		Interval:       cfg.ReconcileInterval,
		RunningTimeout: cfg.RunningTimeout,
	})
	go func() {
		if err := reconciler.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("reconciler: %v", err)
		}
	}()

	if len(cfg.KafkaBrokers) > 0 {
		producer, err := audit.NewKafkaProducer(audit.KafkaProducerConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
		})
		if err != nil {
			log.Fatalf("kafka producer: %v", err)
		}
		var archiver audit.Archiver
		if cfg.S3Bucket != "" {
			archiver, err = audit.NewS3Archiver(ctx, cfg.S3Bucket, cfg.S3Prefix)
			if err != nil {
				log.Fatalf("s3 archiver: %v", err)
			}
		}
		streamer := audit.NewStreamer(auditPG, producer, archiver, audit.StreamerConfig{})
		go func() {
			if err := streamer.Run(ctx); err != nil && err != context.Canceled {
				log.Printf("audit streamer: %v", err)
			}
		}()
	}

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: server.Router(),
	}

	go func() {
		log.Printf("Draw engine listening on %s", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	waitForShutdown(httpServer, cancel)
}

func waitForShutdown(srv *http.Server, cancel context.CancelFunc) {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancel()

	ctx, cancelTimeout := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelTimeout()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
