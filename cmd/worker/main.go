package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/3boudi/student-attandence/internal/attendance"
	"github.com/3boudi/student-attandence/internal/config"
	"github.com/3boudi/student-attandence/internal/enrollment"
	"github.com/3boudi/student-attandence/internal/notify"
	"github.com/3boudi/student-attandence/internal/roster"
	"github.com/3boudi/student-attandence/internal/store"
)

// The worker drains the notification queue into the store and sweeps
// expired sessions closed. Both are advisory paths: attendance marks check
// expiry inline, and notifications are fire-and-forget for the sender.
func main() {
	cfg := config.Load()
	if cfg.StoreBackend == "memory" {
		log.Fatal("worker requires the postgres store backend")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Println("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()
	if err := db.EnsureSchema(ctx); err != nil {
		log.Fatalf("ensure schema failed: %v", err)
	}

	rosterRepo := roster.NewPostgresRepository(db.Client)
	enrRepo := enrollment.NewPostgresRepository(db.Client)
	ledgerRepo := attendance.NewPostgresRepository(db.Client)
	notifStore := notify.NewPostgresStore(db.Client)

	// No QR generation here; the worker never creates sessions.
	attSvc := attendance.NewService(ledgerRepo, rosterRepo, enrRepo, nil)

	go runSweep(ctx, attSvc, cfg.SweepInterval)

	if cfg.QueueBackend != "redis" {
		log.Println("queue backend is not redis, notification drain disabled")
		<-ctx.Done()
		log.Println("worker stopped")
		return
	}

	redisClient := store.NewRedis(cfg.RedisAddr)
	queue := notify.NewRedisQueue(redisClient.Client, "attendance:notifications")

	messages, err := queue.Consume(ctx)
	if err != nil {
		log.Fatalf("queue consume init failed: %v", err)
	}

	log.Println("worker started, waiting for notifications...")
	for n := range messages {
		if err := notifStore.Insert(ctx, n); err != nil {
			log.Printf("persist notification %s for user %d failed: %v", n.ID, n.UserID, err)
			continue
		}
		log.Printf("notification %s delivered to user %d", n.ID, n.UserID)
	}

	log.Println("worker stopped")
}

// runSweep closes sessions whose validity window has elapsed.
func runSweep(ctx context.Context, svc *attendance.Service, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			closed, err := svc.CloseExpired(ctx)
			if err != nil {
				log.Printf("sweep failed: %v", err)
				continue
			}
			if closed > 0 {
				log.Printf("sweep closed %d expired session(s)", closed)
			}
		}
	}
}
