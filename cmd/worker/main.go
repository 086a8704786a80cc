package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/pxlchk1/trailnotify/internal/catalog"
	"github.com/pxlchk1/trailnotify/internal/config"
	"github.com/pxlchk1/trailnotify/internal/provider/email"
	"github.com/pxlchk1/trailnotify/internal/provider/push"
	"github.com/pxlchk1/trailnotify/internal/store"
	"github.com/pxlchk1/trailnotify/internal/worker"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	log.Println("Starting TrailNotify worker...")

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := store.Open(cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	log.Println("Connected to database")

	var rdb *redis.Client
	if cfg.Redis.Enabled {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			log.Printf("Redis unavailable, falling back to Postgres advisory locks: %v", err)
			rdb = nil
		} else {
			log.Println("Connected to Redis")
		}
	}

	states := store.NewCampaignStateRepo(db)
	subs := store.NewSubscriberRepo(db)
	queue := store.NewQueueRepo(db)

	tokens, err := store.NewTokenRegistry(context.Background(), cfg.Tokens.Table, cfg.Tokens.Region)
	if err != nil {
		log.Fatalf("Failed to initialize token registry: %v", err)
	}

	pushClient := push.NewClient(cfg.Push.ServerKey, cfg.Push.Endpoint, cfg.Push.Timeout())

	sender, err := email.NewSESSender(context.Background(),
		cfg.SES.AccessKey, cfg.SES.SecretKey, cfg.SES.Region,
		cfg.SES.FromName, cfg.SES.FromEmail, cfg.SES.ReplyTo)
	if err != nil {
		log.Fatalf("Failed to initialize SES sender: %v", err)
	}
	renderer := email.NewRenderer(cfg.App.Name)

	workerID := cfg.Scheduler.WorkerID
	if workerID == "" {
		workerID = "worker-" + uuid.NewString()[:8]
	}
	log.Printf("Worker ID: %s", workerID)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	scheduler := worker.NewCampaignScheduler(states, subs, queue, catalog.Default())
	scheduler.SetInterval(time.Duration(cfg.Scheduler.ScheduleIntervalMins) * time.Minute)
	scheduler.UseLock(rdb, db)
	go scheduler.Start(ctx)

	pushDispatcher := worker.NewPushDispatcher(queue, states, tokens, pushClient, workerID)
	pushDispatcher.SetInterval(time.Duration(cfg.Scheduler.PushDrainIntervalSecs) * time.Second)
	go pushDispatcher.Start(ctx)

	emailDispatcher := worker.NewEmailDispatcher(queue, states, subs, sender, renderer, workerID)
	emailDispatcher.SetInterval(time.Duration(cfg.Scheduler.EmailDrainIntervalSecs) * time.Second)
	go emailDispatcher.Start(ctx)

	weeklyReset := worker.NewWeeklyResetWorker(states, rdb, db)
	go weeklyReset.Start(ctx)

	sweep := worker.NewInactivitySweep(states, queue)
	sweep.SetInterval(time.Duration(cfg.Scheduler.SweepIntervalHours) * time.Hour)
	sweep.UseLock(rdb, db)
	go sweep.Start(ctx)

	reclaimer := worker.NewReclaimer(queue)
	go reclaimer.Start(ctx)

	log.Println("Worker running...")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	cancel()

	// Give in-flight passes time to finish
	time.Sleep(2 * time.Second)

	log.Println("Worker stopped")
}
