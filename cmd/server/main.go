package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/pxlchk1/trailnotify/internal/api"
	"github.com/pxlchk1/trailnotify/internal/config"
	"github.com/pxlchk1/trailnotify/internal/provider/email"
	"github.com/pxlchk1/trailnotify/internal/service/suppression"
	"github.com/pxlchk1/trailnotify/internal/store"
	"github.com/pxlchk1/trailnotify/internal/worker"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v", port, addr, err)
	}
	ln.Close()
	return nil
}

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	log.Println("Starting TrailNotify API server...")

	cfg, err := config.LoadFromEnv(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("DATABASE_URL") != "" {
		log.Println("[config] DATABASE_URL env override active")
	}

	if err := checkPortAvailable(cfg.Server.Host, cfg.Server.Port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
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

	states := store.NewCampaignStateRepo(db)
	subs := store.NewSubscriberRepo(db)
	queue := store.NewQueueRepo(db)
	invites := store.NewInvitationRepo(db)

	suppressions := suppression.NewService(subs, states)
	webhook := worker.NewWebhookReceiver(suppressions)
	adapter := worker.NewEventAdapter(states, subs, queue, invites)

	sender, err := email.NewSESSender(context.Background(),
		cfg.SES.AccessKey, cfg.SES.SecretKey, cfg.SES.Region,
		cfg.SES.FromName, cfg.SES.FromEmail, cfg.SES.ReplyTo)
	if err != nil {
		log.Fatalf("Failed to initialize SES sender: %v", err)
	}
	renderer := email.NewRenderer(cfg.App.Name)

	server := api.NewServer(db, adapter, invites, sender, renderer, webhook, map[string]api.StatsSource{
		"events":  adapter,
		"webhook": webhook,
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.Routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		log.Printf("Listening on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server error: %v", err)
		}
	}()

	<-done
	log.Println("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}

	log.Println("Server stopped")
}
