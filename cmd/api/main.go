package main

import (
	"log"
	"os"

	"github.com/joho/godotenv"

	"github.com/vidioagent/backend/internal/config"
	"github.com/vidioagent/backend/internal/db"
	"github.com/vidioagent/backend/internal/httpapi"
	"github.com/vidioagent/backend/internal/storage"
	"github.com/vidioagent/backend/internal/store/rabbitmq"
	"github.com/vidioagent/backend/internal/twilio"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf(".env not loaded: %v", err)
	}

	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)

	store, err := storage.New(cfg.StorageDir, cfg.BaseURL)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	notifier := twilio.NewClient(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioWhatsAppNumber)

	publisher, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Fatalf("rabbit publisher: %v", err)
	}
	defer publisher.Close()

	r := httpapi.NewRouter(gdb, cfg, store, notifier, publisher)

	addr := ":8000"
	if p := os.Getenv("PORT"); p != "" {
		addr = ":" + p
	}
	log.Printf("api listening on %s", addr)
	if err := r.Run(addr); err != nil {
		log.Fatalf("server: %v", err)
	}
}
