package main

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/vidioagent/backend/internal/config"
	"github.com/vidioagent/backend/internal/convo"
	"github.com/vidioagent/backend/internal/db"
	"github.com/vidioagent/backend/internal/pipeline"
	"github.com/vidioagent/backend/internal/provider"
	"github.com/vidioagent/backend/internal/storage"
	"github.com/vidioagent/backend/internal/store/rabbitmq"
	"github.com/vidioagent/backend/internal/store/redisstore"
	"github.com/vidioagent/backend/internal/twilio"
)

// lockTTL bounds how long a crashed worker can pin a conversation.
const lockTTL = 10 * time.Minute

func workerConcurrency() int {
	v := os.Getenv("WORKER_CONCURRENCY")
	if v == "" {
		return 2
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 2
	}
	if n > 50 {
		return 50
	}
	return n
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Printf(".env not loaded: %v", err)
	}

	cfg := config.Load()

	gdb := db.Connect(cfg.DBDSN)
	repo := convo.NewRepo(gdb)

	store, err := storage.New(cfg.StorageDir, cfg.BaseURL)
	if err != nil {
		log.Fatalf("storage: %v", err)
	}

	// Text provider registry: variants registered here, the configured one
	// resolved once at startup.
	reg := provider.NewRegistry()
	reg.Register("ollama", func(ctx context.Context) (provider.TextResponder, error) {
		_ = ctx
		return provider.NewOllamaResponder(cfg.OllamaBaseURL, cfg.OllamaModel), nil
	})
	reg.Register("groq", func(ctx context.Context) (provider.TextResponder, error) {
		_ = ctx
		return provider.NewGroqResponder(cfg.GroqAPIKey, cfg.GroqModel), nil
	})

	text, err := reg.Get(context.Background(), cfg.TextProvider)
	if err != nil {
		log.Fatalf("text provider: %v", err)
	}

	speaker := provider.NewElevenLabsSpeaker(cfg.ElevenLabsAPIKey, cfg.DefaultVoiceID)
	renderer := provider.NewReplicateRenderer(cfg.ReplicateToken, cfg.ReplicateVersion)
	notifier := twilio.NewClient(cfg.TwilioAccountSID, cfg.TwilioAuthToken, cfg.TwilioWhatsAppNumber)

	runner := pipeline.NewRunner(repo, text, speaker, renderer, notifier, store, cfg.JobMaxAttempts, cfg.JobRetryBase)

	rds := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer rds.Close()

	publisher, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		log.Fatalf("rabbit publisher: %v", err)
	}
	defer publisher.Close()

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("rabbit dial: %v", err)
	}
	defer conn.Close()

	ch, err := conn.Channel()
	if err != nil {
		log.Fatalf("rabbit channel: %v", err)
	}
	defer ch.Close()

	if err := rabbitmq.DeclareTopology(ch, cfg.RabbitQueue); err != nil {
		log.Fatalf("queue declare: %v", err)
	}

	concurrency := workerConcurrency()

	if err := ch.Qos(concurrency, 0, false); err != nil {
		log.Fatalf("qos: %v", err)
	}

	msgs, err := ch.Consume(cfg.RabbitQueue, "", false, false, false, false, nil)
	if err != nil {
		log.Fatalf("consume: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("worker started, queue=%s concurrency=%d", cfg.RabbitQueue, concurrency)

	// worker pool
	jobs := make(chan amqp.Delivery, concurrency*2)

	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func(workerID int) {
			defer wg.Done()
			for d := range jobs {
				handleDelivery(ctx, workerID, d, runner, rds, publisher)
			}
		}(i)
	}

	// dispatcher
	for {
		select {
		case <-ctx.Done():
			log.Printf("worker shutting down")
			close(jobs)
			wg.Wait()
			return

		case d, ok := <-msgs:
			if !ok {
				log.Printf("delivery channel closed")
				time.Sleep(1 * time.Second)
				continue
			}
			jobs <- d
		}
	}
}

func handleDelivery(ctx context.Context, workerID int, d amqp.Delivery,
	runner *pipeline.Runner, rds *redisstore.Store, publisher *rabbitmq.Publisher) {

	var job rabbitmq.VideoJob
	if err := json.Unmarshal(d.Body, &job); err != nil || job.ConversationID == 0 {
		log.Printf("worker=%d bad message: %v", workerID, err)
		_ = d.Nack(false, false)
		return
	}

	// At-most-one active execution per conversation. A held lock means
	// another worker is on it; park the duplicate and look again later.
	locked, err := rds.AcquireConversationLock(ctx, job.ConversationID, lockTTL)
	if err != nil {
		log.Printf("worker=%d convo=%d lock error, proceeding on db guard only: %v", workerID, job.ConversationID, err)
	} else if !locked {
		if err := publisher.PublishRetry(ctx, job, 30*time.Second); err != nil {
			log.Printf("worker=%d convo=%d park failed: %v", workerID, job.ConversationID, err)
			_ = d.Nack(false, false)
			return
		}
		_ = d.Ack(false)
		return
	}
	if locked {
		defer func() {
			if err := rds.ReleaseConversationLock(context.Background(), job.ConversationID); err != nil {
				log.Printf("worker=%d convo=%d unlock failed: %v", workerID, job.ConversationID, err)
			}
		}()
	}

	start := time.Now()
	out := runner.Execute(ctx, job)

	switch out.Decision {
	case pipeline.DecisionRetry:
		retry := job
		retry.Attempt++
		log.Printf("worker=%d convo=%d attempt=%d retrying in %s: %v",
			workerID, job.ConversationID, job.Attempt, out.Delay, out.Err)
		if err := publisher.PublishRetry(ctx, retry, out.Delay); err != nil {
			log.Printf("worker=%d convo=%d reschedule failed: %v", workerID, job.ConversationID, err)
			_ = d.Nack(false, false)
			return
		}
		_ = d.Ack(false)

	case pipeline.DecisionFailed:
		log.Printf("worker=%d convo=%d failed cost=%s err=%v",
			workerID, job.ConversationID, time.Since(start), out.Err)
		_ = d.Ack(false)

	default:
		log.Printf("worker=%d convo=%d done cost=%s", workerID, job.ConversationID, time.Since(start))
		_ = d.Ack(false)
	}
}
