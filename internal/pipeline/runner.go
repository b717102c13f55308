// Package pipeline drives one conversation through compose -> synthesize ->
// render -> deliver as a durable background job with retry and backoff.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/vidioagent/backend/internal/convo"
	"github.com/vidioagent/backend/internal/models"
	"github.com/vidioagent/backend/internal/provider"
	"github.com/vidioagent/backend/internal/storage"
	"github.com/vidioagent/backend/internal/store/rabbitmq"
)

type Decision int

const (
	// DecisionDone: terminal success, or a duplicate of an already-finished
	// job. Ack and forget.
	DecisionDone Decision = iota
	// DecisionRetry: recoverable failure with attempts remaining. Reschedule
	// after Delay.
	DecisionRetry
	// DecisionFailed: the conversation is terminally failed. Ack; the error
	// is on the record.
	DecisionFailed
)

// Outcome is what one execution attempt decided. Retry scheduling is the
// runner's call, not the caller's; the caller only moves the message.
type Outcome struct {
	Decision Decision
	Delay    time.Duration
	Err      error
}

type Runner struct {
	repo     *convo.Repo
	text     provider.TextResponder
	speaker  provider.Speaker
	renderer provider.VideoRenderer
	notifier provider.Notifier
	store    *storage.Store

	maxAttempts int
	retryBase   time.Duration
}

func NewRunner(repo *convo.Repo, text provider.TextResponder, speaker provider.Speaker,
	renderer provider.VideoRenderer, notifier provider.Notifier, store *storage.Store,
	maxAttempts int, retryBase time.Duration) *Runner {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if retryBase <= 0 {
		retryBase = 60 * time.Second
	}
	return &Runner{
		repo:        repo,
		text:        text,
		speaker:     speaker,
		renderer:    renderer,
		notifier:    notifier,
		store:       store,
		maxAttempts: maxAttempts,
		retryBase:   retryBase,
	}
}

// Backoff returns the delay before the next try after `attempt` completed
// tries: base * 2^attempt. The counter is cumulative across the whole job.
func (r *Runner) Backoff(attempt int) time.Duration {
	return r.retryBase * (1 << attempt)
}

// Execute runs the whole stage sequence for one job. Conversation fields
// persisted by completed stages are never rolled back; a retry re-runs all
// stages against the same row.
func (r *Runner) Execute(ctx context.Context, job rabbitmq.VideoJob) Outcome {
	business, err := r.repo.GetBusinessByID(ctx, job.BusinessID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// Data integrity error, not a transient upstream failure.
			return r.fatal(ctx, job, fmt.Errorf("business %d: %w", job.BusinessID, err))
		}
		return r.recoverable(ctx, job, err)
	}
	conversation, err := r.repo.GetByID(ctx, job.ConversationID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			// No row to mark failed; drop the job.
			return Outcome{Decision: DecisionFailed, Err: fmt.Errorf("conversation %d: %w", job.ConversationID, err)}
		}
		return r.recoverable(ctx, job, err)
	}

	// A duplicate of a finished job is a no-op, not an error.
	if conversation.Status.Terminal() {
		return Outcome{Decision: DecisionDone}
	}

	if err := r.repo.ClaimProcessing(ctx, job.ConversationID); err != nil {
		if errors.Is(err, convo.ErrStaleTransition) {
			return Outcome{Decision: DecisionDone}
		}
		return r.recoverable(ctx, job, fmt.Errorf("claim: %w", err))
	}

	if err := r.runStages(ctx, business, job); err != nil {
		if errors.Is(err, provider.ErrUnavailable) {
			return r.fatal(ctx, job, err)
		}
		return r.recoverable(ctx, job, err)
	}

	return Outcome{Decision: DecisionDone}
}

func (r *Runner) runStages(ctx context.Context, business *models.Business, job rabbitmq.VideoJob) error {
	// Stage 1: compose reply text.
	history := []provider.Message{
		{Role: "system", Content: systemPrompt(business)},
		{Role: "user", Content: job.MessageText},
	}
	reply, err := r.text.Compose(ctx, history)
	if err != nil {
		return fmt.Errorf("compose reply: %w", err)
	}
	if strings.TrimSpace(reply) == "" {
		return errors.New("compose reply: empty response")
	}
	if err := r.repo.SetResponseText(ctx, job.ConversationID, reply); err != nil {
		return fmt.Errorf("persist reply: %w", err)
	}

	// Stage 2: synthesize voice.
	audio, err := r.speaker.Synthesize(ctx, reply, clonedVoiceID(business))
	if err != nil {
		return fmt.Errorf("synthesize voice: %w", err)
	}
	audioPath, err := r.store.SaveAudio(audio)
	if err != nil {
		return fmt.Errorf("save audio: %w", err)
	}
	if err := r.repo.SetAudioURL(ctx, job.ConversationID, audioPath); err != nil {
		return fmt.Errorf("persist audio: %w", err)
	}

	// Stage 3: render video. The renderer fetches both inputs itself, so the
	// stored paths must be rewritten to absolute URLs first.
	audioURL := r.store.PublicURL(audioPath)
	avatarURL := r.store.PublicURL(business.AvatarImageURL)
	videoURL, err := r.renderer.Render(ctx, audioURL, avatarURL)
	if err != nil {
		return fmt.Errorf("render video: %w", err)
	}
	if err := r.repo.SetVideoURL(ctx, job.ConversationID, videoURL); err != nil {
		return fmt.Errorf("persist video: %w", err)
	}

	// Stage 4: deliver.
	caption := fmt.Sprintf("Hi! Here's my response from %s", business.Name)
	if _, err := r.notifier.SendMedia(ctx, job.CustomerPhone, videoURL, caption); err != nil {
		return fmt.Errorf("deliver video: %w", err)
	}

	return r.repo.MarkSent(ctx, job.ConversationID)
}

// recoverable reschedules when attempts remain, otherwise fails the
// conversation with the last error.
func (r *Runner) recoverable(ctx context.Context, job rabbitmq.VideoJob, cause error) Outcome {
	if job.Attempt+1 >= r.maxAttempts {
		return r.fatal(ctx, job, cause)
	}
	// Keep the latest failure on the record for diagnostics while the
	// conversation stays in processing.
	if err := r.repo.SetLastError(ctx, job.ConversationID, cause.Error()); err != nil && !errors.Is(err, convo.ErrStaleTransition) {
		log.Printf("pipeline convo=%d record error failed: %v", job.ConversationID, err)
	}
	return Outcome{
		Decision: DecisionRetry,
		Delay:    r.Backoff(job.Attempt),
		Err:      cause,
	}
}

func (r *Runner) fatal(ctx context.Context, job rabbitmq.VideoJob, cause error) Outcome {
	if err := r.repo.MarkFailed(ctx, job.ConversationID, cause.Error()); err != nil && !errors.Is(err, convo.ErrStaleTransition) {
		log.Printf("pipeline convo=%d mark failed errored: %v", job.ConversationID, err)
	}
	return Outcome{Decision: DecisionFailed, Err: cause}
}

// clonedVoiceID returns the tenant's cloned voice id when one is stored. A
// raw voice-sample path (contains a slash) is not a usable voice id, so the
// speaker's default voice applies.
func clonedVoiceID(b *models.Business) string {
	ref := strings.TrimSpace(b.VoiceSampleURL)
	if ref == "" || strings.Contains(ref, "/") {
		return ""
	}
	return ref
}

func systemPrompt(b *models.Business) string {
	tone := "Keep a polished, professional tone."
	switch b.ResponseStyle {
	case "casual":
		tone = "Keep a relaxed, casual tone."
	case "friendly":
		tone = "Keep a warm, friendly tone."
	}
	return fmt.Sprintf("You are the assistant for %s, a %s business. Answer the customer's message briefly. %s",
		b.Name, b.BusinessType, tone)
}
