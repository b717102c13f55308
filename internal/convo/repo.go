package convo

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/vidioagent/backend/internal/models"
)

// ErrStaleTransition is returned when a status-guarded update matched no row:
// either the conversation is gone or its status already moved past the
// expected state. Terminal statuses never transition again.
var ErrStaleTransition = errors.New("conversation: stale status transition")

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) Create(ctx context.Context, c *Conversation) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *Repo) GetByID(ctx context.Context, id uint64) (*Conversation, error) {
	var c Conversation
	if err := r.db.WithContext(ctx).First(&c, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ListByBusiness returns a tenant's conversations, newest first. Every query
// is scoped by business id; cross-tenant reads are not possible through here.
func (r *Repo) ListByBusiness(ctx context.Context, businessID uint64, limit int, beforeID uint64) ([]Conversation, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	q := r.db.WithContext(ctx).
		Where("business_id = ?", businessID).
		Order("id DESC").
		Limit(limit)
	if beforeID > 0 {
		q = q.Where("id < ?", beforeID)
	}
	var out []Conversation
	if err := q.Find(&out).Error; err != nil {
		return nil, err
	}
	return out, nil
}

// ClaimProcessing moves a conversation into "processing". The claim succeeds
// from "pending" (first attempt) and from "processing" (a rescheduled retry);
// it is rejected once the row is terminal, which keeps the status monotonic.
func (r *Repo) ClaimProcessing(ctx context.Context, id uint64) error {
	res := r.db.WithContext(ctx).Model(&Conversation{}).
		Where("id = ? AND status IN ?", id, []Status{StatusPending, StatusProcessing}).
		Updates(map[string]any{
			"status":     StatusProcessing,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleTransition
	}
	return nil
}

// SetResponseText persists the composed reply while the job keeps running, so
// partial progress survives a crash.
func (r *Repo) SetResponseText(ctx context.Context, id uint64, text string) error {
	return r.guardedUpdate(ctx, id, map[string]any{"ai_response_text": text})
}

func (r *Repo) SetAudioURL(ctx context.Context, id uint64, url string) error {
	return r.guardedUpdate(ctx, id, map[string]any{"audio_url": url})
}

func (r *Repo) SetVideoURL(ctx context.Context, id uint64, url string) error {
	return r.guardedUpdate(ctx, id, map[string]any{"video_url": url})
}

// SetLastError records the most recent stage failure for diagnostics while
// the conversation is still processing. It is not cleared on later success.
func (r *Repo) SetLastError(ctx context.Context, id uint64, msg string) error {
	return r.guardedUpdate(ctx, id, map[string]any{"error_message": msg})
}

// MarkSent is the terminal success transition, accepted only from "processing".
func (r *Repo) MarkSent(ctx context.Context, id uint64) error {
	now := time.Now()
	res := r.db.WithContext(ctx).Model(&Conversation{}).
		Where("id = ? AND status = ?", id, StatusProcessing).
		Updates(map[string]any{
			"status":  StatusSent,
			"sent_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleTransition
	}
	return nil
}

// MarkFailed is the terminal failure transition with the triggering cause.
func (r *Repo) MarkFailed(ctx context.Context, id uint64, errMsg string) error {
	res := r.db.WithContext(ctx).Model(&Conversation{}).
		Where("id = ? AND status IN ?", id, []Status{StatusPending, StatusProcessing}).
		Updates(map[string]any{
			"status":        StatusFailed,
			"error_message": errMsg,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleTransition
	}
	return nil
}

func (r *Repo) guardedUpdate(ctx context.Context, id uint64, fields map[string]any) error {
	res := r.db.WithContext(ctx).Model(&Conversation{}).
		Where("id = ? AND status = ?", id, StatusProcessing).
		Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStaleTransition
	}
	return nil
}

// Tenant lookups used by the webhook intake and the worker.

func (r *Repo) GetBusinessByNumber(ctx context.Context, number string) (*models.Business, error) {
	var b models.Business
	if err := r.db.WithContext(ctx).First(&b, "whatsapp_number = ?", number).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

func (r *Repo) GetBusinessByID(ctx context.Context, id uint64) (*models.Business, error) {
	var b models.Business
	if err := r.db.WithContext(ctx).First(&b, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &b, nil
}

// GetOrCreateCustomer upserts by (phone, business id). The unique index makes
// the create race-safe: a concurrent insert loses and falls back to the read.
func (r *Repo) GetOrCreateCustomer(ctx context.Context, phoneNumber string, businessID uint64) (*models.Customer, error) {
	var cust models.Customer
	err := r.db.WithContext(ctx).
		Where("phone_number = ? AND business_id = ?", phoneNumber, businessID).
		First(&cust).Error
	if err == nil {
		return &cust, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	cust = models.Customer{PhoneNumber: phoneNumber, BusinessID: businessID}
	if createErr := r.db.WithContext(ctx).Create(&cust).Error; createErr != nil {
		if getErr := r.db.WithContext(ctx).
			Where("phone_number = ? AND business_id = ?", phoneNumber, businessID).
			First(&cust).Error; getErr == nil {
			return &cust, nil
		}
		return nil, createErr
	}
	return &cust, nil
}
