package convo

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/vidioagent/backend/internal/models"
)

var testDBSeq atomic.Int64

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:convo%d?mode=memory&cache=shared", testDBSeq.Add(1))
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := db.AutoMigrate(&models.Business{}, &models.Customer{}, &Conversation{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func seedConversation(t *testing.T, repo *Repo) *Conversation {
	t.Helper()
	c := &Conversation{
		BusinessID:          1,
		CustomerID:          1,
		MessageFromCustomer: "What are your hours?",
		Status:              StatusPending,
	}
	if err := repo.Create(context.Background(), c); err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	return c
}

func TestClaimProcessing_FromPendingAndProcessing(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	c := seedConversation(t, repo)
	ctx := context.Background()

	if err := repo.ClaimProcessing(ctx, c.ID); err != nil {
		t.Fatalf("claim from pending: %v", err)
	}
	// A rescheduled retry claims again while still processing.
	if err := repo.ClaimProcessing(ctx, c.ID); err != nil {
		t.Fatalf("claim from processing: %v", err)
	}

	got, err := repo.GetByID(ctx, c.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Status != StatusProcessing {
		t.Fatalf("status = %q, want processing", got.Status)
	}
}

func TestStatusIsMonotonic_AfterSent(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	c := seedConversation(t, repo)
	ctx := context.Background()

	if err := repo.ClaimProcessing(ctx, c.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := repo.MarkSent(ctx, c.ID); err != nil {
		t.Fatalf("mark sent: %v", err)
	}

	if err := repo.ClaimProcessing(ctx, c.ID); err != ErrStaleTransition {
		t.Fatalf("claim after sent = %v, want ErrStaleTransition", err)
	}
	if err := repo.MarkFailed(ctx, c.ID, "late failure"); err != ErrStaleTransition {
		t.Fatalf("fail after sent = %v, want ErrStaleTransition", err)
	}
	if err := repo.MarkSent(ctx, c.ID); err != ErrStaleTransition {
		t.Fatalf("double sent = %v, want ErrStaleTransition", err)
	}

	got, _ := repo.GetByID(ctx, c.ID)
	if got.Status != StatusSent {
		t.Fatalf("status regressed to %q", got.Status)
	}
	if got.SentAt == nil {
		t.Fatalf("sent_at not set")
	}
}

func TestStatusIsMonotonic_AfterFailed(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	c := seedConversation(t, repo)
	ctx := context.Background()

	if err := repo.ClaimProcessing(ctx, c.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := repo.MarkFailed(ctx, c.ID, "render exploded"); err != nil {
		t.Fatalf("mark failed: %v", err)
	}

	if err := repo.ClaimProcessing(ctx, c.ID); err != ErrStaleTransition {
		t.Fatalf("claim after failed = %v, want ErrStaleTransition", err)
	}
	if err := repo.MarkSent(ctx, c.ID); err != ErrStaleTransition {
		t.Fatalf("sent after failed = %v, want ErrStaleTransition", err)
	}

	got, _ := repo.GetByID(ctx, c.ID)
	if got.Status != StatusFailed {
		t.Fatalf("status = %q, want failed", got.Status)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage != "render exploded" {
		t.Fatalf("error message not persisted: %v", got.ErrorMessage)
	}
}

func TestMarkSent_RejectedFromPending(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	c := seedConversation(t, repo)

	if err := repo.MarkSent(context.Background(), c.ID); err != ErrStaleTransition {
		t.Fatalf("sent from pending = %v, want ErrStaleTransition", err)
	}
}

func TestStageWrites_GuardedByProcessing(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	c := seedConversation(t, repo)
	ctx := context.Background()

	// Writes before the claim must be rejected.
	if err := repo.SetResponseText(ctx, c.ID, "early"); err != ErrStaleTransition {
		t.Fatalf("write before claim = %v, want ErrStaleTransition", err)
	}

	if err := repo.ClaimProcessing(ctx, c.ID); err != nil {
		t.Fatalf("claim: %v", err)
	}
	if err := repo.SetResponseText(ctx, c.ID, "We are open 9-5."); err != nil {
		t.Fatalf("set reply: %v", err)
	}
	if err := repo.SetAudioURL(ctx, c.ID, "storage/audio/a.mp3"); err != nil {
		t.Fatalf("set audio: %v", err)
	}
	if err := repo.SetVideoURL(ctx, c.ID, "https://cdn.example.com/v.mp4"); err != nil {
		t.Fatalf("set video: %v", err)
	}
	if err := repo.SetLastError(ctx, c.ID, "transient blip"); err != nil {
		t.Fatalf("set last error: %v", err)
	}

	got, _ := repo.GetByID(ctx, c.ID)
	if got.AIResponseText == "" || got.AudioURL == "" || got.VideoURL == "" {
		t.Fatalf("stage fields missing: %+v", got)
	}
	if got.Status != StatusProcessing {
		t.Fatalf("recording an error moved status to %q", got.Status)
	}
}

func TestGetOrCreateCustomer_IdempotentPerTenant(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()

	first, err := repo.GetOrCreateCustomer(ctx, "+15550001111", 1)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	again, err := repo.GetOrCreateCustomer(ctx, "+15550001111", 1)
	if err != nil {
		t.Fatalf("get existing: %v", err)
	}
	if first.ID != again.ID {
		t.Fatalf("same (phone, business) produced two customers: %d and %d", first.ID, again.ID)
	}

	// Same phone under another tenant is a different customer.
	other, err := repo.GetOrCreateCustomer(ctx, "+15550001111", 2)
	if err != nil {
		t.Fatalf("create for other tenant: %v", err)
	}
	if other.ID == first.ID {
		t.Fatalf("customer leaked across tenants")
	}
}

func TestListByBusiness_ScopedToTenant(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if err := repo.Create(ctx, &Conversation{BusinessID: 1, CustomerID: 1, MessageFromCustomer: "a", Status: StatusPending}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}
	if err := repo.Create(ctx, &Conversation{BusinessID: 2, CustomerID: 2, MessageFromCustomer: "b", Status: StatusPending}); err != nil {
		t.Fatalf("seed other: %v", err)
	}

	out, err := repo.ListByBusiness(ctx, 1, 10, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("expected 3 conversations, got %d", len(out))
	}
	for _, c := range out {
		if c.BusinessID != 1 {
			t.Fatalf("cross-tenant row in listing: %+v", c)
		}
	}
}
