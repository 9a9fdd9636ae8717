package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/BTreeMap/CartRescue/internal/models"
	"github.com/BTreeMap/CartRescue/internal/store"
)

// fakeSender records sends and can be told to fail.
type fakeSender struct {
	mu    sync.Mutex
	sent  []sentEmail
	fail  bool
	delay time.Duration
}

type sentEmail struct {
	to      string
	subject string
	body    string
}

func (f *fakeSender) Send(ctx context.Context, to, subject, body string) error {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.fail {
		return errors.New("provider rejected message")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentEmail{to: to, subject: subject, body: body})
	return nil
}

func (f *fakeSender) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testCart(id string, lastModified time.Time) models.AbandonedCart {
	return models.AbandonedCart{
		ID:           id,
		CustomerName: "Ada",
		Email:        "a@b.com",
		Items: []models.CartItem{
			{Name: "Widget", UnitPrice: 19.99, Quantity: 2},
		},
		Total:        39.98,
		LastModified: lastModified,
		LastStep:     models.CheckoutStepShippingInfo,
		Status:       models.CartStatusAbandoned,
	}
}

func newTestPipeline(st store.CartStore, sender *fakeSender) *Pipeline {
	p := New(st, sender, Config{
		MinAge:  2 * time.Hour,
		MaxAge:  24 * time.Hour,
		BaseURL: "https://shop.example.com",
	})
	return p.WithClock(func() time.Time { return testNow })
}

func TestRunHappyPath(t *testing.T) {
	st := store.NewInMemoryStore()
	sender := &fakeSender{}
	if err := st.SaveCart(testCart("C1", testNow.Add(-5*time.Hour))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	report, err := newTestPipeline(st, sender).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !report.Success || report.Processed != 1 || report.Sent != 1 {
		t.Errorf("report = %+v, want success with 1 sent", report)
	}
	if sender.sentCount() != 1 {
		t.Fatalf("sent %d emails, want 1", sender.sentCount())
	}
	if sender.sent[0].to != "a@b.com" {
		t.Errorf("sent to %q, want a@b.com", sender.sent[0].to)
	}

	cart, err := st.GetCart("C1")
	if err != nil || cart == nil {
		t.Fatalf("cart not found after run: %v", err)
	}
	if !cart.EmailSent || cart.EmailSentAt == nil || cart.RecoveryToken == "" {
		t.Errorf("claim did not record send state: %+v", cart)
	}
	if cart.Status != models.CartStatusRecoveryEmailSent {
		t.Errorf("status = %q, want %q", cart.Status, models.CartStatusRecoveryEmailSent)
	}
	if !strings.Contains(sender.sent[0].body, cart.RecoveryToken) {
		t.Error("email body does not contain the recovery token")
	}
}

func TestRunIdempotentAcrossInvocations(t *testing.T) {
	st := store.NewInMemoryStore()
	sender := &fakeSender{}
	if err := st.SaveCart(testCart("C1", testNow.Add(-5*time.Hour))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := newTestPipeline(st, sender)

	first, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	second, err := p.Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if first.Sent != 1 {
		t.Errorf("first run sent = %d, want 1", first.Sent)
	}
	if second.Processed != 0 || second.Sent != 0 {
		t.Errorf("second run = %+v, want zero processed", second)
	}
	if sender.sentCount() != 1 {
		t.Errorf("total sends = %d, want exactly 1", sender.sentCount())
	}
}

// staleListStore returns a snapshot of candidates regardless of their current
// claim state, simulating a candidate list that went stale because another
// invocation claimed the cart between detection and dispatch.
type staleListStore struct {
	store.CartStore
	stale []models.AbandonedCart
}

func (s *staleListStore) ListAbandonedCarts(oldest, newest time.Time, limit int) ([]models.AbandonedCart, error) {
	return s.stale, nil
}

func TestRunClaimRaceLostIsSkippedNotError(t *testing.T) {
	inner := store.NewInMemoryStore()
	sender := &fakeSender{}
	cart := testCart("C1", testNow.Add(-5*time.Hour))
	if err := inner.SaveCart(cart); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// Another invocation already claimed the cart.
	claimed, err := inner.ClaimCart("C1", "sometoken", testNow)
	if err != nil || !claimed {
		t.Fatalf("setup claim failed: claimed=%v err=%v", claimed, err)
	}

	st := &staleListStore{CartStore: inner, stale: []models.AbandonedCart{cart}}
	report, err := newTestPipeline(st, sender).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Skipped != 1 || report.Failed != 0 || report.Sent != 0 {
		t.Errorf("report = %+v, want 1 skipped", report)
	}
	if sender.sentCount() != 0 {
		t.Errorf("sent %d emails, want 0", sender.sentCount())
	}

	// The original claim is untouched.
	got, err := inner.GetCart("C1")
	if err != nil || got == nil {
		t.Fatalf("cart not found: %v", err)
	}
	if got.RecoveryToken != "sometoken" {
		t.Errorf("recovery token overwritten: %q", got.RecoveryToken)
	}
}

func TestRunConcurrentInvocationsSendOnce(t *testing.T) {
	st := store.NewInMemoryStore()
	sender := &fakeSender{}
	if err := st.SaveCart(testCart("C1", testNow.Add(-5*time.Hour))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	p := newTestPipeline(st, sender)

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := p.Run(context.Background()); err != nil {
				t.Errorf("concurrent run failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if sender.sentCount() != 1 {
		t.Errorf("total sends across overlapping runs = %d, want exactly 1", sender.sentCount())
	}
}

func TestRunAlreadySentCartNeverDetected(t *testing.T) {
	st := store.NewInMemoryStore()
	sender := &fakeSender{}
	c2 := testCart("C2", testNow.Add(-5*time.Hour))
	c2.EmailSent = true
	sentAt := testNow.Add(-time.Hour)
	c2.EmailSentAt = &sentAt
	if err := st.SaveCart(c2); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	report, err := newTestPipeline(st, sender).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Processed != 0 {
		t.Errorf("processed = %d, want 0", report.Processed)
	}
}

func TestRunRecoveredCartNeverDetected(t *testing.T) {
	st := store.NewInMemoryStore()
	sender := &fakeSender{}
	c := testCart("C4", testNow.Add(-5*time.Hour))
	c.Recovered = true
	if err := st.SaveCart(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	report, err := newTestPipeline(st, sender).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Processed != 0 {
		t.Errorf("processed = %d, want 0", report.Processed)
	}
}

func TestRunMissingEmailSkippedBeforeClaim(t *testing.T) {
	st := store.NewInMemoryStore()
	sender := &fakeSender{}
	c3 := testCart("C3", testNow.Add(-5*time.Hour))
	c3.Email = ""
	if err := st.SaveCart(c3); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	report, err := newTestPipeline(st, sender).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Processed != 1 || report.Skipped != 1 {
		t.Errorf("report = %+v, want 1 skipped", report)
	}
	if sender.sentCount() != 0 {
		t.Errorf("sent %d emails, want 0", sender.sentCount())
	}

	// Never claimed, never mutated: eligible again once the data is fixed.
	cart, err := st.GetCart("C3")
	if err != nil || cart == nil {
		t.Fatalf("cart not found: %v", err)
	}
	if cart.EmailSent || cart.RecoveryToken != "" || cart.EmailSentAt != nil {
		t.Errorf("skipped cart was mutated: %+v", cart)
	}
}

func TestRunSendFailureLeavesCartClaimed(t *testing.T) {
	st := store.NewInMemoryStore()
	sender := &fakeSender{fail: true}
	if err := st.SaveCart(testCart("C1", testNow.Add(-5*time.Hour))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	report, err := newTestPipeline(st, sender).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !report.Success || report.Failed != 1 || report.Sent != 0 {
		t.Errorf("report = %+v, want success with 1 failed", report)
	}
	if len(report.Details) != 1 || report.Details[0].Status != models.DispatchStatusError {
		t.Fatalf("details = %+v, want one error detail", report.Details)
	}
	if report.Details[0].Error == "" {
		t.Error("error detail missing message")
	}

	// Claimed but unsent: the accepted trade-off. No automatic retry.
	cart, err := st.GetCart("C1")
	if err != nil || cart == nil {
		t.Fatalf("cart not found: %v", err)
	}
	if !cart.EmailSent {
		t.Error("send failure rolled back the claim; duplicates now possible")
	}

	second, err := newTestPipeline(st, &fakeSender{}).Run(context.Background())
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Processed != 0 {
		t.Errorf("failed cart retried automatically: %+v", second)
	}
}

func TestRunEmptyStoreIsGraceful(t *testing.T) {
	st := store.NewInMemoryStore()
	sender := &fakeSender{}

	report, err := newTestPipeline(st, sender).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !report.Success || report.Processed != 0 || len(report.Details) != 0 {
		t.Errorf("report = %+v, want empty success", report)
	}
}

// failingStore simulates an unreachable backend.
type failingStore struct {
	store.CartStore
}

func (f *failingStore) ListAbandonedCarts(oldest, newest time.Time, limit int) ([]models.AbandonedCart, error) {
	return nil, errors.New("connection refused")
}

func TestRunInfrastructureFailureAbortsRun(t *testing.T) {
	st := &failingStore{CartStore: store.NewInMemoryStore()}
	report, err := newTestPipeline(st, &fakeSender{}).Run(context.Background())
	if err == nil {
		t.Fatal("expected error for unreachable store")
	}
	if report.Success {
		t.Errorf("report.Success = true, want false")
	}
}

func TestRunPersistsReport(t *testing.T) {
	st := store.NewInMemoryStore()
	sender := &fakeSender{}
	if err := st.SaveCart(testCart("C1", testNow.Add(-5*time.Hour))); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	report, err := newTestPipeline(st, sender).Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	reports, err := st.ListRunReports(10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(reports) != 1 || reports[0].RunID != report.RunID {
		t.Errorf("persisted reports = %+v, want the run's report", reports)
	}
}
