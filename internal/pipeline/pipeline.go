// Package pipeline implements the cart-abandonment recovery sweep.
//
// Each invocation computes the staleness window, queries the cart store for
// qualifying carts, and for every candidate issues a recovery token, renders
// the notification, claims the cart with an atomic conditional update, and
// only then sends the email. The claim-before-send ordering trades a small
// risk of claimed-but-unsent carts for a hard guarantee that no cart is ever
// notified twice, even under concurrent overlapping invocations.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/BTreeMap/CartRescue/internal/email"
	"github.com/BTreeMap/CartRescue/internal/models"
	"github.com/BTreeMap/CartRescue/internal/render"
	"github.com/BTreeMap/CartRescue/internal/store"
	"github.com/BTreeMap/CartRescue/internal/util"
	"github.com/google/uuid"
)

// Default configuration constants
const (
	// DefaultMinAge is the minimum staleness before a cart counts as abandoned.
	DefaultMinAge = 2 * time.Hour
	// DefaultMaxAge is the maximum staleness after which a nudge is no longer useful.
	DefaultMaxAge = 24 * time.Hour
	// DefaultWorkers bounds the number of carts processed concurrently.
	DefaultWorkers = 4
	// DefaultSendTimeout bounds each individual send call.
	DefaultSendTimeout = 15 * time.Second
	// DefaultRunBudget bounds the wall clock of a whole invocation. Candidates
	// left over when it expires are simply picked up by the next run.
	DefaultRunBudget = 5 * time.Minute
	// DefaultBatchLimit bounds how many candidates one invocation considers.
	DefaultBatchLimit = 500
)

// Config holds the pipeline's tunable parameters.
type Config struct {
	MinAge      time.Duration
	MaxAge      time.Duration
	BaseURL     string
	Workers     int
	SendTimeout time.Duration
	RunBudget   time.Duration
	BatchLimit  int
}

// Pipeline is the dispatch coordinator. It is stateless between runs; all
// state lives in the cart store.
type Pipeline struct {
	store  store.CartStore
	sender email.Sender
	cfg    Config
	now    func() time.Time
}

// New creates a pipeline with explicit store and sender dependencies.
// Zero-valued config fields fall back to defaults.
func New(st store.CartStore, sender email.Sender, cfg Config) *Pipeline {
	if cfg.MinAge <= 0 {
		cfg.MinAge = DefaultMinAge
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = DefaultMaxAge
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	if cfg.RunBudget <= 0 {
		cfg.RunBudget = DefaultRunBudget
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = DefaultBatchLimit
	}
	return &Pipeline{store: st, sender: sender, cfg: cfg, now: time.Now}
}

// WithClock overrides the pipeline's clock. Used in tests.
func (p *Pipeline) WithClock(now func() time.Time) *Pipeline {
	p.now = now
	return p
}

// Run performs one sweep and returns its report. Only an infrastructure
// failure (store unreachable) yields a non-nil error; per-cart failures are
// isolated and reported in the details.
func (p *Pipeline) Run(ctx context.Context) (models.RunReport, error) {
	started := p.now()
	report := models.RunReport{
		RunID:     uuid.NewString(),
		StartedAt: started,
	}

	window := ComputeWindow(started, p.cfg.MinAge, p.cfg.MaxAge)
	slog.Debug("Pipeline.Run: computed staleness window", "runID", report.RunID, "oldest", window.Oldest, "newest", window.Newest)

	carts, err := p.store.ListAbandonedCarts(window.Oldest, window.Newest, p.cfg.BatchLimit)
	if err != nil {
		slog.Error("Pipeline.Run: candidate query failed", "runID", report.RunID, "error", err)
		report.DurationMS = time.Since(started).Milliseconds()
		return report, fmt.Errorf("list abandoned carts failed: %w", err)
	}

	if len(carts) == 0 {
		slog.Info("Pipeline.Run: no qualifying carts", "runID", report.RunID)
		report.Success = true
		report.DurationMS = time.Since(started).Milliseconds()
		p.persistReport(report)
		return report, nil
	}
	slog.Info("Pipeline.Run: candidates found", "runID", report.RunID, "count", len(carts))

	runCtx, cancel := context.WithTimeout(ctx, p.cfg.RunBudget)
	defer cancel()

	results := p.dispatch(runCtx, cancel, carts)

	for _, r := range results {
		report.Details = append(report.Details, r)
		switch r.Status {
		case models.DispatchStatusSent:
			report.Sent++
		case models.DispatchStatusSkipped:
			report.Skipped++
		case models.DispatchStatusError:
			report.Failed++
		}
	}
	report.Processed = len(report.Details)
	report.Success = true
	report.DurationMS = time.Since(started).Milliseconds()

	slog.Info("Pipeline.Run: sweep complete", "runID", report.RunID,
		"processed", report.Processed, "sent", report.Sent, "skipped", report.Skipped, "failed", report.Failed)

	p.persistReport(report)
	return report, nil
}

// dispatch fans candidates out to a bounded worker pool. One cart's failure
// cannot abort siblings; an expired run budget stops feeding new carts but
// lets in-flight ones finish.
func (p *Pipeline) dispatch(ctx context.Context, cancel context.CancelFunc, carts []models.AbandonedCart) []models.CartResult {
	jobs := make(chan models.AbandonedCart)
	results := make(chan models.CartResult, len(carts))

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for cart := range jobs {
				results <- p.processCart(ctx, cancel, cart)
			}
		}()
	}

feed:
	for _, cart := range carts {
		select {
		case jobs <- cart:
		case <-ctx.Done():
			slog.Warn("Pipeline.dispatch: run budget exhausted, leaving remaining carts for next run", "error", ctx.Err())
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	close(results)

	var collected []models.CartResult
	for r := range results {
		collected = append(collected, r)
	}
	return collected
}

// processCart handles a single candidate end to end: validate, issue token,
// render, claim, send. The claim's conditional WHERE clause is the
// re-check of eligibility; losing it means another invocation owns the cart.
func (p *Pipeline) processCart(ctx context.Context, cancel context.CancelFunc, cart models.AbandonedCart) models.CartResult {
	result := models.CartResult{ID: cart.ID, Email: cart.Email}

	if err := cart.Notifiable(); err != nil {
		slog.Warn("Pipeline.processCart: cart not notifiable, skipping before claim", "cartID", cart.ID, "reason", err)
		result.Status = models.DispatchStatusSkipped
		result.Error = err.Error()
		return result
	}

	token, err := util.GenerateRecoveryToken()
	if err != nil {
		// Randomness failure is a process-level fault, not a property of this
		// cart; cancel the run so siblings stop too.
		slog.Error("Pipeline.processCart: token generation failed, aborting run", "cartID", cart.ID, "error", err)
		cancel()
		result.Status = models.DispatchStatusError
		result.Error = err.Error()
		return result
	}
	link := RecoveryLink(p.cfg.BaseURL, token)

	body, err := render.RecoveryEmail(cart, link)
	if err != nil {
		// Render before claim: a render failure must not leave the cart
		// claimed-but-unsent.
		slog.Error("Pipeline.processCart: render failed", "cartID", cart.ID, "error", err)
		result.Status = models.DispatchStatusError
		result.Error = err.Error()
		return result
	}

	claimed, err := p.store.ClaimCart(cart.ID, token, p.now())
	if err != nil {
		slog.Error("Pipeline.processCart: claim failed", "cartID", cart.ID, "error", err)
		result.Status = models.DispatchStatusError
		result.Error = err.Error()
		return result
	}
	if !claimed {
		slog.Debug("Pipeline.processCart: claim race lost, cart owned by another invocation", "cartID", cart.ID)
		result.Status = models.DispatchStatusSkipped
		return result
	}

	sendCtx, sendCancel := context.WithTimeout(ctx, p.cfg.SendTimeout)
	defer sendCancel()
	if err := p.sender.Send(sendCtx, cart.Email, render.DefaultSubject, body); err != nil {
		// The cart stays claimed: no-duplicate-sends beats guaranteed
		// delivery. An operator can reset email_sent out of band.
		slog.Error("Pipeline.processCart: send failed after claim, cart remains claimed", "cartID", cart.ID, "error", err)
		result.Status = models.DispatchStatusError
		result.Error = err.Error()
		return result
	}

	slog.Info("Pipeline.processCart: recovery email sent", "cartID", cart.ID)
	result.Status = models.DispatchStatusSent
	return result
}

// persistReport stores the run summary. Persistence is for operator
// inspection only, so a failure is logged and does not fail the run.
func (p *Pipeline) persistReport(report models.RunReport) {
	if err := p.store.SaveRunReport(report); err != nil {
		slog.Warn("Pipeline.persistReport: failed to persist run report", "runID", report.RunID, "error", err)
	}
}

// RecoveryLink builds the recovery URL consumed by the storefront landing
// page, which resolves the token back to a cart and marks it recovered.
func RecoveryLink(baseURL, token string) string {
	return fmt.Sprintf("%s/recovery?action=track&token=%s", strings.TrimRight(baseURL, "/"), token)
}
