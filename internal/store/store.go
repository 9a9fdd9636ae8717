// Package store provides storage backends for CartRescue.
//
// It defines the CartStore interface over the shared abandoned-cart
// collection and implements it for PostgreSQL, SQLite, and an in-memory
// backend used in tests. All pipeline mutation goes through the single
// conditional-update primitive ClaimCart.
package store

import (
	"strings"
	"time"

	"github.com/BTreeMap/CartRescue/internal/models"
)

// Opts holds configuration options for store implementations.
type Opts struct {
	// DSN is the database connection string.
	DSN string
}

// Option defines a configuration option for store implementations.
type Option func(*Opts)

// WithPostgresDSN sets the PostgreSQL connection string.
func WithPostgresDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// WithSQLiteDSN sets the SQLite database file path.
func WithSQLiteDSN(dsn string) Option {
	return func(o *Opts) {
		o.DSN = dsn
	}
}

// DetectDSNType determines the database type from a DSN string.
// Returns "postgres" for PostgreSQL connection strings and "sqlite" for
// everything else (file paths).
func DetectDSNType(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") || strings.Contains(dsn, "host=") {
		return "postgres"
	}
	return "sqlite"
}

// CartStore is the interface over the shared cart collection.
//
// The checkout flow (external) creates and mutates carts while the customer
// shops; the pipeline only reads candidates and performs the atomic claim.
type CartStore interface {
	// SaveCart inserts or replaces a cart record. Used by the checkout-flow
	// integration and by tests; the pipeline itself never calls it.
	SaveCart(cart models.AbandonedCart) error

	// GetCart retrieves a single cart by ID, or nil if absent.
	GetCart(id string) (*models.AbandonedCart, error)

	// ListAbandonedCarts returns up to limit carts with email_sent = false,
	// recovered = false, and last_modified in [oldest, newest), ordered by
	// last_modified ascending.
	ListAbandonedCarts(oldest, newest time.Time, limit int) ([]models.AbandonedCart, error)

	// ClaimCart atomically transitions email_sent from false to true,
	// writing email_sent_at, recovery_token, and status in the same
	// statement. Returns false with a nil error when the cart was already
	// claimed or recovered: a lost race, not a failure.
	ClaimCart(id, token string, sentAt time.Time) (bool, error)

	// RecoverCartByToken resolves a recovery token back to its cart and
	// marks it recovered. Called by the recovery landing page integration.
	RecoverCartByToken(token string) (*models.AbandonedCart, error)

	// SaveRunReport persists a run summary for later inspection.
	SaveRunReport(report models.RunReport) error

	// ListRunReports returns up to limit most recent run summaries.
	ListRunReports(limit int) ([]models.RunReport, error)

	// Ping verifies the store is reachable.
	Ping() error

	// Close releases the underlying connection.
	Close() error
}
