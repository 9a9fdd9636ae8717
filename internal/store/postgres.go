// Package store provides storage backends for CartRescue.
//
// This file implements the PostgreSQL-backed cart store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "embed"

	"github.com/BTreeMap/CartRescue/internal/models"
	_ "github.com/lib/pq"
)

// Database connection pool configuration constants
const (
	// DefaultMaxOpenConns is the default maximum number of open connections to the database
	DefaultMaxOpenConns = 25
	// DefaultMaxIdleConns is the default maximum number of idle connections in the pool
	DefaultMaxIdleConns = 25
	// DefaultConnMaxLifetime is the default maximum amount of time a connection may be reused
	DefaultConnMaxLifetime = 5 * time.Minute
)

//go:embed migrations_postgres.sql
var postgresMigrations string

// Compile-time check that PostgresStore implements CartStore.
var _ CartStore = (*PostgresStore)(nil)

type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new Postgres store based on provided options.
func NewPostgresStore(opts ...Option) (*PostgresStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("PostgresStore.NewPostgresStore: creating Postgres store", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("PostgresStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		slog.Error("Failed to open Postgres connection", "error", err)
		return nil, err
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	if err := db.Ping(); err != nil {
		slog.Error("Postgres ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running Postgres migrations")
	if _, err := db.Exec(postgresMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("Postgres migrations applied successfully")
	return &PostgresStore{db: db}, nil
}

func (s *PostgresStore) SaveCart(cart models.AbandonedCart) error {
	itemsJSON, err := marshalItems(cart.Items)
	if err != nil {
		return err
	}
	now := time.Now()
	_, err = s.db.Exec(
		`INSERT INTO abandoned_carts (id, customer_name, email, phone, items_json, total, last_modified, last_step, email_sent, email_sent_at, recovery_token, recovered, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $14)
		 ON CONFLICT (id) DO UPDATE SET
		   customer_name = EXCLUDED.customer_name, email = EXCLUDED.email, phone = EXCLUDED.phone,
		   items_json = EXCLUDED.items_json, total = EXCLUDED.total, last_modified = EXCLUDED.last_modified,
		   last_step = EXCLUDED.last_step, email_sent = EXCLUDED.email_sent, email_sent_at = EXCLUDED.email_sent_at,
		   recovery_token = EXCLUDED.recovery_token, recovered = EXCLUDED.recovered, status = EXCLUDED.status,
		   updated_at = EXCLUDED.updated_at`,
		cart.ID, nilIfEmpty(cart.CustomerName), nilIfEmpty(cart.Email), nilIfEmpty(cart.Phone),
		nilIfEmpty(itemsJSON), cart.Total, cart.LastModified, nilIfEmpty(string(cart.LastStep)),
		cart.EmailSent, cart.EmailSentAt, nilIfEmpty(cart.RecoveryToken), cart.Recovered,
		nilIfEmpty(string(cart.Status)), now,
	)
	if err != nil {
		slog.Error("PostgresStore.SaveCart failed", "error", err, "cartID", cart.ID)
		return fmt.Errorf("save cart %s failed: %w", cart.ID, err)
	}
	slog.Debug("PostgresStore.SaveCart succeeded", "cartID", cart.ID)
	return nil
}

func (s *PostgresStore) GetCart(id string) (*models.AbandonedCart, error) {
	row := s.db.QueryRow(`SELECT `+cartColumns+` FROM abandoned_carts WHERE id = $1`, id)
	c, err := scanCart(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore.GetCart failed", "error", err, "cartID", id)
		return nil, fmt.Errorf("get cart %s failed: %w", id, err)
	}
	return &c, nil
}

func (s *PostgresStore) ListAbandonedCarts(oldest, newest time.Time, limit int) ([]models.AbandonedCart, error) {
	rows, err := s.db.Query(
		`SELECT `+cartColumns+` FROM abandoned_carts
		 WHERE email_sent = FALSE AND recovered = FALSE AND last_modified >= $1 AND last_modified < $2
		 ORDER BY last_modified ASC LIMIT $3`,
		oldest, newest, limit,
	)
	if err != nil {
		slog.Error("PostgresStore.ListAbandonedCarts query failed", "error", err)
		return nil, fmt.Errorf("list abandoned carts failed: %w", err)
	}
	defer rows.Close()

	var carts []models.AbandonedCart
	for rows.Next() {
		c, err := scanCart(rows)
		if err != nil {
			slog.Error("PostgresStore.ListAbandonedCarts scan failed", "error", err)
			return nil, fmt.Errorf("scan abandoned cart failed: %w", err)
		}
		carts = append(carts, c)
	}
	if err := rows.Err(); err != nil {
		slog.Error("PostgresStore.ListAbandonedCarts rows iteration failed", "error", err)
		return nil, fmt.Errorf("iterate abandoned carts failed: %w", err)
	}
	slog.Debug("PostgresStore.ListAbandonedCarts succeeded", "count", len(carts))
	return carts, nil
}

// ClaimCart is the single atomic conditional update the pipeline mutates
// through. The WHERE clause re-checks eligibility so concurrent claimers
// produce exactly one winner.
func (s *PostgresStore) ClaimCart(id, token string, sentAt time.Time) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE abandoned_carts
		 SET email_sent = TRUE, email_sent_at = $1, recovery_token = $2, status = $3, updated_at = $1
		 WHERE id = $4 AND email_sent = FALSE AND recovered = FALSE`,
		sentAt, token, string(models.CartStatusRecoveryEmailSent), id,
	)
	if err != nil {
		slog.Error("PostgresStore.ClaimCart failed", "error", err, "cartID", id)
		return false, fmt.Errorf("claim cart %s failed: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim cart %s rows affected failed: %w", id, err)
	}
	claimed := n == 1
	slog.Debug("PostgresStore.ClaimCart", "cartID", id, "claimed", claimed)
	return claimed, nil
}

func (s *PostgresStore) RecoverCartByToken(token string) (*models.AbandonedCart, error) {
	row := s.db.QueryRow(
		`UPDATE abandoned_carts SET recovered = TRUE, status = $1, updated_at = $2
		 WHERE recovery_token = $3
		 RETURNING `+cartColumns,
		string(models.CartStatusRecovered), time.Now(), token,
	)
	c, err := scanCart(row)
	if err == sql.ErrNoRows {
		slog.Debug("PostgresStore.RecoverCartByToken: unknown token")
		return nil, nil
	}
	if err != nil {
		slog.Error("PostgresStore.RecoverCartByToken failed", "error", err)
		return nil, fmt.Errorf("recover cart by token failed: %w", err)
	}
	slog.Info("PostgresStore.RecoverCartByToken: cart recovered", "cartID", c.ID)
	return &c, nil
}

func (s *PostgresStore) SaveRunReport(report models.RunReport) error {
	detailsJSON, err := marshalDetails(report.Details)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO recovery_runs (id, success, processed, sent, skipped, failed, details_json, started_at, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		report.RunID, report.Success, report.Processed, report.Sent, report.Skipped, report.Failed,
		nilIfEmpty(detailsJSON), report.StartedAt, report.DurationMS,
	)
	if err != nil {
		slog.Error("PostgresStore.SaveRunReport failed", "error", err, "runID", report.RunID)
		return fmt.Errorf("save run report %s failed: %w", report.RunID, err)
	}
	slog.Debug("PostgresStore.SaveRunReport succeeded", "runID", report.RunID)
	return nil
}

func (s *PostgresStore) ListRunReports(limit int) ([]models.RunReport, error) {
	rows, err := s.db.Query(
		`SELECT id, success, processed, sent, skipped, failed, details_json, started_at, duration_ms
		 FROM recovery_runs ORDER BY started_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		slog.Error("PostgresStore.ListRunReports query failed", "error", err)
		return nil, fmt.Errorf("list run reports failed: %w", err)
	}
	defer rows.Close()

	var reports []models.RunReport
	for rows.Next() {
		r, err := scanRunReport(rows)
		if err != nil {
			slog.Error("PostgresStore.ListRunReports scan failed", "error", err)
			return nil, fmt.Errorf("scan run report failed: %w", err)
		}
		reports = append(reports, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run reports failed: %w", err)
	}
	return reports, nil
}

// Ping verifies the database connection is alive.
func (s *PostgresStore) Ping() error {
	return s.db.Ping()
}

// Close closes the Postgres database connection.
func (s *PostgresStore) Close() error {
	slog.Debug("Closing Postgres database connection")
	return s.db.Close()
}
