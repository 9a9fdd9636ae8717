// Package store provides storage backends for CartRescue.
//
// This file implements the SQLite-backed cart store.
package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "embed"

	"github.com/BTreeMap/CartRescue/internal/models"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDirPermissions defines the default permissions for database directories
const DefaultDirPermissions = 0755

//go:embed migrations_sqlite.sql
var sqliteMigrations string

// Compile-time check that SQLiteStore implements CartStore.
var _ CartStore = (*SQLiteStore)(nil)

type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store with the given DSN.
// The DSN should be a file path to the SQLite database file.
// If the directory doesn't exist, it will be created.
func NewSQLiteStore(opts ...Option) (*SQLiteStore, error) {
	var cfg Opts
	for _, opt := range opts {
		opt(&cfg)
	}
	slog.Debug("NewSQLiteStore invoked", "DSN_set", cfg.DSN != "")

	dsn := cfg.DSN
	if dsn == "" {
		slog.Error("SQLiteStore DSN not set")
		return nil, fmt.Errorf("database DSN not set")
	}

	dir := filepath.Dir(dsn)
	if err := os.MkdirAll(dir, DefaultDirPermissions); err != nil {
		slog.Error("Failed to create database directory", "error", err, "dir", dir)
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		slog.Error("Failed to open SQLite connection", "error", err)
		return nil, err
	}

	if err := db.Ping(); err != nil {
		slog.Error("SQLite ping failed", "error", err)
		return nil, err
	}

	slog.Debug("Running SQLite migrations")
	if _, err := db.Exec(sqliteMigrations); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	slog.Debug("SQLite migrations applied successfully")

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) SaveCart(cart models.AbandonedCart) error {
	itemsJSON, err := marshalItems(cart.Items)
	if err != nil {
		return err
	}
	now := time.Now()
	_, err = s.db.Exec(
		`INSERT OR REPLACE INTO abandoned_carts (id, customer_name, email, phone, items_json, total, last_modified, last_step, email_sent, email_sent_at, recovery_token, recovered, status, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cart.ID, nilIfEmpty(cart.CustomerName), nilIfEmpty(cart.Email), nilIfEmpty(cart.Phone),
		nilIfEmpty(itemsJSON), cart.Total, cart.LastModified, nilIfEmpty(string(cart.LastStep)),
		cart.EmailSent, cart.EmailSentAt, nilIfEmpty(cart.RecoveryToken), cart.Recovered,
		nilIfEmpty(string(cart.Status)), now, now,
	)
	if err != nil {
		slog.Error("SQLiteStore.SaveCart failed", "error", err, "cartID", cart.ID)
		return fmt.Errorf("save cart %s failed: %w", cart.ID, err)
	}
	slog.Debug("SQLiteStore.SaveCart succeeded", "cartID", cart.ID)
	return nil
}

func (s *SQLiteStore) GetCart(id string) (*models.AbandonedCart, error) {
	row := s.db.QueryRow(`SELECT `+cartColumns+` FROM abandoned_carts WHERE id = ?`, id)
	c, err := scanCart(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		slog.Error("SQLiteStore.GetCart failed", "error", err, "cartID", id)
		return nil, fmt.Errorf("get cart %s failed: %w", id, err)
	}
	return &c, nil
}

func (s *SQLiteStore) ListAbandonedCarts(oldest, newest time.Time, limit int) ([]models.AbandonedCart, error) {
	rows, err := s.db.Query(
		`SELECT `+cartColumns+` FROM abandoned_carts
		 WHERE email_sent = 0 AND recovered = 0 AND last_modified >= ? AND last_modified < ?
		 ORDER BY last_modified ASC LIMIT ?`,
		oldest, newest, limit,
	)
	if err != nil {
		slog.Error("SQLiteStore.ListAbandonedCarts query failed", "error", err)
		return nil, fmt.Errorf("list abandoned carts failed: %w", err)
	}
	defer rows.Close()

	var carts []models.AbandonedCart
	for rows.Next() {
		c, err := scanCart(rows)
		if err != nil {
			slog.Error("SQLiteStore.ListAbandonedCarts scan failed", "error", err)
			return nil, fmt.Errorf("scan abandoned cart failed: %w", err)
		}
		carts = append(carts, c)
	}
	if err := rows.Err(); err != nil {
		slog.Error("SQLiteStore.ListAbandonedCarts rows iteration failed", "error", err)
		return nil, fmt.Errorf("iterate abandoned carts failed: %w", err)
	}
	slog.Debug("SQLiteStore.ListAbandonedCarts succeeded", "count", len(carts))
	return carts, nil
}

// ClaimCart is the single atomic conditional update the pipeline mutates
// through. SQLite serializes writers, so the conditional UPDATE plus
// RowsAffected gives the same one-winner guarantee as the Postgres variant.
func (s *SQLiteStore) ClaimCart(id, token string, sentAt time.Time) (bool, error) {
	result, err := s.db.Exec(
		`UPDATE abandoned_carts
		 SET email_sent = 1, email_sent_at = ?, recovery_token = ?, status = ?, updated_at = ?
		 WHERE id = ? AND email_sent = 0 AND recovered = 0`,
		sentAt, token, string(models.CartStatusRecoveryEmailSent), sentAt, id,
	)
	if err != nil {
		slog.Error("SQLiteStore.ClaimCart failed", "error", err, "cartID", id)
		return false, fmt.Errorf("claim cart %s failed: %w", id, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim cart %s rows affected failed: %w", id, err)
	}
	claimed := n == 1
	slog.Debug("SQLiteStore.ClaimCart", "cartID", id, "claimed", claimed)
	return claimed, nil
}

func (s *SQLiteStore) RecoverCartByToken(token string) (*models.AbandonedCart, error) {
	result, err := s.db.Exec(
		`UPDATE abandoned_carts SET recovered = 1, status = ?, updated_at = ? WHERE recovery_token = ?`,
		string(models.CartStatusRecovered), time.Now(), token,
	)
	if err != nil {
		slog.Error("SQLiteStore.RecoverCartByToken failed", "error", err)
		return nil, fmt.Errorf("recover cart by token failed: %w", err)
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		slog.Debug("SQLiteStore.RecoverCartByToken: unknown token")
		return nil, nil
	}

	row := s.db.QueryRow(`SELECT `+cartColumns+` FROM abandoned_carts WHERE recovery_token = ?`, token)
	c, err := scanCart(row)
	if err != nil {
		return nil, fmt.Errorf("load recovered cart failed: %w", err)
	}
	slog.Info("SQLiteStore.RecoverCartByToken: cart recovered", "cartID", c.ID)
	return &c, nil
}

func (s *SQLiteStore) SaveRunReport(report models.RunReport) error {
	detailsJSON, err := marshalDetails(report.Details)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(
		`INSERT INTO recovery_runs (id, success, processed, sent, skipped, failed, details_json, started_at, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.RunID, report.Success, report.Processed, report.Sent, report.Skipped, report.Failed,
		nilIfEmpty(detailsJSON), report.StartedAt, report.DurationMS,
	)
	if err != nil {
		slog.Error("SQLiteStore.SaveRunReport failed", "error", err, "runID", report.RunID)
		return fmt.Errorf("save run report %s failed: %w", report.RunID, err)
	}
	slog.Debug("SQLiteStore.SaveRunReport succeeded", "runID", report.RunID)
	return nil
}

func (s *SQLiteStore) ListRunReports(limit int) ([]models.RunReport, error) {
	rows, err := s.db.Query(
		`SELECT id, success, processed, sent, skipped, failed, details_json, started_at, duration_ms
		 FROM recovery_runs ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		slog.Error("SQLiteStore.ListRunReports query failed", "error", err)
		return nil, fmt.Errorf("list run reports failed: %w", err)
	}
	defer rows.Close()

	var reports []models.RunReport
	for rows.Next() {
		r, err := scanRunReport(rows)
		if err != nil {
			slog.Error("SQLiteStore.ListRunReports scan failed", "error", err)
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
func (s *SQLiteStore) Ping() error {
	return s.db.Ping()
}

// Close closes the SQLite database connection.
func (s *SQLiteStore) Close() error {
	slog.Debug("Closing SQLite database connection")
	return s.db.Close()
}
