package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/BTreeMap/CartRescue/internal/models"
)

// nilIfEmpty returns nil if s is empty, otherwise returns s.
// Used for nullable database columns.
func nilIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// marshalItems encodes cart line items for the items_json column.
func marshalItems(items []models.CartItem) (string, error) {
	if len(items) == 0 {
		return "", nil
	}
	b, err := json.Marshal(items)
	if err != nil {
		return "", fmt.Errorf("marshal cart items failed: %w", err)
	}
	return string(b), nil
}

// marshalDetails encodes run report detail lines for the details_json column.
func marshalDetails(details []models.CartResult) (string, error) {
	if len(details) == 0 {
		return "", nil
	}
	b, err := json.Marshal(details)
	if err != nil {
		return "", fmt.Errorf("marshal run details failed: %w", err)
	}
	return string(b), nil
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanCart scans an AbandonedCart from a cart row. Column order must match
// cartColumns.
func scanCart(row rowScanner) (models.AbandonedCart, error) {
	var c models.AbandonedCart
	var customerName, email, phone, itemsJSON, lastStep, recoveryToken, status sql.NullString
	var emailSentAt sql.NullTime

	err := row.Scan(
		&c.ID, &customerName, &email, &phone, &itemsJSON, &c.Total,
		&c.LastModified, &lastStep, &c.EmailSent, &emailSentAt,
		&recoveryToken, &c.Recovered, &status,
	)
	if err != nil {
		return c, err
	}

	c.CustomerName = customerName.String
	c.Email = email.String
	c.Phone = phone.String
	c.LastStep = models.CheckoutStep(lastStep.String)
	c.RecoveryToken = recoveryToken.String
	c.Status = models.CartStatus(status.String)
	if emailSentAt.Valid {
		c.EmailSentAt = &emailSentAt.Time
	}
	if itemsJSON.String != "" {
		if err := json.Unmarshal([]byte(itemsJSON.String), &c.Items); err != nil {
			return c, fmt.Errorf("unmarshal cart items for %s failed: %w", c.ID, err)
		}
	}
	return c, nil
}

// scanRunReport scans a RunReport from a recovery_runs row.
func scanRunReport(row rowScanner) (models.RunReport, error) {
	var r models.RunReport
	var detailsJSON sql.NullString

	err := row.Scan(
		&r.RunID, &r.Success, &r.Processed, &r.Sent, &r.Skipped, &r.Failed,
		&detailsJSON, &r.StartedAt, &r.DurationMS,
	)
	if err != nil {
		return r, err
	}
	if detailsJSON.String != "" {
		if err := json.Unmarshal([]byte(detailsJSON.String), &r.Details); err != nil {
			return r, fmt.Errorf("unmarshal run details for %s failed: %w", r.RunID, err)
		}
	}
	return r, nil
}

// cartColumns is the column list shared by cart queries in both SQL backends.
const cartColumns = `id, customer_name, email, phone, items_json, total, last_modified, last_step, email_sent, email_sent_at, recovery_token, recovered, status`
