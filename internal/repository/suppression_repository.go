package repository

import (
	"database/sql"
	"strings"

	"github.com/lib/pq"

	"github.com/sendhawk/bulkmail-backend/internal/model"
)

// SuppressionRepositoryInterface backs the suppression gate. Lookups are
// case-insensitive on the address.
type SuppressionRepositoryInterface interface {
	IsSuppressed(email string) (bool, error)
	Add(entry *model.SuppressionEntry) error
	Remove(email string) error
	List(offset, limit int) ([]*model.SuppressionEntry, int, error)
}

type SuppressionRepository struct {
	DB *sql.DB
}

func (r *SuppressionRepository) IsSuppressed(email string) (bool, error) {
	var exists bool
	query := `SELECT EXISTS (SELECT 1 FROM suppressions WHERE email = $1)`
	if err := r.DB.QueryRow(query, normalizeEmail(email)).Scan(&exists); err != nil {
		return false, err
	}
	return exists, nil
}

// Add inserts a suppression entry. Re-suppressing an already blocked address
// is a no-op, not an error.
func (r *SuppressionRepository) Add(entry *model.SuppressionEntry) error {
	query := `
		INSERT INTO suppressions (email, reason, source, created_at)
		VALUES ($1, $2, $3, NOW())
		RETURNING id, created_at
	`
	err := r.DB.QueryRow(query, normalizeEmail(entry.Email), entry.Reason, entry.Source).
		Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil
		}
		return err
	}
	return nil
}

// Remove reinstates an address (manual un-suppression).
func (r *SuppressionRepository) Remove(email string) error {
	_, err := r.DB.Exec(`DELETE FROM suppressions WHERE email = $1`, normalizeEmail(email))
	return err
}

func (r *SuppressionRepository) List(offset, limit int) ([]*model.SuppressionEntry, int, error) {
	query := `
		SELECT id, email, reason, source, created_at
		FROM suppressions
		ORDER BY id DESC LIMIT $1 OFFSET $2
	`
	rows, err := r.DB.Query(query, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	entries := []*model.SuppressionEntry{}
	for rows.Next() {
		var e model.SuppressionEntry
		if err := rows.Scan(&e.ID, &e.Email, &e.Reason, &e.Source, &e.CreatedAt); err != nil {
			return nil, 0, err
		}
		entries = append(entries, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	var total int
	if err := r.DB.QueryRow(`SELECT COUNT(*) FROM suppressions`).Scan(&total); err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

var _ SuppressionRepositoryInterface = (*SuppressionRepository)(nil)
