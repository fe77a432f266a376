package repository

import (
	"database/sql"
	"encoding/json"

	"github.com/sendhawk/bulkmail-backend/internal/model"
)

// SubscriberRepositoryInterface is the audience-resolver boundary: the queue
// only ever consumes id, email and merge fields from it.
type SubscriberRepositoryInterface interface {
	GetByID(id int) (*model.Subscriber, error)
	// ListSubscribed returns the active audience for a campaign send.
	ListSubscribed() ([]model.Subscriber, error)
	Create(s *model.Subscriber) error
}

type SubscriberRepository struct {
	DB *sql.DB
}

func scanSubscriber(row interface{ Scan(...any) error }) (*model.Subscriber, error) {
	var s model.Subscriber
	var attribs []byte
	err := row.Scan(&s.ID, &s.Email, &s.FirstName, &s.LastName, &s.Status, &attribs, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(attribs) > 0 {
		if err := json.Unmarshal(attribs, &s.Attribs); err != nil {
			return nil, err
		}
	}
	return &s, nil
}

func (r *SubscriberRepository) GetByID(id int) (*model.Subscriber, error) {
	query := `
		SELECT id, email, first_name, last_name, status, attribs, created_at
		FROM subscribers
		WHERE id = $1
	`
	s, err := scanSubscriber(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // not found
		}
		return nil, err
	}
	return s, nil
}

func (r *SubscriberRepository) ListSubscribed() ([]model.Subscriber, error) {
	query := `
		SELECT id, email, first_name, last_name, status, attribs, created_at
		FROM subscribers
		WHERE status = $1
		ORDER BY id
	`
	rows, err := r.DB.Query(query, model.SubscriberSubscribed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	subscribers := []model.Subscriber{}
	for rows.Next() {
		s, err := scanSubscriber(rows)
		if err != nil {
			return nil, err
		}
		subscribers = append(subscribers, *s)
	}
	return subscribers, rows.Err()
}

func (r *SubscriberRepository) Create(s *model.Subscriber) error {
	if s.Status == "" {
		s.Status = model.SubscriberSubscribed
	}
	attribs, err := json.Marshal(s.Attribs)
	if err != nil {
		return err
	}
	if s.Attribs == nil {
		attribs = []byte("{}")
	}
	query := `
		INSERT INTO subscribers (email, first_name, last_name, status, attribs, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, created_at
	`
	return r.DB.QueryRow(query, s.Email, s.FirstName, s.LastName, s.Status, attribs).
		Scan(&s.ID, &s.CreatedAt)
}

var _ SubscriberRepositoryInterface = (*SubscriberRepository)(nil)
