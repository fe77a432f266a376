package repository

import (
	"database/sql"
	"fmt"
	"time"

	appErrors "github.com/sendhawk/bulkmail-backend/internal/errors"
	"github.com/sendhawk/bulkmail-backend/internal/model"
)

type CampaignRepositoryInterface interface {
	Create(c *model.Campaign) error
	Update(c *model.Campaign) error
	GetByID(id int) (*model.Campaign, error)
	ListCampaigns(offset, limit int, status string) ([]*model.Campaign, int, error)

	UpdateStatus(campaignID int, status model.CampaignStatus) error
	// TransitionStatus is a conditional status flip; it reports whether the
	// row was actually in `from` and got moved.
	TransitionStatus(campaignID int, from, to model.CampaignStatus) (bool, error)
	Schedule(campaignID int, at time.Time) error

	// DueScheduled lists scheduled campaigns whose time has arrived.
	DueScheduled(now time.Time) ([]*model.Campaign, error)
	ListByStatus(status model.CampaignStatus) ([]*model.Campaign, error)
}

type CampaignRepository struct {
	DB *sql.DB
}

const campaignColumns = `id, name, from_email, from_name, subject, template_html,
	ab_enabled, split_ratio, subject_b, template_html_b, status, scheduled_at, created_at, updated_at`

func scanCampaign(row interface{ Scan(...any) error }) (*model.Campaign, error) {
	var c model.Campaign
	err := row.Scan(
		&c.ID, &c.Name, &c.FromEmail, &c.FromName, &c.Subject, &c.TemplateHTML,
		&c.ABEnabled, &c.SplitRatio, &c.SubjectB, &c.TemplateHTMLB,
		&c.Status, &c.ScheduledAt, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// ====================== Campaign CRUD ======================

func (r *CampaignRepository) Create(c *model.Campaign) error {
	c.CreatedAt = time.Now()
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	query := `
		INSERT INTO campaigns
			(name, from_email, from_name, subject, template_html, ab_enabled, split_ratio,
			 subject_b, template_html_b, status, scheduled_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id
	`
	return r.DB.QueryRow(query,
		c.Name, c.FromEmail, c.FromName, c.Subject, c.TemplateHTML,
		c.ABEnabled, c.SplitRatio, c.SubjectB, c.TemplateHTMLB,
		c.Status, c.ScheduledAt, c.CreatedAt,
	).Scan(&c.ID)
}

// Update rewrites the mutable content fields. Only draft campaigns should be
// edited; the service enforces that before calling here.
func (r *CampaignRepository) Update(c *model.Campaign) error {
	query := `
		UPDATE campaigns
		SET name=$1, from_email=$2, from_name=$3, subject=$4, template_html=$5,
		    ab_enabled=$6, split_ratio=$7, subject_b=$8, template_html_b=$9, updated_at=NOW()
		WHERE id=$10
	`
	_, err := r.DB.Exec(query,
		c.Name, c.FromEmail, c.FromName, c.Subject, c.TemplateHTML,
		c.ABEnabled, c.SplitRatio, c.SubjectB, c.TemplateHTMLB, c.ID,
	)
	return err
}

func (r *CampaignRepository) GetByID(id int) (*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE id=$1`
	c, err := scanCampaign(r.DB.QueryRow(query, id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.NewCampaignNotFound(id)
		}
		return nil, err
	}
	return c, nil
}

func (r *CampaignRepository) ListCampaigns(offset, limit int, status string) ([]*model.Campaign, int, error) {
	campaigns := []*model.Campaign{}
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE 1=1`
	args := []interface{}{}
	argPos := 1

	if status != "" {
		query += fmt.Sprintf(" AND status=$%d", argPos)
		args = append(args, status)
		argPos++
	}

	query += fmt.Sprintf(" ORDER BY id DESC LIMIT $%d OFFSET $%d", argPos, argPos+1)
	args = append(args, limit, offset)

	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, 0, err
		}
		campaigns = append(campaigns, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	countQuery := `SELECT COUNT(*) FROM campaigns WHERE 1=1`
	argsCount := []interface{}{}
	if status != "" {
		countQuery += " AND status=$1"
		argsCount = append(argsCount, status)
	}

	var total int
	if err := r.DB.QueryRow(countQuery, argsCount...).Scan(&total); err != nil {
		return nil, 0, err
	}

	return campaigns, total, nil
}

// ====================== Status ======================

func (r *CampaignRepository) UpdateStatus(campaignID int, status model.CampaignStatus) error {
	query := `UPDATE campaigns SET status=$1, updated_at=NOW() WHERE id=$2`
	_, err := r.DB.Exec(query, status, campaignID)
	return err
}

func (r *CampaignRepository) TransitionStatus(campaignID int, from, to model.CampaignStatus) (bool, error) {
	query := `UPDATE campaigns SET status=$1, updated_at=NOW() WHERE id=$2 AND status=$3`
	res, err := r.DB.Exec(query, to, campaignID, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *CampaignRepository) Schedule(campaignID int, at time.Time) error {
	query := `UPDATE campaigns SET status=$1, scheduled_at=$2, updated_at=NOW() WHERE id=$3`
	_, err := r.DB.Exec(query, model.CampaignScheduled, at, campaignID)
	return err
}

func (r *CampaignRepository) DueScheduled(now time.Time) ([]*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE status=$1 AND scheduled_at <= $2`
	return r.listWhere(query, model.CampaignScheduled, now)
}

func (r *CampaignRepository) ListByStatus(status model.CampaignStatus) ([]*model.Campaign, error) {
	query := `SELECT ` + campaignColumns + ` FROM campaigns WHERE status=$1`
	return r.listWhere(query, status)
}

func (r *CampaignRepository) listWhere(query string, args ...interface{}) ([]*model.Campaign, error) {
	rows, err := r.DB.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	campaigns := []*model.Campaign{}
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, err
		}
		campaigns = append(campaigns, c)
	}
	return campaigns, rows.Err()
}

var _ CampaignRepositoryInterface = (*CampaignRepository)(nil)
