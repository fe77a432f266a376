// internal/model/suppression.go
package model

import "time"

// SuppressionReason enumerates why an email address is blocked.
type SuppressionReason string

const (
	ReasonUnsubscribed SuppressionReason = "unsubscribed"
	ReasonEmailInvalid SuppressionReason = "email_invalid"
)

// SuppressionEntry is a standing block on sending to one address.
type SuppressionEntry struct {
	ID        int               `db:"id" json:"id"`
	Email     string            `db:"email" json:"email"`
	Reason    SuppressionReason `db:"reason" json:"reason"`
	Source    string            `db:"source" json:"source,omitempty"`
	CreatedAt time.Time         `db:"created_at" json:"created_at"`
}
