// internal/model/subscriber.go
package model

import "time"

type SubscriberStatus string

const (
	SubscriberSubscribed   SubscriberStatus = "subscribed"
	SubscriberUnsubscribed SubscriberStatus = "unsubscribed"
)

type Subscriber struct {
	ID        int               `db:"id" json:"id"`
	Email     string            `db:"email" json:"email"`
	FirstName string            `db:"first_name" json:"first_name"`
	LastName  string            `db:"last_name" json:"last_name"`
	Status    SubscriberStatus  `db:"status" json:"status"`
	Attribs   map[string]string `db:"attribs" json:"attribs,omitempty"`
	CreatedAt time.Time         `db:"created_at" json:"created_at"`
}

// MergeFields flattens the subscriber into template placeholder values.
func (s *Subscriber) MergeFields() map[string]string {
	fields := map[string]string{
		"email":      s.Email,
		"first_name": s.FirstName,
		"last_name":  s.LastName,
	}
	for k, v := range s.Attribs {
		fields[k] = v
	}
	return fields
}
