package models

import "time"

// Subscription is the set of email addresses receiving digests for one
// client application.
type Subscription struct {
	ClientID    string    `db:"client_id"  json:"client_id"`
	Subscribers []string  `db:"-"          json:"subscribers"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// Has reports whether email is subscribed.
func (s *Subscription) Has(email string) bool {
	for _, e := range s.Subscribers {
		if e == email {
			return true
		}
	}
	return false
}
