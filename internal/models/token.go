package models

import "time"

// ResponseToken is a single-use capability handed to one building for one
// request. Possession of the secret is the only credential the response form
// requires.
type ResponseToken struct {
	ID         string     `db:"id" json:"id"`
	RequestID  string     `db:"request_id" json:"request_id"`
	BuildingID string     `db:"building_id" json:"building_id"`
	Secret     string     `db:"secret" json:"-"`
	IssuedAt   time.Time  `db:"issued_at" json:"issued_at"`
	ExpiresAt  time.Time  `db:"expires_at" json:"expires_at"`
	Used       bool       `db:"used" json:"used"`
	UsedAt     *time.Time `db:"used_at" json:"used_at,omitempty"`
}

// ExpiredAt reports whether the token deadline has passed at the given time.
func (t ResponseToken) ExpiredAt(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
