package models

import "time"

// User is a phone-number-keyed directory entry. Phone is the unique lookup
// key; profile fields arrive after the number is verified.
type User struct {
	UserBucket    int        `db:"user_bucket" json:"-"`
	UserID        string     `db:"user_id" json:"user_id"`
	Phone         string     `db:"phone" json:"phone"`
	PhoneVerified bool       `db:"phone_verified" json:"phone_verified"`
	FirstName     string     `db:"first_name" json:"first_name"`
	LastName      string     `db:"last_name" json:"last_name"`
	Email         string     `db:"email" json:"email"`
	EmailVerified bool       `db:"email_verified" json:"email_verified"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     *time.Time `db:"updated_at" json:"-"`
}

// PhoneChallenge is the single live OTP challenge for a phone number.
// Reissuing overwrites it in place: new code, new issued_at, used reset.
// Only the code's argon2 hash is stored.
type PhoneChallenge struct {
	Phone     string    `db:"phone"`
	CodeHash  string    `db:"code_hash"`
	CodeSalt  string    `db:"code_salt"`
	Algorithm string    `db:"hash_algorithm"`
	IssuedAt  time.Time `db:"issued_at"`
	Used      bool      `db:"used"`
}

// Expired reports whether the challenge has outlived the expiry window at
// the given instant.
func (c *PhoneChallenge) Expired(now time.Time, expiryWindow time.Duration) bool {
	return now.Sub(c.IssuedAt) > expiryWindow
}

// SecurityEvent is the audit record published to the event stream.
type SecurityEvent struct {
	EventID    string    `json:"event_id"`
	EventType  string    `json:"event_type"`
	EventTime  time.Time `json:"event_time"`
	Phone      string    `json:"phone,omitempty"`
	ClientAddr string    `json:"client_addr,omitempty"`
	Operation  string    `json:"operation,omitempty"`
	Details    string    `json:"details,omitempty"`
}
