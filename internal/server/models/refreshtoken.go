package models

import "time"

// RefreshToken is a stored opaque credential. The token value carries no
// claims; it is meaningless without this row.
type RefreshToken struct {
	ID        string
	UserID    string
	Token     string
	Expires   time.Time
	CreatedAt time.Time
}
