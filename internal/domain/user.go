package domain

import "time"

// UserRole enumerates supported roles.
type UserRole string

const (
	UserRoleUser  UserRole = "user"
	UserRoleAdmin UserRole = "admin"
)

// DefaultDollarToCreditPct is the conversion rate assigned to users created
// implicitly (first login, or a purchase arriving before the first login).
const DefaultDollarToCreditPct = 100

// User represents an account within the platform. Credits is a cached
// balance derived from the credit ledger; the accounting service keeps the
// two in sync inside a single transaction.
type User struct {
	ID                string
	Email             string
	Name              string
	Picture           string
	Locale            string
	Role              UserRole
	Credits           int64
	DollarToCreditPct int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// IsAdmin reports whether the user may access admin routes.
func (u User) IsAdmin() bool {
	return u.Role == UserRoleAdmin
}

// UserSummary is a denormalized read-model row upserted after every
// accounting call. It has no independent authority.
type UserSummary struct {
	UserID            string
	Email             string
	Name              string
	TotalCredits      int64
	DollarToCreditPct int
	UpdatedAt         time.Time
}
