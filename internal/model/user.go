package model

import "time"

// Roles recognised by the role middleware.
const (
	RoleStudent = "STUDENT"
	RoleAdmin   = "ADMIN"
)

// User represents an application user record as stored in the `users`
// table, with skills loaded from `user_skills`.
//
// Fields:
//
//	ID           – primary key identifier of the user.
//	Name         – display name shown to other students.
//	Email        – unique email address.
//	PasswordHash – bcrypt hashed password.
//	Role         – STUDENT or ADMIN.
//	Skills       – declared skills, used by the directory search.
//	CreatedAt    – timestamp of creation.
type User struct {
	ID           uint64    // users.id
	Name         string    // users.name
	Email        string    // users.email
	PasswordHash string    // users.password_hash
	Role         string    // users.role
	Skills       []string  // user_skills.skill
	CreatedAt    time.Time // users.created_at
}

// Ref returns the reference used on bookings and deltas.
func (u User) Ref() UserRef { return UserRef{ID: u.ID, Name: u.Name} }

// UserRef is the identity resolved from a bearer token.
type UserRef struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

// RefreshToken models an entry in the `refresh_tokens` table.  The plain
// token is not stored; only its SHA‑256 hash.
//
// Fields:
//
//	ID        – primary key identifier.
//	UserID    – owner of the token.
//	TokenHash – SHA‑256 hex digest of the token value.
//	ExpiresAt – expiration timestamp of the token.
//	RevokedAt – when the token was revoked (null if still active).
type RefreshToken struct {
	ID        uint64     // refresh_tokens.id
	UserID    uint64     // refresh_tokens.user_id
	TokenHash string     // refresh_tokens.token_hash
	ExpiresAt time.Time  // refresh_tokens.expires_at
	RevokedAt *time.Time // refresh_tokens.revoked_at (nullable)
}
