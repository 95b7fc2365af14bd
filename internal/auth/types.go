package auth

import "time"

type User struct {
	ID           string `json:"id"`
	Email        string `json:"email"`
	PasswordHash string `json:"password"`
}

// Identity is the public view of a user. It never carries the digest.
type Identity struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

func (u User) Identity() Identity {
	return Identity{ID: u.ID, Email: u.Email}
}

type Credentials struct {
	Email    string
	Password string
}

type sessionEntry struct {
	UserID    string
	ExpiresAt time.Time
}
