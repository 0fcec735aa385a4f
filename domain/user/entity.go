package user

import (
	"time"
)

// User represents a registered account. Users own tasks.
type User struct {
	ID           string `gorm:"primaryKey;type:text"`
	Email        string `gorm:"uniqueIndex;not null;type:text"`
	PasswordHash string `gorm:"not null;type:text"`
	Name         string `gorm:"type:text"`
	Avatar       string `gorm:"type:text"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// TableName returns the table name for the User entity.
func (User) TableName() string {
	return "users"
}

// Public returns the fields of the user that are safe to send to clients.
func (u *User) Public() PublicUser {
	return PublicUser{
		ID:     u.ID,
		Email:  u.Email,
		Name:   u.Name,
		Avatar: u.Avatar,
	}
}

// PublicUser is the client-facing view of a User.
type PublicUser struct {
	ID     string `json:"id"`
	Email  string `json:"email"`
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// AuthResult is returned by register and login.
type AuthResult struct {
	User  PublicUser `json:"user"`
	Token string     `json:"token"`
}

// Claims represents JWT claims.
type Claims struct {
	UserID string `json:"user_id"`
	Email  string `json:"email"`
}
