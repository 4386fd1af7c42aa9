package model

import (
	"fmt"
	"time"
)

// User is a locally registered account.
type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"size:64;not null;uniqueIndex" json:"username"`
	Email        string    `gorm:"size:128;not null;uniqueIndex" json:"email"`
	PasswordHash string    `gorm:"size:255;not null" json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Identity is the knowledge-base key of a local account.
func (u *User) Identity() string {
	return LocalIdentity(u.ID)
}

func LocalIdentity(id uint) string {
	return fmt.Sprintf("local_%d", id)
}
