package models

import (
	"time"

	"gorm.io/gorm"
)

// User represents a Novylist account. SubscriptionTier drives every AI
// governance decision made for this user.
type User struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	Username         string         `gorm:"uniqueIndex;size:100;not null" json:"username"`
	Email            string         `gorm:"uniqueIndex;size:255" json:"email"`
	Password         string         `gorm:"size:255" json:"-"` // bcrypt hash
	Role             string         `gorm:"size:50;default:user" json:"role"` // admin, user
	SubscriptionTier string         `gorm:"size:20;default:free" json:"subscription_tier"`
	IsActive         bool           `gorm:"default:true" json:"is_active"`
	LastLogin        *time.Time     `json:"last_login"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `gorm:"index" json:"-"`
}

func (User) TableName() string { return "users" }
