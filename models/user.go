package models

import (
	"time"
)

// ConnectedUser is the local presence slot for a user identity.
// Rows are created by the onboarding sync worker (or lazily on first connect)
// and are never deleted while the identity exists.
type ConnectedUser struct {
	UserID    int64         `gorm:"primaryKey;autoIncrement:false" json:"user_id"`
	State     PresenceState `gorm:"type:varchar(16);not null;default:'offline';index" json:"state"`
	CreatedAt time.Time     `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time     `json:"updated_at" gorm:"autoUpdateTime"`
}

func (ConnectedUser) TableName() string {
	return "connected_users"
}
