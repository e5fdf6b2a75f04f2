// services/presence.go
package services

import (
	"context"
	"errors"
	"fmt"

	"pong-match-system/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrUnknownUser = errors.New("unknown user")

// PresenceService persists the presence state of every known user in the
// connected_users table. It does not check transitions; the lobby does.
type PresenceService struct {
	DB *gorm.DB
}

func NewPresenceService(db *gorm.DB) *PresenceService {
	return &PresenceService{DB: db}
}

// GetState returns StateUnknown with a nil error when the user has no row.
func (s *PresenceService) GetState(ctx context.Context, userID int64) (models.PresenceState, error) {
	var u models.ConnectedUser
	err := s.DB.WithContext(ctx).Select("user_id", "state").Where("user_id = ?", userID).First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.StateUnknown, nil
	}
	if err != nil {
		return models.StateUnknown, fmt.Errorf("get presence %d: %w", userID, err)
	}
	return u.State, nil
}

func (s *PresenceService) SetState(ctx context.Context, userID int64, state models.PresenceState) error {
	if !state.Valid() {
		return fmt.Errorf("set presence %d: invalid state %q", userID, state)
	}
	res := s.DB.WithContext(ctx).Model(&models.ConnectedUser{}).
		Where("user_id = ?", userID).
		Update("state", state)
	if res.Error != nil {
		return fmt.Errorf("set presence %d: %w", userID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrUnknownUser
	}
	return nil
}

// ResetAll marks every user offline. Run once at startup, before any
// connection is accepted, so stale states from a previous process are cleared.
func (s *PresenceService) ResetAll(ctx context.Context) error {
	err := s.DB.WithContext(ctx).Model(&models.ConnectedUser{}).
		Where("state <> ?", models.StateOffline).
		Update("state", models.StateOffline).Error
	if err != nil {
		return fmt.Errorf("reset presence: %w", err)
	}
	return nil
}

// RecordUser registers a user as offline. Recording a known user is a no-op.
func (s *PresenceService) RecordUser(ctx context.Context, userID int64) error {
	u := models.ConnectedUser{UserID: userID, State: models.StateOffline}
	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&u).Error
	if err != nil {
		return fmt.Errorf("record user %d: %w", userID, err)
	}
	return nil
}

// CountByState counts stored users in state.
func (s *PresenceService) CountByState(ctx context.Context, state models.PresenceState) (int64, error) {
	var n int64
	err := s.DB.WithContext(ctx).Model(&models.ConnectedUser{}).Where("state = ?", state).Count(&n).Error
	return n, err
}
