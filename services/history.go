package services

import (
	"context"
	"errors"
	"fmt"

	"pong-match-system/game"
	"pong-match-system/models"
	"pong-match-system/room"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const MaxHistoryLimit = 20

// MatchRecorder receives every finished match.
type MatchRecorder interface {
	RecordMatch(ctx context.Context, res room.Result) error
}

// MatchRecorders fans a result out to several recorders. Every recorder is
// called even when an earlier one fails.
type MatchRecorders []MatchRecorder

func (m MatchRecorders) RecordMatch(ctx context.Context, res room.Result) error {
	var errs []error
	for _, r := range m {
		if r == nil {
			continue
		}
		if err := r.RecordMatch(ctx, res); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type HistoryService struct {
	DB           *gorm.DB
	DefaultLimit int
}

func NewHistoryService(db *gorm.DB, defaultLimit int) *HistoryService {
	if defaultLimit <= 0 {
		defaultLimit = 3
	}
	return &HistoryService{DB: db, DefaultLimit: defaultLimit}
}

// RecordMatch writes the two symmetric rows of a finished match in one
// transaction. Scores are the per-side counters as they stood at the end.
func (s *HistoryService) RecordMatch(ctx context.Context, res room.Result) error {
	rows := make([]models.GameHistory, 0, 2)
	for side := game.Left; side <= game.Right; side++ {
		rows = append(rows, models.GameHistory{
			ID:          uuid.NewString(),
			SessionID:   res.SessionID,
			PlayerID:    res.Players[side],
			RivalID:     res.Players[side.Opponent()],
			WinnerID:    res.WinnerID,
			PlayerScore: res.Score.Of(side),
			RivalScore:  res.Score.Of(side.Opponent()),
			Forfeit:     res.Forfeit,
			FinishedAt:  res.FinishedAt,
		})
	}

	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range rows {
			if err := tx.Create(&rows[i]).Error; err != nil {
				return fmt.Errorf("record match %s: %w", res.SessionID, err)
			}
		}
		return nil
	})
}

// Recent returns the user's own most recent records, newest first.
// limit <= 0 means DefaultLimit; it is capped at MaxHistoryLimit.
func (s *HistoryService) Recent(ctx context.Context, userID int64, limit int) ([]models.GameHistory, error) {
	if limit <= 0 {
		limit = s.DefaultLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}
	var out []models.GameHistory
	err := s.DB.WithContext(ctx).
		Where("player_id = ?", userID).
		Order("finished_at DESC").
		Order("created_at DESC").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("history for %d: %w", userID, err)
	}
	return out, nil
}
