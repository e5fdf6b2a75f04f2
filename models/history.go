package models

import "time"

// GameHistory records a finished match from one participant's point of view.
// Every match produces two rows with PlayerID/RivalID swapped and the same WinnerID.
type GameHistory struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)" json:"id"`
	SessionID   string    `gorm:"index;type:varchar(36);not null" json:"session_id"`
	PlayerID    int64     `gorm:"index;not null" json:"player_id"`
	RivalID     int64     `gorm:"not null" json:"rival_id"`
	WinnerID    int64     `gorm:"index;not null" json:"winner_id"`
	PlayerScore int       `json:"player_score" gorm:"default:0"`
	RivalScore  int       `json:"rival_score" gorm:"default:0"`
	Forfeit     bool      `json:"forfeit" gorm:"default:false"`
	FinishedAt  time.Time `gorm:"index;not null" json:"finished_at"`

	Timestamps
}

func (GameHistory) TableName() string {
	return "game_history"
}
