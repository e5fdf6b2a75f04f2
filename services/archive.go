package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"pong-match-system/game"
	"pong-match-system/room"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/gosimple/slug"
	"go.uber.org/zap"
)

// ObjectPutter is the subset of the S3 client the archive needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// MatchArchive uploads every finished match as a JSON document to an
// S3-compatible bucket (Cloudflare R2 in production).
type MatchArchive struct {
	Client ObjectPutter
	Bucket string
	Log    *zap.Logger
}

func NewMatchArchive(client ObjectPutter, bucket string, log *zap.Logger) *MatchArchive {
	if log == nil {
		log = zap.NewNop()
	}
	return &MatchArchive{Client: client, Bucket: bucket, Log: log.With(zap.String("component", "archive"))}
}

type archivedSide struct {
	UserID int64 `json:"user_id"`
	Score  int   `json:"score"`
}

type archivedMatch struct {
	SessionID  string       `json:"session_id"`
	Left       archivedSide `json:"left"`
	Right      archivedSide `json:"right"`
	WinnerID   int64        `json:"winner_id"`
	Forfeit    bool         `json:"forfeit"`
	FinishedAt string       `json:"finished_at"`
}

// ArchiveKey is matches/YYYY/MM/DD/<slug>.json, the slug built from the
// finish time, both players and the session id.
func ArchiveKey(res room.Result) string {
	t := res.FinishedAt.UTC()
	name := slug.Make(fmt.Sprintf("%s %d vs %d %s",
		t.Format("150405"), res.Players[game.Left], res.Players[game.Right], res.SessionID))
	return fmt.Sprintf("matches/%s/%s.json", t.Format("2006/01/02"), name)
}

func (a *MatchArchive) RecordMatch(ctx context.Context, res room.Result) error {
	doc := archivedMatch{
		SessionID:  res.SessionID,
		Left:       archivedSide{UserID: res.Players[game.Left], Score: res.Score.Left},
		Right:      archivedSide{UserID: res.Players[game.Right], Score: res.Score.Right},
		WinnerID:   res.WinnerID,
		Forfeit:    res.Forfeit,
		FinishedAt: res.FinishedAt.UTC().Format(time.RFC3339),
	}
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("archive %s: %w", res.SessionID, err)
	}

	key := ArchiveKey(res)
	_, err = a.Client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("archive %s: %w", res.SessionID, err)
	}
	a.Log.Debug("match archived", zap.String("session_id", res.SessionID), zap.String("key", key))
	return nil
}
