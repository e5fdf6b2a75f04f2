// workers/onboarding_worker.go
package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

const DefaultProfilesPath = "/api/v1/public/profiles"

// ProfileChange is one user from the sync service feed.
type ProfileChange struct {
	ID         string    `json:"id"`
	ExternalID string    `json:"external_id"`
	Username   string    `json:"username"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// GetUserChangesResponse is the top-level structure of the sync service response.
type GetUserChangesResponse struct {
	Users []ProfileChange `json:"users"`
}

// UserRecorder registers a user identity as offline.
type UserRecorder interface {
	RecordUser(ctx context.Context, userID int64) error
}

// OnboardingWorker polls the sync service for new or changed profiles and
// registers each identity in the presence store.
type OnboardingWorker struct {
	users        UserRecorder
	baseURL      string
	endpointPath string
	serviceToken string
	httpClient   *http.Client
	log          *zap.Logger

	mu    sync.Mutex
	since time.Time
}

func NewOnboardingWorker(users UserRecorder, syncServiceBaseURL, serviceToken string, log *zap.Logger) *OnboardingWorker {
	if log == nil {
		log = zap.NewNop()
	}
	return &OnboardingWorker{
		users:        users,
		baseURL:      syncServiceBaseURL,
		endpointPath: DefaultProfilesPath,
		serviceToken: serviceToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log.With(zap.String("component", "onboarding")),
	}
}

// Since is the cursor the next batch will be requested from.
func (w *OnboardingWorker) Since() time.Time {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.since
}

// Sync fetches one batch of changes. The cursor only moves forward when every
// user in the batch was recorded, so a failed batch is retried whole.
func (w *OnboardingWorker) Sync(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	users, err := w.fetch(ctx, w.since)
	if err != nil {
		return err
	}
	if len(users) == 0 {
		w.log.Debug("no user changes", zap.Time("since", w.since))
		return nil
	}

	latest := w.since
	var failed int
	for _, u := range users {
		id, err := strconv.ParseInt(u.ID, 10, 64)
		if err != nil || id <= 0 {
			w.log.Warn("skipping profile with non-numeric id", zap.String("id", u.ID), zap.String("username", u.Username))
			continue
		}
		if err := w.users.RecordUser(ctx, id); err != nil {
			failed++
			w.log.Warn("failed to record user", zap.Int64("user_id", id), zap.Error(err))
			continue
		}
		if u.UpdatedAt.After(latest) {
			latest = u.UpdatedAt
		}
	}
	if failed > 0 {
		return fmt.Errorf("onboarding batch: %d of %d users failed", failed, len(users))
	}

	w.since = latest
	w.log.Info("synced users", zap.Int("count", len(users)), zap.Time("since", latest))
	return nil
}

func (w *OnboardingWorker) fetch(ctx context.Context, since time.Time) ([]ProfileChange, error) {
	base, err := url.Parse(w.baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid sync service URL %q: %w", w.baseURL, err)
	}
	endpointURL := base.JoinPath(w.endpointPath)
	q := endpointURL.Query()
	q.Set("since", since.UTC().Format(time.RFC3339))
	endpointURL.RawQuery = q.Encode()
	finalURL := endpointURL.String()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, finalURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request to %s: %w", finalURL, err)
	}
	req.Header.Set("X-Service-Token", w.serviceToken)

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("HTTP request to sync service failed: %w", err)
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("sync service returned %d: %s", resp.StatusCode, body)
	}

	var response GetUserChangesResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode sync service response: %w", err)
	}
	return response.Users, nil
}
