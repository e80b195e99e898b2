// Package archive writes a JSON snapshot of every completed assessment result
// to object storage. Archiving is best-effort: it runs after the completion
// transaction commits and its failures never reach the completion caller.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"time"

	"github.com/assessment-platform/assessment-api/internal/db/models"
	"github.com/assessment-platform/assessment-api/internal/safego"
	"github.com/assessment-platform/assessment-api/internal/storage"
	"github.com/assessment-platform/assessment-api/internal/telemetry"
	"github.com/assessment-platform/assessment-api/pkg/checksum"
)

// SchemaVersion is bumped whenever the snapshot layout changes incompatibly.
const SchemaVersion = 1

const uploadTimeout = 30 * time.Second

// ErrChecksumMismatch is returned by Fetch when the stored digest does not match the body.
var ErrChecksumMismatch = errors.New("archive: snapshot checksum mismatch")

// Snapshot is the archived form of one result revision.
type Snapshot struct {
	SchemaVersion    int                           `json:"schema_version"`
	AssessmentID     string                        `json:"assessment_id"`
	SessionID        string                        `json:"session_id"`
	OrganizationID   string                        `json:"organization_id"`
	ExternalUserID   string                        `json:"external_user_id"`
	TemplateID       string                        `json:"template_id"`
	TemplateVersion  int                           `json:"template_version"`
	Strategy         string                        `json:"strategy"`
	Profile          string                        `json:"profile"`
	Scores           models.ScoreMap               `json:"scores"`
	Recommendations  []models.CareerRecommendation `json:"recommendations"`
	Responses        []models.AssessmentResponse   `json:"responses"`
	ResponsesCount   int                           `json:"responses_count"`
	RequiredCount    int                           `json:"required_count"`
	AnsweredRequired int                           `json:"answered_required"`
	CompletionRate   float64                       `json:"completion_rate"`
	Revision         int                           `json:"revision"`
	CompletedAt      time.Time                     `json:"completed_at"`
	ArchivedAt       time.Time                     `json:"archived_at"`
}

// KeyRecorder remembers where a result's snapshot lives.
type KeyRecorder interface {
	SetArchiveKey(ctx context.Context, resultID, key string) error
}

// Archiver uploads snapshots and tracks in-flight uploads for shutdown.
type Archiver struct {
	store   storage.Storage
	prefix  string
	results KeyRecorder
	group   safego.Group
	now     func() time.Time
}

// New creates an Archiver writing under prefix.
func New(store storage.Storage, prefix string, results KeyRecorder) *Archiver {
	return &Archiver{store: store, prefix: prefix, results: results, now: time.Now}
}

// Key is the object key of one result revision.
func Key(prefix, organizationID, sessionID string, revision int) string {
	return path.Join(prefix, organizationID, sessionID, fmt.Sprintf("r%d.json", revision))
}

// Store uploads snap and records its key on the result.
func (a *Archiver) Store(ctx context.Context, snap *Snapshot) (string, error) {
	snap.SchemaVersion = SchemaVersion
	snap.ArchivedAt = a.now().UTC()

	body, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshot: %w", err)
	}

	key := Key(a.prefix, snap.OrganizationID, snap.SessionID, snap.Revision)
	if _, err := a.store.Put(ctx, key, bytes.NewReader(body), "application/json"); err != nil {
		telemetry.ArchiveUploadsTotal.WithLabelValues("failure").Inc()
		return "", fmt.Errorf("failed to upload snapshot: %w", err)
	}
	telemetry.ArchiveUploadsTotal.WithLabelValues("success").Inc()

	if err := a.results.SetArchiveKey(ctx, snap.AssessmentID, key); err != nil {
		return key, err
	}
	return key, nil
}

// StoreAsync archives snap in the background with its own timeout.
func (a *Archiver) StoreAsync(snap *Snapshot) {
	a.group.Go("archive-snapshot", func() {
		ctx, cancel := context.WithTimeout(context.Background(), uploadTimeout)
		defer cancel()
		if _, err := a.Store(ctx, snap); err != nil {
			slog.Error("failed to archive result snapshot",
				"session_id", snap.SessionID, "assessment_id", snap.AssessmentID, "error", err)
		}
	})
}

// Wait blocks until background uploads finish or ctx is done.
func (a *Archiver) Wait(ctx context.Context) error {
	return a.group.Wait(ctx)
}

// Fetch reads a snapshot back, verifying it against the checksum recorded at upload.
// A missing object returns storage.ErrNotFound.
func (a *Archiver) Fetch(ctx context.Context, key string) ([]byte, error) {
	obj, err := a.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer obj.Body.Close()

	body, err := io.ReadAll(obj.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	if obj.Checksum != "" && !checksum.Verify(body, obj.Checksum) {
		return nil, ErrChecksumMismatch
	}
	return body, nil
}
