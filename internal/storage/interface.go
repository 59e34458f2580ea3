package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/socialguard/mentions-monitor/internal/models"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// MentionStore is the persistence sink the monitoring engine writes to
type MentionStore interface {
	// InsertMentions persists mentions for a case and returns the ones that
	// were actually inserted. Rows already present for the same
	// (case_id, platform, external_id) are skipped.
	InsertMentions(ctx context.Context, caseID string, mentions []models.Mention) ([]models.Mention, error)
	// FindExistingExternalIDs returns the subset of keys already stored for the case
	FindExistingExternalIDs(ctx context.Context, caseID string, keys []models.MentionKey) ([]models.MentionKey, error)
	LoadActiveCases(ctx context.Context) ([]models.CaseRecord, error)
	InsertAlerts(ctx context.Context, alerts []models.Alert) error
}

// Archive defines the contract for blob archive operations
type Archive interface {
	Store(ctx context.Context, name string, data []byte) error
	Retrieve(ctx context.Context, name string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, name string) error
}

const archiveTimeLayout = "2006-01-02-15-04-05.000"

// ArchivePrefix is the blob prefix every batch of a case is stored under
func ArchivePrefix(caseID string) string {
	return "mentions/" + caseID + "/"
}

// ArchivePath is the blob name a batch of mentions is archived under
func ArchivePath(caseID string, at time.Time) string {
	return ArchivePrefix(caseID) + at.UTC().Format(archiveTimeLayout) + ".json"
}

// ArchiveTime recovers the archive time from a name built by ArchivePath
func ArchiveTime(name string) (time.Time, error) {
	base := strings.TrimSuffix(path.Base(name), ".json")
	t, err := time.ParseInLocation(archiveTimeLayout, base, time.UTC)
	if err != nil {
		return time.Time{}, fmt.Errorf("blob %s is not an archived batch: %w", name, err)
	}
	return t, nil
}

// PruneArchive deletes the batches of a case archived before cutoff and
// returns how many were removed. Blobs with foreign names are left alone.
func PruneArchive(ctx context.Context, archive Archive, caseID string, cutoff time.Time) (int, error) {
	names, err := archive.List(ctx, ArchivePrefix(caseID))
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, name := range names {
		at, err := ArchiveTime(name)
		if err != nil {
			logrus.WithField("blob", name).Debug("Skipping blob outside the archive layout")
			continue
		}
		if !at.Before(cutoff) {
			continue
		}
		if err := archive.Delete(ctx, name); err != nil {
			return removed, err
		}
		removed++
	}
	return removed, nil
}
