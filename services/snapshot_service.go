package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/pyramid-ladder/pyramid"
	"github.com/Dosada05/pyramid-ladder/storage"
	"github.com/google/uuid"
)

// Snapshot is the exported form of a ladder at a point in time.
type Snapshot struct {
	PyramidID int                `json:"pyramid_id"`
	Name      string             `json:"name"`
	RowCount  int                `json:"row_count"`
	At        time.Time          `json:"at"`
	Standings []pyramid.Standing `json:"standings"`
}

type SnapshotExport struct {
	Key string `json:"key"`
	URL string `json:"url"`
}

type SnapshotService interface {
	ExportSnapshot(ctx context.Context, pyramidID int, at time.Time) (*SnapshotExport, error)
}

type snapshotService struct {
	pyramids PyramidService
	uploader storage.FileUploader
	logger   *slog.Logger
}

// NewSnapshotService builds the exporter. A nil uploader disables exports.
func NewSnapshotService(pyramids PyramidService, uploader storage.FileUploader, logger *slog.Logger) SnapshotService {
	return &snapshotService{pyramids: pyramids, uploader: uploader, logger: logger}
}

func (s *snapshotService) ExportSnapshot(ctx context.Context, pyramidID int, at time.Time) (*SnapshotExport, error) {
	if s.uploader == nil {
		return nil, ErrSnapshotsDisabled
	}
	view, err := s.pyramids.GetPyramid(ctx, pyramidID)
	if err != nil {
		return nil, err
	}
	standings, err := s.pyramids.ReconstructAt(ctx, pyramidID, at)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(Snapshot{
		PyramidID: pyramidID,
		Name:      view.Name,
		RowCount:  view.RowCount,
		At:        at.UTC(),
		Standings: standings,
	})
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}

	key := fmt.Sprintf("pyramids/%d/snapshots/%s-%s.json", pyramidID, at.UTC().Format("20060102T150405Z"), uuid.NewString())
	res, err := s.uploader.Upload(ctx, key, "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, storageFailure("upload snapshot", err)
	}
	s.logger.Info("ladder snapshot exported", slog.Int("pyramid_id", pyramidID), slog.String("key", res.Key))
	return &SnapshotExport{Key: res.Key, URL: res.Location}, nil
}
