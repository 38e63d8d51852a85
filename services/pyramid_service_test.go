package services

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/Dosada05/pyramid-ladder/models"
	"github.com/Dosada05/pyramid-ladder/pyramid"
	"github.com/Dosada05/pyramid-ladder/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetPyramid(t *testing.T) {
	env := newLadderEnv(t, 3)
	second := env.addTeam(2, 1)
	first := env.addTeam(1, 1)

	view, err := env.pyramids.GetPyramid(context.Background(), env.pyramidID)
	require.NoError(t, err)
	assert.Equal(t, "Liga", view.Name)
	assert.Len(t, view.Positions, 2)
	assert.Len(t, view.Teams, 2)
	require.Len(t, view.Standings, 2)
	assert.Equal(t, first, view.Standings[0].TeamID)
	assert.Equal(t, second, view.Standings[1].TeamID)

	_, err = env.pyramids.GetPyramid(context.Background(), 404)
	assert.ErrorIs(t, err, ErrPyramidNotFound)
}

func TestReconstructAtReplaysLedger(t *testing.T) {
	ctx := context.Background()
	env := newLadderEnv(t, 3)
	a := env.addTeam(0, 0)
	b := env.addTeam(0, 0)

	_, err := env.placements.PlaceTeam(ctx, env.pyramidID, a, 1, 1)
	require.NoError(t, err)
	_, err = env.placements.PlaceTeam(ctx, env.pyramidID, b, 2, 1)
	require.NoError(t, err)
	seeded := env.now

	env.now = env.now.Add(time.Hour)
	id := env.seedMatch(b, a, models.MatchStatusAccepted, env.now)
	_, err = env.matches.Complete(ctx, userOf(b), id, b)
	require.NoError(t, err)

	before, err := env.pyramids.ReconstructAt(ctx, env.pyramidID, seeded)
	require.NoError(t, err)
	assert.Equal(t, []pyramid.Standing{
		{TeamID: a, Cell: pyramid.Cell{Row: 1, Col: 1}},
		{TeamID: b, Cell: pyramid.Cell{Row: 2, Col: 1}},
	}, before)

	after, err := env.pyramids.ReconstructAt(ctx, env.pyramidID, env.now)
	require.NoError(t, err)
	assert.Equal(t, []pyramid.Standing{
		{TeamID: b, Cell: pyramid.Cell{Row: 1, Col: 1}},
		{TeamID: a, Cell: pyramid.Cell{Row: 2, Col: 1}},
	}, after)

	onlyA, err := env.pyramids.ListHistory(ctx, env.pyramidID, &a, 0)
	require.NoError(t, err)
	assert.Len(t, onlyA, 2)

	_, err = env.pyramids.ReconstructAt(ctx, 404, env.now)
	assert.ErrorIs(t, err, ErrPyramidNotFound)
}

func TestListHistoryLimitKeepsNewest(t *testing.T) {
	ctx := context.Background()
	env := newLadderEnv(t, 4)
	team := env.addTeam(0, 0)

	for _, row := range []int{4, 3, 2} {
		_, err := env.placements.PlaceTeam(ctx, env.pyramidID, team, row, 1)
		require.NoError(t, err)
		env.now = env.now.Add(time.Hour)
	}

	latest, err := env.pyramids.ListHistory(ctx, env.pyramidID, nil, 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, 2, *latest[0].NewRow)
	assert.Equal(t, 3, *latest[1].NewRow)

	all, err := env.pyramids.ListHistory(ctx, env.pyramidID, nil, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, 4, *all[0].NewRow)
}

type memUploader struct {
	key         string
	contentType string
	body        []byte
	err         error
}

func (u *memUploader) Upload(_ context.Context, key, contentType string, r io.Reader) (*storage.UploadResult, error) {
	if u.err != nil {
		return nil, u.err
	}
	u.key, u.contentType = key, contentType
	u.body, _ = io.ReadAll(r)
	return &storage.UploadResult{Key: key, Location: "https://cdn.example.com/" + key}, nil
}

func (u *memUploader) Delete(context.Context, string) error { return nil }

func (u *memUploader) GetPublicURL(key string) string { return "https://cdn.example.com/" + key }

func TestExportSnapshot(t *testing.T) {
	ctx := context.Background()
	env := newLadderEnv(t, 3)
	team := env.addTeam(0, 0)
	_, err := env.placements.PlaceTeam(ctx, env.pyramidID, team, 1, 1)
	require.NoError(t, err)

	uploader := &memUploader{}
	svc := NewSnapshotService(env.pyramids, uploader, slog.New(slog.DiscardHandler))
	out, err := svc.ExportSnapshot(ctx, env.pyramidID, env.now)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(out.Key, "pyramids/1/snapshots/20250312T120000Z-"))
	assert.Equal(t, "https://cdn.example.com/"+out.Key, out.URL)
	assert.Equal(t, "application/json", uploader.contentType)

	var snap Snapshot
	require.NoError(t, json.Unmarshal(uploader.body, &snap))
	assert.Equal(t, "Liga", snap.Name)
	require.Len(t, snap.Standings, 1)
	assert.Equal(t, team, snap.Standings[0].TeamID)
}

func TestExportSnapshotFailures(t *testing.T) {
	ctx := context.Background()
	env := newLadderEnv(t, 3)

	_, err := NewSnapshotService(env.pyramids, nil, slog.New(slog.DiscardHandler)).ExportSnapshot(ctx, env.pyramidID, env.now)
	assert.ErrorIs(t, err, ErrSnapshotsDisabled)

	broken := &memUploader{err: errors.New("bucket unavailable")}
	_, err = NewSnapshotService(env.pyramids, broken, slog.New(slog.DiscardHandler)).ExportSnapshot(ctx, env.pyramidID, env.now)
	assert.Equal(t, KindStorageFailure, KindOf(err))
}
