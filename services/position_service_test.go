package services

import (
	"context"
	"testing"

	"github.com/Dosada05/pyramid-ladder/models"
	"github.com/Dosada05/pyramid-ladder/pyramid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreatePyramid(t *testing.T) {
	ctx := context.Background()
	env := newLadderEnv(t, 3)

	p, err := env.placements.CreatePyramid(ctx, "  Primavera  ", 6)
	require.NoError(t, err)
	assert.Equal(t, "Primavera", p.Name)
	assert.True(t, p.Active)
	assert.NotZero(t, p.ID)

	_, err = env.placements.CreatePyramid(ctx, "Primavera", 4)
	assert.ErrorIs(t, err, ErrPyramidNameTaken)
	_, err = env.placements.CreatePyramid(ctx, " ", 4)
	assert.ErrorIs(t, err, ErrPyramidNameNeeded)
	_, err = env.placements.CreatePyramid(ctx, "Otoño", 0)
	assert.Equal(t, KindValidationFailed, KindOf(err))
}

func TestUpdatePyramid(t *testing.T) {
	ctx := context.Background()
	env := newLadderEnv(t, 4)
	env.addTeam(1, 1)
	env.addTeam(4, 1)
	_, err := env.placements.CreatePyramid(ctx, "Copa", 3)
	require.NoError(t, err)

	name, off := "  Liga Norte ", false
	p, err := env.placements.UpdatePyramid(ctx, env.pyramidID, PyramidUpdate{Name: &name, Active: &off})
	require.NoError(t, err)
	assert.Equal(t, "Liga Norte", p.Name)
	assert.False(t, p.Active)
	assert.Equal(t, 4, p.RowCount)
	assert.False(t, env.db.state.pyramids[env.pyramidID].Active)

	taken := "Copa"
	_, err = env.placements.UpdatePyramid(ctx, env.pyramidID, PyramidUpdate{Name: &taken})
	assert.ErrorIs(t, err, ErrPyramidNameTaken)
	blank := " "
	_, err = env.placements.UpdatePyramid(ctx, env.pyramidID, PyramidUpdate{Name: &blank})
	assert.ErrorIs(t, err, ErrPyramidNameNeeded)

	zero := 0
	_, err = env.placements.UpdatePyramid(ctx, env.pyramidID, PyramidUpdate{RowCount: &zero})
	assert.ErrorIs(t, err, ErrInvalidRowCount)

	// Row 4 is neither triangle nor cellar of a two-row pyramid.
	two := 2
	_, err = env.placements.UpdatePyramid(ctx, env.pyramidID, PyramidUpdate{RowCount: &two})
	assert.ErrorIs(t, err, ErrRowsStillSeated)
	assert.Equal(t, KindValidationFailed, KindOf(err))
	assert.Equal(t, 4, env.db.state.pyramids[env.pyramidID].RowCount)

	six := 6
	p, err = env.placements.UpdatePyramid(ctx, env.pyramidID, PyramidUpdate{RowCount: &six})
	require.NoError(t, err)
	assert.Equal(t, 6, p.RowCount)
	assert.Equal(t, "Liga Norte", p.Name)
	env.requireLayout()

	_, err = env.placements.UpdatePyramid(ctx, 999, PyramidUpdate{Active: &off})
	assert.ErrorIs(t, err, ErrPyramidNotFound)
}

func TestPlaceTeamInsertsAndMoves(t *testing.T) {
	ctx := context.Background()
	env := newLadderEnv(t, 3)
	team := env.addTeam(0, 0)

	out, err := env.placements.PlaceTeam(ctx, env.pyramidID, team, 3, 2)
	require.NoError(t, err)
	assert.Nil(t, out.From)
	env.requireCell(team, 3, 2)

	out, err = env.placements.PlaceTeam(ctx, env.pyramidID, team, 2, 1)
	require.NoError(t, err)
	require.NotNil(t, out.From)
	assert.Equal(t, pyramid.Cell{Row: 3, Col: 2}, *out.From)
	env.requireCell(team, 2, 1)

	require.Len(t, env.db.state.history, 2)
	inserted, moved := env.db.state.history[0], env.db.state.history[1]
	assert.Nil(t, inserted.OldRow)
	assert.Equal(t, 3, *inserted.NewRow)
	assert.Equal(t, 3, *moved.OldRow)
	assert.Equal(t, 2, *moved.NewRow)
}

func TestPlaceTeamDisplacesOccupant(t *testing.T) {
	ctx := context.Background()
	env := newLadderEnv(t, 3)
	holder := env.addTeam(1, 1)
	neighbour := env.addTeam(2, 1)
	newcomer := env.addTeam(0, 0)
	open := env.seedMatch(neighbour, holder, models.MatchStatusPending, env.now)

	out, err := env.placements.PlaceTeam(ctx, env.pyramidID, newcomer, 1, 1)
	require.NoError(t, err)
	require.NotNil(t, out.Displaced)
	assert.Equal(t, holder, *out.Displaced)
	assert.Equal(t, []int{open}, out.Cancelled)

	env.requireCell(newcomer, 1, 1)
	_, seated := env.cell(holder)
	assert.False(t, seated)
	env.requireLayout()

	removal := env.db.state.history[0]
	assert.Equal(t, holder, removal.TeamID)
	assert.Nil(t, removal.NewRow)
	assert.Equal(t, 1, *removal.OldRow)
}

func TestPlaceTeamOutsidePyramid(t *testing.T) {
	env := newLadderEnv(t, 3)
	team := env.addTeam(0, 0)

	for _, cell := range []pyramid.Cell{{Row: 2, Col: 3}, {Row: 4, Col: 2}, {Row: 5, Col: 1}, {Row: 0, Col: 0}} {
		_, err := env.placements.PlaceTeam(context.Background(), env.pyramidID, team, cell.Row, cell.Col)
		assert.ErrorIs(t, err, ErrCellOutOfBounds, cell.String())
	}
	_, err := env.placements.PlaceTeam(context.Background(), env.pyramidID, team, 4, 1)
	assert.NoError(t, err, "the cellar is a legal cell")
}

func TestRemoveTeam(t *testing.T) {
	ctx := context.Background()
	env := newLadderEnv(t, 3)
	leaving := env.addTeam(1, 1)
	rival := env.addTeam(2, 1)
	env.db.state.teams[leaving].Defendable = true
	env.db.state.teams[rival].Defendable = true
	accepted := env.seedMatch(rival, leaving, models.MatchStatusAccepted, env.now)

	out, err := env.placements.RemoveTeam(ctx, env.pyramidID, leaving)
	require.NoError(t, err)
	assert.Equal(t, []int{accepted}, out.Cancelled)
	assert.Equal(t, models.MatchStatusCancelled, env.match(accepted).Status)
	assert.False(t, env.team(rival).Defendable)

	_, seated := env.cell(leaving)
	assert.False(t, seated)
	require.Len(t, env.db.state.history, 1)
	assert.Nil(t, env.db.state.history[0].NewRow)

	_, err = env.placements.RemoveTeam(ctx, env.pyramidID, leaving)
	assert.Equal(t, KindPositionNotFound, KindOf(err))
}
