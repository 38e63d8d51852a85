package services

import (
	"context"

	"github.com/Dosada05/pyramid-ladder/models"
	"github.com/Dosada05/pyramid-ladder/pyramid"
	"github.com/Dosada05/pyramid-ladder/repositories"
)

const (
	cancelReasonAccept      = "accepted-elsewhere"
	cancelReasonInvalidated = "invalidated"
	cancelReasonExpired     = "expired"
	cancelReasonUser        = "user"
	cancelReasonRemoved     = "removed"
)

var openStatuses = []models.MatchStatus{models.MatchStatusPending, models.MatchStatusAccepted}

// invalidateMatches cancels every open match of the given teams whose
// participants are now two or more rows apart, or that lost a participant's
// position. It reads post-move positions, so running it again on the same
// state cancels nothing new.
func (e *Engine) invalidateMatches(ctx context.Context, exec repositories.SQLExecutor, pyramidID int, teamIDs []int) ([]*models.Match, error) {
	teamIDs = uniqueInts(teamIDs)
	if len(teamIDs) == 0 {
		return nil, nil
	}

	open, err := e.store.Matches.ListByPyramid(ctx, exec, pyramidID, repositories.MatchFilter{
		TeamIDs:  teamIDs,
		Statuses: openStatuses,
	})
	if err != nil || len(open) == 0 {
		return nil, err
	}

	involved := make([]int, 0, len(open)*2)
	for _, m := range open {
		involved = append(involved, m.ChallengerTeamID, m.DefenderTeamID)
	}
	positions, err := e.store.Positions.ListByTeams(ctx, exec, pyramidID, uniqueInts(involved))
	if err != nil {
		return nil, err
	}
	cells := make(map[int]pyramid.Cell, len(positions))
	for _, p := range positions {
		cells[p.TeamID] = pyramid.CellOf(p)
	}

	var cancelled []*models.Match
	var disengage []int
	for _, m := range open {
		c, okC := cells[m.ChallengerTeamID]
		d, okD := cells[m.DefenderTeamID]
		if okC && okD && pyramid.RowDistance(c, d) < 2 {
			continue
		}
		if m.Status == models.MatchStatusAccepted {
			disengage = append(disengage, m.ChallengerTeamID, m.DefenderTeamID)
		}
		if err := e.setStatus(ctx, exec, m, models.MatchStatusCancelled, nil); err != nil {
			return nil, err
		}
		cancelled = append(cancelled, m)
	}

	if len(disengage) > 0 {
		teams, err := e.lockTeams(ctx, exec, disengage...)
		if err != nil {
			return nil, err
		}
		for _, t := range teams {
			t.Defendable = false
			if err := e.saveTeams(ctx, exec, t); err != nil {
				return nil, err
			}
		}
	}

	e.metrics.Cancelled(cancelReasonInvalidated, len(cancelled))
	return cancelled, nil
}
