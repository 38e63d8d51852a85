package services

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Dosada05/pyramid-ladder/config"
	"github.com/Dosada05/pyramid-ladder/metrics"
	"github.com/Dosada05/pyramid-ladder/models"
	"github.com/Dosada05/pyramid-ladder/notifications"
	"github.com/Dosada05/pyramid-ladder/pyramid"
	"github.com/Dosada05/pyramid-ladder/repositories"
)

// Store bundles the repositories the ladder engine writes inside one
// transaction.
type Store struct {
	Tx        repositories.Transactor
	Pyramids  repositories.PyramidRepository
	Teams     repositories.TeamRepository
	Positions repositories.PositionRepository
	Matches   repositories.MatchRepository
	History   repositories.HistoryRepository
	Scores    repositories.ScoreRepository
}

// Clock returns the current time. Tests pin it.
type Clock func() time.Time

// Engine carries what every ladder-mutating service shares.
type Engine struct {
	store    Store
	rules    config.Ladder
	metrics  *metrics.Metrics
	logger   *slog.Logger
	notifier notifications.Notifier
	now      Clock
}

func NewEngine(store Store, rules config.Ladder, m *metrics.Metrics, notifier notifications.Notifier, logger *slog.Logger) *Engine {
	if rules.Location == nil {
		rules.Location = time.UTC
	}
	return &Engine{
		store:    store,
		rules:    rules,
		metrics:  m,
		logger:   logger,
		notifier: notifier,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock replaces the engine clock.
func (e *Engine) WithClock(now Clock) *Engine {
	e.now = now
	return e
}

// run executes fn in a transaction and classifies any failure.
func (e *Engine) run(ctx context.Context, op string, fn func(exec repositories.SQLExecutor) error) error {
	err := storageFailure(op, e.store.Tx.WithinTx(ctx, fn))
	if err != nil {
		kind := KindOf(err)
		e.metrics.Failure(op, string(kind))
		switch {
		case errors.Is(err, ErrSerializationConflict):
			e.logger.Warn("ladder operation lost a serialization conflict", slog.String("operation", op), slog.Any("error", err))
		case kind == KindStorageFailure:
			e.logger.Error("ladder operation failed", slog.String("operation", op), slog.Any("error", err))
		}
	}
	return err
}

func (e *Engine) loadPyramid(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Pyramid, error) {
	p, err := e.store.Pyramids.GetByID(ctx, exec, id)
	if errors.Is(err, repositories.ErrPyramidNotFound) {
		return nil, ErrPyramidNotFound
	}
	return p, err
}

func (e *Engine) loadMatchForUpdate(ctx context.Context, exec repositories.SQLExecutor, id int) (*models.Match, error) {
	m, err := e.store.Matches.GetForUpdate(ctx, exec, id)
	if errors.Is(err, repositories.ErrMatchNotFound) {
		return nil, ErrMatchNotFound
	}
	return m, err
}

func (e *Engine) lockTeams(ctx context.Context, exec repositories.SQLExecutor, ids ...int) (map[int]*models.Team, error) {
	teams, err := e.store.Teams.LockMany(ctx, exec, uniqueInts(ids))
	if errors.Is(err, repositories.ErrTeamNotFound) {
		return nil, ErrTeamNotFound
	}
	return teams, err
}

// positionOf returns the team's position, or ErrPositionNotFound.
func (e *Engine) positionOf(ctx context.Context, exec repositories.SQLExecutor, pyramidID, teamID int) (*models.Position, error) {
	p, err := e.store.Positions.GetByTeam(ctx, exec, pyramidID, teamID)
	if errors.Is(err, repositories.ErrPositionNotFound) {
		return nil, ErrPositionNotFound
	}
	return p, err
}

// occupantOf returns the position holding cell, or nil when it is empty.
func (e *Engine) occupantOf(ctx context.Context, exec repositories.SQLExecutor, pyramidID int, cell pyramid.Cell) (*models.Position, error) {
	p, err := e.store.Positions.GetByCell(ctx, exec, pyramidID, cell.Row, cell.Col)
	if errors.Is(err, repositories.ErrPositionNotFound) {
		return nil, nil
	}
	return p, err
}

// userTeams resolves the teams an authenticated user plays for.
func (e *Engine) userTeams(ctx context.Context, exec repositories.SQLExecutor, userID int) ([]int, error) {
	return e.store.Teams.ListIDsByUser(ctx, exec, userID)
}

// actingTeam picks which side of the match the user plays for.
func actingTeam(match *models.Match, userTeams []int) (int, bool) {
	for _, id := range userTeams {
		if match.Involves(id) {
			return id, true
		}
	}
	return 0, false
}

// swapTeams exchanges the cells of a and b in three steps through the
// sentinel cell, so (pyramid,row,col) stays unique after every statement.
func (e *Engine) swapTeams(ctx context.Context, exec repositories.SQLExecutor, a, b *models.Position) error {
	pyramidID := a.PyramidID
	if err := e.store.Positions.Move(ctx, exec, pyramidID, a.TeamID, pyramid.SentinelCell.Row, pyramid.SentinelCell.Col); err != nil {
		return err
	}
	if err := e.store.Positions.Move(ctx, exec, pyramidID, b.TeamID, a.Row, a.Col); err != nil {
		return err
	}
	return e.store.Positions.Move(ctx, exec, pyramidID, a.TeamID, b.Row, b.Col)
}

// relocate moves team from its current cell to target, swapping with the
// occupant when there is one. It appends the ledger entry and returns the
// displaced team's position before the move, or nil.
func (e *Engine) relocate(ctx context.Context, exec repositories.SQLExecutor, team *models.Position, target pyramid.Cell, matchID *int) (*models.Position, error) {
	occupant, err := e.occupantOf(ctx, exec, team.PyramidID, target)
	if err != nil {
		return nil, err
	}
	from := pyramid.CellOf(team)

	entry := &models.PositionHistory{
		PyramidID:     team.PyramidID,
		MatchID:       matchID,
		TeamID:        team.TeamID,
		EffectiveDate: e.now(),
	}
	setOld(entry, &from)
	setNew(entry, &target)

	if occupant != nil {
		if err := e.swapTeams(ctx, exec, team, occupant); err != nil {
			return nil, err
		}
		entry.AffectedTeamID = intPtr(occupant.TeamID)
		setAffected(entry, target, from)
	} else if err := e.store.Positions.Move(ctx, exec, team.PyramidID, team.TeamID, target.Row, target.Col); err != nil {
		return nil, err
	}

	if err := e.store.History.Append(ctx, exec, entry); err != nil {
		return nil, err
	}
	return occupant, nil
}

func (e *Engine) saveTeams(ctx context.Context, exec repositories.SQLExecutor, teams ...*models.Team) error {
	for _, t := range teams {
		if err := e.store.Teams.UpdateLadderState(ctx, exec, t); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) setStatus(ctx context.Context, exec repositories.SQLExecutor, match *models.Match, status models.MatchStatus, winner *int) error {
	if err := e.store.Matches.UpdateStatus(ctx, exec, match.ID, status, winner); err != nil {
		return err
	}
	match.Status = status
	match.WinnerTeamID = winner
	match.UpdatedAt = e.now()
	return nil
}

func setOld(e *models.PositionHistory, c *pyramid.Cell) {
	if c == nil {
		return
	}
	e.OldRow, e.OldCol = intPtr(c.Row), intPtr(c.Col)
}

func setNew(e *models.PositionHistory, c *pyramid.Cell) {
	if c == nil {
		return
	}
	e.NewRow, e.NewCol = intPtr(c.Row), intPtr(c.Col)
}

func setAffected(e *models.PositionHistory, oldCell, newCell pyramid.Cell) {
	e.AffectedOldRow, e.AffectedOldCol = intPtr(oldCell.Row), intPtr(oldCell.Col)
	e.AffectedNewRow, e.AffectedNewCol = intPtr(newCell.Row), intPtr(newCell.Col)
}

func intPtr(v int) *int { return &v }

func uniqueInts(ids []int) []int {
	seen := make(map[int]bool, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if id != 0 && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}

func containsInt(ids []int, v int) bool {
	for _, id := range ids {
		if id == v {
			return true
		}
	}
	return false
}
