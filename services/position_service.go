package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/Dosada05/pyramid-ladder/models"
	"github.com/Dosada05/pyramid-ladder/notifications"
	"github.com/Dosada05/pyramid-ladder/pyramid"
	"github.com/Dosada05/pyramid-ladder/repositories"
)

// Placement reports an administrative change to a pyramid layout.
type Placement struct {
	PyramidID int           `json:"pyramid_id"`
	TeamID    int           `json:"team_id"`
	From      *pyramid.Cell `json:"from,omitempty"`
	To        *pyramid.Cell `json:"to,omitempty"`
	Displaced *int          `json:"displaced_team_id,omitempty"`
	Cancelled []int         `json:"cancelled_match_ids"`
}

// PyramidUpdate carries the fields to change; nil leaves a field alone.
type PyramidUpdate struct {
	Name     *string
	RowCount *int
	Active   *bool
}

// PositionService is the administrative side of the ladder: creating
// pyramids and seeding or withdrawing teams.
type PositionService interface {
	CreatePyramid(ctx context.Context, name string, rowCount int) (*models.Pyramid, error)
	UpdatePyramid(ctx context.Context, pyramidID int, update PyramidUpdate) (*models.Pyramid, error)
	PlaceTeam(ctx context.Context, pyramidID, teamID, row, col int) (*Placement, error)
	RemoveTeam(ctx context.Context, pyramidID, teamID int) (*Placement, error)
}

type positionService struct {
	*Engine
}

func NewPositionService(engine *Engine) PositionService {
	return &positionService{Engine: engine}
}

func (s *positionService) CreatePyramid(ctx context.Context, name string, rowCount int) (*models.Pyramid, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrPyramidNameNeeded
	}
	if rowCount < 1 {
		return nil, ErrInvalidRowCount
	}

	p := &models.Pyramid{Name: name, RowCount: rowCount, Active: true}
	err := s.run(ctx, "create-pyramid", func(exec repositories.SQLExecutor) error {
		err := s.store.Pyramids.Create(ctx, exec, p)
		if errors.Is(err, repositories.ErrPyramidNameConflict) {
			return ErrPyramidNameTaken
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("pyramid created", slog.Int("pyramid_id", p.ID), slog.String("name", p.Name), slog.Int("rows", p.RowCount))
	return p, nil
}

// UpdatePyramid renames, resizes or (de)activates a pyramid. A resize is
// refused while any seated team would fall outside the new shape.
func (s *positionService) UpdatePyramid(ctx context.Context, pyramidID int, update PyramidUpdate) (*models.Pyramid, error) {
	var p *models.Pyramid
	err := s.run(ctx, "update-pyramid", func(exec repositories.SQLExecutor) error {
		var err error
		if p, err = s.loadPyramid(ctx, exec, pyramidID); err != nil {
			return err
		}
		if update.Name != nil {
			name := strings.TrimSpace(*update.Name)
			if name == "" {
				return ErrPyramidNameNeeded
			}
			p.Name = name
		}
		if update.Active != nil {
			p.Active = *update.Active
		}
		if update.RowCount != nil && *update.RowCount != p.RowCount {
			if *update.RowCount < 1 {
				return ErrInvalidRowCount
			}
			p.RowCount = *update.RowCount
			if err := s.checkLayout(ctx, exec, p); err != nil {
				if errors.Is(err, pyramid.ErrCellOutOfBounds) {
					return fmt.Errorf("%w: %v", ErrRowsStillSeated, err)
				}
				return err
			}
		}

		err = s.store.Pyramids.Update(ctx, exec, p)
		if errors.Is(err, repositories.ErrPyramidNameConflict) {
			return ErrPyramidNameTaken
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("pyramid updated", slog.Int("pyramid_id", p.ID), slog.String("name", p.Name),
		slog.Int("rows", p.RowCount), slog.Bool("active", p.Active))
	return p, nil
}

// PlaceTeam puts a team on a cell of the triangle or the cellar. A team
// already holding that cell is taken off the ladder.
func (s *positionService) PlaceTeam(ctx context.Context, pyramidID, teamID, row, col int) (*Placement, error) {
	target := pyramid.Cell{Row: row, Col: col}
	var out *Placement
	var cancelled []*models.Match

	err := s.run(ctx, "place-team", func(exec repositories.SQLExecutor) error {
		out, cancelled = &Placement{PyramidID: pyramidID, TeamID: teamID, To: &target}, nil

		p, err := s.loadPyramid(ctx, exec, pyramidID)
		if err != nil {
			return err
		}
		if !target.Playable(p.RowCount) {
			return ErrCellOutOfBounds
		}
		if _, err := s.lockTeams(ctx, exec, teamID); err != nil {
			return err
		}

		current, err := s.positionOf(ctx, exec, pyramidID, teamID)
		if err != nil && !errors.Is(err, ErrPositionNotFound) {
			return err
		}
		if current != nil && pyramid.CellOf(current) == target {
			out.From = &target
			return nil
		}

		occupant, err := s.occupantOf(ctx, exec, pyramidID, target)
		if err != nil {
			return err
		}
		if occupant != nil {
			if err := s.withdraw(ctx, exec, occupant); err != nil {
				return err
			}
			out.Displaced = intPtr(occupant.TeamID)
		}

		entry := &models.PositionHistory{PyramidID: pyramidID, TeamID: teamID, EffectiveDate: s.now()}
		setNew(entry, &target)
		if current != nil {
			from := pyramid.CellOf(current)
			out.From = &from
			setOld(entry, &from)
			err = s.store.Positions.Move(ctx, exec, pyramidID, teamID, target.Row, target.Col)
		} else {
			err = s.store.Positions.Insert(ctx, exec, &models.Position{PyramidID: pyramidID, TeamID: teamID, Row: target.Row, Col: target.Col})
		}
		if err != nil {
			return err
		}
		if err := s.store.History.Append(ctx, exec, entry); err != nil {
			return err
		}

		cancelled, err = s.invalidateMatches(ctx, exec, pyramidID, []int{teamID, derefInt(out.Displaced)})
		if err != nil {
			return err
		}
		return s.checkLayout(ctx, exec, p)
	})
	if err != nil {
		return nil, err
	}

	out.Cancelled = matchIDs(cancelled)
	s.logger.Info("team placed",
		slog.Int("pyramid_id", pyramidID),
		slog.Int("team_id", teamID),
		slog.String("cell", target.String()),
		slog.Int("displaced_team_id", derefInt(out.Displaced)))

	ev := outboxEvent{kind: notifications.KindPlacement, pyramidID: pyramidID, defender: teamID}.with("placement", out)
	events := append([]outboxEvent{ev}, cancelEvents(cancelReasonRemoved, cancelled)...)
	s.publish(ctx, events)
	return out, nil
}

// RemoveTeam withdraws a team from the pyramid and cancels its open matches.
func (s *positionService) RemoveTeam(ctx context.Context, pyramidID, teamID int) (*Placement, error) {
	var out *Placement
	var cancelled []*models.Match

	err := s.run(ctx, "remove-team", func(exec repositories.SQLExecutor) error {
		out, cancelled = &Placement{PyramidID: pyramidID, TeamID: teamID}, nil

		p, err := s.loadPyramid(ctx, exec, pyramidID)
		if err != nil {
			return err
		}
		if _, err := s.lockTeams(ctx, exec, teamID); err != nil {
			return err
		}
		current, err := s.positionOf(ctx, exec, pyramidID, teamID)
		if err != nil {
			return err
		}
		from := pyramid.CellOf(current)
		out.From = &from

		if err := s.withdraw(ctx, exec, current); err != nil {
			return err
		}
		cancelled, err = s.invalidateMatches(ctx, exec, pyramidID, []int{teamID})
		if err != nil {
			return err
		}
		return s.checkLayout(ctx, exec, p)
	})
	if err != nil {
		return nil, err
	}

	out.Cancelled = matchIDs(cancelled)
	s.logger.Info("team removed", slog.Int("pyramid_id", pyramidID), slog.Int("team_id", teamID), slog.Int("cancelled", len(cancelled)))

	ev := outboxEvent{kind: notifications.KindPlacement, pyramidID: pyramidID, defender: teamID}.with("placement", out)
	events := append([]outboxEvent{ev}, cancelEvents(cancelReasonRemoved, cancelled)...)
	s.publish(ctx, events)
	return out, nil
}

// withdraw deletes a position and records the removal.
func (s *positionService) withdraw(ctx context.Context, exec repositories.SQLExecutor, pos *models.Position) error {
	if err := s.store.Positions.Delete(ctx, exec, pos.PyramidID, pos.TeamID); err != nil {
		return err
	}
	from := pyramid.CellOf(pos)
	entry := &models.PositionHistory{PyramidID: pos.PyramidID, TeamID: pos.TeamID, EffectiveDate: s.now()}
	setOld(entry, &from)
	return s.store.History.Append(ctx, exec, entry)
}

func (s *positionService) checkLayout(ctx context.Context, exec repositories.SQLExecutor, p *models.Pyramid) error {
	positions, err := s.store.Positions.ListByPyramid(ctx, exec, p.ID)
	if err != nil {
		return err
	}
	if err := pyramid.ValidateLayout(positions, p.RowCount); err != nil {
		return fmt.Errorf("pyramid %d layout: %w", p.ID, err)
	}
	return nil
}

func matchIDs(matches []*models.Match) []int {
	ids := make([]int, 0, len(matches))
	for _, m := range matches {
		ids = append(ids, m.ID)
	}
	return ids
}
