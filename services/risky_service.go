package services

import (
	"context"
	"log/slog"

	"github.com/Dosada05/pyramid-ladder/models"
	"github.com/Dosada05/pyramid-ladder/notifications"
	"github.com/Dosada05/pyramid-ladder/pyramid"
	"github.com/Dosada05/pyramid-ladder/repositories"
)

// RiskyReport lists status changes made by one risky check.
type RiskyReport struct {
	PyramidID int   `json:"pyramid_id"`
	Marked    []int `json:"marked_team_ids"`
	Cleared   []int `json:"cleared_team_ids"`
}

type RiskyService interface {
	MarkRiskyTeams(ctx context.Context, pyramidID int) (*RiskyReport, error)
	MarkAllActive(ctx context.Context) ([]*RiskyReport, error)
}

type riskyService struct {
	*Engine
}

func NewRiskyService(engine *Engine) RiskyService {
	return &riskyService{Engine: engine}
}

// MarkRiskyTeams flags teams above the bottom row that played no match this
// week and fewer than two last week. A risky team that played again goes
// back to idle.
func (s *riskyService) MarkRiskyTeams(ctx context.Context, pyramidID int) (*RiskyReport, error) {
	report := &RiskyReport{PyramidID: pyramidID}
	err := s.run(ctx, "risky-check", func(exec repositories.SQLExecutor) error {
		report.Marked, report.Cleared = nil, nil

		p, err := s.loadPyramid(ctx, exec, pyramidID)
		if err != nil {
			return err
		}
		positions, err := s.store.Positions.ListByPyramid(ctx, exec, pyramidID)
		if err != nil {
			return err
		}
		var candidates []int
		for _, pos := range positions {
			if pos.Row < p.RowCount {
				candidates = append(candidates, pos.TeamID)
			}
		}
		if len(candidates) == 0 {
			return nil
		}

		now := s.now()
		thisWeek := pyramid.WeekStart(now, s.rules.Location)
		lastWeek := pyramid.PreviousWeekStart(now, s.rules.Location)
		playedNow, err := s.store.Matches.CountPlayedByTeam(ctx, exec, pyramidID, thisWeek, now)
		if err != nil {
			return err
		}
		playedBefore, err := s.store.Matches.CountPlayedByTeam(ctx, exec, pyramidID, lastWeek, thisWeek)
		if err != nil {
			return err
		}

		teams, err := s.lockTeams(ctx, exec, candidates...)
		if err != nil {
			return err
		}
		for _, id := range uniqueInts(candidates) {
			t := teams[id]
			inactive := playedNow[id] < 1 && playedBefore[id] < 2
			switch {
			case inactive && t.Status != models.TeamStatusRisky:
				t.Status = models.TeamStatusRisky
				report.Marked = append(report.Marked, id)
			case !inactive && t.Status == models.TeamStatusRisky:
				t.Status = models.TeamStatusIdle
				report.Cleared = append(report.Cleared, id)
			default:
				continue
			}
			if err := s.saveTeams(ctx, exec, t); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(report.Marked) > 0 || len(report.Cleared) > 0 {
		s.logger.Info("risky check applied",
			slog.Int("pyramid_id", pyramidID),
			slog.Int("marked", len(report.Marked)),
			slog.Int("cleared", len(report.Cleared)))
	}
	events := make([]outboxEvent, 0, len(report.Marked))
	for _, id := range report.Marked {
		events = append(events, outboxEvent{kind: notifications.KindRisky, pyramidID: pyramidID, defender: id})
	}
	s.publish(ctx, events)
	return report, nil
}

// MarkAllActive runs the risky check on every active pyramid. A failing
// pyramid is logged and skipped.
func (s *riskyService) MarkAllActive(ctx context.Context) ([]*RiskyReport, error) {
	pyramids, err := s.store.Pyramids.ListActive(ctx, nil)
	if err != nil {
		return nil, storageFailure("list active pyramids", err)
	}
	reports := make([]*RiskyReport, 0, len(pyramids))
	for _, p := range pyramids {
		if ctx.Err() != nil {
			return reports, ctx.Err()
		}
		r, err := s.MarkRiskyTeams(ctx, p.ID)
		if err != nil {
			s.logger.Warn("risky check failed", slog.Int("pyramid_id", p.ID), slog.Any("error", err))
			continue
		}
		reports = append(reports, r)
	}
	return reports, nil
}
