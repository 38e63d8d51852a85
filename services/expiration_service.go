package services

import (
	"context"
	"errors"
	"log/slog"
	"sort"

	"github.com/Dosada05/pyramid-ladder/models"
	"github.com/Dosada05/pyramid-ladder/notifications"
	"github.com/Dosada05/pyramid-ladder/pyramid"
	"github.com/Dosada05/pyramid-ladder/repositories"
)

// SweepResult reports what the expiry sweep did to one team in one pyramid.
type SweepResult struct {
	TeamID      int           `json:"team_id"`
	PyramidID   int           `json:"pyramid_id"`
	Expired     []int         `json:"expired_match_ids"`
	Exempt      bool          `json:"exempt"`
	Demoted     bool          `json:"demoted"`
	From        *pyramid.Cell `json:"from,omitempty"`
	To          *pyramid.Cell `json:"to,omitempty"`
	SwappedWith *int          `json:"swapped_with,omitempty"`
	Cancelled   []int         `json:"cascade_cancelled_match_ids"`
}

type ExpirationService interface {
	// SweepExpired handles challenges the user's teams left unanswered past
	// the expiry window.
	SweepExpired(ctx context.Context, userID int) ([]SweepResult, error)
}

type expirationService struct {
	*Engine
}

func NewExpirationService(engine *Engine) ExpirationService {
	return &expirationService{Engine: engine}
}

func (s *expirationService) SweepExpired(ctx context.Context, userID int) ([]SweepResult, error) {
	var results []SweepResult
	var events []outboxEvent
	var expiredCount, cascadeCount int

	err := s.run(ctx, "sweep", func(exec repositories.SQLExecutor) error {
		results, events, expiredCount, cascadeCount = nil, nil, 0, 0

		teamIDs, err := s.userTeams(ctx, exec, userID)
		if err != nil {
			return err
		}
		if len(teamIDs) == 0 {
			return nil
		}
		// Lock every team of the user up front so concurrent sweeps queue.
		if _, err := s.lockTeams(ctx, exec, teamIDs...); err != nil {
			return err
		}

		now := s.now()
		cutoff := now.Add(-s.rules.ExpiryWindow)
		sort.Ints(teamIDs)
		for _, teamID := range teamIDs {
			expired, err := s.store.Matches.ListExpiredPending(ctx, exec, teamID, cutoff)
			if err != nil {
				return err
			}
			if len(expired) == 0 {
				continue
			}
			played, err := s.store.Matches.CountPlayedSince(ctx, exec, teamID, pyramid.PreviousWeekStart(now, s.rules.Location))
			if err != nil {
				return err
			}

			for _, group := range groupByPyramid(expired) {
				res := SweepResult{TeamID: teamID, PyramidID: group[0].PyramidID, Exempt: played >= 2}
				for _, m := range group {
					if err := s.setStatus(ctx, exec, m, models.MatchStatusCancelled, nil); err != nil {
						return err
					}
					res.Expired = append(res.Expired, m.ID)
				}
				expiredCount += len(group)
				events = append(events, cancelEvents(cancelReasonExpired, group)...)

				if !res.Exempt {
					moved, err := s.demote(ctx, exec, teamID, &res)
					if err != nil {
						return err
					}
					if moved != nil {
						events = append(events, *moved)
					}
					if res.Demoted {
						cancelled, err := s.invalidateMatches(ctx, exec, res.PyramidID, []int{teamID, derefInt(res.SwappedWith)})
						if err != nil {
							return err
						}
						for _, m := range cancelled {
							res.Cancelled = append(res.Cancelled, m.ID)
						}
						cascadeCount += len(cancelled)
						events = append(events, cancelEvents(cancelReasonInvalidated, cancelled)...)
					}
				}
				results = append(results, res)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Cancelled(cancelReasonExpired, expiredCount)
	for _, res := range results {
		switch {
		case res.Exempt:
			s.metrics.Sweep("exempt")
		case res.Demoted:
			s.metrics.Sweep("demoted")
		default:
			s.metrics.Sweep("cancelled")
		}
	}
	if len(results) == 0 {
		s.metrics.Sweep("noop")
	}
	s.logger.Info("expiry sweep finished",
		slog.Int("user_id", userID),
		slog.Int("expired", expiredCount),
		slog.Int("cascade_cancelled", cascadeCount),
		slog.Int("pyramids", len(results)))

	s.publish(ctx, events)
	if results == nil {
		results = []SweepResult{}
	}
	return results, nil
}

// demote moves the team one rung down. A team that already left the pyramid,
// sits in the cellar or holds the terminal cell stays put.
func (s *expirationService) demote(ctx context.Context, exec repositories.SQLExecutor, teamID int, res *SweepResult) (*outboxEvent, error) {
	pos, err := s.positionOf(ctx, exec, res.PyramidID, teamID)
	if errors.Is(err, ErrPositionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	p, err := s.loadPyramid(ctx, exec, res.PyramidID)
	if err != nil {
		return nil, err
	}

	from := pyramid.CellOf(pos)
	next, ok := pyramid.NextPosition(from, p.RowCount)
	if !ok {
		return nil, nil
	}

	occupant, err := s.relocate(ctx, exec, pos, next, nil)
	if err != nil {
		return nil, err
	}
	locked, err := s.lockTeams(ctx, exec, teamID)
	if err != nil {
		return nil, err
	}
	team := locked[teamID]
	team.LastResult = models.LastResultDown
	if err := s.saveTeams(ctx, exec, team); err != nil {
		return nil, err
	}

	res.Demoted = true
	res.From, res.To = &from, &next
	ev := outboxEvent{kind: notifications.KindDemoted, pyramidID: res.PyramidID, defender: teamID}
	if occupant != nil {
		promoted, err := s.lockTeams(ctx, exec, occupant.TeamID)
		if err != nil {
			return nil, err
		}
		up := promoted[occupant.TeamID]
		up.LastResult = models.LastResultUp
		if err := s.saveTeams(ctx, exec, up); err != nil {
			return nil, err
		}
		res.SwappedWith = intPtr(occupant.TeamID)
		ev.attacker = occupant.TeamID
	}
	s.metrics.Swap("expiry")
	ev = ev.with("from", from).with("to", next)
	return &ev, nil
}

// groupByPyramid splits matches per pyramid, keeping pyramid order stable.
func groupByPyramid(matches []*models.Match) [][]*models.Match {
	index := make(map[int]int)
	var groups [][]*models.Match
	for _, m := range matches {
		i, ok := index[m.PyramidID]
		if !ok {
			i = len(groups)
			index[m.PyramidID] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], m)
	}
	sort.SliceStable(groups, func(a, b int) bool { return groups[a][0].PyramidID < groups[b][0].PyramidID })
	return groups
}

func derefInt(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}
