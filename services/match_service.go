package services

import (
	"context"
	"errors"
	"log/slog"

	"github.com/Dosada05/pyramid-ladder/models"
	"github.com/Dosada05/pyramid-ladder/notifications"
	"github.com/Dosada05/pyramid-ladder/pyramid"
	"github.com/Dosada05/pyramid-ladder/repositories"
)

// MatchService drives the challenge lifecycle. The acting team is always
// derived from the authenticated user.
type MatchService interface {
	Create(ctx context.Context, userID, pyramidID, defenderTeamID int) (*models.Match, error)
	Accept(ctx context.Context, userID, matchID int) (*models.Match, error)
	Reject(ctx context.Context, userID, matchID int) (*models.Match, error)
	Cancel(ctx context.Context, userID, matchID int) (*models.Match, error)
	Complete(ctx context.Context, userID, matchID, winnerTeamID int) (*Resolution, error)
	Get(ctx context.Context, matchID int) (*models.Match, error)
	ListForUser(ctx context.Context, userID, pyramidID int, status *models.MatchStatus) ([]*models.Match, error)
}

type matchService struct {
	*Engine
}

func NewMatchService(engine *Engine) MatchService {
	return &matchService{Engine: engine}
}

func (s *matchService) Create(ctx context.Context, userID, pyramidID, defenderTeamID int) (*models.Match, error) {
	var match *models.Match
	err := s.run(ctx, "create", func(exec repositories.SQLExecutor) error {
		p, err := s.loadPyramid(ctx, exec, pyramidID)
		if err != nil {
			return err
		}
		if !p.Active {
			return ErrPyramidInactive
		}

		userTeams, err := s.userTeams(ctx, exec, userID)
		if err != nil {
			return err
		}
		placed, err := s.store.Positions.ListByTeams(ctx, exec, pyramidID, userTeams)
		if err != nil {
			return err
		}
		if len(placed) == 0 {
			return ErrNoTeamInPyramid
		}
		challengerPos := placed[0]
		for _, pos := range placed[1:] {
			if pos.TeamID < challengerPos.TeamID {
				challengerPos = pos
			}
		}
		challengerID := challengerPos.TeamID
		if challengerID == defenderTeamID {
			return ErrSelfChallenge
		}

		teams, err := s.lockTeams(ctx, exec, challengerID, defenderTeamID)
		if err != nil {
			return err
		}
		defenderPos, err := s.positionOf(ctx, exec, pyramidID, defenderTeamID)
		if err != nil {
			return err
		}

		open, err := s.store.Matches.ListByPyramid(ctx, exec, pyramidID, repositories.MatchFilter{
			TeamIDs:  []int{challengerID},
			Statuses: openStatuses,
		})
		if err != nil {
			return err
		}
		for _, m := range open {
			if m.Opponent(challengerID) == defenderTeamID {
				return ErrDuplicateChallenge
			}
		}

		if teams[challengerID].Defendable || teams[defenderTeamID].Defendable {
			return ErrTeamEngaged
		}
		if pyramid.RowDistance(pyramid.CellOf(challengerPos), pyramid.CellOf(defenderPos)) > 1 {
			return ErrRowGapTooLarge
		}

		match = &models.Match{
			PyramidID:        pyramidID,
			ChallengerTeamID: challengerID,
			DefenderTeamID:   defenderTeamID,
			Status:           models.MatchStatusPending,
		}
		return s.store.Matches.Create(ctx, exec, match)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Transition(string(models.MatchStatusPending))
	s.logger.Info("challenge created",
		slog.Int("match_id", match.ID),
		slog.Int("pyramid_id", pyramidID),
		slog.Int("challenger_team_id", match.ChallengerTeamID),
		slog.Int("defender_team_id", match.DefenderTeamID))
	s.publish(ctx, []outboxEvent{matchEvent(notifications.KindChallenge, match)})
	return match, nil
}

// answerable loads a pending match and checks the user defends it.
func (s *matchService) answerable(ctx context.Context, exec repositories.SQLExecutor, userID, matchID int, next models.MatchStatus) (*models.Match, error) {
	match, err := s.loadMatchForUpdate(ctx, exec, matchID)
	if err != nil {
		return nil, err
	}
	userTeams, err := s.userTeams(ctx, exec, userID)
	if err != nil {
		return nil, err
	}
	if _, ok := actingTeam(match, userTeams); !ok {
		return nil, ErrNotParticipant
	}
	if !containsInt(userTeams, match.DefenderTeamID) {
		return nil, ErrNotDefender
	}
	if !match.Status.CanTransitionTo(next) {
		return nil, ErrInvalidTransition
	}
	return match, nil
}

func (s *matchService) Accept(ctx context.Context, userID, matchID int) (*models.Match, error) {
	var match *models.Match
	var displaced []*models.Match
	err := s.run(ctx, "accept", func(exec repositories.SQLExecutor) error {
		var err error
		match, err = s.answerable(ctx, exec, userID, matchID, models.MatchStatusAccepted)
		if err != nil {
			return err
		}
		teams, err := s.lockTeams(ctx, exec, match.ChallengerTeamID, match.DefenderTeamID)
		if err != nil {
			return err
		}

		challenger, defender := teams[match.ChallengerTeamID], teams[match.DefenderTeamID]
		if challenger.Defendable || defender.Defendable {
			return ErrTeamEngaged
		}

		if err := s.setStatus(ctx, exec, match, models.MatchStatusAccepted, nil); err != nil {
			return err
		}
		challenger.Defendable = true
		defender.Defendable = true
		defender.AmountRejected = 0
		if err := s.saveTeams(ctx, exec, challenger, defender); err != nil {
			return err
		}

		// A team holds one live engagement at a time, across all pyramids.
		pending, err := s.store.Matches.ListByTeams(ctx, exec,
			[]int{match.ChallengerTeamID, match.DefenderTeamID},
			[]models.MatchStatus{models.MatchStatusPending})
		if err != nil {
			return err
		}
		for _, other := range pending {
			if other.ID == match.ID {
				continue
			}
			if err := s.setStatus(ctx, exec, other, models.MatchStatusCancelled, nil); err != nil {
				return err
			}
			displaced = append(displaced, other)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Transition(string(models.MatchStatusAccepted))
	s.metrics.Cancelled(cancelReasonAccept, len(displaced))
	s.logger.Info("challenge accepted", slog.Int("match_id", match.ID), slog.Int("auto_cancelled", len(displaced)))

	events := []outboxEvent{matchEvent(notifications.KindAccept, match)}
	events = append(events, cancelEvents(cancelReasonAccept, displaced)...)
	s.publish(ctx, events)
	return match, nil
}

func (s *matchService) Reject(ctx context.Context, userID, matchID int) (*models.Match, error) {
	var match *models.Match
	var free bool
	err := s.run(ctx, "reject", func(exec repositories.SQLExecutor) error {
		var err error
		match, err = s.answerable(ctx, exec, userID, matchID, models.MatchStatusRejected)
		if err != nil {
			return err
		}
		teams, err := s.lockTeams(ctx, exec, match.DefenderTeamID)
		if err != nil {
			return err
		}
		defender := teams[match.DefenderTeamID]

		now := s.now()
		recent, err := s.store.Matches.CountPlayedSince(ctx, exec, defender.ID, pyramid.PreviousWeekStart(now, s.rules.Location))
		if err != nil {
			return err
		}
		if recent >= 2 {
			free = true
			defender.AmountRejected = 0
		} else {
			count := defender.AmountRejected
			thisWeek, err := s.store.Matches.CountPlayedSince(ctx, exec, defender.ID, pyramid.WeekStart(now, s.rules.Location))
			if err != nil {
				return err
			}
			if thisWeek >= 1 {
				count = 0
			}
			if count >= 2 {
				return ErrTooManyRejections
			}
			defender.AmountRejected = count + 1
		}

		if err := s.saveTeams(ctx, exec, defender); err != nil {
			return err
		}
		return s.setStatus(ctx, exec, match, models.MatchStatusRejected, nil)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Transition(string(models.MatchStatusRejected))
	s.logger.Info("challenge rejected", slog.Int("match_id", match.ID), slog.Bool("free", free))
	s.publish(ctx, []outboxEvent{matchEvent(notifications.KindReject, match).with("free", free)})
	return match, nil
}

func (s *matchService) Cancel(ctx context.Context, userID, matchID int) (*models.Match, error) {
	var match *models.Match
	err := s.run(ctx, "cancel", func(exec repositories.SQLExecutor) error {
		var err error
		match, err = s.loadMatchForUpdate(ctx, exec, matchID)
		if err != nil {
			return err
		}
		userTeams, err := s.userTeams(ctx, exec, userID)
		if err != nil {
			return err
		}
		if _, ok := actingTeam(match, userTeams); !ok {
			return ErrNotParticipant
		}
		if !match.Status.CanTransitionTo(models.MatchStatusCancelled) {
			return ErrInvalidTransition
		}

		teams, err := s.lockTeams(ctx, exec, match.ChallengerTeamID, match.DefenderTeamID)
		if err != nil {
			return err
		}
		for _, t := range teams {
			t.Defendable = false
			if err := s.saveTeams(ctx, exec, t); err != nil {
				return err
			}
		}
		return s.setStatus(ctx, exec, match, models.MatchStatusCancelled, nil)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Transition(string(models.MatchStatusCancelled))
	s.metrics.Cancelled(cancelReasonUser, 1)
	s.logger.Info("challenge cancelled", slog.Int("match_id", match.ID), slog.Int("user_id", userID))
	s.publish(ctx, cancelEvents(cancelReasonUser, []*models.Match{match}))
	return match, nil
}

func (s *matchService) Complete(ctx context.Context, userID, matchID, winnerTeamID int) (*Resolution, error) {
	var match *models.Match
	var res *Resolution
	err := s.run(ctx, "complete", func(exec repositories.SQLExecutor) error {
		var err error
		match, err = s.loadMatchForUpdate(ctx, exec, matchID)
		if err != nil {
			return err
		}
		userTeams, err := s.userTeams(ctx, exec, userID)
		if err != nil {
			return err
		}
		if _, ok := actingTeam(match, userTeams); !ok {
			return ErrNotParticipant
		}
		if !match.Status.CanTransitionTo(models.MatchStatusPlayed) {
			return ErrInvalidTransition
		}
		if !match.Involves(winnerTeamID) {
			return ErrInvalidWinner
		}
		if err := s.checkScoreSheet(ctx, exec, match, winnerTeamID); err != nil {
			return err
		}

		p, err := s.loadPyramid(ctx, exec, match.PyramidID)
		if err != nil {
			return err
		}
		teams, err := s.lockTeams(ctx, exec, match.ChallengerTeamID, match.DefenderTeamID)
		if err != nil {
			return err
		}
		res, err = s.resolveOutcome(ctx, exec, p, match, winnerTeamID, teams)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.Transition(string(models.MatchStatusPlayed))
	s.logger.Info("match played",
		slog.Int("match_id", match.ID),
		slog.Int("winner_team_id", res.WinnerTeamID),
		slog.Bool("swapped", res.Swapped),
		slog.Bool("cellared", res.Cellared),
		slog.Int("cascade_cancelled", len(res.Cancelled)))

	events := []outboxEvent{matchEvent(notifications.KindPlayed, match).with("resolution", res)}
	events = append(events, cancelEvents(cancelReasonInvalidated, res.cancelledMatches)...)
	s.publish(ctx, events)
	return res, nil
}

func (s *matchService) Get(ctx context.Context, matchID int) (*models.Match, error) {
	m, err := s.store.Matches.GetByID(ctx, nil, matchID)
	if err != nil {
		if errors.Is(err, repositories.ErrMatchNotFound) {
			return nil, ErrMatchNotFound
		}
		return nil, storageFailure("get match", err)
	}
	return m, nil
}

func (s *matchService) ListForUser(ctx context.Context, userID, pyramidID int, status *models.MatchStatus) ([]*models.Match, error) {
	userTeams, err := s.userTeams(ctx, nil, userID)
	if err != nil {
		return nil, storageFailure("list matches", err)
	}
	if len(userTeams) == 0 {
		return []*models.Match{}, nil
	}
	filter := repositories.MatchFilter{TeamIDs: userTeams, Limit: 200}
	if status != nil {
		filter.Statuses = []models.MatchStatus{*status}
	}
	matches, err := s.store.Matches.ListByPyramid(ctx, nil, pyramidID, filter)
	if err != nil {
		return nil, storageFailure("list matches", err)
	}
	return matches, nil
}
