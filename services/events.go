package services

import (
	"context"
	"log/slog"
	"sync"

	"github.com/Dosada05/pyramid-ladder/models"
	"github.com/Dosada05/pyramid-ladder/notifications"
	"golang.org/x/sync/errgroup"
)

// outboxEvent is collected inside a transaction and delivered after commit.
type outboxEvent struct {
	kind      notifications.Kind
	pyramidID int
	matchID   *int
	attacker  int
	defender  int
	detail    map[string]any
}

func matchEvent(kind notifications.Kind, m *models.Match) outboxEvent {
	return outboxEvent{
		kind:      kind,
		pyramidID: m.PyramidID,
		matchID:   intPtr(m.ID),
		attacker:  m.ChallengerTeamID,
		defender:  m.DefenderTeamID,
	}
}

func (o outboxEvent) with(key string, value any) outboxEvent {
	detail := make(map[string]any, len(o.detail)+1)
	for k, v := range o.detail {
		detail[k] = v
	}
	detail[key] = value
	o.detail = detail
	return o
}

func cancelEvents(reason string, matches []*models.Match) []outboxEvent {
	kind := notifications.KindCancel
	if reason == cancelReasonAccept {
		kind = notifications.KindCancelledDueToAccept
	}
	out := make([]outboxEvent, 0, len(matches))
	for _, m := range matches {
		out = append(out, matchEvent(kind, m).with("reason", reason))
	}
	return out
}

// publish loads member snapshots for every team mentioned and hands the
// events to the notifier. Failures are logged; the ladder change is already
// committed.
func (e *Engine) publish(ctx context.Context, events []outboxEvent) {
	if e.notifier == nil || len(events) == 0 {
		return
	}

	teamIDs := make([]int, 0, len(events)*2)
	for _, ev := range events {
		teamIDs = append(teamIDs, ev.attacker, ev.defender)
	}
	teamIDs = uniqueInts(teamIDs)

	snapshots := make(map[int]*models.TeamSnapshot, len(teamIDs))
	var mu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)
	for _, id := range teamIDs {
		g.Go(func() error {
			members, err := e.store.Teams.ListMembers(gCtx, nil, id)
			if err != nil {
				return err
			}
			mu.Lock()
			snapshots[id] = &models.TeamSnapshot{TeamID: id, Members: members}
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		e.logger.Warn("notification snapshots incomplete", slog.Any("error", err))
	}

	for _, ev := range events {
		event := notifications.NewEvent(ev.kind, ev.pyramidID)
		event.MatchID = ev.matchID
		event.Detail = ev.detail
		event.Attacker = snapshotOrBare(snapshots, ev.attacker)
		event.Defender = snapshotOrBare(snapshots, ev.defender)
		// Dispatcher already logs per-transport failures.
		_ = e.notifier.Notify(ctx, event)
	}
}

func snapshotOrBare(snapshots map[int]*models.TeamSnapshot, teamID int) *models.TeamSnapshot {
	if teamID == 0 {
		return nil
	}
	if s, ok := snapshots[teamID]; ok {
		return s
	}
	return &models.TeamSnapshot{TeamID: teamID}
}
