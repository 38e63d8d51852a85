package notifications

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Dosada05/pyramid-ladder/metrics"
	"github.com/Dosada05/pyramid-ladder/models"
	"github.com/google/uuid"
)

type Kind string

const (
	KindChallenge            Kind = "challenge"
	KindAccept               Kind = "accept"
	KindReject               Kind = "reject"
	KindCancel               Kind = "cancel"
	KindCancelledDueToAccept Kind = "cancelled-due-to-accept"
	KindRisky                Kind = "risky"
	// Ladder movement and scoring events feed live views and the event stream only.
	KindPlayed    Kind = "played"
	KindDemoted   Kind = "demoted"
	KindPlacement Kind = "placement"
	KindScore     Kind = "score"
)

// Event describes something that happened on a pyramid. Attacker and
// Defender are the challenger and defender snapshots for match events; a
// team-level event such as risky carries only Defender.
type Event struct {
	ID         string               `json:"id"`
	Kind       Kind                 `json:"kind"`
	PyramidID  int                  `json:"pyramid_id"`
	MatchID    *int                 `json:"match_id,omitempty"`
	Attacker   *models.TeamSnapshot `json:"attacker,omitempty"`
	Defender   *models.TeamSnapshot `json:"defender,omitempty"`
	Detail     map[string]any       `json:"detail,omitempty"`
	OccurredAt time.Time            `json:"occurred_at"`
}

// NewEvent stamps an event with a fresh id and the current time.
func NewEvent(kind Kind, pyramidID int) Event {
	return Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		PyramidID:  pyramidID,
		OccurredAt: time.Now().UTC(),
	}
}

// Notifier delivers ladder events. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(ctx context.Context, event Event) error

func (f NotifierFunc) Notify(ctx context.Context, event Event) error { return f(ctx, event) }

type transport struct {
	name     string
	notifier Notifier
}

// Dispatcher fans an event out to every registered transport. A failing
// transport is logged and counted; it never stops the others.
type Dispatcher struct {
	transports []transport
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

func NewDispatcher(logger *slog.Logger, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{logger: logger.With(slog.String("component", "notifications")), metrics: m}
}

// Register adds a named transport.
func (d *Dispatcher) Register(name string, n Notifier) {
	d.transports = append(d.transports, transport{name: name, notifier: n})
}

// Transports lists the registered transport names in registration order.
func (d *Dispatcher) Transports() []string {
	names := make([]string, len(d.transports))
	for i, t := range d.transports {
		names[i] = t.name
	}
	return names
}

// Notify returns the joined transport errors after logging them.
func (d *Dispatcher) Notify(ctx context.Context, event Event) error {
	var errs []error
	for _, t := range d.transports {
		if err := t.notifier.Notify(ctx, event); err != nil {
			d.metrics.NotificationFailed(t.name)
			d.logger.Warn("notification delivery failed",
				slog.String("transport", t.name),
				slog.String("kind", string(event.Kind)),
				slog.Int("pyramid_id", event.PyramidID),
				slog.Any("error", err))
			errs = append(errs, fmt.Errorf("%s: %w", t.name, err))
		}
	}
	return errors.Join(errs...)
}
