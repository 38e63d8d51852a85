package notifications

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/Dosada05/pyramid-ladder/metrics"
	"github.com/Dosada05/pyramid-ladder/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func snapshot(teamID int, members ...models.User) *models.TeamSnapshot {
	return &models.TeamSnapshot{TeamID: teamID, Members: members}
}

func TestDispatcherKeepsGoingAfterFailure(t *testing.T) {
	d := NewDispatcher(discardLogger(), metrics.New(prometheus.NewRegistry()))

	var delivered []Kind
	d.Register("broken", NotifierFunc(func(context.Context, Event) error {
		return errors.New("smtp down")
	}))
	d.Register("recorder", NotifierFunc(func(_ context.Context, e Event) error {
		delivered = append(delivered, e.Kind)
		return nil
	}))

	err := d.Notify(context.Background(), NewEvent(KindAccept, 1))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
	assert.Equal(t, []Kind{KindAccept}, delivered)
	assert.Equal(t, []string{"broken", "recorder"}, d.Transports())
}

func TestNewEventStampsIDAndTime(t *testing.T) {
	a, b := NewEvent(KindChallenge, 3), NewEvent(KindChallenge, 3)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
	assert.False(t, a.OccurredAt.IsZero())
}
