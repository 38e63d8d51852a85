package pyramid

import (
	"testing"
	"time"

	"github.com/Dosada05/pyramid-ladder/models"
	"github.com/stretchr/testify/assert"
)

func ip(v int) *int { return &v }

func TestReconstruct(t *testing.T) {
	base := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	entries := []*models.PositionHistory{
		// seeding
		{ID: 1, TeamID: 1, NewRow: ip(1), NewCol: ip(1), EffectiveDate: base},
		{ID: 2, TeamID: 2, NewRow: ip(2), NewCol: ip(1), EffectiveDate: base},
		{ID: 3, TeamID: 3, NewRow: ip(2), NewCol: ip(2), EffectiveDate: base},
		// team 3 beats team 1
		{
			ID: 4, MatchID: ip(10), TeamID: 3, AffectedTeamID: ip(1),
			OldRow: ip(2), OldCol: ip(2), NewRow: ip(1), NewCol: ip(1),
			AffectedOldRow: ip(1), AffectedOldCol: ip(1), AffectedNewRow: ip(2), AffectedNewCol: ip(2),
			EffectiveDate: base.Add(time.Hour),
		},
		// team 2 withdraws
		{ID: 5, TeamID: 2, OldRow: ip(2), OldCol: ip(1), EffectiveDate: base.Add(2 * time.Hour)},
	}

	before := Reconstruct(entries, base.Add(30*time.Minute))
	assert.Equal(t, map[int]Cell{1: {1, 1}, 2: {2, 1}, 3: {2, 2}}, before)

	afterSwap := Reconstruct(entries, base.Add(time.Hour))
	assert.Equal(t, map[int]Cell{1: {2, 2}, 2: {2, 1}, 3: {1, 1}}, afterSwap)

	final := Reconstruct(entries, base.Add(3*time.Hour))
	assert.Equal(t, map[int]Cell{1: {2, 2}, 3: {1, 1}}, final)

	assert.Empty(t, Reconstruct(entries, base.Add(-time.Minute)))
}

func TestReconstructOrdersSameInstantByID(t *testing.T) {
	at := time.Date(2024, 3, 4, 12, 0, 0, 0, time.UTC)
	entries := []*models.PositionHistory{
		{ID: 8, TeamID: 1, OldRow: ip(1), OldCol: ip(1), NewRow: ip(2), NewCol: ip(1), EffectiveDate: at},
		{ID: 7, TeamID: 1, NewRow: ip(1), NewCol: ip(1), EffectiveDate: at},
	}
	assert.Equal(t, map[int]Cell{1: {2, 1}}, Reconstruct(entries, at))
}

func TestStandings(t *testing.T) {
	got := Standings(map[int]Cell{7: {2, 2}, 3: {1, 1}, 9: {2, 1}})
	assert.Equal(t, []Standing{
		{TeamID: 3, Cell: Cell{1, 1}},
		{TeamID: 9, Cell: Cell{2, 1}},
		{TeamID: 7, Cell: Cell{2, 2}},
	}, got)
}
