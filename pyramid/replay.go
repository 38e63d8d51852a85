package pyramid

import (
	"sort"
	"time"

	"github.com/Dosada05/pyramid-ladder/models"
)

type touch struct {
	cell  Cell
	onTop bool
}

// Reconstruct replays ledger entries up to and including ts and returns the
// cell held by each team at that instant. For every team the latest entry
// touching it, as primary or affected party, decides its cell; a nil new row
// means the team was off the ladder.
func Reconstruct(entries []*models.PositionHistory, ts time.Time) map[int]Cell {
	sorted := make([]*models.PositionHistory, 0, len(entries))
	for _, e := range entries {
		if !e.EffectiveDate.After(ts) {
			sorted = append(sorted, e)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		if !sorted[i].EffectiveDate.Equal(sorted[j].EffectiveDate) {
			return sorted[i].EffectiveDate.Before(sorted[j].EffectiveDate)
		}
		return sorted[i].ID < sorted[j].ID
	})

	latest := make(map[int]touch)
	record := func(teamID int, row, col *int) {
		var t touch
		if row != nil && col != nil {
			t.cell = Cell{Row: *row, Col: *col}
			t.onTop = true
		}
		latest[teamID] = t
	}

	for _, e := range sorted {
		record(e.TeamID, e.NewRow, e.NewCol)
		if e.AffectedTeamID != nil {
			record(*e.AffectedTeamID, e.AffectedNewRow, e.AffectedNewCol)
		}
	}

	out := make(map[int]Cell, len(latest))
	for teamID, t := range latest {
		if t.onTop {
			out[teamID] = t.cell
		}
	}
	return out
}

// Standing is one row of a reconstructed ladder, ordered best first.
type Standing struct {
	TeamID int  `json:"team_id"`
	Cell   Cell `json:"cell"`
}

// Standings orders a reconstructed ladder from the apex down.
func Standings(cells map[int]Cell) []Standing {
	out := make([]Standing, 0, len(cells))
	for teamID, cell := range cells {
		out = append(out, Standing{TeamID: teamID, Cell: cell})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Cell == out[j].Cell {
			return out[i].TeamID < out[j].TeamID
		}
		return out[i].Cell.Better(out[j].Cell)
	})
	return out
}
