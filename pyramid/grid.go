package pyramid

import (
	"errors"
	"fmt"

	"github.com/Dosada05/pyramid-ladder/models"
)

var (
	ErrCellOutOfBounds = errors.New("cell is outside the pyramid")
	ErrCellOccupied    = errors.New("cell is held by more than one team")
	ErrTeamDuplicated  = errors.New("team holds more than one cell")
)

// Cell is a (row, col) slot. Row 1 col 1 is the top of the ladder.
type Cell struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// SentinelCell parks a team mid-swap so the unique (pyramid,row,col)
// constraint never sees two teams in one cell.
var SentinelCell = Cell{Row: -1, Col: -1}

func (c Cell) String() string {
	return fmt.Sprintf("(%d,%d)", c.Row, c.Col)
}

// InTriangle reports whether 1 <= col <= row <= rowCount.
func (c Cell) InTriangle(rowCount int) bool {
	return c.Row >= 1 && c.Row <= rowCount && c.Col >= 1 && c.Col <= c.Row
}

// Better reports whether c ranks strictly above other: lower row first,
// then lower column.
func (c Cell) Better(other Cell) bool {
	if c.Row != other.Row {
		return c.Row < other.Row
	}
	return c.Col < other.Col
}

// CellarCell is the fixed slot below the triangle used by streak demotion.
func CellarCell(rowCount int) Cell {
	return Cell{Row: rowCount + 1, Col: 1}
}

// IsCellar reports whether c is the cellar of a pyramid with rowCount rows.
func (c Cell) IsCellar(rowCount int) bool {
	return c == CellarCell(rowCount)
}

// Playable reports whether a team may legally hold c.
func (c Cell) Playable(rowCount int) bool {
	return c.InTriangle(rowCount) || c.IsCellar(rowCount)
}

// NextPosition returns the next worse cell in row-major triangular order.
// The bottom-right cell and any cell outside the triangle have no successor.
func NextPosition(current Cell, rowCount int) (Cell, bool) {
	if !current.InTriangle(rowCount) {
		return Cell{}, false
	}
	if current.Col < current.Row {
		return Cell{Row: current.Row, Col: current.Col + 1}, true
	}
	if current.Row < rowCount {
		return Cell{Row: current.Row + 1, Col: 1}, true
	}
	return Cell{}, false
}

// PreviousPosition is the mirror of NextPosition; the apex has no predecessor.
func PreviousPosition(current Cell, rowCount int) (Cell, bool) {
	if !current.InTriangle(rowCount) {
		return Cell{}, false
	}
	if current.Col > 1 {
		return Cell{Row: current.Row, Col: current.Col - 1}, true
	}
	if current.Row > 1 {
		return Cell{Row: current.Row - 1, Col: current.Row - 1}, true
	}
	return Cell{}, false
}

// ShouldSwap decides whether a winner takes the loser's cell. Equal cells
// count as a swap so the tie-break always favours the winner.
func ShouldSwap(winner, loser Cell) bool {
	return winner.Row > loser.Row || (winner.Row == loser.Row && winner.Col >= loser.Col)
}

// RowDistance is the absolute row gap between two cells.
func RowDistance(a, b Cell) int {
	d := a.Row - b.Row
	if d < 0 {
		return -d
	}
	return d
}

// CellOf extracts the cell of a stored position.
func CellOf(p *models.Position) Cell {
	return Cell{Row: p.Row, Col: p.Col}
}

// Capacity is the number of triangle cells for rowCount rows.
func Capacity(rowCount int) int {
	return rowCount * (rowCount + 1) / 2
}

// ValidateLayout checks the one-team-per-cell and one-cell-per-team rules.
func ValidateLayout(positions []*models.Position, rowCount int) error {
	byCell := make(map[Cell]int, len(positions))
	byTeam := make(map[int]Cell, len(positions))
	for _, p := range positions {
		cell := CellOf(p)
		if !cell.Playable(rowCount) {
			return fmt.Errorf("%w: team %d at %s", ErrCellOutOfBounds, p.TeamID, cell)
		}
		if other, ok := byCell[cell]; ok {
			return fmt.Errorf("%w: %s held by teams %d and %d", ErrCellOccupied, cell, other, p.TeamID)
		}
		if other, ok := byTeam[p.TeamID]; ok {
			return fmt.Errorf("%w: team %d at %s and %s", ErrTeamDuplicated, p.TeamID, other, cell)
		}
		byCell[cell] = p.TeamID
		byTeam[p.TeamID] = cell
	}
	return nil
}
