package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Dosada05/pyramid-ladder/services"
)

// AdminHandler exposes league administration: pyramid setup, manual
// placement, the inactivity pass and snapshot export.
type AdminHandler struct {
	positionService services.PositionService
	riskyService    services.RiskyService
	snapshotService services.SnapshotService
	logger          *slog.Logger
}

func NewAdminHandler(ps services.PositionService, rs services.RiskyService, ss services.SnapshotService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{
		positionService: ps,
		riskyService:    rs,
		snapshotService: ss,
		logger:          logger,
	}
}

type createPyramidInput struct {
	Name     string `json:"name" validate:"required,max=100"`
	RowCount int    `json:"row_count" validate:"required,gte=1,lte=50"`
}

type updatePyramidInput struct {
	Name     *string `json:"name" validate:"omitempty,max=100"`
	RowCount *int    `json:"row_count" validate:"omitempty,gte=1,lte=50"`
	Active   *bool   `json:"active"`
}

type placeTeamInput struct {
	TeamID int `json:"team_id" validate:"required,gt=0"`
	Row    int `json:"row" validate:"required,gt=0"`
	Col    int `json:"col" validate:"required,gt=0"`
}

func (h *AdminHandler) CreatePyramid(w http.ResponseWriter, r *http.Request) {
	var input createPyramidInput
	if !readValidJSON(w, r, h.logger, &input) {
		return
	}
	p, err := h.positionService.CreatePyramid(r.Context(), input.Name, input.RowCount)
	if err != nil {
		serviceErrorResponse(w, r, h.logger, err)
		return
	}
	h.logger.Info("pyramid created", slog.Int("pyramid_id", p.ID), slog.Int("row_count", p.RowCount))
	okResponse(w, r, h.logger, http.StatusCreated, "pyramid", p)
}

// UpdatePyramid applies a partial change; absent keys keep their value.
func (h *AdminHandler) UpdatePyramid(w http.ResponseWriter, r *http.Request) {
	pyramidID, err := getIDFromURL(r, "pyramidID")
	if err != nil {
		badRequestResponse(w, r, h.logger, err)
		return
	}
	var input updatePyramidInput
	if !readValidJSON(w, r, h.logger, &input) {
		return
	}
	if input.Name == nil && input.RowCount == nil && input.Active == nil {
		badRequestResponse(w, r, h.logger, errors.New("nothing to update"))
		return
	}

	p, err := h.positionService.UpdatePyramid(r.Context(), pyramidID, services.PyramidUpdate{
		Name:     input.Name,
		RowCount: input.RowCount,
		Active:   input.Active,
	})
	if err != nil {
		serviceErrorResponse(w, r, h.logger, err)
		return
	}
	okResponse(w, r, h.logger, http.StatusOK, "pyramid", p)
}

func (h *AdminHandler) PlaceTeam(w http.ResponseWriter, r *http.Request) {
	pyramidID, err := getIDFromURL(r, "pyramidID")
	if err != nil {
		badRequestResponse(w, r, h.logger, err)
		return
	}
	var input placeTeamInput
	if !readValidJSON(w, r, h.logger, &input) {
		return
	}
	placement, err := h.positionService.PlaceTeam(r.Context(), pyramidID, input.TeamID, input.Row, input.Col)
	if err != nil {
		serviceErrorResponse(w, r, h.logger, err)
		return
	}
	okResponse(w, r, h.logger, http.StatusOK, "placement", placement)
}

func (h *AdminHandler) RemoveTeam(w http.ResponseWriter, r *http.Request) {
	pyramidID, err := getIDFromURL(r, "pyramidID")
	if err != nil {
		badRequestResponse(w, r, h.logger, err)
		return
	}
	teamID, err := getIDFromURL(r, "teamID")
	if err != nil {
		badRequestResponse(w, r, h.logger, err)
		return
	}
	placement, err := h.positionService.RemoveTeam(r.Context(), pyramidID, teamID)
	if err != nil {
		serviceErrorResponse(w, r, h.logger, err)
		return
	}
	okResponse(w, r, h.logger, http.StatusOK, "placement", placement)
}

// RunRiskyCheck marks inactive teams of one pyramid on demand, outside the
// scheduler.
func (h *AdminHandler) RunRiskyCheck(w http.ResponseWriter, r *http.Request) {
	pyramidID, err := getIDFromURL(r, "pyramidID")
	if err != nil {
		badRequestResponse(w, r, h.logger, err)
		return
	}
	report, err := h.riskyService.MarkRiskyTeams(r.Context(), pyramidID)
	if err != nil {
		serviceErrorResponse(w, r, h.logger, err)
		return
	}
	okResponse(w, r, h.logger, http.StatusOK, "report", report)
}

func (h *AdminHandler) ExportSnapshot(w http.ResponseWriter, r *http.Request) {
	pyramidID, err := getIDFromURL(r, "pyramidID")
	if err != nil {
		badRequestResponse(w, r, h.logger, err)
		return
	}
	at, err := queryTime(r, "at", time.Now())
	if err != nil {
		badRequestResponse(w, r, h.logger, err)
		return
	}
	export, err := h.snapshotService.ExportSnapshot(r.Context(), pyramidID, at)
	if err != nil {
		serviceErrorResponse(w, r, h.logger, err)
		return
	}
	okResponse(w, r, h.logger, http.StatusCreated, "snapshot", export)
}
