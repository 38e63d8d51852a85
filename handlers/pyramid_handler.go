package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Dosada05/pyramid-ladder/services"
)

const (
	defaultHistoryLimit = 100
	maxHistoryLimit     = 1000
)

type PyramidHandler struct {
	pyramidService services.PyramidService
	logger         *slog.Logger
}

func NewPyramidHandler(ps services.PyramidService, logger *slog.Logger) *PyramidHandler {
	return &PyramidHandler{pyramidService: ps, logger: logger}
}

func (h *PyramidHandler) ListPyramids(w http.ResponseWriter, r *http.Request) {
	pyramids, err := h.pyramidService.ListActive(r.Context())
	if err != nil {
		serviceErrorResponse(w, r, h.logger, err)
		return
	}
	okResponse(w, r, h.logger, http.StatusOK, "pyramids", pyramids)
}

func (h *PyramidHandler) GetPyramid(w http.ResponseWriter, r *http.Request) {
	pyramidID, err := getIDFromURL(r, "pyramidID")
	if err != nil {
		badRequestResponse(w, r, h.logger, err)
		return
	}
	view, err := h.pyramidService.GetPyramid(r.Context(), pyramidID)
	if err != nil {
		serviceErrorResponse(w, r, h.logger, err)
		return
	}
	okResponse(w, r, h.logger, http.StatusOK, "pyramid", view)
}

// ListHistory serves the position ledger in effective order.
// Query: ?team_id= narrows to one team, ?limit= caps the page.
func (h *PyramidHandler) ListHistory(w http.ResponseWriter, r *http.Request) {
	pyramidID, err := getIDFromURL(r, "pyramidID")
	if err != nil {
		badRequestResponse(w, r, h.logger, err)
		return
	}
	teamID, err := optionalQueryInt(r, "team_id")
	if err != nil {
		badRequestResponse(w, r, h.logger, err)
		return
	}
	limit := defaultHistoryLimit
	if l, err := optionalQueryInt(r, "limit"); err != nil {
		badRequestResponse(w, r, h.logger, err)
		return
	} else if l != nil {
		limit = min(*l, maxHistoryLimit)
	}

	entries, err := h.pyramidService.ListHistory(r.Context(), pyramidID, teamID, limit)
	if err != nil {
		serviceErrorResponse(w, r, h.logger, err)
		return
	}
	okResponse(w, r, h.logger, http.StatusOK, "history", entries)
}

// StandingsAt replays the ledger to ?ts= (defaults to now).
func (h *PyramidHandler) StandingsAt(w http.ResponseWriter, r *http.Request) {
	pyramidID, err := getIDFromURL(r, "pyramidID")
	if err != nil {
		badRequestResponse(w, r, h.logger, err)
		return
	}
	at, err := queryTime(r, "ts", time.Now())
	if err != nil {
		badRequestResponse(w, r, h.logger, err)
		return
	}
	if at.After(time.Now().Add(time.Minute)) {
		badRequestResponse(w, r, h.logger, errors.New("'ts' must not be in the future"))
		return
	}

	standings, err := h.pyramidService.ReconstructAt(r.Context(), pyramidID, at)
	if err != nil {
		serviceErrorResponse(w, r, h.logger, err)
		return
	}
	okResponse(w, r, h.logger, http.StatusOK, "standings", jsonResponse{
		"at":        at.UTC(),
		"positions": standings,
	})
}
