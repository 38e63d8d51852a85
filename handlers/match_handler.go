package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Dosada05/pyramid-ladder/models"
	"github.com/Dosada05/pyramid-ladder/services"
)

type MatchHandler struct {
	matchService      services.MatchService
	expirationService services.ExpirationService
	logger            *slog.Logger
}

func NewMatchHandler(ms services.MatchService, es services.ExpirationService, logger *slog.Logger) *MatchHandler {
	return &MatchHandler{
		matchService:      ms,
		expirationService: es,
		logger:            logger,
	}
}

type createMatchInput struct {
	DefenderTeamID int `json:"defender_team_id" validate:"required,gt=0"`
}

type completeMatchInput struct {
	WinnerTeamID int `json:"winner_team_id" validate:"required,gt=0"`
}

func (h *MatchHandler) CreateChallenge(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}
	pyramidID, err := getIDFromURL(r, "pyramidID")
	if err != nil {
		badRequestResponse(w, r, h.logger, err)
		return
	}
	var input createMatchInput
	if !readValidJSON(w, r, h.logger, &input) {
		return
	}

	match, err := h.matchService.Create(r.Context(), userID, pyramidID, input.DefenderTeamID)
	if err != nil {
		serviceErrorResponse(w, r, h.logger, err)
		return
	}
	okResponse(w, r, h.logger, http.StatusCreated, "match", match)
}

// ListMatches returns the caller's matches in one pyramid, optionally
// filtered by ?status=.
func (h *MatchHandler) ListMatches(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}
	pyramidID, err := getIDFromURL(r, "pyramidID")
	if err != nil {
		badRequestResponse(w, r, h.logger, err)
		return
	}

	var status *models.MatchStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		s := models.MatchStatus(raw)
		switch s {
		case models.MatchStatusPending, models.MatchStatusAccepted, models.MatchStatusPlayed,
			models.MatchStatusRejected, models.MatchStatusCancelled:
			status = &s
		default:
			badRequestResponse(w, r, h.logger, errors.New("unknown match status filter"))
			return
		}
	}

	matches, err := h.matchService.ListForUser(r.Context(), userID, pyramidID, status)
	if err != nil {
		serviceErrorResponse(w, r, h.logger, err)
		return
	}
	okResponse(w, r, h.logger, http.StatusOK, "matches", matches)
}

func (h *MatchHandler) GetMatch(w http.ResponseWriter, r *http.Request) {
	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, h.logger, err)
		return
	}
	match, err := h.matchService.Get(r.Context(), matchID)
	if err != nil {
		serviceErrorResponse(w, r, h.logger, err)
		return
	}
	okResponse(w, r, h.logger, http.StatusOK, "match", match)
}

func (h *MatchHandler) AcceptChallenge(w http.ResponseWriter, r *http.Request) {
	h.answer(w, r, h.matchService.Accept)
}

func (h *MatchHandler) RejectChallenge(w http.ResponseWriter, r *http.Request) {
	h.answer(w, r, h.matchService.Reject)
}

func (h *MatchHandler) CancelChallenge(w http.ResponseWriter, r *http.Request) {
	h.answer(w, r, h.matchService.Cancel)
}

type matchTransition func(ctx context.Context, userID, matchID int) (*models.Match, error)

func (h *MatchHandler) answer(w http.ResponseWriter, r *http.Request, transition matchTransition) {
	userID, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}
	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, h.logger, err)
		return
	}
	match, err := transition(r.Context(), userID, matchID)
	if err != nil {
		serviceErrorResponse(w, r, h.logger, err)
		return
	}
	okResponse(w, r, h.logger, http.StatusOK, "match", match)
}

func (h *MatchHandler) CompleteMatch(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}
	matchID, err := getIDFromURL(r, "matchID")
	if err != nil {
		badRequestResponse(w, r, h.logger, err)
		return
	}
	var input completeMatchInput
	if !readValidJSON(w, r, h.logger, &input) {
		return
	}

	resolution, err := h.matchService.Complete(r.Context(), userID, matchID, input.WinnerTeamID)
	if err != nil {
		serviceErrorResponse(w, r, h.logger, err)
		return
	}
	okResponse(w, r, h.logger, http.StatusOK, "resolution", resolution)
}

// SweepExpired applies the expiry rule to every team the caller owns.
func (h *MatchHandler) SweepExpired(w http.ResponseWriter, r *http.Request) {
	userID, ok := currentUser(w, r, h.logger)
	if !ok {
		return
	}
	results, err := h.expirationService.SweepExpired(r.Context(), userID)
	if err != nil {
		serviceErrorResponse(w, r, h.logger, err)
		return
	}
	okResponse(w, r, h.logger, http.StatusOK, "sweep", results)
}
