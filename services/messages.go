package services

import (
	"errors"
	"strings"
)

var messages = []struct {
	err error
	es  string
	en  string
}{
	{ErrMatchNotFound, "El partido no existe.", "The match does not exist."},
	{ErrPyramidNotFound, "La pirámide no existe.", "The pyramid does not exist."},
	{ErrTeamNotFound, "El equipo no existe.", "The team does not exist."},
	{ErrNoTeamInPyramid, "No tienes un equipo en esta pirámide.", "You have no team in this pyramid."},
	{ErrNotParticipant, "Tu equipo no participa en este partido.", "Your team does not play this match."},
	{ErrNotDefender, "Solo el equipo retado puede responder al reto.", "Only the challenged team may answer the challenge."},
	{ErrSelfChallenge, "Un equipo no puede retarse a sí mismo.", "A team cannot challenge itself."},
	{ErrTeamEngaged, "El equipo ya tiene un reto aceptado en curso.", "The team already has an accepted challenge in progress."},
	{ErrRowGapTooLarge, "Solo puedes retar a equipos a una fila de distancia.", "You can only challenge teams at most one row away."},
	{ErrPyramidInactive, "La pirámide no está activa.", "The pyramid is not active."},
	{ErrCellOutOfBounds, "La posición está fuera de la pirámide.", "The position is outside the pyramid."},
	{ErrInvalidRowCount, "El número de filas debe ser positivo.", "The row count must be positive."},
	{ErrPyramidNameNeeded, "La pirámide necesita un nombre.", "The pyramid needs a name."},
	{ErrPyramidNameTaken, "Ya existe una pirámide con ese nombre.", "A pyramid with that name already exists."},
	{ErrRowsStillSeated, "Hay equipos fuera del nuevo número de filas.", "Some teams sit outside the new row count."},
	{ErrSnapshotsDisabled, "El almacenamiento de instantáneas no está configurado.", "Snapshot storage is not configured."},
	{ErrScoreNotStarted, "Aún no se ha empezado a anotar el resultado.", "Scoring has not started for this match."},
	{ErrScoringStarted, "El resultado de este partido ya se está anotando.", "Scoring has already started for this match."},
	{ErrMatchNotAccepted, "Solo se puede anotar el resultado de un reto aceptado.", "Only an accepted challenge can be scored."},
	{ErrScoreNotSubmitted, "Todavía no se ha enviado ningún resultado.", "No score has been submitted yet."},
	{ErrScoreNotAgreed, "Ambos equipos deben aceptar el resultado primero.", "Both teams must agree on the score first."},
	{ErrInvalidSetCount, "Un partido tiene entre 1 y 5 sets.", "A match has between 1 and 5 sets."},
	{ErrSetCountMismatch, "Debes indicar los juegos de cada set.", "Games must be given for every set."},
	{ErrInvalidGames, "Cada set necesita un ganador y juegos no negativos.", "Every set needs a winner and non-negative games."},
	{ErrWinnerContradictsScore, "El ganador no coincide con el resultado acordado.", "The winner does not match the agreed score."},
	{ErrSerializationConflict, "Otra operación cambió la pirámide al mismo tiempo. Inténtalo de nuevo.", "Another operation changed the pyramid at the same time. Please try again."},

	{ErrNotFound, "El recurso solicitado no existe.", "The requested resource does not exist."},
	{ErrForbidden, "No tienes permiso para realizar esta acción.", "You are not allowed to perform this action."},
	{ErrInvalidTransition, "El partido no puede cambiar a ese estado.", "The match cannot move to that state."},
	{ErrDuplicateChallenge, "Ya existe un reto abierto entre estos equipos.", "An open challenge already exists between these teams."},
	{ErrTooManyRejections, "Has alcanzado el límite de rechazos; debes aceptar el reto.", "You have reached the rejection limit; you must accept the challenge."},
	{ErrInvalidWinner, "El ganador debe ser uno de los equipos del partido.", "The winner must be one of the teams in the match."},
	{ErrPositionNotFound, "El equipo no tiene posición en esta pirámide.", "The team has no position in this pyramid."},
	{ErrValidationFailed, "Los datos enviados no son válidos.", "The submitted data is not valid."},
	{ErrStorageFailure, "No se pudo completar la operación. Inténtalo de nuevo.", "The operation could not be completed. Please try again."},
}

// LocalizedMessage returns the user-facing text for err. Languages other
// than Spanish and English fall back to Spanish.
func LocalizedMessage(err error, lang string) string {
	english := strings.HasPrefix(strings.ToLower(strings.TrimSpace(lang)), "en")
	for _, m := range messages {
		if errors.Is(err, m.err) {
			if english {
				return m.en
			}
			return m.es
		}
	}
	return LocalizedMessage(ErrStorageFailure, lang)
}
