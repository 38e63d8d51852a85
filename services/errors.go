package services

import (
	"errors"
	"fmt"

	"github.com/Dosada05/pyramid-ladder/repositories"
)

type ErrorKind string

const (
	KindNotFound           ErrorKind = "NotFound"
	KindForbidden          ErrorKind = "Forbidden"
	KindInvalidTransition  ErrorKind = "InvalidTransition"
	KindDuplicateChallenge ErrorKind = "DuplicateChallenge"
	KindTooManyRejections  ErrorKind = "TooManyRejections"
	KindInvalidWinner      ErrorKind = "InvalidWinner"
	KindPositionNotFound   ErrorKind = "PositionNotFound"
	KindValidationFailed   ErrorKind = "ValidationFailed"
	KindStorageFailure     ErrorKind = "StorageFailure"
)

// Ошибки по видам. Конкретные ошибки ниже оборачивают одну из них.
var (
	ErrNotFound           = errors.New("requested resource not found")
	ErrForbidden          = errors.New("operation not allowed for the current user")
	ErrInvalidTransition  = errors.New("invalid match status transition")
	ErrDuplicateChallenge = errors.New("an open challenge already exists between these teams")
	ErrTooManyRejections  = errors.New("rejection limit reached, the challenge must be accepted")
	ErrInvalidWinner      = errors.New("winner must be one of the match participants")
	ErrPositionNotFound   = errors.New("team has no position in this pyramid")
	ErrValidationFailed   = errors.New("validation failed")
	ErrStorageFailure     = errors.New("storage failure")
)

var (
	ErrMatchNotFound   = fmt.Errorf("%w: match not found", ErrNotFound)
	ErrPyramidNotFound = fmt.Errorf("%w: pyramid not found", ErrNotFound)
	ErrTeamNotFound    = fmt.Errorf("%w: team not found", ErrNotFound)

	ErrNoTeamInPyramid = fmt.Errorf("%w: user has no team in this pyramid", ErrForbidden)
	ErrNotParticipant  = fmt.Errorf("%w: user's team does not play this match", ErrForbidden)
	ErrNotDefender     = fmt.Errorf("%w: only the defending team may answer a challenge", ErrForbidden)

	ErrSelfChallenge     = fmt.Errorf("%w: a team cannot challenge itself", ErrInvalidTransition)
	ErrTeamEngaged       = fmt.Errorf("%w: team is already engaged in an accepted match", ErrInvalidTransition)
	ErrRowGapTooLarge    = fmt.Errorf("%w: teams must be at most one row apart", ErrInvalidTransition)
	ErrPyramidInactive   = fmt.Errorf("%w: pyramid is not active", ErrInvalidTransition)
	ErrCellOutOfBounds   = fmt.Errorf("%w: cell is outside the pyramid", ErrValidationFailed)
	ErrInvalidRowCount   = fmt.Errorf("%w: row count must be positive", ErrValidationFailed)
	ErrPyramidNameNeeded = fmt.Errorf("%w: pyramid name is required", ErrValidationFailed)
	ErrPyramidNameTaken  = fmt.Errorf("%w: pyramid name already exists", ErrValidationFailed)
	ErrRowsStillSeated   = fmt.Errorf("%w: teams are seated outside the new row count", ErrValidationFailed)
	ErrSnapshotsDisabled = fmt.Errorf("%w: snapshot storage is not configured", ErrValidationFailed)

	ErrScoreNotStarted        = fmt.Errorf("%w: scoring has not started for this match", ErrNotFound)
	ErrScoringStarted         = fmt.Errorf("%w: scoring already started for this match", ErrInvalidTransition)
	ErrMatchNotAccepted       = fmt.Errorf("%w: only an accepted match can be scored", ErrInvalidTransition)
	ErrScoreNotSubmitted      = fmt.Errorf("%w: no score has been submitted yet", ErrInvalidTransition)
	ErrScoreNotAgreed         = fmt.Errorf("%w: both teams must agree on the score first", ErrInvalidTransition)
	ErrInvalidSetCount        = fmt.Errorf("%w: a match has between 1 and 5 sets", ErrValidationFailed)
	ErrSetCountMismatch       = fmt.Errorf("%w: games must be given for every set", ErrValidationFailed)
	ErrInvalidGames           = fmt.Errorf("%w: every set needs a winner and non-negative games", ErrValidationFailed)
	ErrWinnerContradictsScore = fmt.Errorf("%w: winner differs from the agreed score", ErrInvalidWinner)

	ErrSerializationConflict = fmt.Errorf("%w: a concurrent update won, retry the request", ErrStorageFailure)
)

var kinds = []struct {
	err  error
	kind ErrorKind
}{
	{ErrNotFound, KindNotFound},
	{ErrForbidden, KindForbidden},
	{ErrInvalidTransition, KindInvalidTransition},
	{ErrDuplicateChallenge, KindDuplicateChallenge},
	{ErrTooManyRejections, KindTooManyRejections},
	{ErrInvalidWinner, KindInvalidWinner},
	{ErrPositionNotFound, KindPositionNotFound},
	{ErrValidationFailed, KindValidationFailed},
	{ErrStorageFailure, KindStorageFailure},
}

// KindOf classifies err. Anything unrecognised is a storage failure: the
// transaction cannot be trusted to have applied.
func KindOf(err error) ErrorKind {
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindStorageFailure
}

// storageFailure tags an unclassified error so callers can tell it apart from
// business refusals. Classified errors pass through untouched.
func storageFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return err
		}
	}
	if repositories.IsSerializationFailure(err) {
		return fmt.Errorf("%w: %s: %w", ErrSerializationConflict, op, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrStorageFailure, op, err)
}

// Result is the structured outcome returned to callers of the ladder engine.
type Result struct {
	Success bool      `json:"success"`
	Kind    ErrorKind `json:"kind,omitempty"`
	Message string    `json:"message,omitempty"`
}

// ResultFromError converts err to a Result with a message in lang.
func ResultFromError(err error, lang string) Result {
	if err == nil {
		return Result{Success: true}
	}
	return Result{Success: false, Kind: KindOf(err), Message: LocalizedMessage(err, lang)}
}
