package services

import (
	"errors"

	"github.com/gofiber/fiber/v2"
)

// Service errors form a stable taxonomy so handlers (and callers retrying
// lost races) can tell outcomes apart. Conflict-class errors are always safe
// to retry: the enclosing transaction guarantees no partial debit or roster
// insert survives a lost race.
var (
	ErrBattleNotFound      = errors.New("battle not found")
	ErrBoxNotFound         = errors.New("box not found")
	ErrParticipantNotFound = errors.New("participant not found")
	ErrOrderNotFound       = errors.New("order not found")

	ErrAlreadyJoined       = errors.New("user already joined this battle")
	ErrBattleFull          = errors.New("battle is full")
	ErrBattleNotWaiting    = errors.New("battle is not accepting participants")
	ErrBattleNotInProgress = errors.New("battle is not in progress")
	ErrBattleNotFinished   = errors.New("battle is not finished")
	ErrRoundsExhausted     = errors.New("participant has no rounds remaining")
	ErrRoundConflict       = errors.New("concurrent round execution, retry")
	ErrNotReady            = errors.New("not all participants have pulled")
	ErrAlreadySettled      = errors.New("battle already settled")
	ErrAlreadyPaid         = errors.New("order already paid")

	ErrInsufficientFunds = errors.New("insufficient coin balance")
	ErrNoAvailableTeams  = errors.New("no team has a free slot")
	ErrNoParticipants    = errors.New("battle has no participants")
	ErrDrawTableInvalid  = errors.New("draw table is invalid")

	ErrForbidden = errors.New("forbidden")
)

// ValidationError rejects malformed input before any mutation.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func Validationf(reason string) error { return &ValidationError{Reason: reason} }

// HTTPStatus maps a service error onto the HTTP code handlers respond with.
func HTTPStatus(err error) int {
	var ve *ValidationError
	switch {
	case errors.Is(err, ErrBattleNotFound),
		errors.Is(err, ErrBoxNotFound),
		errors.Is(err, ErrParticipantNotFound),
		errors.Is(err, ErrOrderNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, ErrAlreadyJoined),
		errors.Is(err, ErrBattleFull),
		errors.Is(err, ErrBattleNotWaiting),
		errors.Is(err, ErrBattleNotInProgress),
		errors.Is(err, ErrBattleNotFinished),
		errors.Is(err, ErrRoundsExhausted),
		errors.Is(err, ErrRoundConflict),
		errors.Is(err, ErrNotReady),
		errors.Is(err, ErrAlreadySettled),
		errors.Is(err, ErrAlreadyPaid),
		errors.Is(err, ErrNoAvailableTeams):
		return fiber.StatusConflict
	case errors.Is(err, ErrInsufficientFunds):
		return fiber.StatusPaymentRequired
	case errors.Is(err, ErrForbidden):
		return fiber.StatusForbidden
	case errors.Is(err, ErrDrawTableInvalid), errors.Is(err, ErrNoParticipants):
		return fiber.StatusUnprocessableEntity
	case errors.As(err, &ve):
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}
