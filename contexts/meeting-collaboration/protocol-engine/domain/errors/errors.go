package errors

import "errors"

// Validation errors: the request itself is unacceptable.
var (
	ErrInvalidID            = errors.New("malformed identifier")
	ErrInvalidRequest       = errors.New("invalid request")
	ErrGroupNesting         = errors.New("groups cannot be placed inside groups")
	ErrConflictingOverride  = errors.New("item cannot be forcefully prioritized and deprioritized")
	ErrPhaseDisallowsVoting = errors.New("current phase does not accept votes")
	ErrVoteBudgetExceeded   = errors.New("vote budget for this phase is exhausted")
	ErrAlreadyVoted         = errors.New("participant already voted for this item")
	ErrPhaseNotReady        = errors.New("current phase is not ready to advance")
	ErrProtocolCompleted    = errors.New("protocol is already completed")
	ErrProtocolTypeEmpty    = errors.New("protocol type has no phases")
)

// Not-found errors: the referenced record does not exist (or is foreign).
var (
	ErrProtocolNotFound     = errors.New("protocol not found")
	ErrProtocolTypeNotFound = errors.New("protocol type not found")
	ErrPhaseNotFound        = errors.New("protocol phase not found")
	ErrItemNotFound         = errors.New("protocol item not found")
	ErrActionNotFound       = errors.New("protocol item action not found")
	ErrMeetingNotFound      = errors.New("meeting not found")
)

// Consistency errors.
var (
	ErrPhaseInconsistent = errors.New("current phase index does not exist in protocol type")
	ErrConflict          = errors.New("protocol conflict")
)

var ErrForbidden = errors.New("forbidden")
