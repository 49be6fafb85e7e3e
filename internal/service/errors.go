package service

import "errors"

// Sentinel errors returned by the roster and dispatch services.
// Handlers map these onto API error responses.
var (
	ErrPlayerNotFound     = errors.New("player not found")
	ErrCallNotFound       = errors.New("call not found")
	ErrInvalidRank        = errors.New("rank is not in the rank table")
	ErrNotSupervisor      = errors.New("supervisor rank required")
	ErrOffDuty            = errors.New("player is off duty")
	ErrCallNotPending     = errors.New("call is not pending")
	ErrCallClosed         = errors.New("call is already closed")
	ErrNotAssignee        = errors.New("player is not the assignee of this call")
	ErrNoUnitsInService   = errors.New("no on-duty units available")
	ErrEmptyDescription   = errors.New("call description is required")
	ErrDescriptionTooLong = errors.New("call description exceeds the maximum length")
	ErrInvalidPosition    = errors.New("position must be finite coordinates")
)
