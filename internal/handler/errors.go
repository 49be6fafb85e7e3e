package handler

import (
	"errors"

	"ems-dispatch-api/internal/service"
	"ems-dispatch-api/pkg/apierror"
)

// serviceError maps service sentinel errors onto API errors.
func serviceError(err error) error {
	switch {
	case errors.Is(err, service.ErrPlayerNotFound):
		return apierror.NotFound("player not found")
	case errors.Is(err, service.ErrCallNotFound):
		return apierror.NotFound("call not found")
	case errors.Is(err, service.ErrInvalidRank):
		return apierror.BadRequest("rank is not in the rank table")
	case errors.Is(err, service.ErrNotSupervisor):
		return apierror.Forbidden("supervisor rank required")
	case errors.Is(err, service.ErrNotAssignee):
		return apierror.Forbidden("only the assigned unit may complete this call")
	case errors.Is(err, service.ErrOffDuty):
		return apierror.Conflict("player is off duty").WithCode("OFF_DUTY")
	case errors.Is(err, service.ErrCallNotPending):
		return apierror.Conflict("call is not pending").WithCode("CALL_NOT_PENDING")
	case errors.Is(err, service.ErrCallClosed):
		return apierror.Conflict("call is already closed").WithCode("CALL_CLOSED")
	case errors.Is(err, service.ErrNoUnitsInService):
		return apierror.Conflict("no on-duty units available").WithCode("NO_UNITS")
	case errors.Is(err, service.ErrEmptyDescription):
		return apierror.BadRequest("description is required")
	case errors.Is(err, service.ErrDescriptionTooLong):
		return apierror.BadRequest("description is too long")
	case errors.Is(err, service.ErrInvalidPosition):
		return apierror.BadRequest("position must be finite coordinates")
	default:
		return apierror.InternalError("")
	}
}
