package dispatch

import (
	"github.com/fernandoCroxiatti/gigaserv-on-demand-sub001/models"
)

// allowedTransitions is the chamado lifecycle graph. Terminal states have no
// outgoing edges; idle is only re-entered by an explicit reset after a
// terminal state.
var allowedTransitions = map[models.RequestStatus][]models.RequestStatus{
	models.StatusIdle:      {models.StatusSearching},
	models.StatusSearching: {models.StatusAccepted, models.StatusCanceled},
	models.StatusAccepted:  {models.StatusNegotiating, models.StatusCanceled},
	models.StatusNegotiating: {
		models.StatusAwaitingPayment,
		models.StatusCanceled,
	},
	models.StatusAwaitingPayment: {models.StatusInService, models.StatusCanceled},
	models.StatusInService:       {models.StatusPendingClientConf, models.StatusCanceled},
	models.StatusPendingClientConf: {
		models.StatusFinished,
	},
	models.StatusFinished: {},
	models.StatusCanceled: {},
}

// CanTransition reports whether from -> to is an allowed lifecycle edge.
// Legacy "confirmed" is normalized to in_service before the check.
func CanTransition(from, to models.RequestStatus) bool {
	from = models.NormalizeStatus(from)
	to = models.NormalizeStatus(to)
	if from == to {
		return true
	}
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
