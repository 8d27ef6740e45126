package store

import "puppyspa/waitlist-service/internal/models"

const (
	ActionComplete = "complete"
	ActionReopen   = "reopen"
)

var transitionMap = map[string][]string{
	ActionComplete: {models.StatusWaiting},
	ActionReopen:   {models.StatusCompleted},
}

func ValidTransition(action, fromStatus string) bool {
	allowed, ok := transitionMap[action]
	if !ok {
		return false
	}
	for _, status := range allowed {
		if status == fromStatus {
			return true
		}
	}
	return false
}

func ValidStatus(status string) bool {
	return status == models.StatusWaiting || status == models.StatusCompleted
}

// ActionFor returns the action that moves an entry from one status to another.
func ActionFor(fromStatus, toStatus string) (string, bool) {
	switch {
	case fromStatus == models.StatusWaiting && toStatus == models.StatusCompleted:
		return ActionComplete, true
	case fromStatus == models.StatusCompleted && toStatus == models.StatusWaiting:
		return ActionReopen, true
	default:
		return "", false
	}
}
