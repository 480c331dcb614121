package domain

type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusCheckedIn Status = "checked-in"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
	StatusNoShow    Status = "no-show"
	StatusWaitlist  Status = "waitlist"
)

var statusTransitions = map[Status][]Status{
	StatusScheduled: {StatusCheckedIn, StatusCompleted, StatusCancelled, StatusNoShow},
	StatusWaitlist:  {StatusScheduled, StatusCancelled},
	StatusCheckedIn: {StatusCompleted, StatusCancelled, StatusNoShow},
}

func (s Status) Valid() bool {
	switch s {
	case StatusScheduled, StatusCheckedIn, StatusCompleted, StatusCancelled, StatusNoShow, StatusWaitlist:
		return true
	}
	return false
}

// Terminal statuses accept no further transitions.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled || s == StatusNoShow
}

func (s Status) CanTransitionTo(next Status) bool {
	if s == next {
		return true
	}
	for _, allowed := range statusTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}
