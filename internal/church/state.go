package church

var transitions = map[Status][]Status{
	StatusPending:     {StatusApproved, StatusRejected, StatusUnderReview, StatusSuspended},
	StatusUnderReview: {StatusPending, StatusSuspended},
	StatusApproved:    {StatusSuspended},
	StatusSuspended:   {StatusPending, StatusUnderReview, StatusApproved},
	StatusRejected:    nil,
}

func CanTransition(from, to Status) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
