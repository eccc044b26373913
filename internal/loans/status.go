package loans

import "time"

type Status string

const (
	StatusBorrowed Status = "BORROWED"
	StatusReturned Status = "RETURNED"
)

// StatusOverdue is never stored; it is reported for BORROWED loans past their due time.
const StatusOverdue Status = "OVERDUE"

var validNext = map[Status]map[Status]bool{
	StatusBorrowed: {StatusReturned: true},
	StatusReturned: {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

// DisplayStatus folds the overdue predicate into the stored status for listings.
func (t Transaction) DisplayStatus(now time.Time) Status {
	if t.Overdue(now) {
		return StatusOverdue
	}
	return t.Status
}
