package fines

type Status string

const (
	StatusUnpaid  Status = "UNPAID"
	StatusPending Status = "PENDING_CONFIRMATION"
	StatusPaid    Status = "PAID"
)

// borrower-initiated path only; admin shortcuts are checked in fine.go
var validNext = map[Status]map[Status]bool{
	StatusUnpaid:  {StatusPending: true},
	StatusPending: {StatusPaid: true},
	StatusPaid:    {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}
