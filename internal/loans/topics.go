package loans

const (
	TopicLoanBorrowed         = "library.loan.borrowed"
	TopicLoanReturned         = "library.loan.returned"
	TopicLoanOverridden       = "library.loan.overridden"
	TopicFineMaterialized     = "library.fine.materialized"
	TopicFinePaymentRequested = "library.fine.payment_requested"
	TopicFinePaid             = "library.fine.paid"
)

// Topics lists every topic the api publishes to.
var Topics = []string{
	TopicLoanBorrowed,
	TopicLoanReturned,
	TopicLoanOverridden,
	TopicFineMaterialized,
	TopicFinePaymentRequested,
	TopicFinePaid,
}

// Partition key = loan id, so every event of one loan keeps its order.
func PartitionKey(loanID string) []byte { return []byte(loanID) }
