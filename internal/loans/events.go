package loans

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

const (
	EventLoanBorrowed         = "LoanBorrowed"
	EventLoanReturned         = "LoanReturned"
	EventFineMaterialized     = "FineMaterialized"
	EventFinePaymentRequested = "FinePaymentRequested"
	EventFinePaid             = "FinePaid"
	EventLoanOverridden       = "LoanOverridden"
)

type Envelope struct {
	EventID       string          `json:"event_id"`      // uuid
	EventType     string          `json:"event_type"`    // salah satu const di atas
	EventVersion  int             `json:"event_version"` // 1
	OccurredAt    time.Time       `json:"occurred_at"`
	Producer      string          `json:"producer"` // e.g., "library-api"
	TraceID       string          `json:"trace_id,omitempty"`
	CorrelationID string          `json:"correlation_id,omitempty"` // loan id
	Payload       json.RawMessage `json:"payload"`
}

// ---- Payload per event ----

type LoanBorrowedPayload struct {
	LoanID     string    `json:"loan_id"`
	BookID     string    `json:"book_id"`
	BorrowerID string    `json:"borrower_id"`
	DueAt      time.Time `json:"due_at"`
}

type LoanReturnedPayload struct {
	LoanID     string          `json:"loan_id"`
	BookID     string          `json:"book_id"`
	BorrowerID string          `json:"borrower_id"`
	ReturnedAt time.Time       `json:"returned_at"`
	DaysLate   int             `json:"days_late"`
	FineAmount decimal.Decimal `json:"fine_amount"`
}

type LoanOverriddenPayload struct {
	LoanID     string          `json:"loan_id"`
	Status     Status          `json:"status"`
	FineAmount decimal.Decimal `json:"fine_amount"`
	AdminID    string          `json:"admin_id"`
}

// FinePayload is shared by all fine events; Status tells which step happened.
type FinePayload struct {
	FineID        string          `json:"fine_id"`
	LoanID        string          `json:"loan_id"`
	BorrowerID    string          `json:"borrower_id"`
	Status        string          `json:"status"`
	DaysLate      int             `json:"days_late"`
	TotalFine     decimal.Decimal `json:"total_fine"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	ConfirmedBy   string          `json:"confirmed_by,omitempty"`
}
