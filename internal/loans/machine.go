package loans

import (
	"strings"
	"time"

	"github.com/ariefcatur/go-school-library/internal/fines"
	"github.com/ariefcatur/go-school-library/internal/liberr"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const DefaultLoanPeriod = 7 * 24 * time.Hour

// CheckCapacity fails with OutOfStock when every copy of book is already borrowed.
func CheckCapacity(book Book, activeBorrows int) error {
	if activeBorrows >= book.TotalCopies {
		return liberr.OutOfStock("loans.CheckCapacity", book.ID, activeBorrows, book.TotalCopies)
	}
	return nil
}

// NewTransaction opens a BORROWED loan. activeBorrows must be counted in the
// same store transaction that inserts the result.
func NewTransaction(book Book, activeBorrows int, borrowerID string, now time.Time, dueAt *time.Time, period time.Duration) (Transaction, error) {
	if strings.TrimSpace(borrowerID) == "" {
		return Transaction{}, liberr.Validation("loans.NewTransaction", book.ID, "borrower id")
	}
	if err := CheckCapacity(book, activeBorrows); err != nil {
		return Transaction{}, err
	}
	if period <= 0 {
		period = DefaultLoanPeriod
	}
	due := now.Add(period)
	if dueAt != nil {
		if !dueAt.After(now) {
			return Transaction{}, liberr.New(liberr.KindValidation, "loans.NewTransaction", book.ID, "due date %s is not after borrow time", dueAt.Format(time.RFC3339))
		}
		due = *dueAt
	}
	return Transaction{
		ID:         uuid.NewString(),
		BookID:     book.ID,
		BorrowerID: borrowerID,
		BorrowedAt: now,
		DueAt:      due,
		Status:     StatusBorrowed,
		FineAmount: decimal.Zero,
		CreatedAt:  now,
		UpdatedAt:  now,
	}, nil
}

// Overdue reports whether an open loan has passed its due time.
func (t Transaction) Overdue(now time.Time) bool {
	return t.Status == StatusBorrowed && now.After(t.DueAt)
}

// Return closes the loan at now and stores the computed fine on the loan.
func (t *Transaction) Return(now time.Time, calc fines.Calculator) (fines.Calculation, error) {
	if !CanTransition(t.Status, StatusReturned) {
		return fines.Calculation{}, liberr.InvalidState("loans.Return", t.ID, t.Status, StatusReturned)
	}
	c := calc.Compute(t.DueAt, &now, now)
	t.Status = StatusReturned
	t.ReturnedAt = &now
	t.FineAmount = c.TotalFine
	t.UpdatedAt = now
	return c, nil
}

// Fine prices the loan as of now (or as of its return).
func (t Transaction) Fine(calc fines.Calculator, now time.Time) fines.Calculation {
	return calc.Compute(t.DueAt, t.ReturnedAt, now)
}

func (t Transaction) FineSource() fines.Source {
	return fines.Source{
		LoanID:     t.ID,
		BorrowerID: t.BorrowerID,
		BookID:     t.BookID,
		BorrowedAt: t.BorrowedAt,
		DueAt:      t.DueAt,
		ReturnedAt: t.ReturnedAt,
	}
}

// Patch is an administrative override; nil fields are left alone.
type Patch struct {
	Status     *Status          `json:"status,omitempty"`
	FineAmount *decimal.Decimal `json:"fine_amount,omitempty"`
	DueAt      *time.Time       `json:"due_at,omitempty"`
}

// Reopens reports whether applying p to t turns a returned loan back into a borrow.
func (p Patch) Reopens(t Transaction) bool {
	return p.Status != nil && *p.Status == StatusBorrowed && t.Status == StatusReturned
}

// Override applies p verbatim without the automatic fine computation.
// Capacity for a reopened loan is the caller's concern (see Reopens).
func (t *Transaction) Override(p Patch, now time.Time) error {
	if p.Status != nil && !p.Status.Valid() {
		return liberr.New(liberr.KindValidation, "loans.Override", t.ID, "unknown status %q", *p.Status)
	}
	if p.FineAmount != nil && p.FineAmount.IsNegative() {
		return liberr.New(liberr.KindValidation, "loans.Override", t.ID, "negative fine amount")
	}
	if p.DueAt != nil && p.DueAt.Before(t.BorrowedAt) {
		return liberr.New(liberr.KindValidation, "loans.Override", t.ID, "due date before borrow date")
	}

	if p.Status != nil {
		switch *p.Status {
		case StatusReturned:
			if t.ReturnedAt == nil {
				t.ReturnedAt = &now
			}
		case StatusBorrowed:
			t.ReturnedAt = nil
		}
		t.Status = *p.Status
	}
	if p.DueAt != nil {
		t.DueAt = *p.DueAt
	}
	if p.FineAmount != nil {
		t.FineAmount = *p.FineAmount
	}
	t.UpdatedAt = now
	return nil
}
