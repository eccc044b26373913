package fines

import (
	"strings"
	"time"

	"github.com/ariefcatur/go-school-library/internal/liberr"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Source is the slice of a loan a fine is built from.
type Source struct {
	LoanID     string
	BorrowerID string
	BookID     string
	BorrowedAt time.Time
	DueAt      time.Time
	ReturnedAt *time.Time
}

type Fine struct {
	ID            string          `json:"id"`
	LoanID        string          `json:"loan_id"`
	BorrowerID    string          `json:"borrower_id"`
	BookID        string          `json:"book_id"`
	BorrowedAt    time.Time       `json:"borrowed_at"`
	DueAt         time.Time       `json:"due_at"`
	ReturnedAt    *time.Time      `json:"returned_at"`
	DaysLate      int             `json:"days_late"`
	RatePerDay    decimal.Decimal `json:"rate_per_day"`
	TotalFine     decimal.Decimal `json:"total_fine"`
	Status        Status          `json:"status"`
	PaymentMethod string          `json:"payment_method,omitempty"`
	RequestedAt   *time.Time      `json:"requested_at,omitempty"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
	ConfirmedBy   string          `json:"confirmed_by,omitempty"`
	ConfirmedAt   *time.Time      `json:"confirmed_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Materialize builds the persisted fine for a late loan.
func Materialize(src Source, calc Calculator, now time.Time) (Fine, error) {
	c := calc.Compute(src.DueAt, src.ReturnedAt, now)
	if !c.Late() {
		return Fine{}, liberr.New(liberr.KindInvalidState, "fines.Materialize", src.LoanID, "loan is not late")
	}
	f := Fine{
		ID:         uuid.NewString(),
		LoanID:     src.LoanID,
		BorrowerID: src.BorrowerID,
		BookID:     src.BookID,
		BorrowedAt: src.BorrowedAt,
		DueAt:      src.DueAt,
		ReturnedAt: src.ReturnedAt,
		DaysLate:   c.DaysLate,
		RatePerDay: calc.Rate,
		TotalFine:  c.TotalFine,
		Status:     StatusUnpaid,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return f, nil
}

// Recompute refreshes the monetary snapshot from src while the fine is still UNPAID.
// It reports whether anything changed.
func (f *Fine) Recompute(src Source, now time.Time, loc *time.Location) bool {
	if f.Status != StatusUnpaid {
		return false
	}
	c := Compute(src.DueAt, src.ReturnedAt, f.RatePerDay, now, loc)
	changed := c.DaysLate != f.DaysLate || !sameTime(f.ReturnedAt, src.ReturnedAt)
	f.DueAt = src.DueAt
	f.ReturnedAt = src.ReturnedAt
	f.DaysLate = c.DaysLate
	f.TotalFine = c.TotalFine
	if changed {
		f.UpdatedAt = now
	}
	return changed
}

// RequestPayment records the borrower's payment submission; it is not final until confirmed.
func (f *Fine) RequestPayment(method string, now time.Time) error {
	method = strings.ToUpper(strings.TrimSpace(method))
	if method == "" {
		return liberr.Validation("fines.RequestPayment", f.ID, "payment method")
	}
	if !CanTransition(f.Status, StatusPending) {
		return liberr.InvalidState("fines.RequestPayment", f.ID, f.Status, StatusPending)
	}
	f.Status = StatusPending
	f.PaymentMethod = method
	f.RequestedAt = &now
	f.UpdatedAt = now
	return nil
}

func (f *Fine) ConfirmPayment(adminID string, now time.Time) error {
	if strings.TrimSpace(adminID) == "" {
		return liberr.Validation("fines.ConfirmPayment", f.ID, "admin id")
	}
	if !CanTransition(f.Status, StatusPaid) {
		return liberr.InvalidState("fines.ConfirmPayment", f.ID, f.Status, StatusPaid)
	}
	f.Status = StatusPaid
	f.PaidAt = &now
	f.ConfirmedBy = adminID
	f.ConfirmedAt = &now
	f.UpdatedAt = now
	return nil
}

// MarkPaid records a fine collected out-of-band, skipping confirmation.
func (f *Fine) MarkPaid(adminID string, paidAt *time.Time, now time.Time) error {
	if f.Status == StatusPaid {
		return liberr.InvalidState("fines.MarkPaid", f.ID, f.Status, StatusPaid)
	}
	at := now
	if paidAt != nil {
		at = *paidAt
	}
	f.Status = StatusPaid
	f.PaidAt = &at
	if adminID != "" {
		f.ConfirmedBy = adminID
		f.ConfirmedAt = &now
	}
	f.UpdatedAt = now
	return nil
}

// Correct moves the fine back to UNPAID or PENDING_CONFIRMATION and drops the paid fields.
func (f *Fine) Correct(to Status, now time.Time) error {
	if to != StatusUnpaid && to != StatusPending {
		return liberr.New(liberr.KindValidation, "fines.Correct", f.ID, "status %q is not a correction target", to)
	}
	if f.Status == to {
		return liberr.InvalidState("fines.Correct", f.ID, f.Status, to)
	}
	f.Status = to
	f.PaidAt = nil
	f.ConfirmedBy = ""
	f.ConfirmedAt = nil
	if to == StatusUnpaid {
		f.PaymentMethod = ""
		f.RequestedAt = nil
	} else if f.RequestedAt == nil {
		f.RequestedAt = &now
	}
	f.UpdatedAt = now
	return nil
}

func sameTime(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}
