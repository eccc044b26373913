package library

import (
	"context"
	"strings"
	"time"

	"github.com/ariefcatur/go-school-library/internal/fines"
	"github.com/ariefcatur/go-school-library/internal/liberr"
	"github.com/ariefcatur/go-school-library/internal/loans"
	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Policy holds the tunables the surrounding system may override.
type Policy struct {
	LoanPeriod time.Duration
	Calc       fines.Calculator
}

func DefaultPolicy(loc *time.Location) Policy {
	return Policy{
		LoanPeriod: loans.DefaultLoanPeriod,
		Calc:       fines.NewCalculator(fines.DefaultRate, loc),
	}
}

type Service struct {
	Store    Store
	Events   Publisher // nil disables publishing
	Policy   Policy
	Producer string
	Now      func() time.Time
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

type BookInput struct {
	ISBN        string `json:"isbn"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	TotalCopies int    `json:"total_copies"`
}

func (s *Service) CreateBook(ctx context.Context, actor Principal, in BookInput) (loans.Book, error) {
	if err := actor.requireAdmin("library.CreateBook", ""); err != nil {
		return loans.Book{}, err
	}
	if strings.TrimSpace(in.Title) == "" {
		return loans.Book{}, liberr.Validation("library.CreateBook", "", "title")
	}
	if in.TotalCopies < 0 {
		return loans.Book{}, liberr.New(liberr.KindValidation, "library.CreateBook", "", "negative copy count")
	}
	now := s.now()
	b := loans.Book{
		ID:          uuid.NewString(),
		ISBN:        in.ISBN,
		Title:       in.Title,
		Author:      in.Author,
		TotalCopies: in.TotalCopies,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.Store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		return tx.InsertBook(ctx, b)
	})
	if err != nil {
		return loans.Book{}, errors.Wrap(err, "create book")
	}
	return b, nil
}

func (s *Service) ListBooks(ctx context.Context) ([]loans.Availability, error) {
	return s.Store.ListBooks(ctx)
}

func (s *Service) GetBook(ctx context.Context, id string) (loans.Availability, error) {
	return s.Store.GetBook(ctx, id)
}

type BorrowRequest struct {
	BookID     string     `json:"book_id"`
	BorrowerID string     `json:"borrower_id,omitempty"` // default: the actor
	DueAt      *time.Time `json:"due_at,omitempty"`
}

// Borrow counts active loans for the book and inserts the new one while the
// book row is locked, so two requests for the last copy cannot both win.
func (s *Service) Borrow(ctx context.Context, actor Principal, req BorrowRequest) (loans.Transaction, error) {
	borrower := req.BorrowerID
	if borrower == "" {
		borrower = actor.ID
	}
	if err := actor.authorize("library.Borrow", req.BookID, borrower); err != nil {
		return loans.Transaction{}, err
	}
	if req.BookID == "" {
		return loans.Transaction{}, liberr.Validation("library.Borrow", "", "book id")
	}

	now := s.now()
	var out loans.Transaction
	err := s.Store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		book, err := tx.LockBook(ctx, req.BookID)
		if err != nil {
			return err
		}
		active, err := tx.CountActiveLoans(ctx, book.ID)
		if err != nil {
			return err
		}
		out, err = loans.NewTransaction(book, active, borrower, now, req.DueAt, s.Policy.LoanPeriod)
		if err != nil {
			return err
		}
		return tx.InsertLoan(ctx, out)
	})
	if err != nil {
		return loans.Transaction{}, errors.Wrapf(err, "borrow book %s", req.BookID)
	}

	s.emit(ctx, loans.TopicLoanBorrowed, loans.EventLoanBorrowed, out.ID, loans.LoanBorrowedPayload{
		LoanID: out.ID, BookID: out.BookID, BorrowerID: out.BorrowerID, DueAt: out.DueAt,
	})
	return out, nil
}

type ReturnResult struct {
	Loan        loans.Transaction `json:"loan"`
	Calculation fines.Calculation `json:"calculation"`
	Fine        *fines.Fine       `json:"fine,omitempty"`
}

// Return closes the loan and, when it came back late, creates or refreshes its fine
// in the same transaction.
func (s *Service) Return(ctx context.Context, actor Principal, loanID string) (ReturnResult, error) {
	now := s.now()
	var res ReturnResult
	var created bool
	err := s.Store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		t, err := tx.LockLoan(ctx, loanID)
		if err != nil {
			return err
		}
		if err := actor.authorize("library.Return", loanID, t.BorrowerID); err != nil {
			return err
		}
		c, err := t.Return(now, s.Policy.Calc)
		if err != nil {
			return err
		}
		if err := tx.UpdateLoan(ctx, t); err != nil {
			return err
		}
		res.Loan, res.Calculation = t, c
		if !c.Late() {
			return nil
		}
		f, isNew, err := s.fineFor(ctx, tx, t, now)
		if err != nil {
			return err
		}
		res.Fine, created = &f, isNew
		return nil
	})
	if err != nil {
		return ReturnResult{}, errors.Wrapf(err, "return loan %s", loanID)
	}

	t := res.Loan
	s.emit(ctx, loans.TopicLoanReturned, loans.EventLoanReturned, t.ID, loans.LoanReturnedPayload{
		LoanID: t.ID, BookID: t.BookID, BorrowerID: t.BorrowerID, ReturnedAt: *t.ReturnedAt,
		DaysLate: res.Calculation.DaysLate, FineAmount: t.FineAmount,
	})
	if created {
		s.emitFine(ctx, loans.TopicFineMaterialized, loans.EventFineMaterialized, *res.Fine)
	}
	return res, nil
}

// UpdateLoan is the administrative override: status and amount are taken as given.
func (s *Service) UpdateLoan(ctx context.Context, actor Principal, loanID string, p loans.Patch) (loans.Transaction, error) {
	if err := actor.requireAdmin("library.UpdateLoan", loanID); err != nil {
		return loans.Transaction{}, err
	}
	now := s.now()
	var out loans.Transaction
	err := s.Store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		t, err := tx.LockLoan(ctx, loanID)
		if err != nil {
			return err
		}
		if p.Reopens(t) {
			book, err := tx.LockBook(ctx, t.BookID)
			if err != nil {
				return err
			}
			active, err := tx.CountActiveLoans(ctx, book.ID)
			if err != nil {
				return err
			}
			if err := loans.CheckCapacity(book, active); err != nil {
				return err
			}
			// a settled fine cannot follow the loan's further lateness
			f, err := tx.LockFineByLoan(ctx, t.ID)
			if err != nil {
				return err
			}
			if f != nil && f.Status != fines.StatusUnpaid {
				return liberr.New(liberr.KindInvalidState, "library.UpdateLoan", loanID, "fine %s is %s", f.ID, f.Status)
			}
		}
		if err := t.Override(p, now); err != nil {
			return err
		}
		out = t
		return tx.UpdateLoan(ctx, t)
	})
	if err != nil {
		return loans.Transaction{}, errors.Wrapf(err, "update loan %s", loanID)
	}

	s.emit(ctx, loans.TopicLoanOverridden, loans.EventLoanOverridden, out.ID, loans.LoanOverriddenPayload{
		LoanID: out.ID, Status: out.Status, FineAmount: out.FineAmount, AdminID: actor.ID,
	})
	return out, nil
}

// DeleteLoan removes a loan record. Fines are never deleted, so a loan that owns one stays.
func (s *Service) DeleteLoan(ctx context.Context, actor Principal, loanID string) error {
	if err := actor.requireAdmin("library.DeleteLoan", loanID); err != nil {
		return err
	}
	err := s.Store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.LockLoan(ctx, loanID); err != nil {
			return err
		}
		f, err := tx.LockFineByLoan(ctx, loanID)
		if err != nil {
			return err
		}
		if f != nil {
			return liberr.New(liberr.KindInvalidState, "library.DeleteLoan", loanID, "loan owns fine %s", f.ID)
		}
		return tx.DeleteLoan(ctx, loanID)
	})
	return errors.Wrapf(err, "delete loan %s", loanID)
}

type LoanView struct {
	loans.Transaction
	DisplayStatus loans.Status      `json:"display_status"`
	Accrued       fines.Calculation `json:"accrued"`
}

func (s *Service) view(t loans.Transaction, now time.Time) LoanView {
	v := LoanView{Transaction: t, DisplayStatus: t.DisplayStatus(now)}
	if c, late := s.lateness(t, now); late {
		v.Accrued = c
	} else {
		v.Accrued.TotalFine = t.FineAmount
	}
	return v
}

func (s *Service) GetLoan(ctx context.Context, actor Principal, loanID string) (LoanView, error) {
	t, err := s.Store.GetLoan(ctx, loanID)
	if err != nil {
		return LoanView{}, err
	}
	if err := actor.authorize("library.GetLoan", loanID, t.BorrowerID); err != nil {
		return LoanView{}, err
	}
	return s.view(t, s.now()), nil
}

// ListLoans restricts members to their own loans. Status OVERDUE is answered
// from BORROWED rows past their due time.
func (s *Service) ListLoans(ctx context.Context, actor Principal, f loans.Filter) ([]LoanView, error) {
	if !actor.IsAdmin() {
		f.BorrowerID = actor.ID
	}
	overdueOnly := f.Status == loans.StatusOverdue
	if overdueOnly {
		f.Status = loans.StatusBorrowed
	} else if f.Status != "" && !f.Status.Valid() {
		return nil, liberr.New(liberr.KindValidation, "library.ListLoans", "", "unknown status %q", f.Status)
	}

	rows, err := s.Store.ListLoans(ctx, f)
	if err != nil {
		return nil, errors.Wrap(err, "list loans")
	}
	now := s.now()
	out := make([]LoanView, 0, len(rows))
	for _, t := range rows {
		if overdueOnly && !t.Overdue(now) {
			continue
		}
		out = append(out, s.view(t, now))
	}
	return out, nil
}

// lateness prices t and reports whether it owes a fine right now: returned
// loans by the formula, open loans only once they are overdue.
func (s *Service) lateness(t loans.Transaction, now time.Time) (fines.Calculation, bool) {
	if t.Status == loans.StatusBorrowed && !t.Overdue(now) {
		return fines.Calculation{}, false
	}
	c := t.Fine(s.Policy.Calc, now)
	return c, c.Late()
}
