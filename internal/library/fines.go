package library

import (
	"context"
	"time"

	"github.com/ariefcatur/go-school-library/internal/fines"
	"github.com/ariefcatur/go-school-library/internal/liberr"
	"github.com/ariefcatur/go-school-library/internal/loans"
	"github.com/pkg/errors"
)

// fineFor returns the loan's fine, materializing it when the loan is late and
// has none yet. created reports whether a row was inserted.
func (s *Service) fineFor(ctx context.Context, tx Tx, t loans.Transaction, now time.Time) (f fines.Fine, created bool, err error) {
	existing, err := tx.LockFineByLoan(ctx, t.ID)
	if err != nil {
		return fines.Fine{}, false, err
	}
	if existing != nil {
		if existing.Recompute(t.FineSource(), now, s.Policy.Calc.Loc) {
			if err := tx.UpdateFine(ctx, *existing); err != nil {
				return fines.Fine{}, false, err
			}
		}
		return *existing, false, nil
	}
	if _, late := s.lateness(t, now); !late {
		return fines.Fine{}, false, liberr.New(liberr.KindInvalidState, "library.fineFor", t.ID, "loan owes no fine")
	}
	f, err = fines.Materialize(t.FineSource(), s.Policy.Calc, now)
	if err != nil {
		return fines.Fine{}, false, err
	}
	if err := tx.InsertFine(ctx, f); err != nil {
		return fines.Fine{}, false, err
	}
	return f, true, nil
}

// GetOrMaterializeFine returns the persisted fine of a late loan, creating it on first use.
func (s *Service) GetOrMaterializeFine(ctx context.Context, actor Principal, loanID string) (fines.Fine, error) {
	now := s.now()
	var f fines.Fine
	var created bool
	err := s.Store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		t, err := tx.LockLoan(ctx, loanID)
		if err != nil {
			return err
		}
		if err := actor.authorize("library.GetOrMaterializeFine", loanID, t.BorrowerID); err != nil {
			return err
		}
		f, created, err = s.fineFor(ctx, tx, t, now)
		return err
	})
	if err != nil {
		return fines.Fine{}, errors.Wrapf(err, "fine for loan %s", loanID)
	}
	if created {
		s.emitFine(ctx, loans.TopicFineMaterialized, loans.EventFineMaterialized, f)
	}
	return f, nil
}

func (s *Service) GetFine(ctx context.Context, actor Principal, fineID string) (fines.Fine, error) {
	f, err := s.Store.GetFine(ctx, fineID)
	if err != nil {
		return fines.Fine{}, err
	}
	if err := actor.authorize("library.GetFine", fineID, f.BorrowerID); err != nil {
		return fines.Fine{}, err
	}
	return f, nil
}

// FineEntry is one row of the fine overview. Fine is nil until the fine is
// materialized; Calculation is always the live figure.
type FineEntry struct {
	Loan        loans.Transaction `json:"loan"`
	Fine        *fines.Fine       `json:"fine"`
	Calculation fines.Calculation `json:"calculation"`
	Status      fines.Status      `json:"status"`
}

// ListFines lists late loans (returned late or still out past due) with their fine, if any.
func (s *Service) ListFines(ctx context.Context, actor Principal) ([]FineEntry, error) {
	borrower := ""
	if !actor.IsAdmin() {
		borrower = actor.ID
	}
	now := s.now()
	candidates, err := s.Store.ListFineCandidates(ctx, borrower, now)
	if err != nil {
		return nil, errors.Wrap(err, "list fine candidates")
	}
	ids := make([]string, 0, len(candidates))
	for _, t := range candidates {
		ids = append(ids, t.ID)
	}
	byLoan, err := s.Store.FinesByLoans(ctx, ids)
	if err != nil {
		return nil, errors.Wrap(err, "load fines")
	}

	out := make([]FineEntry, 0, len(candidates))
	for _, t := range candidates {
		c, late := s.lateness(t, now)
		f, ok := byLoan[t.ID]
		if !late && !ok {
			continue
		}
		e := FineEntry{Loan: t, Calculation: c, Status: fines.StatusUnpaid}
		if ok {
			e.Fine = &f
			e.Status = f.Status
			if f.Status != fines.StatusUnpaid {
				e.Calculation = fines.Calculation{DaysLate: f.DaysLate, TotalFine: f.TotalFine}
			}
		}
		out = append(out, e)
	}
	return out, nil
}

// RequestPayment is the borrower's payment submission for a loan's fine.
func (s *Service) RequestPayment(ctx context.Context, actor Principal, loanID, method string) (fines.Fine, error) {
	now := s.now()
	var f fines.Fine
	var created bool
	err := s.Store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		t, err := tx.LockLoan(ctx, loanID)
		if err != nil {
			return err
		}
		if err := actor.authorize("library.RequestPayment", loanID, t.BorrowerID); err != nil {
			return err
		}
		if err := settleable(t, "library.RequestPayment"); err != nil {
			return err
		}
		f, created, err = s.fineFor(ctx, tx, t, now)
		if err != nil {
			return err
		}
		if err := f.RequestPayment(method, now); err != nil {
			return err
		}
		return tx.UpdateFine(ctx, f)
	})
	if err != nil {
		return fines.Fine{}, errors.Wrapf(err, "request payment for loan %s", loanID)
	}
	if created {
		s.emitFine(ctx, loans.TopicFineMaterialized, loans.EventFineMaterialized, f)
	}
	s.emitFine(ctx, loans.TopicFinePaymentRequested, loans.EventFinePaymentRequested, f)
	return f, nil
}

// ConfirmPayment is the admin's acceptance of a pending payment.
func (s *Service) ConfirmPayment(ctx context.Context, actor Principal, fineID string) (fines.Fine, error) {
	if err := actor.requireAdmin("library.ConfirmPayment", fineID); err != nil {
		return fines.Fine{}, err
	}
	f, err := s.settleFine(ctx, "library.ConfirmPayment", fineID, func(f *fines.Fine, now time.Time) error {
		return f.ConfirmPayment(actor.ID, now)
	})
	if err != nil {
		return fines.Fine{}, errors.Wrapf(err, "confirm fine %s", fineID)
	}
	s.emitFine(ctx, loans.TopicFinePaid, loans.EventFinePaid, f)
	return f, nil
}

// MarkFinePaid records a fine settled at the desk without a borrower request.
func (s *Service) MarkFinePaid(ctx context.Context, actor Principal, fineID string, paidAt *time.Time) (fines.Fine, error) {
	if err := actor.requireAdmin("library.MarkFinePaid", fineID); err != nil {
		return fines.Fine{}, err
	}
	f, err := s.settleFine(ctx, "library.MarkFinePaid", fineID, func(f *fines.Fine, now time.Time) error {
		return f.MarkPaid(actor.ID, paidAt, now)
	})
	if err != nil {
		return fines.Fine{}, errors.Wrapf(err, "mark fine %s paid", fineID)
	}
	s.emitFine(ctx, loans.TopicFinePaid, loans.EventFinePaid, f)
	return f, nil
}

// CorrectFine lets an admin move a fine back to UNPAID or PENDING_CONFIRMATION.
func (s *Service) CorrectFine(ctx context.Context, actor Principal, fineID string, to fines.Status) (fines.Fine, error) {
	if err := actor.requireAdmin("library.CorrectFine", fineID); err != nil {
		return fines.Fine{}, err
	}
	f, err := s.updateFine(ctx, fineID, func(f *fines.Fine, now time.Time) error {
		return f.Correct(to, now)
	})
	return f, errors.Wrapf(err, "correct fine %s", fineID)
}

// settleable refuses payment steps while the loan is still out: the fine is
// only final once the book is back, and a paid fine is never recomputed.
func settleable(t loans.Transaction, op string) error {
	if t.Status == loans.StatusBorrowed {
		return liberr.New(liberr.KindInvalidState, op, t.ID, "loan is still borrowed")
	}
	return nil
}

// settleFine is updateFine for the steps that move a fine towards PAID.
func (s *Service) settleFine(ctx context.Context, op, fineID string, fn func(f *fines.Fine, now time.Time) error) (fines.Fine, error) {
	return s.withFine(ctx, fineID, func(ctx context.Context, tx Tx, f *fines.Fine, now time.Time) error {
		t, err := tx.LockLoan(ctx, f.LoanID)
		if err != nil {
			return err
		}
		if err := settleable(t, op); err != nil {
			return err
		}
		return fn(f, now)
	})
}

func (s *Service) updateFine(ctx context.Context, fineID string, fn func(f *fines.Fine, now time.Time) error) (fines.Fine, error) {
	return s.withFine(ctx, fineID, func(_ context.Context, _ Tx, f *fines.Fine, now time.Time) error {
		return fn(f, now)
	})
}

func (s *Service) withFine(ctx context.Context, fineID string, fn func(ctx context.Context, tx Tx, f *fines.Fine, now time.Time) error) (fines.Fine, error) {
	now := s.now()
	var out fines.Fine
	err := s.Store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		f, err := tx.LockFine(ctx, fineID)
		if err != nil {
			return err
		}
		if err := fn(ctx, tx, &f, now); err != nil {
			return err
		}
		out = f
		return tx.UpdateFine(ctx, f)
	})
	return out, err
}
