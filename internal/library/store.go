package library

import (
	"context"
	"time"

	"github.com/ariefcatur/go-school-library/internal/fines"
	"github.com/ariefcatur/go-school-library/internal/loans"
)

// Store is the persistence collaborator. Lookups of missing rows return a
// liberr NotFound error.
type Store interface {
	// InTx runs fn in one transaction; fn's error rolls everything back.
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	GetBook(ctx context.Context, id string) (loans.Availability, error)
	ListBooks(ctx context.Context) ([]loans.Availability, error)
	GetLoan(ctx context.Context, id string) (loans.Transaction, error)
	ListLoans(ctx context.Context, f loans.Filter) ([]loans.Transaction, error)
	// ListFineCandidates returns loans due before dueBefore plus every loan that owns a fine.
	ListFineCandidates(ctx context.Context, borrowerID string, dueBefore time.Time) ([]loans.Transaction, error)
	FinesByLoans(ctx context.Context, loanIDs []string) (map[string]fines.Fine, error)
	GetFine(ctx context.Context, id string) (fines.Fine, error)
	Stats(ctx context.Context, now, dayStart time.Time) (Stats, error)
}

// Tx is the write side; Lock* methods take row locks held until commit.
type Tx interface {
	InsertBook(ctx context.Context, b loans.Book) error
	LockBook(ctx context.Context, id string) (loans.Book, error)
	CountActiveLoans(ctx context.Context, bookID string) (int, error)

	InsertLoan(ctx context.Context, t loans.Transaction) error
	LockLoan(ctx context.Context, id string) (loans.Transaction, error)
	UpdateLoan(ctx context.Context, t loans.Transaction) error
	DeleteLoan(ctx context.Context, id string) error

	LockFine(ctx context.Context, id string) (fines.Fine, error)
	// LockFineByLoan returns nil, nil when the loan has no fine yet.
	LockFineByLoan(ctx context.Context, loanID string) (*fines.Fine, error)
	InsertFine(ctx context.Context, f fines.Fine) error
	UpdateFine(ctx context.Context, f fines.Fine) error
}
