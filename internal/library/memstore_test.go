package library

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ariefcatur/go-school-library/internal/fines"
	"github.com/ariefcatur/go-school-library/internal/liberr"
	"github.com/ariefcatur/go-school-library/internal/loans"
	"github.com/shopspring/decimal"
)

// memStore is an in-memory Store. InTx holds the mutex for the whole
// transaction and restores a snapshot when fn fails.
type memStore struct {
	mu    sync.Mutex
	books map[string]loans.Book
	loans map[string]loans.Transaction
	fines map[string]fines.Fine
}

func newMemStore() *memStore {
	return &memStore{
		books: map[string]loans.Book{},
		loans: map[string]loans.Transaction{},
		fines: map[string]fines.Fine{},
	}
}

func (m *memStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	books, ls, fs := copyMap(m.books), copyMap(m.loans), copyMap(m.fines)
	if err := fn(ctx, memTx{m}); err != nil {
		m.books, m.loans, m.fines = books, ls, fs
		return err
	}
	return nil
}

func copyMap[V any](in map[string]V) map[string]V {
	out := make(map[string]V, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func (m *memStore) activeLocked(bookID string) int {
	n := 0
	for _, t := range m.loans {
		if t.BookID == bookID && t.Status == loans.StatusBorrowed {
			n++
		}
	}
	return n
}

func (m *memStore) GetBook(_ context.Context, id string) (loans.Availability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return loans.Availability{}, liberr.NotFound("mem.GetBook", id)
	}
	n := m.activeLocked(id)
	return loans.Availability{Book: b, Borrowed: n, Available: b.TotalCopies - n}, nil
}

func (m *memStore) ListBooks(_ context.Context) ([]loans.Availability, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []loans.Availability
	for _, b := range m.books {
		n := m.activeLocked(b.ID)
		out = append(out, loans.Availability{Book: b, Borrowed: n, Available: b.TotalCopies - n})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (m *memStore) GetLoan(_ context.Context, id string) (loans.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.loans[id]
	if !ok {
		return loans.Transaction{}, liberr.NotFound("mem.GetLoan", id)
	}
	return t, nil
}

func (m *memStore) sortedLoans(keep func(loans.Transaction) bool) []loans.Transaction {
	var out []loans.Transaction
	for _, t := range m.loans {
		if keep(t) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].BorrowedAt.After(out[j].BorrowedAt) })
	return out
}

func (m *memStore) ListLoans(_ context.Context, f loans.Filter) ([]loans.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedLoans(func(t loans.Transaction) bool {
		return (f.BorrowerID == "" || t.BorrowerID == f.BorrowerID) &&
			(f.BookID == "" || t.BookID == f.BookID) &&
			(f.Status == "" || t.Status == f.Status)
	}), nil
}

func (m *memStore) ListFineCandidates(_ context.Context, borrowerID string, dueBefore time.Time) ([]loans.Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	hasFine := map[string]bool{}
	for _, f := range m.fines {
		hasFine[f.LoanID] = true
	}
	return m.sortedLoans(func(t loans.Transaction) bool {
		return (borrowerID == "" || t.BorrowerID == borrowerID) && (t.DueAt.Before(dueBefore) || hasFine[t.ID])
	}), nil
}

func (m *memStore) FinesByLoans(_ context.Context, loanIDs []string) (map[string]fines.Fine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	want := map[string]bool{}
	for _, id := range loanIDs {
		want[id] = true
	}
	out := map[string]fines.Fine{}
	for _, f := range m.fines {
		if want[f.LoanID] {
			out[f.LoanID] = f
		}
	}
	return out, nil
}

func (m *memStore) GetFine(_ context.Context, id string) (fines.Fine, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.fines[id]
	if !ok {
		return fines.Fine{}, liberr.NotFound("mem.GetFine", id)
	}
	return f, nil
}

func (m *memStore) Stats(_ context.Context, now, dayStart time.Time) (Stats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st := Stats{TotalBooks: len(m.books), UnpaidFines: decimal.Zero, PendingFines: decimal.Zero}
	counts := map[string]int{}
	for _, t := range m.loans {
		counts[t.BookID]++
		if t.Status == loans.StatusBorrowed {
			st.ActiveLoans++
			if t.DueAt.Before(now) {
				st.OverdueLoans++
			}
		}
		if !t.BorrowedAt.Before(dayStart) && t.BorrowedAt.Before(dayStart.Add(24*time.Hour)) {
			st.LoansToday++
		}
	}
	for _, f := range m.fines {
		switch f.Status {
		case fines.StatusUnpaid:
			st.UnpaidFines = st.UnpaidFines.Add(f.TotalFine)
		case fines.StatusPending:
			st.PendingFines = st.PendingFines.Add(f.TotalFine)
			st.PendingRequests++
		}
	}
	for id, n := range counts {
		st.TopBooks = append(st.TopBooks, BookCount{BookID: id, Title: m.books[id].Title, Loans: n})
	}
	sort.Slice(st.TopBooks, func(i, j int) bool { return st.TopBooks[i].Loans > st.TopBooks[j].Loans })
	return st, nil
}

type memTx struct{ m *memStore }

func (t memTx) InsertBook(_ context.Context, b loans.Book) error {
	t.m.books[b.ID] = b
	return nil
}

func (t memTx) LockBook(_ context.Context, id string) (loans.Book, error) {
	b, ok := t.m.books[id]
	if !ok {
		return loans.Book{}, liberr.NotFound("mem.LockBook", id)
	}
	return b, nil
}

func (t memTx) CountActiveLoans(_ context.Context, bookID string) (int, error) {
	return t.m.activeLocked(bookID), nil
}

func (t memTx) InsertLoan(_ context.Context, l loans.Transaction) error {
	t.m.loans[l.ID] = l
	return nil
}

func (t memTx) LockLoan(_ context.Context, id string) (loans.Transaction, error) {
	l, ok := t.m.loans[id]
	if !ok {
		return loans.Transaction{}, liberr.NotFound("mem.LockLoan", id)
	}
	return l, nil
}

func (t memTx) UpdateLoan(_ context.Context, l loans.Transaction) error {
	if _, ok := t.m.loans[l.ID]; !ok {
		return liberr.NotFound("mem.UpdateLoan", l.ID)
	}
	t.m.loans[l.ID] = l
	return nil
}

func (t memTx) DeleteLoan(_ context.Context, id string) error {
	delete(t.m.loans, id)
	return nil
}

func (t memTx) LockFine(_ context.Context, id string) (fines.Fine, error) {
	f, ok := t.m.fines[id]
	if !ok {
		return fines.Fine{}, liberr.NotFound("mem.LockFine", id)
	}
	return f, nil
}

func (t memTx) LockFineByLoan(_ context.Context, loanID string) (*fines.Fine, error) {
	for _, f := range t.m.fines {
		if f.LoanID == loanID {
			f := f
			return &f, nil
		}
	}
	return nil, nil
}

func (t memTx) InsertFine(_ context.Context, f fines.Fine) error {
	for _, x := range t.m.fines {
		if x.LoanID == f.LoanID {
			return liberr.New(liberr.KindInvalidState, "mem.InsertFine", f.LoanID, "loan already has a fine")
		}
	}
	t.m.fines[f.ID] = f
	return nil
}

func (t memTx) UpdateFine(_ context.Context, f fines.Fine) error {
	if _, ok := t.m.fines[f.ID]; !ok {
		return liberr.NotFound("mem.UpdateFine", f.ID)
	}
	t.m.fines[f.ID] = f
	return nil
}
