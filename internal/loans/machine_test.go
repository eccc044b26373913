package loans

import (
	"testing"
	"time"

	"github.com/ariefcatur/go-school-library/internal/fines"
	"github.com/ariefcatur/go-school-library/internal/liberr"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var wib = time.FixedZone("WIB", 7*3600)

func at(m time.Month, d, h int) time.Time { return time.Date(2026, m, d, h, 0, 0, 0, wib) }

func calc() fines.Calculator { return fines.NewCalculator(fines.DefaultRate, wib) }

func TestNewTransactionCapacity(t *testing.T) {
	book := Book{ID: "book-1", TotalCopies: 3}
	now := at(time.January, 8, 9)

	testCases := []struct {
		active int
		kind   liberr.Kind
	}{
		{0, ""},
		{2, ""}, // the N-th copy
		{3, liberr.KindOutOfStock},
		{4, liberr.KindOutOfStock},
	}
	for _, tt := range testCases {
		_, err := NewTransaction(book, tt.active, "siswa-1", now, nil, DefaultLoanPeriod)
		assert.Equal(t, tt.kind, liberr.KindOf(err), "active=%d", tt.active)
	}
}

func TestNewTransactionDefaults(t *testing.T) {
	now := at(time.January, 8, 9)
	tx, err := NewTransaction(Book{ID: "book-1", TotalCopies: 1}, 0, "siswa-1", now, nil, 0)
	require.NoError(t, err)

	assert.NotEmpty(t, tx.ID)
	assert.Equal(t, StatusBorrowed, tx.Status)
	assert.Equal(t, now.Add(7*24*time.Hour), tx.DueAt)
	assert.Nil(t, tx.ReturnedAt)
	assert.True(t, tx.FineAmount.IsZero())
}

func TestNewTransactionExplicitDueDate(t *testing.T) {
	now := at(time.January, 8, 9)
	due := at(time.January, 22, 12)
	tx, err := NewTransaction(Book{ID: "book-1", TotalCopies: 1}, 0, "siswa-1", now, &due, DefaultLoanPeriod)
	require.NoError(t, err)
	assert.Equal(t, due, tx.DueAt)

	past := at(time.January, 7, 9)
	_, err = NewTransaction(Book{ID: "book-1", TotalCopies: 1}, 0, "siswa-1", now, &past, DefaultLoanPeriod)
	assert.Equal(t, liberr.KindValidation, liberr.KindOf(err))

	_, err = NewTransaction(Book{ID: "book-1", TotalCopies: 1}, 0, "", now, nil, DefaultLoanPeriod)
	assert.Equal(t, liberr.KindValidation, liberr.KindOf(err))
}

func TestReturnLateLoan(t *testing.T) {
	due := at(time.January, 15, 9)
	tx := Transaction{ID: "loan-1", Status: StatusBorrowed, BorrowedAt: at(time.January, 8, 9), DueAt: due}

	now := at(time.January, 20, 14)
	c, err := tx.Return(now, calc())
	require.NoError(t, err)

	assert.Equal(t, StatusReturned, tx.Status)
	require.NotNil(t, tx.ReturnedAt)
	assert.Equal(t, now, *tx.ReturnedAt)
	assert.Equal(t, 6, c.DaysLate)
	assert.True(t, decimal.NewFromInt(6000).Equal(tx.FineAmount))
}

func TestReturnTwiceIsInvalidState(t *testing.T) {
	tx := Transaction{ID: "loan-1", Status: StatusBorrowed, DueAt: at(time.January, 15, 9)}
	_, err := tx.Return(at(time.January, 10, 9), calc())
	require.NoError(t, err)
	first := *tx.ReturnedAt

	_, err = tx.Return(at(time.January, 12, 9), calc())
	assert.Equal(t, liberr.KindInvalidState, liberr.KindOf(err))
	assert.Equal(t, first, *tx.ReturnedAt)
	assert.True(t, tx.FineAmount.IsZero())
}

func TestOverdueIsDerived(t *testing.T) {
	tx := Transaction{Status: StatusBorrowed, DueAt: at(time.January, 15, 9)}

	assert.False(t, tx.Overdue(at(time.January, 15, 9)))
	assert.True(t, tx.Overdue(at(time.January, 15, 10)))
	assert.Equal(t, StatusOverdue, tx.DisplayStatus(at(time.January, 16, 0)))

	returned := at(time.January, 20, 9)
	tx.Status, tx.ReturnedAt = StatusReturned, &returned
	assert.False(t, tx.Overdue(at(time.February, 1, 0)))
	assert.Equal(t, StatusReturned, tx.DisplayStatus(at(time.February, 1, 0)))
}

func TestOverrideKeepsReturnedAtInvariant(t *testing.T) {
	now := at(time.January, 25, 9)
	tx := Transaction{ID: "loan-1", Status: StatusBorrowed, BorrowedAt: at(time.January, 8, 9), DueAt: at(time.January, 15, 9)}

	returned := StatusReturned
	amount := decimal.NewFromInt(2500)
	require.NoError(t, tx.Override(Patch{Status: &returned, FineAmount: &amount}, now))
	assert.Equal(t, StatusReturned, tx.Status)
	require.NotNil(t, tx.ReturnedAt)
	assert.True(t, amount.Equal(tx.FineAmount), "admin amount is taken verbatim")

	borrowed := StatusBorrowed
	p := Patch{Status: &borrowed}
	assert.True(t, p.Reopens(tx))
	require.NoError(t, tx.Override(p, now))
	assert.Nil(t, tx.ReturnedAt)
	assert.False(t, p.Reopens(tx))
}

func TestOverrideValidation(t *testing.T) {
	tx := Transaction{ID: "loan-1", Status: StatusBorrowed, BorrowedAt: at(time.January, 8, 9)}
	now := at(time.January, 9, 9)

	overdue := StatusOverdue
	neg := decimal.NewFromInt(-1)
	early := at(time.January, 1, 9)

	for _, p := range []Patch{{Status: &overdue}, {FineAmount: &neg}, {DueAt: &early}} {
		err := tx.Override(p, now)
		assert.Equal(t, liberr.KindValidation, liberr.KindOf(err))
	}
	assert.Equal(t, StatusBorrowed, tx.Status)
}

func TestFineSource(t *testing.T) {
	ret := at(time.January, 20, 9)
	tx := Transaction{ID: "loan-1", BookID: "book-1", BorrowerID: "siswa-1", DueAt: at(time.January, 15, 9), ReturnedAt: &ret}
	src := tx.FineSource()
	assert.Equal(t, "loan-1", src.LoanID)
	assert.Equal(t, "siswa-1", src.BorrowerID)
	assert.Equal(t, &ret, src.ReturnedAt)
	assert.Equal(t, 6, tx.Fine(calc(), time.Time{}).DaysLate)
}
