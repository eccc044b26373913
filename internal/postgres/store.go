package postgres

import (
	"context"
	"time"

	"github.com/ariefcatur/go-school-library/internal/fines"
	"github.com/ariefcatur/go-school-library/internal/liberr"
	"github.com/ariefcatur/go-school-library/internal/library"
	"github.com/ariefcatur/go-school-library/internal/loans"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
)

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store implements library.Store on Postgres.
type Store struct{ DB *pgxpool.Pool }

var _ library.Store = (*Store)(nil)

// InTx runs fn in a read-committed transaction; capacity checks rely on the
// book row lock taken by LockBook rather than on isolation level.
func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx library.Tx) error) error {
	tx, err := s.DB.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return errors.Wrap(err, "begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(ctx, &txStore{q: tx}); err != nil {
		return err
	}
	return errors.Wrap(tx.Commit(ctx), "commit")
}

const bookCols = `id, COALESCE(isbn, ''), title, author, total_copies, created_at, updated_at`

func scanBook(row pgx.Row) (loans.Book, error) {
	var b loans.Book
	err := row.Scan(&b.ID, &b.ISBN, &b.Title, &b.Author, &b.TotalCopies, &b.CreatedAt, &b.UpdatedAt)
	return b, err
}

const availabilityQuery = `
	SELECT b.id, COALESCE(b.isbn, ''), b.title, b.author, b.total_copies, b.created_at, b.updated_at,
	       COUNT(l.id) FILTER (WHERE l.status = 'BORROWED')
	FROM books b LEFT JOIN loans l ON l.book_id = b.id`

func scanAvailability(row pgx.Row) (loans.Availability, error) {
	var a loans.Availability
	if err := row.Scan(&a.ID, &a.ISBN, &a.Title, &a.Author, &a.TotalCopies, &a.CreatedAt, &a.UpdatedAt, &a.Borrowed); err != nil {
		return a, err
	}
	a.Available = a.TotalCopies - a.Borrowed
	if a.Available < 0 {
		a.Available = 0
	}
	return a, nil
}

func (s *Store) GetBook(ctx context.Context, id string) (loans.Availability, error) {
	a, err := scanAvailability(s.DB.QueryRow(ctx, availabilityQuery+` WHERE b.id=$1 GROUP BY b.id`, id))
	return a, notFound(err, "postgres.GetBook", id)
}

func (s *Store) ListBooks(ctx context.Context) ([]loans.Availability, error) {
	rows, err := s.DB.Query(ctx, availabilityQuery+` GROUP BY b.id ORDER BY b.title`)
	if err != nil {
		return nil, errors.Wrap(err, "list books")
	}
	defer rows.Close()

	var out []loans.Availability
	for rows.Next() {
		a, err := scanAvailability(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

const loanCols = `id, book_id, borrower_id, borrowed_at, due_at, returned_at, status, fine_amount, created_at, updated_at`

func scanLoan(row pgx.Row) (loans.Transaction, error) {
	var t loans.Transaction
	var status string
	err := row.Scan(&t.ID, &t.BookID, &t.BorrowerID, &t.BorrowedAt, &t.DueAt, &t.ReturnedAt, &status, &t.FineAmount, &t.CreatedAt, &t.UpdatedAt)
	t.Status = loans.Status(status)
	return t, err
}

func collectLoans(rows pgx.Rows, err error) ([]loans.Transaction, error) {
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []loans.Transaction
	for rows.Next() {
		t, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) GetLoan(ctx context.Context, id string) (loans.Transaction, error) {
	t, err := scanLoan(s.DB.QueryRow(ctx, `SELECT `+loanCols+` FROM loans WHERE id=$1`, id))
	return t, notFound(err, "postgres.GetLoan", id)
}

func (s *Store) ListLoans(ctx context.Context, f loans.Filter) ([]loans.Transaction, error) {
	limit := f.Limit
	if limit <= 0 || limit > 500 {
		limit = 500
	}
	out, err := collectLoans(s.DB.Query(ctx, `
		SELECT `+loanCols+` FROM loans
		WHERE ($1 = '' OR borrower_id = $1)
		  AND ($2 = '' OR book_id::text = $2)
		  AND ($3 = '' OR status = $3)
		ORDER BY borrowed_at DESC
		LIMIT $4`, f.BorrowerID, f.BookID, string(f.Status), limit))
	return out, errors.Wrap(err, "list loans")
}

func (s *Store) ListFineCandidates(ctx context.Context, borrowerID string, dueBefore time.Time) ([]loans.Transaction, error) {
	out, err := collectLoans(s.DB.Query(ctx, `
		SELECT `+loanCols+` FROM loans l
		WHERE ($1 = '' OR l.borrower_id = $1)
		  AND (l.due_at < $2 OR EXISTS (SELECT 1 FROM fines f WHERE f.loan_id = l.id))
		ORDER BY l.borrowed_at DESC`, borrowerID, dueBefore))
	return out, errors.Wrap(err, "list fine candidates")
}

const fineCols = `id, loan_id, borrower_id, book_id, borrowed_at, due_at, returned_at, days_late, rate_per_day,
	total_fine, status, payment_method, requested_at, paid_at, confirmed_by, confirmed_at, created_at, updated_at`

func scanFine(row pgx.Row) (fines.Fine, error) {
	var f fines.Fine
	var status string
	var method, confirmedBy *string
	err := row.Scan(&f.ID, &f.LoanID, &f.BorrowerID, &f.BookID, &f.BorrowedAt, &f.DueAt, &f.ReturnedAt, &f.DaysLate,
		&f.RatePerDay, &f.TotalFine, &status, &method, &f.RequestedAt, &f.PaidAt, &confirmedBy, &f.ConfirmedAt,
		&f.CreatedAt, &f.UpdatedAt)
	f.Status = fines.Status(status)
	if method != nil {
		f.PaymentMethod = *method
	}
	if confirmedBy != nil {
		f.ConfirmedBy = *confirmedBy
	}
	return f, err
}

func (s *Store) FinesByLoans(ctx context.Context, loanIDs []string) (map[string]fines.Fine, error) {
	out := make(map[string]fines.Fine, len(loanIDs))
	if len(loanIDs) == 0 {
		return out, nil
	}
	rows, err := s.DB.Query(ctx, `SELECT `+fineCols+` FROM fines WHERE loan_id::text = ANY($1)`, loanIDs)
	if err != nil {
		return nil, errors.Wrap(err, "fines by loans")
	}
	defer rows.Close()
	for rows.Next() {
		f, err := scanFine(rows)
		if err != nil {
			return nil, err
		}
		out[f.LoanID] = f
	}
	return out, rows.Err()
}

func (s *Store) GetFine(ctx context.Context, id string) (fines.Fine, error) {
	f, err := scanFine(s.DB.QueryRow(ctx, `SELECT `+fineCols+` FROM fines WHERE id=$1`, id))
	return f, notFound(err, "postgres.GetFine", id)
}

func (s *Store) Stats(ctx context.Context, now, dayStart time.Time) (library.Stats, error) {
	var st library.Stats
	err := s.DB.QueryRow(ctx, `
		SELECT
		  (SELECT COUNT(*) FROM books),
		  (SELECT COUNT(*) FROM loans WHERE status = 'BORROWED'),
		  (SELECT COUNT(*) FROM loans WHERE status = 'BORROWED' AND due_at < $1),
		  (SELECT COUNT(*) FROM loans WHERE borrowed_at >= $2 AND borrowed_at < $2 + interval '1 day'),
		  (SELECT COALESCE(SUM(total_fine), 0) FROM fines WHERE status = 'UNPAID'),
		  (SELECT COALESCE(SUM(total_fine), 0) FROM fines WHERE status = 'PENDING_CONFIRMATION'),
		  (SELECT COUNT(*) FROM fines WHERE status = 'PENDING_CONFIRMATION')`, now, dayStart).
		Scan(&st.TotalBooks, &st.ActiveLoans, &st.OverdueLoans, &st.LoansToday, &st.UnpaidFines, &st.PendingFines, &st.PendingRequests)
	if err != nil {
		return library.Stats{}, errors.Wrap(err, "stats counters")
	}

	rows, err := s.DB.Query(ctx, `
		SELECT b.id, b.title, COUNT(*) AS n
		FROM loans l JOIN books b ON b.id = l.book_id
		GROUP BY b.id, b.title ORDER BY n DESC, b.title LIMIT 10`)
	if err != nil {
		return library.Stats{}, errors.Wrap(err, "stats top books")
	}
	defer rows.Close()
	for rows.Next() {
		var bc library.BookCount
		if err := rows.Scan(&bc.BookID, &bc.Title, &bc.Loans); err != nil {
			return library.Stats{}, err
		}
		st.TopBooks = append(st.TopBooks, bc)
	}
	return st, rows.Err()
}

// txStore is the write side bound to one pgx.Tx.
type txStore struct{ q querier }

func (t *txStore) InsertBook(ctx context.Context, b loans.Book) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO books(id, isbn, title, author, total_copies, created_at, updated_at)
		VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7)`,
		b.ID, b.ISBN, b.Title, b.Author, b.TotalCopies, b.CreatedAt, b.UpdatedAt)
	return errors.Wrap(err, "insert book")
}

// LockBook serializes capacity checks per book until the transaction ends.
func (t *txStore) LockBook(ctx context.Context, id string) (loans.Book, error) {
	b, err := scanBook(t.q.QueryRow(ctx, `SELECT `+bookCols+` FROM books WHERE id=$1 FOR UPDATE`, id))
	return b, notFound(err, "postgres.LockBook", id)
}

func (t *txStore) CountActiveLoans(ctx context.Context, bookID string) (int, error) {
	var n int
	err := t.q.QueryRow(ctx, `SELECT COUNT(*) FROM loans WHERE book_id=$1 AND status='BORROWED'`, bookID).Scan(&n)
	return n, errors.Wrap(err, "count active loans")
}

func (t *txStore) InsertLoan(ctx context.Context, l loans.Transaction) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO loans(id, book_id, borrower_id, borrowed_at, due_at, returned_at, status, fine_amount, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		l.ID, l.BookID, l.BorrowerID, l.BorrowedAt, l.DueAt, l.ReturnedAt, string(l.Status), l.FineAmount, l.CreatedAt, l.UpdatedAt)
	return errors.Wrap(err, "insert loan")
}

func (t *txStore) LockLoan(ctx context.Context, id string) (loans.Transaction, error) {
	l, err := scanLoan(t.q.QueryRow(ctx, `SELECT `+loanCols+` FROM loans WHERE id=$1 FOR UPDATE`, id))
	return l, notFound(err, "postgres.LockLoan", id)
}

func (t *txStore) UpdateLoan(ctx context.Context, l loans.Transaction) error {
	ct, err := t.q.Exec(ctx, `
		UPDATE loans SET due_at=$2, returned_at=$3, status=$4, fine_amount=$5, updated_at=$6
		WHERE id=$1`, l.ID, l.DueAt, l.ReturnedAt, string(l.Status), l.FineAmount, l.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "update loan")
	}
	if ct.RowsAffected() != 1 {
		return liberr.NotFound("postgres.UpdateLoan", l.ID)
	}
	return nil
}

func (t *txStore) DeleteLoan(ctx context.Context, id string) error {
	ct, err := t.q.Exec(ctx, `DELETE FROM loans WHERE id=$1`, id)
	if err != nil {
		return errors.Wrap(err, "delete loan")
	}
	if ct.RowsAffected() != 1 {
		return liberr.NotFound("postgres.DeleteLoan", id)
	}
	return nil
}

func (t *txStore) LockFine(ctx context.Context, id string) (fines.Fine, error) {
	f, err := scanFine(t.q.QueryRow(ctx, `SELECT `+fineCols+` FROM fines WHERE id=$1 FOR UPDATE`, id))
	return f, notFound(err, "postgres.LockFine", id)
}

func (t *txStore) LockFineByLoan(ctx context.Context, loanID string) (*fines.Fine, error) {
	f, err := scanFine(t.q.QueryRow(ctx, `SELECT `+fineCols+` FROM fines WHERE loan_id=$1 FOR UPDATE`, loanID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "lock fine by loan")
	}
	return &f, nil
}

func (t *txStore) InsertFine(ctx context.Context, f fines.Fine) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO fines(id, loan_id, borrower_id, book_id, borrowed_at, due_at, returned_at, days_late, rate_per_day,
		                  total_fine, status, payment_method, requested_at, paid_at, confirmed_by, confirmed_at, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,NULLIF($12,''),$13,$14,NULLIF($15,''),$16,$17,$18)`,
		f.ID, f.LoanID, f.BorrowerID, f.BookID, f.BorrowedAt, f.DueAt, f.ReturnedAt, f.DaysLate, f.RatePerDay,
		f.TotalFine, string(f.Status), f.PaymentMethod, f.RequestedAt, f.PaidAt, f.ConfirmedBy, f.ConfirmedAt, f.CreatedAt, f.UpdatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		// fines.loan_id is unique: at most one fine per loan
		return liberr.New(liberr.KindInvalidState, "postgres.InsertFine", f.LoanID, "loan already has a fine")
	}
	return errors.Wrap(err, "insert fine")
}

func (t *txStore) UpdateFine(ctx context.Context, f fines.Fine) error {
	ct, err := t.q.Exec(ctx, `
		UPDATE fines SET returned_at=$2, due_at=$3, days_late=$4, total_fine=$5, status=$6,
		       payment_method=NULLIF($7,''), requested_at=$8, paid_at=$9, confirmed_by=NULLIF($10,''),
		       confirmed_at=$11, updated_at=$12
		WHERE id=$1`,
		f.ID, f.ReturnedAt, f.DueAt, f.DaysLate, f.TotalFine, string(f.Status),
		f.PaymentMethod, f.RequestedAt, f.PaidAt, f.ConfirmedBy, f.ConfirmedAt, f.UpdatedAt)
	if err != nil {
		return errors.Wrap(err, "update fine")
	}
	if ct.RowsAffected() != 1 {
		return liberr.NotFound("postgres.UpdateFine", f.ID)
	}
	return nil
}

// notFound maps a missing row, or an id that is not even a valid uuid, to NotFound.
func notFound(err error, op, id string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return liberr.NotFound(op, id)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "22P02" {
		return liberr.NotFound(op, id)
	}
	return err
}
