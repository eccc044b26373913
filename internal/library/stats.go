package library

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

type BookCount struct {
	BookID string `json:"book_id"`
	Title  string `json:"title"`
	Loans  int    `json:"loans"`
}

// Stats feeds the admin dashboard.
type Stats struct {
	TotalBooks      int             `json:"total_books"`
	ActiveLoans     int             `json:"active_loans"`
	OverdueLoans    int             `json:"overdue_loans"`
	LoansToday      int             `json:"loans_today"`
	UnpaidFines     decimal.Decimal `json:"unpaid_fines"`
	PendingFines    decimal.Decimal `json:"pending_fines"`
	PendingRequests int             `json:"pending_requests"`
	TopBooks        []BookCount     `json:"top_books"`
}

func (s *Service) Stats(ctx context.Context, actor Principal) (Stats, error) {
	if err := actor.requireAdmin("library.Stats", ""); err != nil {
		return Stats{}, err
	}
	now := s.now()
	y, m, d := now.In(s.Policy.Calc.Loc).Date()
	dayStart := time.Date(y, m, d, 0, 0, 0, 0, s.Policy.Calc.Loc)

	st, err := s.Store.Stats(ctx, now, dayStart)
	if err != nil {
		return Stats{}, errors.Wrap(err, "stats")
	}
	return st, nil
}
