package loans

import (
	"time"

	"github.com/shopspring/decimal"
)

type Book struct {
	ID          string    `json:"id"`
	ISBN        string    `json:"isbn,omitempty"`
	Title       string    `json:"title"`
	Author      string    `json:"author"`
	TotalCopies int       `json:"total_copies"` // jumlah eksemplar
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Availability is derived from active loans, never stored next to the book.
type Availability struct {
	Book
	Borrowed  int `json:"borrowed"`
	Available int `json:"available"`
}

type Transaction struct {
	ID         string          `json:"id"`
	BookID     string          `json:"book_id"`
	BorrowerID string          `json:"borrower_id"`
	BorrowedAt time.Time       `json:"borrowed_at"`
	DueAt      time.Time       `json:"due_at"`
	ReturnedAt *time.Time      `json:"returned_at"`
	Status     Status          `json:"status"` // lihat status.go
	FineAmount decimal.Decimal `json:"fine_amount"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

// Filter narrows loan listings; zero values mean "any".
type Filter struct {
	BorrowerID string
	BookID     string
	Status     Status
	Limit      int
}
