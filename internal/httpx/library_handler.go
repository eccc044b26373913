package httpx

import (
	"context"
	"log"
	"time"

	"github.com/ariefcatur/go-school-library/internal/fines"
	"github.com/ariefcatur/go-school-library/internal/library"
	"github.com/ariefcatur/go-school-library/internal/loans"
	"github.com/ariefcatur/go-school-library/internal/redisx"
	"github.com/go-chi/chi/v5"
)

// Library is the part of library.Service the HTTP layer drives.
type Library interface {
	CreateBook(ctx context.Context, actor library.Principal, in library.BookInput) (loans.Book, error)
	ListBooks(ctx context.Context) ([]loans.Availability, error)
	GetBook(ctx context.Context, id string) (loans.Availability, error)

	Borrow(ctx context.Context, actor library.Principal, req library.BorrowRequest) (loans.Transaction, error)
	Return(ctx context.Context, actor library.Principal, loanID string) (library.ReturnResult, error)
	UpdateLoan(ctx context.Context, actor library.Principal, loanID string, p loans.Patch) (loans.Transaction, error)
	DeleteLoan(ctx context.Context, actor library.Principal, loanID string) error
	GetLoan(ctx context.Context, actor library.Principal, loanID string) (library.LoanView, error)
	ListLoans(ctx context.Context, actor library.Principal, f loans.Filter) ([]library.LoanView, error)

	GetOrMaterializeFine(ctx context.Context, actor library.Principal, loanID string) (fines.Fine, error)
	GetFine(ctx context.Context, actor library.Principal, fineID string) (fines.Fine, error)
	ListFines(ctx context.Context, actor library.Principal) ([]library.FineEntry, error)
	RequestPayment(ctx context.Context, actor library.Principal, loanID, method string) (fines.Fine, error)
	ConfirmPayment(ctx context.Context, actor library.Principal, fineID string) (fines.Fine, error)
	MarkFinePaid(ctx context.Context, actor library.Principal, fineID string, paidAt *time.Time) (fines.Fine, error)
	CorrectFine(ctx context.Context, actor library.Principal, fineID string, to fines.Status) (fines.Fine, error)

	Stats(ctx context.Context, actor library.Principal) (library.Stats, error)
}

type LibraryHandler struct {
	Svc   Library
	Cache *redisx.Cache // nil disables the fine status cache and payment idempotency
}

func (h *LibraryHandler) Register(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(requirePrincipal)

		r.Get("/books", h.listBooks)
		r.Post("/books", h.createBook)
		r.Get("/books/{id}", h.getBook)

		r.Post("/loans", h.borrow)
		r.Get("/loans", h.listLoans)
		r.Get("/loans/{id}", h.getLoan)
		r.Put("/loans/{id}/return", h.returnLoan)
		r.Patch("/loans/{id}", h.updateLoan)
		r.Delete("/loans/{id}", h.deleteLoan)

		r.Get("/fines", h.listFines)
		r.Get("/loans/{id}/fine", h.loanFine)
		r.Post("/loans/{id}/fine/payment", h.requestPayment)
		r.Post("/fines/{id}/confirm", h.confirmPayment)
		r.Put("/fines/{id}/status", h.setFineStatus)
		r.Get("/fines/{id}/status", h.fineStatus)

		r.Get("/stats", h.stats)
	})
}

// cacheFine refreshes the status cache; the store stays authoritative, so failures only log.
func (h *LibraryHandler) cacheFine(ctx context.Context, f fines.Fine) {
	if h.Cache == nil {
		return
	}
	if err := h.Cache.PutFineStatus(ctx, f); err != nil {
		log.Printf("cache fine %s: %v", f.ID, err)
	}
}
