package httpx

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ariefcatur/go-school-library/internal/library"
	"github.com/ariefcatur/go-school-library/internal/loans"
	"github.com/go-chi/chi/v5"
)

func (h *LibraryHandler) borrow(w http.ResponseWriter, r *http.Request) {
	var req library.BorrowRequest
	if !decode(w, r, &req) {
		return
	}
	if req.BookID == "" {
		badRequest(w, "missing book_id")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	t, err := h.Svc.Borrow(ctx, principal(r), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

func (h *LibraryHandler) listLoans(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := loans.Filter{
		BorrowerID: q.Get("borrower_id"),
		BookID:     q.Get("book_id"),
		Status:     loans.Status(strings.ToUpper(q.Get("status"))),
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			badRequest(w, "bad limit")
			return
		}
		f.Limit = n
	}
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	ls, err := h.Svc.ListLoans(ctx, principal(r), f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ls)
}

func (h *LibraryHandler) getLoan(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	v, err := h.Svc.GetLoan(ctx, principal(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, v)
}

func (h *LibraryHandler) returnLoan(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	res, err := h.Svc.Return(ctx, principal(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	if res.Fine != nil {
		h.cacheFine(ctx, *res.Fine)
	}
	writeJSON(w, http.StatusOK, res)
}

func (h *LibraryHandler) updateLoan(w http.ResponseWriter, r *http.Request) {
	var p loans.Patch
	if !decode(w, r, &p) {
		return
	}
	if p.Status != nil {
		s := loans.Status(strings.ToUpper(string(*p.Status)))
		p.Status = &s
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	t, err := h.Svc.UpdateLoan(ctx, principal(r), chi.URLParam(r, "id"), p)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *LibraryHandler) deleteLoan(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.Svc.DeleteLoan(ctx, principal(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
