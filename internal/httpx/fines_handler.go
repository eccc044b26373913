package httpx

import (
	"context"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/ariefcatur/go-school-library/internal/fines"
	"github.com/ariefcatur/go-school-library/internal/liberr"
	"github.com/ariefcatur/go-school-library/internal/redisx"
	"github.com/go-chi/chi/v5"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type paymentReq struct {
	Method string `json:"method"`
}

type fineStatusReq struct {
	Status fines.Status `json:"status"`
	PaidAt *time.Time   `json:"paid_at,omitempty"`
}

func (h *LibraryHandler) listFines(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	es, err := h.Svc.ListFines(ctx, principal(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, es)
}

func (h *LibraryHandler) loanFine(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	f, err := h.Svc.GetOrMaterializeFine(ctx, principal(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.cacheFine(ctx, f)
	writeJSON(w, http.StatusOK, f)
}

// requestPayment replays the stored response when the Idempotency-Key was seen
// before for the same user and loan.
func (h *LibraryHandler) requestPayment(w http.ResponseWriter, r *http.Request) {
	var req paymentReq
	if !decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Method) == "" {
		badRequest(w, "missing method")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	p := principal(r)
	loanID := chi.URLParam(r, "id")
	idem := ""
	if k := strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey)); k != "" && h.Cache != nil {
		idem = p.ID + ":" + loanID + ":" + k
		f, ok, err := h.Cache.RecalledPayment(ctx, idem)
		if err != nil {
			log.Printf("recall payment %s: %v", idem, err)
		} else if ok {
			w.Header().Set("Idempotent-Replay", "true")
			writeJSON(w, http.StatusOK, f)
			return
		}
	}

	f, err := h.Svc.RequestPayment(ctx, p, loanID, req.Method)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if idem != "" {
		if err := h.Cache.RememberPayment(ctx, idem, f); err != nil {
			log.Printf("remember payment %s: %v", idem, err)
		}
	}
	h.cacheFine(ctx, f)
	writeJSON(w, http.StatusAccepted, f)
}

func (h *LibraryHandler) confirmPayment(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	f, err := h.Svc.ConfirmPayment(ctx, principal(r), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.cacheFine(ctx, f)
	writeJSON(w, http.StatusOK, f)
}

// setFineStatus is the admin override: PAID settles the fine, anything else is a correction.
func (h *LibraryHandler) setFineStatus(w http.ResponseWriter, r *http.Request) {
	var req fineStatusReq
	if !decode(w, r, &req) {
		return
	}
	to := fines.Status(strings.ToUpper(string(req.Status)))
	if !to.Valid() {
		badRequest(w, "unknown status")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	id := chi.URLParam(r, "id")
	var f fines.Fine
	var err error
	if to == fines.StatusPaid {
		f, err = h.Svc.MarkFinePaid(ctx, principal(r), id, req.PaidAt)
	} else {
		f, err = h.Svc.CorrectFine(ctx, principal(r), id, to)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.cacheFine(ctx, f)
	writeJSON(w, http.StatusOK, f)
}

func (h *LibraryHandler) fineStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	p := principal(r)
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	// 1) cache
	if h.Cache != nil {
		st, ok, err := h.Cache.FineStatus(ctx, id)
		if err != nil {
			log.Printf("fine status cache %s: %v", id, err)
		}
		if ok {
			if !p.IsAdmin() && st.BorrowerID != p.ID {
				writeError(w, r, liberr.Forbidden("httpx.fineStatus", id, p.ID))
				return
			}
			writeJSON(w, http.StatusOK, st)
			return
		}
	}

	// 2) store
	f, err := h.Svc.GetFine(ctx, p, id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.cacheFine(ctx, f)
	writeJSON(w, http.StatusOK, redisx.StatusOf(f))
}
