package httpx

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/ariefcatur/go-school-library/internal/liberr"
)

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func statusFor(k liberr.Kind) int {
	switch k {
	case liberr.KindNotFound:
		return http.StatusNotFound
	case liberr.KindOutOfStock, liberr.KindInvalidState:
		return http.StatusConflict
	case liberr.KindValidation:
		return http.StatusBadRequest
	case liberr.KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// writeError maps a service error onto its HTTP status; unknown errors are 500s
// and their text stays in the log.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	k := liberr.KindOf(err)
	code := statusFor(k)
	if code == http.StatusInternalServerError {
		log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
		writeJSON(w, code, errorBody{Error: "INTERNAL"})
		return
	}
	writeJSON(w, code, errorBody{Error: string(k), Message: err.Error()})
}

func badRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorBody{Error: string(liberr.KindValidation), Message: msg})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "invalid json")
		return false
	}
	return true
}
