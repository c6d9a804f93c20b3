package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/cuemby/warrenflow/pkg/errs"
)

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}

// writeErr maps an errs.Error's Kind to an HTTP status, falling back
// to 500 for anything not explicitly a client-facing kind.
func writeErr(w http.ResponseWriter, err error) {
	switch errs.KindOf(err) {
	case errs.KindValidation:
		writeError(w, http.StatusBadRequest, "validation_error", err.Error())
	case errs.KindAuth:
		writeError(w, http.StatusForbidden, "auth_error", err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal_error", err.Error())
	}
}
