package api

import (
	"encoding/json"
	"net/http"

	"dronehub/internal/apierr"
)

// writeJSON writes v as JSON with the given status code; it adds no
// envelope of its own (writeOK and writeErr build those).
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeOK writes a successful envelope, merging fields into {ok: true}.
func writeOK(w http.ResponseWriter, fields map[string]any) {
	if fields == nil {
		fields = map[string]any{}
	}
	fields["ok"] = true
	writeJSON(w, http.StatusOK, fields)
}

// writeErr writes the §7/§6.2 error envelope, mapping err's apierr.Code to
// an HTTP status via apierr.HTTPStatus.
func writeErr(w http.ResponseWriter, err error) {
	ae, ok := apierr.As(err)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, map[string]any{
			"ok":    false,
			"error": err.Error(),
			"code":  string(apierr.CodeInternal),
		})
		return
	}
	body := map[string]any{
		"ok":    false,
		"error": ae.Message,
		"code":  string(ae.Code),
	}
	if ae.Diagnostics != nil {
		body["diagnostics"] = ae.Diagnostics
	}
	writeJSON(w, apierr.HTTPStatus(ae.Code), body)
}

func decodeJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
