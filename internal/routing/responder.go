package routing

import (
	"encoding/json"
	"net/http"
	"strings"
)

type ErrorEnvelope struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	TraceID string            `json:"trace_id"`
	Meta    ErrorEnvelopeMeta `json:"meta"`
}

type ErrorEnvelopeMeta struct {
	Path   string `json:"path"`
	Method string `json:"method"`
}

func WriteError(w http.ResponseWriter, r *http.Request, rc RouteClass, status int, code string, message string) {
	message = normalizeErrorMessage(code, message)

	if isJSONOnly(rc) || wantsJSON(r) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(ErrorEnvelope{
			Code:    code,
			Message: message,
			TraceID: traceIDFromRequest(r),
			Meta: ErrorEnvelopeMeta{
				Path:   r.URL.Path,
				Method: r.Method,
			},
		})
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte("<!doctype html><html><body>"))
	_, _ = w.Write([]byte(message))
	_, _ = w.Write([]byte("</body></html>"))
}

// normalizeErrorMessage keeps explicit handler messages as-is and only
// rewrites the lazy ones (message == code, "x_failed" literals) into
// something a client can show.
func normalizeErrorMessage(code string, message string) string {
	if !isGenericErrorMessage(code, message) {
		return message
	}
	if known := knownErrorMessage(code); known != "" {
		return known
	}
	return humanizeErrorCode(code)
}

func isGenericErrorMessage(code string, message string) bool {
	msg := strings.TrimSpace(message)
	if msg == "" {
		return true
	}
	if strings.EqualFold(msg, strings.TrimSpace(code)) {
		return true
	}
	if msg == "internal_error" {
		return true
	}
	if !strings.Contains(msg, " ") && (strings.HasSuffix(msg, "_failed") || strings.HasSuffix(msg, "_error")) {
		return true
	}
	words := strings.Fields(msg)
	if len(words) <= 2 && (strings.HasSuffix(msg, "failed") || strings.HasSuffix(msg, "error")) {
		return true
	}
	return false
}

func knownErrorMessage(code string) string {
	switch code {
	case "forbidden":
		return "You do not have permission to perform this action."
	case "unauthorized":
		return "Your session is no longer valid. Sign in again."
	case "invalid_input":
		return "The request contains invalid values. Check and retry."
	case "tenant_not_found":
		return "No tenant is registered for this host."
	case "tenant_missing":
		return "Tenant context is missing. Refresh and retry."
	case "tenant_resolve_error":
		return "Tenant resolution failed. Try again later."
	case "unknown_user":
		return "The user does not exist in this tenant."
	case "no_applicable_policy":
		return "No policy of this type governs the user."
	default:
		return ""
	}
}

func humanizeErrorCode(code string) string {
	norm := strings.ReplaceAll(strings.TrimSpace(code), "-", "_")
	parts := strings.Split(norm, "_")
	words := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			words = append(words, strings.ToLower(p))
		}
	}
	if len(words) == 0 {
		return "Request failed."
	}
	if len(words) == 1 && (words[0] == "failed" || words[0] == "error") {
		return "Request " + words[0] + "."
	}
	return titleCaseWords(words) + "."
}

var errorCodeAcronyms = map[string]string{
	"api":  "API",
	"db":   "DB",
	"id":   "ID",
	"json": "JSON",
	"jwt":  "JWT",
	"rls":  "RLS",
	"sql":  "SQL",
	"uuid": "UUID",
}

func titleCaseWords(words []string) string {
	out := make([]string, len(words))
	for i, w := range words {
		if a, ok := errorCodeAcronyms[strings.ToLower(w)]; ok {
			out[i] = a
			continue
		}
		if i == 0 {
			out[i] = capitalizeWord(w)
			continue
		}
		out[i] = strings.ToLower(w)
	}
	return strings.Join(out, " ")
}

func capitalizeWord(w string) string {
	if w == "" {
		return ""
	}
	return strings.ToUpper(w[:1]) + w[1:]
}

func wantsJSON(r *http.Request) bool {
	return r.Header.Get("Accept") == "application/json" || r.Header.Get("Accept") == "application/json; charset=utf-8"
}

func isJSONOnly(rc RouteClass) bool {
	return rc == RouteClassInternalAPI || rc == RouteClassPublicAPI || rc == RouteClassWebhook
}

func traceIDFromRequest(r *http.Request) string {
	traceparent := strings.TrimSpace(r.Header.Get("traceparent"))
	if traceparent == "" {
		return ""
	}
	parts := strings.Split(traceparent, "-")
	if len(parts) != 4 {
		return ""
	}
	traceID := strings.ToLower(parts[1])
	if len(traceID) != 32 || traceID == "00000000000000000000000000000000" {
		return ""
	}
	for _, ch := range traceID {
		if (ch < '0' || ch > '9') && (ch < 'a' || ch > 'f') {
			return ""
		}
	}
	return traceID
}
