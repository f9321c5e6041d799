package routing

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWriteError_AcceptJSONCharset(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Accept", "application/json; charset=utf-8")
	rec := httptest.NewRecorder()

	WriteError(rec, req, RouteClassUI, http.StatusNotFound, "not_found", "not found")
	if !strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		t.Fatalf("content-type=%q", rec.Header().Get("Content-Type"))
	}
}

func TestTraceIDFromRequest(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name        string
		traceparent string
		want        string
	}{
		{name: "empty", traceparent: "", want: ""},
		{name: "malformed segments", traceparent: "00-abc-01", want: ""},
		{name: "invalid chars", traceparent: "00-0123456789abcdef0123456789abcdeg-0123456789abcdef-01", want: ""},
		{name: "all zero trace", traceparent: "00-00000000000000000000000000000000-0123456789abcdef-01", want: ""},
		{name: "valid", traceparent: "00-ABCDEFABCDEFABCDEFABCDEFABCDEFAB-0123456789abcdef-01", want: "abcdefabcdefabcdefabcdefabcdefab"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x", nil)
			if tc.traceparent != "" {
				req.Header.Set("traceparent", tc.traceparent)
			}
			if got := traceIDFromRequest(req); got != tc.want {
				t.Fatalf("traceIDFromRequest()=%q want %q", got, tc.want)
			}
		})
	}
}

func TestWriteError_TraceIDFromTraceparent(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("traceparent", "00-0123456789abcdef0123456789abcdef-0123456789abcdef-01")
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()

	WriteError(rec, req, RouteClassInternalAPI, http.StatusBadRequest, "bad", "bad request body")

	var body ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.TraceID != "0123456789abcdef0123456789abcdef" {
		t.Fatalf("trace_id=%q", body.TraceID)
	}
}

func TestWriteError_RewritesGenericMessageFromCode(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/policy/api/policies:effective", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()

	WriteError(rec, req, RouteClassInternalAPI, http.StatusNotFound, "no_applicable_policy", "resolution_failed")

	var body ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Message == "resolution_failed" {
		t.Fatalf("message should be normalized, got %q", body.Message)
	}
	if body.Message != "No policy of this type governs the user." {
		t.Fatalf("unexpected message: %q", body.Message)
	}
}

func TestWriteError_HumanizesUnknownGenericCode(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodGet, "/leave/api/requests", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()

	WriteError(rec, req, RouteClassInternalAPI, http.StatusInternalServerError, "leave_submit_failed", "leave_submit_failed")

	var body ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Message != "Leave submit failed." {
		t.Fatalf("unexpected message: %q", body.Message)
	}
}

func TestWriteError_KeepExplicitMessage(t *testing.T) {
	t.Parallel()

	req := httptest.NewRequest(http.MethodPost, "/policy/api/evaluate", nil)
	req.Header.Set("Accept", "application/json")
	rec := httptest.NewRecorder()

	const want = "rule evaluation failed. please check the rule payload."
	WriteError(rec, req, RouteClassInternalAPI, http.StatusBadRequest, "RULE_EVAL_FAILED", want)

	var body ErrorEnvelope
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Message != want {
		t.Fatalf("message=%q want %q", body.Message, want)
	}
}

func TestNormalizeErrorMessage_Branches(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		code    string
		message string
		want    string
	}{
		{
			name:    "keep explicit message",
			code:    "POLICY_CREATE_FAILED",
			message: "create failed for duplicated name",
			want:    "create failed for duplicated name",
		},
		{
			name:    "known code with generic message",
			code:    "unknown_user",
			message: "resolution_failed",
			want:    "The user does not exist in this tenant.",
		},
		{
			name:    "empty code with generic message",
			code:    "",
			message: "operation failed",
			want:    "Request failed.",
		},
		{
			name:    "unknown code with generic message",
			code:    "cache_sync_error",
			message: "cache_sync_error",
			want:    "Cache sync error.",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := normalizeErrorMessage(tt.code, tt.message); got != tt.want {
				t.Fatalf("normalizeErrorMessage(%q, %q)=%q want %q", tt.code, tt.message, got, tt.want)
			}
		})
	}
}

func TestIsGenericErrorMessage_Patterns(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		code    string
		message string
		want    bool
	}{
		{name: "empty message", code: "E", message: "", want: true},
		{name: "same as code case insensitive", code: "POLICY_CREATE_FAILED", message: "policy_create_failed", want: true},
		{name: "snake failed", code: "x", message: "policy_write_failed", want: true},
		{name: "short sentence failed", code: "x", message: "create failed", want: true},
		{name: "internal error literal", code: "x", message: "internal_error", want: true},
		{name: "explicit message", code: "x", message: "cannot create assignment because policy is missing", want: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := isGenericErrorMessage(tt.code, tt.message); got != tt.want {
				t.Fatalf("isGenericErrorMessage(%q, %q)=%v want %v", tt.code, tt.message, got, tt.want)
			}
		})
	}
}

func TestKnownErrorMessage_AllCases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code string
		want string
	}{
		{code: "forbidden", want: "You do not have permission to perform this action."},
		{code: "unauthorized", want: "Your session is no longer valid. Sign in again."},
		{code: "invalid_input", want: "The request contains invalid values. Check and retry."},
		{code: "tenant_not_found", want: "No tenant is registered for this host."},
		{code: "tenant_missing", want: "Tenant context is missing. Refresh and retry."},
		{code: "tenant_resolve_error", want: "Tenant resolution failed. Try again later."},
		{code: "unknown_user", want: "The user does not exist in this tenant."},
		{code: "no_applicable_policy", want: "No policy of this type governs the user."},
		{code: "unknown", want: ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.code, func(t *testing.T) {
			t.Parallel()
			if got := knownErrorMessage(tt.code); got != tt.want {
				t.Fatalf("knownErrorMessage(%q)=%q want %q", tt.code, got, tt.want)
			}
		})
	}
}

func TestHumanizeErrorCode_Branches(t *testing.T) {
	t.Parallel()

	tests := []struct {
		code string
		want string
	}{
		{code: "", want: "Request failed."},
		{code: "___", want: "Request failed."},
		{code: "failed", want: "Request failed."},
		{code: "error", want: "Request error."},
		{code: "leave_submit_failed", want: "Leave submit failed."},
		{code: "tenant_resolve_error", want: "Tenant resolve error."},
		{code: "org_api_id_error", want: "Org API ID error."},
		{code: "foo-bar", want: "Foo bar."},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.code, func(t *testing.T) {
			t.Parallel()
			if got := humanizeErrorCode(tt.code); got != tt.want {
				t.Fatalf("humanizeErrorCode(%q)=%q want %q", tt.code, got, tt.want)
			}
		})
	}
}

func TestTitleCaseWordsAndCapitalizeWord(t *testing.T) {
	t.Parallel()

	if got := titleCaseWords(nil); got != "" {
		t.Fatalf("titleCaseWords(nil)=%q want empty", got)
	}
	if got := titleCaseWords([]string{"org", "api", "db", "uuid", "rls", "id", "code"}); got != "Org API DB UUID RLS ID code" {
		t.Fatalf("unexpected titleCaseWords result: %q", got)
	}
	if got := titleCaseWords([]string{"org", "", "id"}); got != "Org  ID" {
		t.Fatalf("unexpected empty-word handling: %q", got)
	}

	if got := capitalizeWord(""); got != "" {
		t.Fatalf("capitalizeWord(empty)=%q want empty", got)
	}
	if got := capitalizeWord("org"); got != "Org" {
		t.Fatalf("capitalizeWord(org)=%q want Org", got)
	}
}
