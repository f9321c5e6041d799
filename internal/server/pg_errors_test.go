package server

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestBadRequestHelpers(t *testing.T) {
	err := newBadRequestError("bad request")
	if !isBadRequestError(err) {
		t.Fatal("expected bad request error")
	}
	if isBadRequestError(errors.New("boom")) {
		t.Fatal("plain error is not a bad request")
	}
}

func TestPgErrorMessage(t *testing.T) {
	if got := pgErrorMessage(&pgconn.PgError{Message: "  bad  "}); got != "bad" {
		t.Fatalf("msg=%q", got)
	}
	if got := pgErrorMessage(&pgconn.PgError{Message: "   "}); got != "UNKNOWN" {
		t.Fatalf("empty msg=%q", got)
	}
	if got := pgErrorMessage(errors.New("boom")); got != "UNKNOWN" {
		t.Fatalf("non-pg msg=%q", got)
	}
}

func TestPgErrorCode(t *testing.T) {
	if got := pgErrorCode(&pgconn.PgError{Code: " 22P02 "}); got != "22P02" {
		t.Fatalf("code=%q", got)
	}
	if got := pgErrorCode(errors.New("boom")); got != "" {
		t.Fatalf("non-pg code=%q", got)
	}
}

func TestIsPgInvalidInput(t *testing.T) {
	for _, code := range []string{"22P02", "22003", "22007", "22008"} {
		if !isPgInvalidInput(&pgconn.PgError{Code: code}) {
			t.Fatalf("expected true for %s", code)
		}
	}
	if isPgInvalidInput(&pgconn.PgError{Code: "23505"}) {
		t.Fatal("expected false for unrelated code")
	}
	if isPgInvalidInput(errors.New("boom")) {
		t.Fatal("expected false for non-pg error")
	}
}
