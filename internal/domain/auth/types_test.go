package auth

import (
	"testing"
)

func TestDirectoryResult_Accepted(t *testing.T) {
	if DirectoryRejected.Accepted() {
		t.Fatalf("rejected must not be accepted")
	}
	if !DirectoryAuthenticated.Accepted() {
		t.Fatalf("authenticated must be accepted")
	}
	if !DirectoryBoundSearchFailed.Accepted() {
		t.Fatalf("bound search failure must be accepted")
	}
}

func TestDirectoryResult_String(t *testing.T) {
	cases := map[DirectoryResult]string{
		DirectoryRejected:          "rejected",
		DirectoryAuthenticated:     "authenticated",
		DirectoryBoundSearchFailed: "bound_search_failed",
		DirectoryResult(42):        "rejected",
	}
	for r, want := range cases {
		if got := r.String(); got != want {
			t.Fatalf("String() = %q, want %q", got, want)
		}
	}
}

func TestSession_Authenticated(t *testing.T) {
	s := Session{ID: "s1", Path: "/users", UID: "u1"}
	if !s.Authenticated("/users") {
		t.Fatalf("expected authenticated session")
	}
	if s.Authenticated("/other") {
		t.Fatalf("did not expect a session scoped to another path")
	}
	if (Session{ID: "s2", Path: "/users"}).Authenticated("/users") {
		t.Fatalf("did not expect a session without uid")
	}
}
