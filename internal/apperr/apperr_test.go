package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOfWrappedError(t *testing.T) {
	inner := Validationf("tenant id is required")
	wrapped := fmt.Errorf("search failed: %w", inner)

	if KindOf(wrapped) != KindValidation {
		t.Fatalf("expected validation kind through wrap, got %s", KindOf(wrapped))
	}
	if !IsKind(wrapped, KindValidation) {
		t.Fatal("IsKind must see through error wrapping")
	}
}

func TestKindOfPlainErrorDefaultsToProvider(t *testing.T) {
	if KindOf(errors.New("boom")) != KindProvider {
		t.Fatal("untyped errors must default to provider")
	}
}

func TestHTTPStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{Validationf("bad"), http.StatusBadRequest},
		{Authorizationf("no"), http.StatusForbidden},
		{NotFoundf("gone"), http.StatusNotFound},
		{New(KindRateLimited, "slow down"), http.StatusTooManyRequests},
		{Providerf(errors.New("down"), "upstream"), http.StatusBadGateway},
		{PartialIngestionf(nil, "half done"), http.StatusBadGateway},
		{errors.New("plain"), http.StatusBadGateway},
	}
	for _, c := range cases {
		if got := HTTPStatus(c.err); got != c.status {
			t.Fatalf("HTTPStatus(%v) = %d, want %d", c.err, got, c.status)
		}
	}
}

func TestErrorMessageDoesNotLeakWrappedDetailWhenNil(t *testing.T) {
	e := NotFoundf("video %s not found", "v1")
	if e.Error() != "not_found: video v1 not found" {
		t.Fatalf("unexpected error string: %q", e.Error())
	}
	if e.Unwrap() != nil {
		t.Fatal("plain errors must not carry a cause")
	}
}
