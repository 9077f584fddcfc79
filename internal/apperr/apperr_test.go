package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestFromStatus(t *testing.T) {
	tests := []struct {
		code int
		want Kind
	}{
		{http.StatusBadRequest, KindValidation},
		{http.StatusUnauthorized, KindUnauthenticated},
		{http.StatusForbidden, KindForbidden},
		{http.StatusNotFound, KindNotFound},
		{http.StatusInternalServerError, KindTransient},
		{http.StatusBadGateway, KindTransient},
		{http.StatusTeapot, KindInternal},
	}
	for _, tt := range tests {
		err := FromStatus(tt.code, "")
		if err.Kind != tt.want {
			t.Fatalf("FromStatus(%d) kind = %v, want %v", tt.code, err.Kind, tt.want)
		}
		if err.Message != http.StatusText(tt.code) {
			t.Fatalf("FromStatus(%d) message = %q", tt.code, err.Message)
		}
	}
}

func TestIsMatchesKindThroughWrapping(t *testing.T) {
	err := fmt.Errorf("get todo: %w", NotFound("Todo not found"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatal("expected errors.Is to match not found")
	}
	if errors.Is(err, ErrForbidden) {
		t.Fatal("not found must not match forbidden")
	}
	if KindOf(err) != KindNotFound {
		t.Fatalf("KindOf = %v", KindOf(err))
	}
	if KindOf(errors.New("boom")) != KindInternal {
		t.Fatal("plain errors are internal")
	}
}

func TestHTTPStatus(t *testing.T) {
	if got := Forbidden().HTTPStatus(); got != http.StatusForbidden {
		t.Fatalf("forbidden status = %d", got)
	}
	if got := Wrap(KindTransient, "db down", errors.New("x")).HTTPStatus(); got != http.StatusInternalServerError {
		t.Fatalf("transient status = %d", got)
	}
}
