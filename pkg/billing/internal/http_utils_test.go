package internal

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestReadBodyStrict(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"ok":true}`))
	rr := httptest.NewRecorder()

	body, err := ReadBodyStrict(rr, req, 1024)
	if err != nil {
		t.Fatalf("ReadBodyStrict failed: %v", err)
	}
	if string(body) != `{"ok":true}` {
		t.Errorf("Unexpected body: %q", body)
	}
}

func TestReadBodyStrict_EmptyBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(""))
	rr := httptest.NewRecorder()

	_, err := ReadBodyStrict(rr, req, 1024)
	if err == nil {
		t.Fatal("Expected error for empty body")
	}
}

func TestReadBodyStrict_OversizedBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 100)))
	rr := httptest.NewRecorder()

	_, err := ReadBodyStrict(rr, req, 10)
	if !errors.Is(err, ErrPayloadTooLarge) {
		t.Fatalf("Expected ErrPayloadTooLarge, got %v", err)
	}
}

func TestWriteJSON(t *testing.T) {
	rr := httptest.NewRecorder()

	if err := WriteJSON(rr, http.StatusOK, map[string]bool{"received": true}); err != nil {
		t.Fatalf("WriteJSON failed: %v", err)
	}
	if rr.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", rr.Code)
	}
	if got := rr.Header().Get("Content-Type"); got != "application/json" {
		t.Errorf("Unexpected content type %q", got)
	}
	if strings.TrimSpace(rr.Body.String()) != `{"received":true}` {
		t.Errorf("Unexpected body %q", rr.Body.String())
	}
}
