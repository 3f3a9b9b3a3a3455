package ops

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"gocombat/internal"
)

func TestHealthAndReadiness(t *testing.T) {
	s := NewServer("0", internal.NewLogger(internal.LogLevelError))
	ts := httptest.NewServer(s.Router())
	defer ts.Close()

	get := func(path string) int {
		t.Helper()
		resp, err := http.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	if code := get("/healthz"); code != http.StatusOK {
		t.Errorf("healthz: got %d, want 200", code)
	}
	if code := get("/readyz"); code != http.StatusServiceUnavailable {
		t.Errorf("readyz before SetReady: got %d, want 503", code)
	}

	s.SetReady(true)
	if code := get("/readyz"); code != http.StatusOK {
		t.Errorf("readyz after SetReady: got %d, want 200", code)
	}

	if code := get("/debug/pprof/"); code != http.StatusOK {
		t.Errorf("pprof index: got %d, want 200", code)
	}
}
