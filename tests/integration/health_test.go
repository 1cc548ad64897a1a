//go:build integration

package integration

import (
	"net/http"
	"testing"
)

func TestHealthEndpoints(t *testing.T) {
	for _, path := range []string{"/livez", "/readyz"} {
		resp := doGet(t, path)
		body := decode[healthResponse](t, resp)
		if resp.StatusCode != http.StatusOK {
			t.Errorf("%s: status = %d, want 200 (checks: %v)", path, resp.StatusCode, body.Checks)
		}
		if body.Status != "ok" {
			t.Errorf("%s: status field = %q, want ok", path, body.Status)
		}
	}
}

func TestUnknownRouteReturns404(t *testing.T) {
	resp := doGet(t, "/api/nope")
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}
