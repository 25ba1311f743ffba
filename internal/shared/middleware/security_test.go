package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestIsHostAllowed(t *testing.T) {
	tests := []struct {
		name         string
		host         string
		allowedHosts []string
		want         bool
	}{
		{"Empty List Allows All", "example.com", []string{}, true},
		{"Exact Match With Port", "example.com:8080", []string{"example.com:8080"}, true},
		{"Host Without Port Matches Allowed With Port", "example.com", []string{"example.com:8080"}, true},
		{"Host With Port Matches Allowed Without Port", "example.com:8080", []string{"example.com"}, true},
		{"Localhost With Port", "localhost:3000", []string{"localhost"}, true},
		{"IPv6 Exact", "[::1]:8080", []string{"[::1]:8080"}, true},
		{"IPv6 Bare Matches Bracketed With Port", "::1", []string{"[::1]:8080"}, true},
		{"IPv6 Bracketed Matches Bare", "[::1]:8080", []string{"::1"}, true},
		{"IPv6 Zone", "[fe80::1%lo0]:8080", []string{"fe80::1%lo0"}, true},
		{"Case Insensitive", "Example.COM:8080", []string{"example.com"}, true},
		{"Whitespace Trimmed", "  example.com:8080  ", []string{"  example.com  "}, true},
		{"Second Entry Matches", "app.example.com", []string{"example.com", "app.example.com"}, true},
		{"Unknown Host Rejected", "evil.com", []string{"example.com"}, false},
		{"Subdomain Not Implied", "sub.example.com", []string{"example.com"}, false},
		{"IPv6 Different Address", "[::2]:8080", []string{"[::1]:8080"}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsHostAllowed(tt.host, tt.allowedHosts)
			if got != tt.want {
				t.Errorf("IsHostAllowed(%q, %v) = %v, want %v",
					tt.host, tt.allowedHosts, got, tt.want)
			}
		})
	}
}

func TestHSTS_SetsHeader(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	rr := httptest.NewRecorder()
	HSTS(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	got := rr.Header().Get("Strict-Transport-Security")
	if !strings.Contains(got, "max-age=31536000") {
		t.Errorf("Strict-Transport-Security = %q, want max-age=31536000", got)
	}
}

func TestSecureCookies_AddsMissingFlags(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Set-Cookie", "access_token=abc; Path=/")
		w.WriteHeader(http.StatusOK)
	})

	rr := httptest.NewRecorder()
	SecureCookies(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	cookie := rr.Header().Get("Set-Cookie")
	for _, flag := range []string{"Secure", "HttpOnly", "SameSite"} {
		if !strings.Contains(cookie, flag) {
			t.Errorf("Set-Cookie %q missing %s", cookie, flag)
		}
	}
}

func TestSecureCookies_KeepsExistingSameSite(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Set-Cookie", "access_token=abc; Path=/; SameSite=Lax; HttpOnly")
		w.WriteHeader(http.StatusOK)
	})

	rr := httptest.NewRecorder()
	SecureCookies(next).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	cookie := rr.Header().Get("Set-Cookie")
	if strings.Contains(cookie, "SameSite=Strict") {
		t.Errorf("Set-Cookie %q should keep SameSite=Lax", cookie)
	}
	if !strings.Contains(cookie, "Secure") {
		t.Errorf("Set-Cookie %q missing Secure", cookie)
	}
}
