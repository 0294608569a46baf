package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

type assertError string

func (e assertError) Error() string { return string(e) }

func TestDetectLocale(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(r *http.Request)
		fallback string
		country  string
		want     string
	}{
		{
			name: "x-locale overrides",
			setup: func(r *http.Request) {
				r.Header.Set("X-Locale", "KO")
			},
			country: "US",
			want:    "ko",
		},
		{
			name: "accept-language used",
			setup: func(r *http.Request) {
				r.Header.Set("Accept-Language", "en-US,en;q=0.9")
			},
			want: "en",
		},
		{
			name: "accept-language weights respected",
			setup: func(r *http.Request) {
				r.Header.Set("Accept-Language", "fr;q=0.2,ko-KR;q=0.9")
			},
			want: "ko",
		},
		{
			name: "unsupported language falls back to en",
			setup: func(r *http.Request) {
				r.Header.Set("Accept-Language", "id-ID")
			},
			want: "en",
		},
		{
			name:    "country kr selects korean",
			country: "KR",
			want:    "ko",
		},
		{
			name:    "other country falls back to en",
			country: "US",
			want:    "en",
		},
		{
			name:     "configured fallback",
			fallback: "ko",
			want:     "ko",
		},
		{
			name: "default to en",
			want: "en",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.setup != nil {
				tc.setup(req)
			}
			got := detectLocale(req, tc.fallback, tc.country)
			if got != tc.want {
				t.Fatalf("detectLocale() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestResolveCountry(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(r *http.Request)
		resolver CountryLookup
		trusted  bool
		want     string
	}{
		{
			name: "header precedence",
			setup: func(r *http.Request) {
				r.Header.Set("X-Country-Code", "us")
				r.Header.Set("CF-IPCountry", "kr")
			},
			trusted: true,
			want:    "US",
		},
		{
			name: "unknown edge country skipped",
			setup: func(r *http.Request) {
				r.Header.Set("CF-IPCountry", "XX")
				r.Header.Set("X-Appengine-Country", "de")
			},
			trusted: true,
			want:    "DE",
		},
		{
			name: "edge header from untrusted peer ignored",
			setup: func(r *http.Request) {
				r.Header.Set("CF-IPCountry", "kr")
			},
			resolver: func(string) (string, error) { return "nz", nil },
			want:     "NZ",
		},
		{
			name: "malformed resolver answer dropped",
			resolver: func(string) (string, error) {
				return "Korea", nil
			},
			want: "",
		},
		{
			name: "locale region fallback",
			setup: func(r *http.Request) {
				r.Header.Set("X-Locale", "en-AU")
			},
			want: "AU",
		},
		{
			name: "accept-language region",
			setup: func(r *http.Request) {
				r.Header.Set("Accept-Language", "en-GB,en;q=0.9")
			},
			want: "GB",
		},
		{
			name: "bare language has no region",
			setup: func(r *http.Request) {
				r.Header.Set("Accept-Language", "ko;q=0.8")
			},
			resolver: func(string) (string, error) { return "", nil },
			want:     "",
		},
		{
			name: "resolver fallback",
			resolver: func(ip string) (string, error) {
				if ip != "203.0.113.4" {
					t.Fatalf("unexpected ip: %s", ip)
				}
				return "kr", nil
			},
			want: "KR",
		},
		{
			name: "resolver error returns empty",
			resolver: func(ip string) (string, error) {
				return "", assertError("boom")
			},
			want: "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = "203.0.113.4:80"
			if tc.trusted {
				req = req.WithContext(context.WithValue(req.Context(), trustedPeerKey{}, true))
			}
			if tc.setup != nil {
				tc.setup(req)
			}
			got := ResolveCountry(req, tc.resolver)
			if got != tc.want {
				t.Fatalf("ResolveCountry() = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestI18NStoresLocaleAndCountry(t *testing.T) {
	var locale, country string
	handler := I18N("en", nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		locale = LocaleFromContext(r.Context())
		country = CountryFromContext(r.Context())
	}))
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Accept-Language", "ko-KR")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if locale != "ko" || country != "KR" {
		t.Fatalf("got locale %q country %q", locale, country)
	}
	if got := rec.Header().Get("Content-Language"); got != "ko" {
		t.Fatalf("Content-Language = %q", got)
	}
}

func TestLocaleFromContext(t *testing.T) {
	ctx := context.Background()
	if got := LocaleFromContext(ctx); got != "en" {
		t.Fatalf("LocaleFromContext() default = %q, want %q", got, "en")
	}
	ctx = WithLocale(ctx, "ko")
	if got := LocaleFromContext(ctx); got != "ko" {
		t.Fatalf("LocaleFromContext() with value = %q, want %q", got, "ko")
	}
}

func TestClientIPUsesRemoteAddr(t *testing.T) {
	cases := map[string]string{
		"198.51.100.10:1234": "198.51.100.10",
		"[2001:db8::2]:443":  "2001:db8::2",
		"203.0.113.1":        "203.0.113.1",
	}
	for remote, want := range cases {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = remote
		req.Header.Set("X-Forwarded-For", "192.0.2.99")
		if got := ClientIP(req); got != want {
			t.Fatalf("ClientIP(%q) = %q, want %q", remote, got, want)
		}
	}
}
