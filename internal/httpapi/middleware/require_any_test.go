package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRequireAny_AcceptsBothKeyKinds(t *testing.T) {
	keys := Keys{Public: []string{"pub_key"}, Admin: []string{"adm_key"}}
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
	h := RequireAny(keys)(ok)

	cases := []struct {
		name   string
		header string
		value  string
		want   int
	}{
		{"public via X-API-Key", "X-API-Key", "pub_key", http.StatusOK},
		{"admin via bearer", "Authorization", "Bearer adm_key", http.StatusOK},
		{"wrong key", "X-API-Key", "nope", http.StatusUnauthorized},
		{"no key", "", "", http.StatusUnauthorized},
	}
	for _, c := range cases {
		req := httptest.NewRequest(http.MethodGet, "/api/monitors", nil)
		if c.header != "" {
			req.Header.Set(c.header, c.value)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != c.want {
			t.Fatalf("%s: got %d want %d", c.name, rec.Code, c.want)
		}
	}
}

func TestRequireAny_OpenWithoutKeys(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusTeapot) })
	rec := httptest.NewRecorder()
	RequireAny(Keys{})(ok).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Fatalf("no keys configured should pass through, got %d", rec.Code)
	}
}
