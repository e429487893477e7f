package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func request(path string, headers map[string]string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req
}

func TestAuth(t *testing.T) {
	handler := Auth("secret", "/api/health")(okHandler())

	cases := []struct {
		name    string
		path    string
		headers map[string]string
		want    int
	}{
		{"missing token", "/api/positions", nil, http.StatusUnauthorized},
		{"wrong bearer", "/api/positions", map[string]string{"Authorization": "Bearer nope"}, http.StatusUnauthorized},
		{"valid bearer", "/api/positions", map[string]string{"Authorization": "Bearer secret"}, http.StatusOK},
		{"case-insensitive scheme", "/api/positions", map[string]string{"Authorization": "bearer secret"}, http.StatusOK},
		{"valid api key header", "/api/positions", map[string]string{"X-API-Key": "secret"}, http.StatusOK},
		{"wrong api key header", "/api/positions", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized},
		{"open path needs no token", "/api/health", nil, http.StatusOK},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, request(tc.path, tc.headers))
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestAuthDisabledWithoutKey(t *testing.T) {
	handler := Auth("")(okHandler())
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, request("/api/positions", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200 when no key is configured", rec.Code)
	}
}
