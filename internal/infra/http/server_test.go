package http

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
)

func TestBearerAuth(t *testing.T) {
	srv := NewServer(zerolog.Nop())
	srv.Router.With(BearerAuth("secret")).Get("/private", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"без заголовка", "", http.StatusUnauthorized},
		{"чужой токен", "Bearer nope", http.StatusUnauthorized},
		{"без схемы", "secret", http.StatusUnauthorized},
		{"верный токен", "Bearer secret", http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/private", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			srv.Router.ServeHTTP(rec, req)
			if rec.Code != tc.want {
				t.Fatalf("код %d, ожидали %d", rec.Code, tc.want)
			}
		})
	}
}

func TestBearerAuthDisabled(t *testing.T) {
	srv := NewServer(zerolog.Nop())
	srv.Router.With(BearerAuth("")).Get("/open", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	rec := httptest.NewRecorder()
	srv.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/open", nil))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("без токена проверка должна быть отключена, код %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	srv := NewServer(zerolog.Nop())
	rec := httptest.NewRecorder()
	srv.Router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz вернул %d", rec.Code)
	}
}
