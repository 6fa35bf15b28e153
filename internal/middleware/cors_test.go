package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

const portal = "https://moalmanac.org"

func TestCORSMiddleware(t *testing.T) {
	site := CORSConfig{
		Enabled:          true,
		AllowedOrigins:   []string{portal, " http://localhost:3000 "},
		AllowedMethods:   []string{"GET", "OPTIONS"},
		AllowedHeaders:   []string{"Content-Type", "X-Request-ID"},
		ExposeHeaders:    []string{"X-Request-ID", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           600,
	}
	anyone := CORSConfig{Enabled: true, AllowedOrigins: []string{"*"}, AllowCredentials: true}

	tests := []struct {
		name       string
		cfg        CORSConfig
		method     string
		origin     string
		wantStatus int
		wantNext   bool
		want       map[string]string // expected header values; "" asserts absence
	}{
		{
			name:       "disabled",
			cfg:        CORSConfig{AllowedOrigins: []string{"*"}},
			method:     http.MethodGet,
			origin:     portal,
			wantStatus: http.StatusOK,
			wantNext:   true,
			want:       map[string]string{"Access-Control-Allow-Origin": ""},
		},
		{
			name:       "no origin header",
			cfg:        anyone,
			method:     http.MethodGet,
			wantStatus: http.StatusOK,
			wantNext:   true,
			want:       map[string]string{"Access-Control-Allow-Origin": ""},
		},
		{
			name:       "listed origin",
			cfg:        site,
			method:     http.MethodGet,
			origin:     portal,
			wantStatus: http.StatusOK,
			wantNext:   true,
			want: map[string]string{
				"Access-Control-Allow-Origin":      portal,
				"Access-Control-Allow-Credentials": "true",
				"Access-Control-Expose-Headers":    "X-Request-ID, Retry-After",
				"Access-Control-Allow-Methods":     "",
				"Vary":                             "Origin",
			},
		},
		{
			name:       "trimmed origin entry",
			cfg:        site,
			method:     http.MethodGet,
			origin:     "http://localhost:3000",
			wantStatus: http.StatusOK,
			wantNext:   true,
			want:       map[string]string{"Access-Control-Allow-Origin": "http://localhost:3000"},
		},
		{
			name:       "unlisted origin still served",
			cfg:        site,
			method:     http.MethodGet,
			origin:     "https://elsewhere.example",
			wantStatus: http.StatusOK,
			wantNext:   true,
			want: map[string]string{
				"Access-Control-Allow-Origin":   "",
				"Access-Control-Expose-Headers": "",
			},
		},
		{
			name:       "wildcard never sends credentials",
			cfg:        anyone,
			method:     http.MethodGet,
			origin:     "https://elsewhere.example",
			wantStatus: http.StatusOK,
			wantNext:   true,
			want: map[string]string{
				"Access-Control-Allow-Origin":      "*",
				"Access-Control-Allow-Credentials": "",
				"Vary":                             "",
			},
		},
		{
			name:       "preflight",
			cfg:        site,
			method:     http.MethodOptions,
			origin:     portal,
			wantStatus: http.StatusNoContent,
			want: map[string]string{
				"Access-Control-Allow-Origin":  portal,
				"Access-Control-Allow-Methods": "GET, OPTIONS",
				"Access-Control-Allow-Headers": "Content-Type, X-Request-ID",
				"Access-Control-Max-Age":       "600",
			},
		},
		{
			name:       "preflight default methods",
			cfg:        anyone,
			method:     http.MethodOptions,
			origin:     portal,
			wantStatus: http.StatusNoContent,
			want: map[string]string{
				"Access-Control-Allow-Methods": "GET, OPTIONS",
				"Access-Control-Allow-Headers": "",
				"Access-Control-Max-Age":       "",
			},
		},
		{
			name:       "preflight from unlisted origin",
			cfg:        site,
			method:     http.MethodOptions,
			origin:     "https://elsewhere.example",
			wantStatus: http.StatusNoContent,
			want: map[string]string{
				"Access-Control-Allow-Origin":  "",
				"Access-Control-Allow-Methods": "",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			called := false
			handler := CORSMiddleware(tt.cfg)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				called = true
				w.WriteHeader(http.StatusOK)
			}))

			req := httptest.NewRequest(tt.method, "/propositions?gene=BRAF", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			assert.Equal(t, tt.wantStatus, rr.Code)
			assert.Equal(t, tt.wantNext, called)
			for header, want := range tt.want {
				assert.Equal(t, want, rr.Header().Get(header), header)
			}
		})
	}
}
