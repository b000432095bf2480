package authflow

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
)

func TestNewEndpoint(t *testing.T) {
	ep := NewEndpoint("http://pavlok.example/")
	if ep.AuthURL != "http://pavlok.example/oauth/authorize" {
		t.Errorf("AuthURL = %q", ep.AuthURL)
	}
	if ep.TokenURL != "http://pavlok.example/oauth/token" {
		t.Errorf("TokenURL = %q", ep.TokenURL)
	}
}

func TestAuthorizer_AuthCodeURL(t *testing.T) {
	auth := NewAuthorizer(NewEndpoint("http://pavlok.example"), "client-1", "secret", "http://localhost:3000/auth/pavlok/result")

	u, err := url.Parse(auth.AuthCodeURL("state-xyz"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if u.Path != "/oauth/authorize" {
		t.Errorf("path = %q", u.Path)
	}
	q := u.Query()
	checks := map[string]string{
		"client_id":     "client-1",
		"response_type": "code",
		"state":         "state-xyz",
		"redirect_uri":  "http://localhost:3000/auth/pavlok/result",
	}
	for key, want := range checks {
		if got := q.Get(key); got != want {
			t.Errorf("%s = %q, want %q", key, got, want)
		}
	}
}

func TestAuthorizer_Exchange(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		body      string
		wantToken string
		wantErr   bool
	}{
		{
			name:      "success",
			status:    http.StatusOK,
			body:      `{"access_token":"tok-1","token_type":"bearer"}`,
			wantToken: "tok-1",
		},
		{
			name:    "missing access token",
			status:  http.StatusOK,
			body:    `{"token_type":"bearer"}`,
			wantErr: true,
		},
		{
			name:    "invalid grant",
			status:  http.StatusBadRequest,
			body:    `{"error":"invalid_grant"}`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotForm url.Values
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/oauth/token" {
					http.NotFound(w, r)
					return
				}
				if err := r.ParseForm(); err != nil {
					t.Errorf("ParseForm: %v", err)
				}
				gotForm = r.PostForm
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			auth := NewAuthorizer(NewEndpoint(server.URL), "client-1", "secret-1", "http://localhost:3000/auth/pavlok/result")
			token, err := auth.Exchange(context.Background(), "code-abc")

			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got token %+v", token)
				}
				return
			}
			if err != nil {
				t.Fatalf("Exchange: %v", err)
			}
			if token.AccessToken != tt.wantToken {
				t.Errorf("AccessToken = %q, want %q", token.AccessToken, tt.wantToken)
			}
			if gotForm.Get("code") != "code-abc" || gotForm.Get("grant_type") != "authorization_code" {
				t.Errorf("unexpected form: %v", gotForm)
			}
			if gotForm.Get("client_id") != "client-1" || gotForm.Get("client_secret") != "secret-1" {
				t.Errorf("client credentials not sent in params: %v", gotForm)
			}
		})
	}
}

type countingTransport struct {
	calls int
	base  http.RoundTripper
}

func (c *countingTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.calls++
	return c.base.RoundTrip(req)
}

func TestAuthorizer_WithTransport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","token_type":"bearer"}`))
	}))
	defer server.Close()

	transport := &countingTransport{base: http.DefaultTransport}
	auth := NewAuthorizer(NewEndpoint(server.URL), "id", "secret", "http://localhost/cb", WithTransport(transport))
	if _, err := auth.Exchange(context.Background(), "code"); err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if transport.calls != 1 {
		t.Errorf("transport calls = %d, want 1", transport.calls)
	}
}

func TestAuthorizer_ExchangeCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	auth := NewAuthorizer(NewEndpoint("http://127.0.0.1:1"), "id", "secret", "http://localhost/cb")
	_, err := auth.Exchange(ctx, "code")
	if !errors.Is(err, context.Canceled) {
		t.Errorf("got %v, want context.Canceled", err)
	}
}
