package pavlok

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// fakePavlok serves the OAuth2 endpoints and the stimulus API.
type fakePavlok struct {
	server  *httptest.Server
	revoked atomic.Bool
	stimuli atomic.Int32
}

func newFakePavlok(t *testing.T) *fakePavlok {
	t.Helper()
	f := &fakePavlok{}
	mux := http.NewServeMux()

	mux.HandleFunc("GET /oauth/authorize", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		target, err := url.Parse(q.Get("redirect_uri"))
		if err != nil {
			http.Error(w, "bad redirect_uri", http.StatusBadRequest)
			return
		}
		target.RawQuery = url.Values{"code": {"good-code"}, "state": {q.Get("state")}}.Encode()
		http.Redirect(w, r, target.String(), http.StatusFound)
	})

	mux.HandleFunc("POST /oauth/token", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil || r.PostForm.Get("code") != "good-code" {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok-123","token_type":"bearer"}`))
	})

	mux.HandleFunc("POST /api/v1/stimuli/{kind}/{intensity}", func(w http.ResponseWriter, r *http.Request) {
		f.stimuli.Add(1)
		if f.revoked.Load() || r.URL.Query().Get("access_token") != "tok-123" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

// browser follows the redirect chain the way a real browser would.
func browser(t *testing.T) func(string) error {
	var wg sync.WaitGroup
	t.Cleanup(wg.Wait)
	return func(loginURL string) error {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 5 * time.Second}
			resp, err := client.Get(loginURL)
			if err != nil {
				t.Errorf("browser: %v", err)
				return
			}
			_ = resp.Body.Close()
			if resp.Request.URL.Path != "/done" {
				t.Errorf("browser ended on %s, want /done", resp.Request.URL)
			}
		}()
		return nil
	}
}

func newTestClient(t *testing.T, api *fakePavlok, tokenFile string) *Client {
	t.Helper()
	client, err := New(context.Background(),
		WithTokenFile(tokenFile),
		WithBaseURL(api.server.URL),
		WithCallbackAddress("127.0.0.1:0"),
		WithBrowser(browser(t)),
		WithLoginTimeout(10*time.Second),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return client
}

func readTokenFile(t *testing.T, path string) *string {
	t.Helper()
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var record struct {
		Token *string `json:"token"`
	}
	if err := json.Unmarshal(data, &record); err != nil {
		t.Fatalf("token file is not JSON: %v", err)
	}
	return record.Token
}

func awaitLogin(t *testing.T, ch <-chan LoginResult) LoginResult {
	t.Helper()
	select {
	case res := <-ch:
		return res
	case <-time.After(10 * time.Second):
		t.Fatal("login did not complete")
		return LoginResult{}
	}
}

func TestClient_LoginAndStimuli(t *testing.T) {
	ctx := context.Background()
	api := newFakePavlok(t)
	tokenFile := filepath.Join(t.TempDir(), "pavlok-token.json")
	client := newTestClient(t, api, tokenFile)

	if got := client.State(); got != StateIdle {
		t.Fatalf("state = %s, want idle", got)
	}
	if token := readTokenFile(t, tokenFile); token != nil {
		t.Fatalf("fresh record should hold null, got %q", *token)
	}
	if _, err := client.Beep(ctx, 5); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("Beep before login: %v", err)
	}

	res := awaitLogin(t, client.Login(ctx, "client-id", "client-secret"))
	if res.Err != nil {
		t.Fatalf("Login: %v", res.Err)
	}
	if res.Token != "tok-123" {
		t.Errorf("token = %q", res.Token)
	}
	if token := readTokenFile(t, tokenFile); token == nil || *token != "tok-123" {
		t.Errorf("token file = %v", token)
	}

	msg, err := client.Beep(ctx, 5)
	if err != nil || msg != "beep sent" {
		t.Fatalf("Beep = (%q, %v)", msg, err)
	}
	if msg, err := client.Zap(ctx, 255); err != nil || msg != "shock sent" {
		t.Fatalf("Zap = (%q, %v)", msg, err)
	}

	select {
	case again := <-client.Login(ctx, "client-id", "client-secret"):
		if again.Token != "tok-123" {
			t.Errorf("second login token = %q", again.Token)
		}
	default:
		t.Fatal("second login not immediate")
	}

	// A new client picks the token up from disk
	reloaded := newTestClient(t, api, tokenFile)
	if got := reloaded.State(); got != StateAuthenticated {
		t.Errorf("reloaded state = %s, want authenticated", got)
	}
}

func TestClient_TokenExpiry(t *testing.T) {
	ctx := context.Background()
	api := newFakePavlok(t)
	tokenFile := filepath.Join(t.TempDir(), "pavlok-token.json")
	if err := os.WriteFile(tokenFile, []byte(`{"token": "tok-123"}`), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	client := newTestClient(t, api, tokenFile)

	api.revoked.Store(true)
	if _, err := client.Vibrate(ctx, 10); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("Vibrate err = %v, want ErrTokenExpired", err)
	}
	if token := readTokenFile(t, tokenFile); token != nil {
		t.Errorf("token survived 401: %q", *token)
	}

	calls := api.stimuli.Load()
	if _, err := client.Beep(ctx, 10); !errors.Is(err, ErrNotAuthenticated) {
		t.Errorf("Beep after expiry: %v", err)
	}
	if api.stimuli.Load() != calls {
		t.Error("request sent without a token")
	}
}

func TestClient_OutOfBoundsMakesNoCall(t *testing.T) {
	api := newFakePavlok(t)
	tokenFile := filepath.Join(t.TempDir(), "pavlok-token.json")
	if err := os.WriteFile(tokenFile, []byte(`{"token": "tok-123"}`), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	client := newTestClient(t, api, tokenFile)

	_, err := client.Beep(context.Background(), 300)
	if !errors.Is(err, ErrIntensityOutOfBounds) {
		t.Fatalf("err = %v", err)
	}
	if api.stimuli.Load() != 0 {
		t.Errorf("stimuli calls = %d, want 0", api.stimuli.Load())
	}
}

func TestClient_LogoutIsIdempotent(t *testing.T) {
	ctx := context.Background()
	api := newFakePavlok(t)
	tokenFile := filepath.Join(t.TempDir(), "pavlok-token.json")
	client := newTestClient(t, api, tokenFile)

	for i := range 3 {
		if err := client.Logout(ctx); err != nil {
			t.Fatalf("Logout #%d: %v", i+1, err)
		}
	}
	if _, err := os.Stat(tokenFile); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("token file still present: %v", err)
	}

	reloaded := newTestClient(t, api, tokenFile)
	if got := reloaded.State(); got != StateIdle {
		t.Errorf("state = %s, want idle", got)
	}
	if token := readTokenFile(t, tokenFile); token != nil {
		t.Errorf("token = %q, want null", *token)
	}
}

func TestClient_ForgedRedirectDoesNotCutLoginShort(t *testing.T) {
	api := newFakePavlok(t)
	tokenFile := filepath.Join(t.TempDir(), "pavlok-token.json")

	ended := make(chan string, 1)
	open := func(loginURL string) error {
		go func() {
			client := &http.Client{Timeout: 5 * time.Second}
			forged := loginURL + "/result?" + url.Values{"state": {"bogus"}, "code": {"x"}}.Encode()
			if resp, err := client.Get(forged); err == nil {
				_ = resp.Body.Close()
			}

			resp, err := client.Get(loginURL)
			if err != nil {
				ended <- "error: " + err.Error()
				return
			}
			_ = resp.Body.Close()
			ended <- resp.Request.URL.Path
		}()
		return nil
	}

	client, err := New(context.Background(),
		WithTokenFile(tokenFile),
		WithBaseURL(api.server.URL),
		WithCallbackAddress("127.0.0.1:0"),
		WithBrowser(open),
		WithLoginTimeout(10*time.Second),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	res := awaitLogin(t, client.Login(context.Background(), "client-id", "client-secret"))
	if res.Err != nil {
		t.Fatalf("Login: %v", res.Err)
	}

	select {
	case path := <-ended:
		if path != "/done" {
			t.Errorf("browser ended on %q, want /done", path)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("browser did not finish")
	}
}

func TestNew_NilHTTPClient(t *testing.T) {
	api := newFakePavlok(t)
	tokenFile := filepath.Join(t.TempDir(), "pavlok-token.json")
	if err := os.WriteFile(tokenFile, []byte(`{"token": "tok-123"}`), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	client, err := New(context.Background(),
		WithTokenFile(tokenFile),
		WithBaseURL(api.server.URL),
		WithHTTPClient(nil),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if msg, err := client.Beep(context.Background(), 1); err != nil || msg != "beep sent" {
		t.Fatalf("Beep = (%q, %v)", msg, err)
	}
}

func TestNew_QuietWithoutVerbose(t *testing.T) {
	var logs bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&logs, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })

	tokenFile := filepath.Join(t.TempDir(), "pavlok-token.json")
	if err := os.WriteFile(tokenFile, []byte("not json"), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	client, err := New(context.Background(), WithTokenFile(tokenFile))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := client.State(); got != StateIdle {
		t.Errorf("state = %s, want idle", got)
	}
	if logs.Len() != 0 {
		t.Errorf("client logged without verbose: %q", logs.String())
	}
}
