// Package client provides OAuth2 HTTP clients for the record store backends (Zoho and Google).
package client

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
)

const (
	// callbackPort is the port for the local OAuth callback server.
	callbackPort = 8085
	// callbackPath is the path for the OAuth callback.
	callbackPath = "/callback"
	// serverTimeout is how long to wait for the OAuth callback.
	serverTimeout = 5 * time.Minute
)

// ErrNoToken is returned when no saved token exists. Run the setup command to create one.
var ErrNoToken = errors.New("no oauth token found")

// ZohoConfig builds an OAuth2 config for the Zoho accounts server at accountsURL
// (e.g. https://accounts.zoho.com or a regional https://accounts.zoho.eu).
func ZohoConfig(clientID, clientSecret, accountsURL string, scopes ...string) *oauth2.Config {
	accountsURL = strings.TrimRight(accountsURL, "/")
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		Scopes:       scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:   accountsURL + "/oauth/v2/auth",
			TokenURL:  accountsURL + "/oauth/v2/token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

// GoogleConfig reads a Google client secret file and builds an OAuth2 config for scopes.
func GoogleConfig(secretFilePath string, scopes ...string) (*oauth2.Config, error) {
	b, err := os.ReadFile(secretFilePath)
	if err != nil {
		return nil, fmt.Errorf("reading client secret file: %w", err)
	}

	config, err := google.ConfigFromJSON(b, scopes...)
	if err != nil {
		return nil, fmt.Errorf("parsing client secret: %w", err)
	}
	return config, nil
}

// ZohoTokenType is the authorization scheme Zoho APIs expect instead of Bearer.
const ZohoTokenType = "Zoho-oauthtoken"

// Option configures the client returned by New.
type Option func(*persistingTokenSource)

// WithTokenType overrides the token type sent in the Authorization header.
func WithTokenType(tokenType string) Option {
	return func(s *persistingTokenSource) {
		s.tokenType = tokenType
	}
}

// New returns an HTTP client authorised with the token saved at tokenFile.
// Refreshed tokens are written back to tokenFile.
func New(ctx context.Context, config *oauth2.Config, tokenFile string, logger *slog.Logger, opts ...Option) (*http.Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	tok, err := TokenFromFile(tokenFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w at %s (run `dispatchcost setup`)", ErrNoToken, tokenFile)
		}
		return nil, fmt.Errorf("loading token: %w", err)
	}

	src := &persistingTokenSource{
		base:   config.TokenSource(ctx, tok),
		path:   tokenFile,
		last:   tok,
		logger: logger,
	}
	for _, opt := range opts {
		opt(src)
	}
	return oauth2.NewClient(ctx, src), nil
}

// Login runs the interactive authorization code flow: it opens the browser, waits for the
// provider to redirect to a local callback server and saves the resulting token to tokenFile.
func Login(ctx context.Context, config *oauth2.Config, tokenFile string, logger *slog.Logger, authOpts ...oauth2.AuthCodeOption) (*oauth2.Token, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// Set the redirect URI to our local callback server
	config.RedirectURL = fmt.Sprintf("http://localhost:%d%s", callbackPort, callbackPath)

	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("generating state token: %w", err)
	}

	codeChan := make(chan string, 1)
	errChan := make(chan error, 1)

	server, err := startCallbackServer(ctx, state, codeChan, errChan, logger)
	if err != nil {
		return nil, fmt.Errorf("starting callback server: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(ctx); err != nil {
			logger.Warn("error shutting down callback server", "error", err)
		}
	}()

	opts := append([]oauth2.AuthCodeOption{oauth2.AccessTypeOffline}, authOpts...)
	authURL := config.AuthCodeURL(state, opts...)

	fmt.Printf("\nOpening browser for authentication...\n")
	fmt.Printf("If the browser doesn't open automatically, visit this URL:\n%s\n\n", authURL)

	if err := openBrowser(ctx, authURL); err != nil {
		logger.Warn("failed to open browser automatically", "error", err)
	}

	var tok *oauth2.Token
	select {
	case code := <-codeChan:
		tok, err = config.Exchange(ctx, code)
		if err != nil {
			return nil, fmt.Errorf("exchanging authorization code for token: %w", err)
		}
	case err := <-errChan:
		return nil, fmt.Errorf("oauth callback error: %w", err)
	case <-time.After(serverTimeout):
		return nil, fmt.Errorf("oauth flow timed out after %v", serverTimeout)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	if err := SaveToken(tokenFile, tok); err != nil {
		return nil, err
	}
	logger.Info("saved oauth token", "path", tokenFile)
	return tok, nil
}

func startCallbackServer(ctx context.Context, expectedState string, codeChan chan<- string, errChan chan<- error, logger *slog.Logger) (*http.Server, error) {
	mux := http.NewServeMux()
	mux.HandleFunc(callbackPath, callbackHandler(expectedState, codeChan, errChan))

	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", callbackPort),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc := net.ListenConfig{}
	listener, err := lc.Listen(ctx, "tcp", server.Addr)
	if err != nil {
		return nil, fmt.Errorf("port %d unavailable: %w", callbackPort, err)
	}

	go func() {
		logger.Debug("starting OAuth callback server", "port", callbackPort)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("callback server error", "error", err)
			errChan <- err
		}
	}()

	return server, nil
}

func callbackHandler(expectedState string, codeChan chan<- string, errChan chan<- error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()

		// Verify state to prevent CSRF
		if q.Get("state") != expectedState {
			errChan <- errors.New("invalid state parameter")
			http.Error(w, "Invalid state parameter", http.StatusBadRequest)
			return
		}

		if errMsg := q.Get("error"); errMsg != "" {
			errChan <- fmt.Errorf("%s: %s", errMsg, q.Get("error_description"))
			http.Error(w, fmt.Sprintf("Authentication failed: %s", errMsg), http.StatusBadRequest)
			return
		}

		code := q.Get("code")
		if code == "" {
			errChan <- errors.New("no authorization code received")
			http.Error(w, "No authorization code received", http.StatusBadRequest)
			return
		}

		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, `<!DOCTYPE html>
<html>
<head><title>Authentication Successful</title></head>
<body style="font-family: sans-serif; text-align: center; margin-top: 20vh;">
<h1>Authentication Successful</h1>
<p>You can close this window and return to the terminal.</p>
</body>
</html>`)

		codeChan <- code
	}
}

func openBrowser(ctx context.Context, url string) error {
	var cmd *exec.Cmd

	switch runtime.GOOS {
	case "darwin":
		cmd = exec.CommandContext(ctx, "open", url)
	case "linux":
		cmd = exec.CommandContext(ctx, "xdg-open", url)
	case "windows":
		cmd = exec.CommandContext(ctx, "cmd", "/c", "start", url)
	default:
		return fmt.Errorf("unsupported platform: %s", runtime.GOOS)
	}

	return cmd.Start()
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// persistingTokenSource saves every token that differs from the last one seen.
type persistingTokenSource struct {
	mu        sync.Mutex
	base      oauth2.TokenSource
	path      string
	last      *oauth2.Token
	tokenType string
	logger    *slog.Logger
}

func (s *persistingTokenSource) Token() (*oauth2.Token, error) {
	tok, err := s.base.Token()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil || s.last.AccessToken != tok.AccessToken {
		if err := SaveToken(s.path, tok); err != nil {
			s.logger.Warn("failed to persist refreshed token", "path", s.path, "error", err)
		}
		s.last = tok
	}

	if s.tokenType != "" {
		out := *tok
		out.TokenType = s.tokenType
		return &out, nil
	}
	return tok, nil
}

// TokenFromFile retrieves a token from a local file.
func TokenFromFile(file string) (*oauth2.Token, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	tok := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(tok); err != nil {
		return nil, fmt.Errorf("decoding token %s: %w", file, err)
	}
	return tok, nil
}

// SaveToken saves a token to a file path.
func SaveToken(path string, token *oauth2.Token) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating token directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating token file: %w", err)
	}
	defer f.Close()

	if err := json.NewEncoder(f).Encode(token); err != nil {
		return fmt.Errorf("encoding token: %w", err)
	}
	return nil
}
