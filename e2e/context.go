package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	jwttoken "certledger/internal/jwt_token"
	"certledger/internal/platform/config"
	"certledger/pkg/domain"
)

// TestContext holds state between test steps
type TestContext struct {
	BaseURL          string
	HTTPClient       *http.Client
	LastResponse     *http.Response
	LastResponseBody []byte
	AccessToken      string
	AdminToken       string
	Saved            map[string]string

	signer *jwttoken.JWTService
	close  func()
}

// NewTestContext targets BASE_URL when it is set and otherwise starts an
// in-process server over in-memory stores and an in-memory ledger.
func NewTestContext() (*TestContext, error) {
	cfg := config.FromEnv()
	tc := &TestContext{
		HTTPClient: &http.Client{Timeout: 10 * time.Second},
		AdminToken: cfg.AdminToken,
		Saved:      make(map[string]string),
		signer:     jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience, cfg.TokenTTL),
		close:      func() {},
	}

	if baseURL := os.Getenv("BASE_URL"); baseURL != "" {
		tc.BaseURL = strings.TrimRight(baseURL, "/")
		return tc, nil
	}

	if tc.AdminToken == "" {
		tc.AdminToken = "e2e-admin-token"
		cfg.AdminToken = tc.AdminToken
	}
	baseURL, closeFn, err := startServer(cfg)
	if err != nil {
		return nil, err
	}
	tc.BaseURL = baseURL
	tc.close = closeFn
	return tc, nil
}

// Close stops the in-process server, if any.
func (tc *TestContext) Close() {
	tc.close()
}

// SignIn mints a bearer token for subject and role and uses it from now on.
func (tc *TestContext) SignIn(subject, role string) error {
	r, err := domain.ParseRole(role)
	if err != nil {
		return err
	}
	token, err := tc.signer.GenerateToken(context.Background(), subject, r)
	if err != nil {
		return fmt.Errorf("failed to sign token: %w", err)
	}
	tc.AccessToken = token
	return nil
}

// SignOut drops the bearer token.
func (tc *TestContext) SignOut() {
	tc.AccessToken = ""
}

// Do sends a request with the current bearer token and stores the response.
func (tc *TestContext) Do(method, path string, body any, headers map[string]string) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, tc.BaseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tc.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+tc.AccessToken)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := tc.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to make request: %w", err)
	}

	tc.LastResponse = resp
	tc.LastResponseBody, err = io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}
	return nil
}

// POST makes a POST request and stores the response
func (tc *TestContext) POST(path string, body any) error {
	return tc.Do(http.MethodPost, path, body, nil)
}

// GET makes a GET request and stores the response
func (tc *TestContext) GET(path string, headers map[string]string) error {
	return tc.Do(http.MethodGet, path, nil, headers)
}

// GetResponseField resolves a dotted path such as "outcome.status" in the
// JSON response. Numeric segments index arrays.
func (tc *TestContext) GetResponseField(field string) (any, error) {
	var data any
	if err := json.Unmarshal(tc.LastResponseBody, &data); err != nil {
		return nil, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	cur := data
	for _, part := range strings.Split(field, ".") {
		switch node := cur.(type) {
		case map[string]any:
			v, ok := node[part]
			if !ok {
				return nil, fmt.Errorf("field %s not found in response", field)
			}
			cur = v
		case []any:
			var i int
			if _, err := fmt.Sscanf(part, "%d", &i); err != nil || i < 0 || i >= len(node) {
				return nil, fmt.Errorf("index %q out of range in %s", part, field)
			}
			cur = node[i]
		default:
			return nil, fmt.Errorf("field %s not found in response", field)
		}
	}
	return cur, nil
}

// ResponseContains checks if the response body contains a field or text
func (tc *TestContext) ResponseContains(text string) bool {
	return strings.Contains(string(tc.LastResponseBody), text)
}

func (tc *TestContext) GetLastResponseStatus() int {
	if tc.LastResponse == nil {
		return 0
	}
	return tc.LastResponse.StatusCode
}

func (tc *TestContext) GetLastResponseBody() []byte {
	return tc.LastResponseBody
}

func (tc *TestContext) GetLastResponseHeader(name string) string {
	if tc.LastResponse == nil {
		return ""
	}
	return tc.LastResponse.Header.Get(name)
}

func (tc *TestContext) GetAdminToken() string {
	return tc.AdminToken
}

func (tc *TestContext) Save(key, value string) {
	tc.Saved[key] = value
}

func (tc *TestContext) Load(key string) (string, error) {
	v, ok := tc.Saved[key]
	if !ok {
		return "", fmt.Errorf("nothing saved as %q", key)
	}
	return v, nil
}
