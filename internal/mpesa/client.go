package mpesa

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

var (
	ErrUpstreamAuth    = errors.New("mpesa authentication failed")
	ErrUpstreamRequest = errors.New("mpesa request rejected")
)

// Config holds the Daraja credentials and callback endpoints.
type Config struct {
	BaseURL            string
	ConsumerKey        string
	ConsumerSecret     string
	ShortCode          string
	PassKey            string
	CallbackURL        string
	AccountReference   string
	B2CShortCode       string
	InitiatorName      string
	SecurityCredential string
	ResultURL          string
	TimeoutURL         string
}

// Client talks to the Daraja API. Access tokens are cached until shortly
// before they expire; concurrent refreshes share one request.
type Client struct {
	cfg    Config
	client *http.Client
	now    func() time.Time

	group  singleflight.Group
	mu     sync.Mutex
	token  string
	expiry time.Time
}

func NewClient(cfg Config) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.B2CShortCode == "" {
		cfg.B2CShortCode = cfg.ShortCode
	}
	return &Client{
		cfg:    cfg,
		client: &http.Client{Timeout: 30 * time.Second},
		now:    time.Now,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   string `json:"expires_in"`
}

// errorResponse is the body Daraja returns with non-2xx statuses.
type errorResponse struct {
	RequestID    string `json:"requestId"`
	ErrorCode    string `json:"errorCode"`
	ErrorMessage string `json:"errorMessage"`
}

// UpstreamError carries a non-2xx Daraja response.
type UpstreamError struct {
	Kind       error
	StatusCode int
	Code       string
	Message    string
}

func (e *UpstreamError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%v: http %d: %s %s", e.Kind, e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("%v: http %d: %s", e.Kind, e.StatusCode, e.Message)
}

func (e *UpstreamError) Unwrap() error { return e.Kind }

func (c *Client) accessToken(ctx context.Context) (string, error) {
	c.mu.Lock()
	if c.token != "" && c.now().Before(c.expiry) {
		tok := c.token
		c.mu.Unlock()
		return tok, nil
	}
	c.mu.Unlock()

	v, err, _ := c.group.Do("token", func() (any, error) {
		return c.fetchToken(ctx)
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) fetchToken(ctx context.Context) (string, error) {
	endpoint := c.cfg.BaseURL + "/oauth/v1/generate?grant_type=client_credentials"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.SetBasicAuth(c.cfg.ConsumerKey, c.cfg.ConsumerSecret)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUpstreamAuth, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", upstreamError(ErrUpstreamAuth, resp)
	}

	var out tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: decode token: %v", ErrUpstreamAuth, err)
	}
	if out.AccessToken == "" {
		return "", fmt.Errorf("%w: empty access token", ErrUpstreamAuth)
	}

	ttl := time.Hour
	if secs, err := strconv.Atoi(out.ExpiresIn); err == nil && secs > 0 {
		ttl = time.Duration(secs) * time.Second
	}
	// refresh a minute early
	if ttl > 2*time.Minute {
		ttl -= time.Minute
	}

	c.mu.Lock()
	c.token = out.AccessToken
	c.expiry = c.now().Add(ttl)
	c.mu.Unlock()
	return out.AccessToken, nil
}

func (c *Client) invalidateToken() {
	c.mu.Lock()
	c.token = ""
	c.mu.Unlock()
}

// postJSON sends body with a bearer token and decodes a 2xx reply into out.
// The raw reply is returned in every case where one was read.
func (c *Client) postJSON(ctx context.Context, path string, body, out any) (json.RawMessage, error) {
	token, err := c.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamRequest, err)
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUpstreamRequest, err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		c.invalidateToken()
		return raw, parseUpstreamError(ErrUpstreamAuth, resp.StatusCode, raw)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return raw, parseUpstreamError(ErrUpstreamRequest, resp.StatusCode, raw)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return raw, fmt.Errorf("%w: decode response: %v", ErrUpstreamRequest, err)
	}
	return raw, nil
}

func upstreamError(kind error, resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	return parseUpstreamError(kind, resp.StatusCode, body)
}

func parseUpstreamError(kind error, status int, body []byte) error {
	e := &UpstreamError{Kind: kind, StatusCode: status}
	var er errorResponse
	if err := json.Unmarshal(body, &er); err == nil && (er.ErrorCode != "" || er.ErrorMessage != "") {
		e.Code = er.ErrorCode
		e.Message = er.ErrorMessage
		return e
	}
	e.Message = strings.TrimSpace(string(body))
	return e
}

// Timestamp formats t the way Daraja expects (YYYYMMDDHHmmss).
func Timestamp(t time.Time) string {
	return t.Format("20060102150405")
}

// Password is base64(shortCode + passKey + timestamp).
func Password(shortCode, passKey, timestamp string) string {
	return base64.StdEncoding.EncodeToString([]byte(shortCode + passKey + timestamp))
}
