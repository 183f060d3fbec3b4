package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

var ErrDelivery = errors.New("sms not delivered")

// Notifier delivers a short text to a phone number.
type Notifier interface {
	Notify(ctx context.Context, phone, message string) error
}

const defaultBaseURL = "https://api.africastalking.com"

// AfricasTalking sends SMS through the Africa's Talking messaging API.
type AfricasTalking struct {
	baseURL  string
	username string
	apiKey   string
	senderID string
	client   *http.Client
}

func NewAfricasTalking(baseURL, username, apiKey, senderID string) *AfricasTalking {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &AfricasTalking{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		apiKey:   apiKey,
		senderID: senderID,
		client:   &http.Client{Timeout: 10 * time.Second},
	}
}

type smsResponse struct {
	SMSMessageData struct {
		Message    string `json:"Message"`
		Recipients []struct {
			StatusCode int    `json:"statusCode"`
			Number     string `json:"number"`
			Status     string `json:"status"`
			MessageID  string `json:"messageId"`
		} `json:"Recipients"`
	} `json:"SMSMessageData"`
}

func (a *AfricasTalking) Notify(ctx context.Context, phone, message string) error {
	to := phone
	if !strings.HasPrefix(to, "+") {
		to = "+" + to
	}
	form := url.Values{}
	form.Set("username", a.username)
	form.Set("to", to)
	form.Set("message", message)
	if a.senderID != "" {
		form.Set("from", a.senderID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/version1/messaging", strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("apiKey", a.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := a.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: http status %d: %s", ErrDelivery, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var out smsResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return fmt.Errorf("decode sms response: %w", err)
	}
	for _, r := range out.SMSMessageData.Recipients {
		// 100 processed, 101 sent, 102 queued
		if r.StatusCode >= 100 && r.StatusCode <= 102 {
			return nil
		}
		return fmt.Errorf("%w: %s %s", ErrDelivery, r.Number, r.Status)
	}
	return fmt.Errorf("%w: %s", ErrDelivery, out.SMSMessageData.Message)
}

// Log only records the message. Used when no SMS credentials are configured.
type Log struct {
	log *zap.Logger
}

func NewLog(log *zap.Logger) *Log {
	return &Log{log: log}
}

func (l *Log) Notify(ctx context.Context, phone, message string) error {
	l.log.Info("notification", zap.String("phone", phone), zap.String("message", message))
	return nil
}
