package sms

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const semaphoreOTPPath = "/otp"

// SemaphoreSender delivers codes through Semaphore's priority OTP endpoint.
// Semaphore substitutes {otp} in the message itself, using the supplied code
// or one it generates when none is given.
type SemaphoreSender struct {
	baseURL string
	apiKey  string
	http    *http.Client
	logger  *logrus.Logger
}

func NewSemaphoreSender(baseURL, apiKey string, logger *logrus.Logger) *SemaphoreSender {
	return &SemaphoreSender{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http: &http.Client{
			Timeout: 15 * time.Second,
		},
		logger: logger,
	}
}

func (s *SemaphoreSender) IssuesCodes() bool { return true }

// flexString accepts both JSON strings and numbers; Semaphore returns
// message_id and code as either depending on account settings.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
		return nil
	}
	if string(b) == "null" {
		*f = ""
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

type semaphoreMessage struct {
	MessageID flexString `json:"message_id"`
	Recipient flexString `json:"recipient"`
	Status    string     `json:"status"`
	Code      flexString `json:"code"`
}

func (s *SemaphoreSender) Send(ctx context.Context, msg Message) (Receipt, error) {
	if msg.To == "" {
		return Receipt{}, ErrNoDestination
	}

	form := url.Values{}
	form.Set("apikey", s.apiKey)
	form.Set("number", msg.To)
	form.Set("message", msg.Template)
	if msg.SenderName != "" {
		form.Set("sendername", msg.SenderName)
	}
	if msg.Code != "" {
		form.Set("code", msg.Code)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+semaphoreOTPPath, strings.NewReader(form.Encode()))
	if err != nil {
		return Receipt{}, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.http.Do(req)
	if err != nil {
		return Receipt{}, fmt.Errorf("semaphore request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return Receipt{}, fmt.Errorf("semaphore read failed: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.logger.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"body":   string(raw),
		}).Error("Semaphore rejected OTP message")
		return Receipt{}, fmt.Errorf("semaphore http %d: %s", resp.StatusCode, string(raw))
	}

	// errors come back as 200 with an object body; success is always an array
	var messages []semaphoreMessage
	if err := json.Unmarshal(raw, &messages); err != nil {
		return Receipt{}, fmt.Errorf("semaphore decode error: %w: %s", err, string(raw))
	}
	if len(messages) == 0 {
		return Receipt{}, fmt.Errorf("semaphore: empty response")
	}

	first := messages[0]
	receipt := Receipt{ID: string(first.MessageID), Code: msg.Code}
	if receipt.Code == "" {
		receipt.Code = string(first.Code)
	}
	if receipt.Code == "" {
		return Receipt{}, ErrNoCode
	}

	s.logger.WithFields(logrus.Fields{
		"message_id": receipt.ID,
		"status":     first.Status,
	}).Info("OTP message accepted by Semaphore")

	return receipt, nil
}
