package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

type Mail struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	Tag     string `json:"tag,omitempty"`
}

type Sender interface {
	Send(ctx context.Context, m Mail) error
}

// Mailer posts mails to an HTTP mail API.
type Mailer struct {
	http *resty.Client
	url  string
}

func NewMailer(url, apiKey string, timeout time.Duration) *Mailer {
	c := resty.New().
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetRetryCount(2).
		SetRetryWaitTime(300 * time.Millisecond).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})
	if apiKey != "" {
		c.SetAuthToken(apiKey)
	}
	return &Mailer{http: c, url: url}
}

func (m *Mailer) Send(ctx context.Context, mail Mail) error {
	var apiErr struct {
		Error string `json:"error"`
	}
	resp, err := m.http.R().
		SetContext(ctx).
		SetBody(mail).
		SetError(&apiErr).
		Post(m.url)
	if err != nil {
		return fmt.Errorf("mail api: %w", err)
	}
	if resp.IsError() {
		return fmt.Errorf("mail api: status %d: %s", resp.StatusCode(), apiErr.Error)
	}
	return nil
}
