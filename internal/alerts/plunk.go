package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/sudo-init-do/bundlehub/internal/config"
)

// Plunk sends mail through the Plunk transactional API
type Plunk struct {
	apiKey string
	from   string
	apiURL string
	http   *http.Client
}

func NewPlunk(cfg config.Alerts) *Plunk {
	return &Plunk{
		apiKey: cfg.PlunkKey,
		from:   cfg.MailFrom,
		apiURL: cfg.PlunkURL,
		http:   &http.Client{Timeout: 10 * time.Second},
	}
}

type plunkSendBody struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
	From    string `json:"from,omitempty"`
}

// Send performs the HTTP request to Plunk API
func (p *Plunk) Send(ctx context.Context, env EmailEnvelope) error {
	if env.To == "" {
		return fmt.Errorf("plunk send: no recipient")
	}
	b, err := json.Marshal(plunkSendBody{To: env.To, Subject: env.Subject, Body: env.Body, From: p.from})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		if msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096)); len(msg) > 0 {
			return fmt.Errorf("plunk send failed: status=%d body=%s", resp.StatusCode, msg)
		}
		return fmt.Errorf("plunk send failed: status=%d", resp.StatusCode)
	}
	return nil
}
