package channels

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html/template"
	"net/url"
	"strings"

	"github.com/resend/resend-go/v2"
)

const (
	defaultFrom    = "SDR Agent <onboarding@resend.dev>"
	defaultSubject = "Nova oportunidade de negócio"
	defaultFooter  = "Esta mensagem foi enviada automaticamente pelo nosso agente SDR."
)

// ErrNotConfigured is returned by Send when the channel has no credentials.
var ErrNotConfigured = errors.New("resend api key not configured")

var emailLayout = template.Must(template.New("email").Parse(`<div style="max-width: 600px; margin: 0 auto; font-family: Arial, sans-serif;">
  <div style="white-space: pre-wrap;">{{.Body}}</div>
  <hr style="margin: 20px 0; border: none; border-top: 1px solid #eee;">
  <p style="font-size: 12px; color: #666;">{{.Footer}}</p>
</div>
`))

// ResendChannel sends email through the Resend API.
//
// Options: api_key, from, default_subject, footer, base_url.
type ResendChannel struct {
	client         *resend.Client
	from           string
	defaultSubject string
	footer         string
}

func NewResend(opts map[string]any) (*ResendChannel, error) {
	c := &ResendChannel{
		from:           getStringOption(opts, "from", defaultFrom),
		defaultSubject: getStringOption(opts, "default_subject", defaultSubject),
		footer:         getStringOption(opts, "footer", defaultFooter),
	}
	apiKey := getStringOption(opts, "api_key", "")
	if apiKey == "" {
		return c, nil
	}

	c.client = resend.NewClient(apiKey)
	if base := getStringOption(opts, "base_url", ""); base != "" {
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("invalid base_url: %w", err)
		}
		c.client.BaseURL = u
	}
	return c, nil
}

func (c *ResendChannel) Name() string {
	return "resend"
}

func (c *ResendChannel) Send(ctx context.Context, msg Message) (Receipt, error) {
	if c.client == nil {
		return Receipt{}, ErrNotConfigured
	}
	if msg.To == "" {
		return Receipt{}, fmt.Errorf("recipient email is required")
	}

	html, err := c.renderHTML(msg.Body)
	if err != nil {
		return Receipt{}, err
	}
	subject := msg.Subject
	if subject == "" {
		subject = c.defaultSubject
	}

	sent, err := c.client.Emails.SendWithContext(ctx, &resend.SendEmailRequest{
		From:    c.from,
		To:      []string{msg.To},
		Subject: subject,
		Html:    html,
		Text:    msg.Body,
	})
	if err != nil {
		return Receipt{}, fmt.Errorf("resend: %w", err)
	}
	return Receipt{MessageID: sent.Id}, nil
}

func (c *ResendChannel) renderHTML(body string) (string, error) {
	var buf bytes.Buffer
	err := emailLayout.Execute(&buf, struct {
		Body   string
		Footer string
	}{Body: body, Footer: c.footer})
	if err != nil {
		return "", fmt.Errorf("render email: %w", err)
	}
	return buf.String(), nil
}
