package impl

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"uniauth/internal/observability/middleware"
	"uniauth/internal/service"
)

type EmailConfig struct {
	BaseURL string        // e.g. "http://email-service:8082"
	Timeout time.Duration // default 10s
}

// EmailServiceHTTP talks to the template mail service over JSON.
type EmailServiceHTTP struct {
	baseURL string
	client  *http.Client
	rt      runtime
}

func NewEmailServiceHTTP(cfg EmailConfig, opts ...Option) *EmailServiceHTTP {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &EmailServiceHTTP{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: cfg.Timeout},
		rt:      newRuntime(opts),
	}
}

type templateEmailRequest struct {
	To           string         `json:"to"`
	Subject      string         `json:"subject"`
	TemplateName string         `json:"templateName"`
	Variables    map[string]any `json:"variables"`
	EmailType    string         `json:"emailType"`
}

type emailServiceReply struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Status  string `json:"status"`
}

func (e *EmailServiceHTTP) SendTemplate(ctx context.Context, msg service.TemplateEmail) service.EmailSendResult {
	if !emailPattern.MatchString(msg.To) {
		return service.EmailInvalidAddress
	}
	body, err := json.Marshal(templateEmailRequest{
		To:           msg.To,
		Subject:      msg.Subject,
		TemplateName: msg.Template,
		Variables:    msg.Variables,
		EmailType:    msg.EmailType,
	})
	if err != nil {
		return service.EmailFailed
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/api/email/template", bytes.NewReader(body))
	if err != nil {
		return service.EmailFailed
	}
	req.Header.Set("Content-Type", "application/json")
	if id := middleware.RequestIDFromContext(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		e.rt.logger.Warn("email service request failed", "to", msg.To, "template", msg.Template, "err", err)
		return service.EmailFailed
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return service.EmailRateLimited
	}
	var reply emailServiceReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil || resp.StatusCode/100 != 2 || !reply.Success {
		e.rt.logger.Warn("email service rejected message",
			"to", msg.To, "template", msg.Template, "status", resp.StatusCode, "message", reply.Message)
		return service.EmailFailed
	}
	return service.EmailQueued
}

// IsAvailable reports whether the health endpoint answers status UP.
func (e *EmailServiceHTTP) IsAvailable(ctx context.Context) bool {
	if e.baseURL == "" {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/api/email/health", nil)
	if err != nil {
		return false
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false
	}
	var reply emailServiceReply
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return false
	}
	return strings.EqualFold(reply.Status, "UP")
}
