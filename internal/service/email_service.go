package service

import "context"

type EmailSendResult string

const (
	EmailQueued         EmailSendResult = "QUEUED"
	EmailFailed         EmailSendResult = "FAILED"
	EmailRateLimited    EmailSendResult = "RATE_LIMITED"
	EmailInvalidAddress EmailSendResult = "INVALID_EMAIL"
)

type TemplateEmail struct {
	To        string
	Subject   string
	Template  string
	Variables map[string]any
	EmailType string
}

type EmailService interface {
	SendTemplate(ctx context.Context, msg TemplateEmail) EmailSendResult
	IsAvailable(ctx context.Context) bool
}
