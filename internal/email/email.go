// Package email renders and delivers account emails.
package email

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

// Message is a rendered email ready for delivery.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html"`
}

// Sender delivers a rendered message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

const (
	verifyEmailPath    = "/account/verification"
	resetPasswordPath  = "/account/reset-password"
	verifyEmailSubject = "Verify your email"
	resetSubject       = "Reset your password"
)

// Mailer renders the account emails and hands them to a Sender.
type Mailer struct {
	sender    Sender
	clientURL string
}

func NewMailer(sender Sender, clientURL string) *Mailer {
	return &Mailer{sender: sender, clientURL: strings.TrimRight(clientURL, "/")}
}

// SendVerifyEmail sends the email-verification link for token.
func (m *Mailer) SendVerifyEmail(ctx context.Context, to, token string) error {
	link := m.link(verifyEmailPath, token, to)
	body, err := render(verifyEmailTemplate, templateData{Title: verifyEmailSubject, Link: link})
	if err != nil {
		return fmt.Errorf("render verify email: %w", err)
	}
	return m.sender.Send(ctx, Message{To: to, Subject: verifyEmailSubject, HTML: body})
}

// SendForgotPassword sends the password reset link for token.
func (m *Mailer) SendForgotPassword(ctx context.Context, to, token string) error {
	link := m.link(resetPasswordPath, token, to)
	body, err := render(resetPasswordTemplate, templateData{Title: resetSubject, Link: link})
	if err != nil {
		return fmt.Errorf("render reset email: %w", err)
	}
	return m.sender.Send(ctx, Message{To: to, Subject: resetSubject, HTML: body})
}

func (m *Mailer) link(path, token, email string) string {
	q := url.Values{}
	q.Set("token", token)
	q.Set("email", email)
	return m.clientURL + path + "?" + q.Encode()
}
