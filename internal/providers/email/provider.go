package email

import (
	"context"
	"errors"
	"sync"
)

const (
	TemplateInviteMember = "invite_member"
	TemplateVerifyEmail  = "verify_email"
)

var ErrNoRecipients = errors.New("no_recipients")

type Provider interface {
	Send(ctx context.Context, to []string, subject string, htmlBody string) error
	SendTemplate(ctx context.Context, to []string, templateName string, data map[string]any) error
}

// NoOpProvider drops every message.
type NoOpProvider struct{}

func (NoOpProvider) Send(context.Context, []string, string, string) error { return nil }

func (NoOpProvider) SendTemplate(context.Context, []string, string, map[string]any) error {
	return nil
}

// Message is one email captured by RecordingProvider.
type Message struct {
	To       []string
	Subject  string
	Template string
	Data     map[string]any
}

// RecordingProvider keeps sent messages in memory. Fail, when set, is
// returned for recipients it reports true for.
type RecordingProvider struct {
	mu       sync.Mutex
	messages []Message
	Fail     func(to string) bool
}

func (p *RecordingProvider) Send(_ context.Context, to []string, subject string, _ string) error {
	return p.record(Message{To: to, Subject: subject})
}

func (p *RecordingProvider) SendTemplate(_ context.Context, to []string, templateName string, data map[string]any) error {
	subject, _ := Subject(templateName, data)
	return p.record(Message{To: to, Subject: subject, Template: templateName, Data: data})
}

func (p *RecordingProvider) record(msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}
	if p.Fail != nil && p.Fail(msg.To[0]) {
		return errors.New("delivery failed")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
	return nil
}

func (p *RecordingProvider) Messages() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Message, len(p.messages))
	copy(out, p.messages)
	return out
}
