package email

import (
	"context"
	"errors"
	"time"
)

// Sender define la interfaz para correos transaccionales del onboarding.
type Sender interface {
	SendApplicationReceived(ctx context.Context, toEmail, fullName string, submittedAt time.Time) error
}

type disabledSender struct {
	reason string
}

func NewDisabledSender(reason string) Sender {
	return &disabledSender{reason: reason}
}

func (s *disabledSender) SendApplicationReceived(_ context.Context, _ string, _ string, _ time.Time) error {
	if s.reason == "" {
		return errors.New("email sender disabled")
	}
	return errors.New(s.reason)
}
