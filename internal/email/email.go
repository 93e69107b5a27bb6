package email

import (
	"context"
	"log/slog"
)

// Sender delivers account lifecycle mail. The engine never composes or
// transports mail itself; delivery is an external collaborator.
type Sender interface {
	SendVerificationEmail(ctx context.Context, to, token string) error
	SendPasswordResetEmail(ctx context.Context, to, token string) error
}

// LogSender writes mail to the log instead of delivering it. Default for
// development and tests.
type LogSender struct {
	logger *slog.Logger
}

func NewLogSender(logger *slog.Logger) LogSender {
	return LogSender{logger: logger.With("component", "email")}
}

func (s LogSender) SendVerificationEmail(ctx context.Context, to, token string) error {
	s.logger.Info("verification email", "to", to, "token", token)
	return nil
}

func (s LogSender) SendPasswordResetEmail(ctx context.Context, to, token string) error {
	s.logger.Info("password reset email", "to", to, "token", token)
	return nil
}
