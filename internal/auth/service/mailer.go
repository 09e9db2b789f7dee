package service

import (
	"context"
	"log/slog"
	"time"
)

// Mailer delivers 2FA verification codes. Delivery transport is deliberately
// out of scope; production deployments plug in their own implementation.
type Mailer interface {
	SendVerificationCode(ctx context.Context, address, code string, expiresIn time.Duration) error
}

// LogMailer is the development Mailer: it logs the code instead of sending
// it anywhere.
type LogMailer struct {
	Logger *slog.Logger
}

func (m *LogMailer) SendVerificationCode(ctx context.Context, address, code string, expiresIn time.Duration) error {
	logger := m.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("verification code issued",
		slog.String("address", address),
		slog.String("code", code),
		slog.Duration("expires_in", expiresIn),
	)
	return nil
}
