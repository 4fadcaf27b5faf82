// Copyright (c) 2026 Averi. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

import (
	"context"
	"log/slog"
)

// LogMailer is a [Mailer] that writes verification links to the structured
// log instead of sending mail. Used in development and test environments
// where no SMTP relay is configured.
type LogMailer struct {
	log *slog.Logger
}

// NewLogMailer creates a log-backed mailer.
func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{log: logger}
}

// SendVerification logs the confirmation link for manual pickup.
func (mailer *LogMailer) SendVerification(ctx context.Context, recipient string, verificationURL string) error {
	mailer.log.InfoContext(ctx, "verification_email",
		slog.String("recipient", recipient),
		slog.String("url", verificationURL),
	)
	return nil
}
