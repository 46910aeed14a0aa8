// Copyright (c) 2026 Procura. All rights reserved.
// Author: platform@procura.market

/*
Package notify defines the outbound notification contract for the identity core.

Delivery (email/SMS) is an external collaborator: the core only knows the
template name, the recipient, and a data bag. Every call site treats delivery
as best-effort — a failed notification is logged and swallowed, never
propagated to the caller's error path, and never rolls back a state change.
*/
package notify

import (
	"context"
	"log/slog"
)

// # Templates

// Template names understood by the delivery collaborator.
const (
	TemplateSignupOTP            = "signup_otp"
	TemplateLoginOTP             = "login_otp"
	TemplateWelcome              = "welcome"
	TemplatePasswordReset        = "password_reset"
	TemplateVerificationApproved = "verification_approved"
	TemplateVerificationRejected = "verification_rejected"
	TemplateAdminCredentials     = "admin_credentials"
)

// Notifier sends one templated message to one recipient.
type Notifier interface {

	/*
		Send dispatches a message.

		Parameters:
		  - context: context.Context
		  - template: string (one of the Template* constants)
		  - recipient: string (email address or phone number)
		  - data: map[string]string (template variables)

		Returns:
		  - error: Delivery failures. Callers log and swallow; they never
		    block on delivery success.
	*/
	Send(context context.Context, template, recipient string, data map[string]string) error
}

// # Logging Implementation

// LogNotifier is a Notifier that records deliveries to the structured log.
//
// It backs development and test environments, and doubles as the operational
// fallback when no delivery provider is configured. Sensitive values (codes,
// temporary passwords) are intentionally not logged.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

// Send implements [Notifier].
func (n *LogNotifier) Send(ctx context.Context, template, recipient string, data map[string]string) error {
	n.logger.InfoContext(ctx, "notification_dispatched",
		slog.String("template", template),
		slog.String("recipient", recipient),
	)
	return nil
}

// BestEffort sends via notifier and logs any failure without returning it.
//
// This is the single helper every flow uses, so the "failures never block the
// caller" contract lives in one place instead of scattered try/log blocks.
func BestEffort(ctx context.Context, notifier Notifier, logger *slog.Logger, template, recipient string, data map[string]string) bool {
	if err := notifier.Send(ctx, template, recipient, data); err != nil {
		logger.ErrorContext(ctx, "notification_failed",
			slog.String("template", template),
			slog.String("recipient", recipient),
			slog.Any("error", err),
		)
		return false
	}
	return true
}
