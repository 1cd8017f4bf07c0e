// Package notify delivers issued passcodes to the user through an outbound
// channel. The auth service never sends mail itself.
package notify

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authcore/internal/logging"
	"github.com/dmitrijs2005/authcore/internal/server/models"
)

// OTPMessage is one passcode to deliver.
type OTPMessage struct {
	Email     string
	Code      string
	Purpose   models.OtpPurpose
	ExpiresAt time.Time
}

// Notifier hands a passcode to the delivery channel.
type Notifier interface {
	SendOTP(ctx context.Context, msg OTPMessage) error
}

// LogNotifier writes passcodes to the log. Development only.
type LogNotifier struct {
	logger logging.Logger
}

// NewLogNotifier returns a LogNotifier writing to logger.
func NewLogNotifier(logger logging.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With("module", "notify")}
}

// SendOTP implements Notifier.
func (n *LogNotifier) SendOTP(ctx context.Context, msg OTPMessage) error {
	n.logger.Info(ctx, "otp issued",
		"email", msg.Email,
		"purpose", string(msg.Purpose),
		"code", msg.Code,
		"expires_at", msg.ExpiresAt.UTC().Format(time.RFC3339),
	)
	return nil
}
