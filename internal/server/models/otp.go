package models

import "time"

// OtpPurpose scopes a passcode to a single flow.
type OtpPurpose string

const (
	PurposeEmailVerify   OtpPurpose = "email-verify"
	PurposePasswordReset OtpPurpose = "password-reset"
)

// Valid reports whether p is a known purpose.
func (p OtpPurpose) Valid() bool {
	return p == PurposeEmailVerify || p == PurposePasswordReset
}

// OtpCode is a single issued passcode. Used only ever goes false -> true.
type OtpCode struct {
	ID        string
	Email     string
	Code      string
	Purpose   OtpPurpose
	ExpiresAt time.Time
	Used      bool
	CreatedAt time.Time
}
