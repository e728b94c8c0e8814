package models

import "time"

const (
	EventOTPSent           = "otp_sent"
	EventOTPRateLimited    = "otp_rate_limited"
	EventOTPFailed         = "otp_failed"
	EventSignupCompleted   = "signup_completed"
	EventSignupRolledBack  = "signup_rolled_back"
	EventLoginSucceeded    = "login_succeeded"
	EventLoginFailed       = "login_failed"
	EventPasswordReset     = "password_reset"
	EventWithdrawalRequest = "withdrawal_requested"
	EventWithdrawalDecided = "withdrawal_decided"
	EventManualCredit      = "manual_credit"
)

type SecurityEvent struct {
	EventTime time.Time         `json:"eventTime"`
	EventType string            `json:"eventType"`
	UserID    string            `json:"userId,omitempty"`
	Email     string            `json:"email,omitempty"`
	IPAddress string            `json:"ipAddress,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}
