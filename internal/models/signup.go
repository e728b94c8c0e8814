package models

import "time"

// PendingSignup is the profile captured at send-otp time and consumed once
// the OTP is verified.
type PendingSignup struct {
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Phone        string    `json:"phone,omitempty"`
	Password     string    `json:"password,omitempty"`
	ReferralCode string    `json:"referralCode,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// OTP purposes. Each purpose has its own challenge key.
const (
	OTPPurposeSignup = "signup"
	OTPPurposeReset  = "reset"
)
