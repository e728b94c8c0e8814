package mailer

import (
	"fmt"
	"html"
	"time"
)

func OTPEmail(name, code string, ttl time.Duration) (subject, body string) {
	subject = "Your verification code"
	body = fmt.Sprintf(`<p>Hi %s,</p><p>Your verification code is <strong>%s</strong>.</p><p>It expires in %d minutes. If you did not request it, ignore this email.</p>`,
		html.EscapeString(name), code, int(ttl.Minutes()))
	return subject, body
}

func PasswordResetEmail(code string, ttl time.Duration) (subject, body string) {
	subject = "Reset your password"
	body = fmt.Sprintf(`<p>Use the code <strong>%s</strong> to reset your password. It expires in %d minutes.</p>`,
		code, int(ttl.Minutes()))
	return subject, body
}

func WelcomeEmail(name, referralCode string) (subject, body string) {
	subject = "Welcome aboard"
	body = fmt.Sprintf(`<p>Hi %s, your account is ready.</p><p>Share your referral code <strong>%s</strong> with friends.</p>`,
		html.EscapeString(name), html.EscapeString(referralCode))
	return subject, body
}

func WithdrawalStatusEmail(status, amount string) (subject, body string) {
	subject = "Withdrawal update"
	body = fmt.Sprintf(`<p>Your withdrawal of %s is now <strong>%s</strong>.</p>`, html.EscapeString(amount), html.EscapeString(status))
	return subject, body
}
