package service

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"unicode"
)

const (
	otpDigits          = 6
	referralPrefixLen  = 4
	referralSuffixLen  = 4
	referralSuffixSet  = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	referralPrefixFill = "X"
)

var otpSpace = big.NewInt(1_000_000)

// GenerateOTP returns a uniformly random six-digit code, zero padded.
func GenerateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, otpSpace)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%0*d", otpDigits, n.Int64()), nil
}

func validOTPFormat(code string) bool {
	if len(code) != otpDigits {
		return false
	}
	for _, c := range code {
		if c < '0' || c > '9' {
			return false
		}
	}
	return true
}

// GenerateReferralCode is the first four ASCII letters of name, upper-cased
// and padded with X, followed by four random characters from [A-Z0-9].
func GenerateReferralCode(name string) (string, error) {
	var prefix strings.Builder
	for _, r := range name {
		if prefix.Len() == referralPrefixLen {
			break
		}
		if r <= unicode.MaxASCII && unicode.IsLetter(r) {
			prefix.WriteRune(unicode.ToUpper(r))
		}
	}
	for prefix.Len() < referralPrefixLen {
		prefix.WriteString(referralPrefixFill)
	}

	suffix := make([]byte, referralSuffixLen)
	setSize := big.NewInt(int64(len(referralSuffixSet)))
	for i := range suffix {
		n, err := rand.Int(rand.Reader, setSize)
		if err != nil {
			return "", err
		}
		suffix[i] = referralSuffixSet[n.Int64()]
	}
	return prefix.String() + string(suffix), nil
}
