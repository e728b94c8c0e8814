package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type WithdrawalStatus string

const (
	WithdrawalPending    WithdrawalStatus = "pending"
	WithdrawalProcessing WithdrawalStatus = "processing"
	WithdrawalCompleted  WithdrawalStatus = "completed"
	WithdrawalFailed     WithdrawalStatus = "failed"
)

func (s WithdrawalStatus) Terminal() bool {
	return s == WithdrawalCompleted || s == WithdrawalFailed
}

type WithdrawalMethod string

const (
	MethodUPI     WithdrawalMethod = "upi"
	MethodBank    WithdrawalMethod = "bank"
	MethodPaytm   WithdrawalMethod = "paytm"
	MethodVoucher WithdrawalMethod = "voucher"
)

var minimumWithdrawal = map[WithdrawalMethod]decimal.Decimal{
	MethodUPI:     decimal.NewFromInt(10),
	MethodBank:    decimal.NewFromInt(50),
	MethodPaytm:   decimal.NewFromInt(10),
	MethodVoucher: decimal.NewFromInt(100),
}

// Minimum returns the smallest amount accepted for the method and false
// for an unknown method.
func (m WithdrawalMethod) Minimum() (decimal.Decimal, bool) {
	v, ok := minimumWithdrawal[m]
	return v, ok
}

// AccountDetails holds the payout destination. Which fields are required
// depends on the method.
type AccountDetails struct {
	UPIID         string `json:"upiId,omitempty"`
	AccountNumber string `json:"accountNumber,omitempty"`
	IFSC          string `json:"ifsc,omitempty"`
	AccountHolder string `json:"accountHolder,omitempty"`
	PaytmNumber   string `json:"paytmNumber,omitempty"`
	VoucherEmail  string `json:"voucherEmail,omitempty"`
}

// Validate checks that the fields the method needs are present.
func (d AccountDetails) Validate(m WithdrawalMethod) error {
	switch m {
	case MethodUPI:
		if d.UPIID == "" {
			return fmt.Errorf("upiId is required for upi")
		}
	case MethodBank:
		if d.AccountNumber == "" || d.IFSC == "" || d.AccountHolder == "" {
			return fmt.Errorf("accountNumber, ifsc and accountHolder are required for bank")
		}
	case MethodPaytm:
		if d.PaytmNumber == "" {
			return fmt.Errorf("paytmNumber is required for paytm")
		}
	case MethodVoucher:
		// falls back to the account email
	default:
		return fmt.Errorf("unknown method %q", m)
	}
	return nil
}

func (d AccountDetails) Value() (driver.Value, error) {
	return json.Marshal(d)
}

func (d *AccountDetails) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*d = AccountDetails{}
		return nil
	case []byte:
		raw = v
	case string:
		raw = []byte(v)
	default:
		return fmt.Errorf("account details: unsupported type %T", src)
	}
	return json.Unmarshal(raw, d)
}

type WithdrawalRequest struct {
	ID             string           `json:"id" db:"id"`
	UserID         string           `json:"userId" db:"user_id"`
	Amount         decimal.Decimal  `json:"amount" db:"amount"`
	Method         WithdrawalMethod `json:"method" db:"method"`
	AccountDetails AccountDetails   `json:"accountDetails" db:"account_details"`
	Status         WithdrawalStatus `json:"status" db:"status"`
	AdminNotes     *string          `json:"adminNotes,omitempty" db:"admin_notes"`
	ProcessedAt    *time.Time       `json:"processedAt,omitempty" db:"processed_at"`
	CreatedAt      time.Time        `json:"createdAt" db:"created_at"`
	UpdatedAt      time.Time        `json:"updatedAt" db:"updated_at"`
}
