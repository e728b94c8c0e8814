package models

import (
	"testing"

	"github.com/shopspring/decimal"
)

func TestWithdrawalMinimums(t *testing.T) {
	tests := []struct {
		method WithdrawalMethod
		want   int64
	}{
		{MethodUPI, 10},
		{MethodBank, 50},
		{MethodPaytm, 10},
		{MethodVoucher, 100},
	}
	for _, tt := range tests {
		got, ok := tt.method.Minimum()
		if !ok {
			t.Fatalf("%s: no minimum", tt.method)
		}
		if !got.Equal(decimal.NewFromInt(tt.want)) {
			t.Errorf("%s minimum = %s, want %d", tt.method, got, tt.want)
		}
	}
	if _, ok := WithdrawalMethod("crypto").Minimum(); ok {
		t.Error("unknown method should have no minimum")
	}
}

func TestAccountDetailsValidate(t *testing.T) {
	if err := (AccountDetails{}).Validate(MethodUPI); err == nil {
		t.Error("upi without upiId should fail")
	}
	if err := (AccountDetails{UPIID: "a@okbank"}).Validate(MethodUPI); err != nil {
		t.Errorf("upi: %v", err)
	}
	if err := (AccountDetails{AccountNumber: "1"}).Validate(MethodBank); err == nil {
		t.Error("bank without ifsc should fail")
	}
	if err := (AccountDetails{}).Validate(MethodVoucher); err != nil {
		t.Errorf("voucher: %v", err)
	}
}

func TestAccountDetailsScan(t *testing.T) {
	var d AccountDetails
	if err := d.Scan([]byte(`{"upiId":"x@y"}`)); err != nil {
		t.Fatalf("Scan: %v", err)
	}
	if d.UPIID != "x@y" {
		t.Errorf("UPIID = %q", d.UPIID)
	}
}

func TestWithdrawn(t *testing.T) {
	w := WalletState{
		TotalCashback:     decimal.RequireFromString("200"),
		AvailableCashback: decimal.RequireFromString("50"),
		PendingCashback:   decimal.RequireFromString("30"),
	}
	if got := w.Withdrawn(); !got.Equal(decimal.NewFromInt(120)) {
		t.Errorf("Withdrawn = %s, want 120", got)
	}
}
