package service

import (
	"errors"
	"testing"

	"github.com/efreitasn/futuresim/internal/domain"
)

func TestAccountService_DepositWithdrawAdjust(t *testing.T) {
	env := newTestEnv(t)

	snap, err := env.accountSvc.Deposit("acc", 250.5)
	if err != nil {
		t.Fatalf("Deposit() error: %v", err)
	}
	if got := snap.Balance.String(); got != "100250.5" {
		t.Errorf("Deposit() balance = %s, want 100250.5", got)
	}

	snap, err = env.accountSvc.Withdraw("acc", 0.5)
	if err != nil {
		t.Fatalf("Withdraw() error: %v", err)
	}
	if got := snap.Balance.String(); got != "100250" {
		t.Errorf("Withdraw() balance = %s, want 100250", got)
	}

	snap, err = env.accountSvc.Adjust("acc", -250)
	if err != nil {
		t.Fatalf("Adjust(-250) error: %v", err)
	}
	if got := snap.Balance.String(); got != "100000" {
		t.Errorf("Adjust() balance = %s, want 100000", got)
	}
	if !snap.Equity.Equal(snap.Balance) || !snap.AvailableMargin.Equal(snap.Balance) {
		t.Errorf("flat account: equity %s available %s balance %s", snap.Equity, snap.AvailableMargin, snap.Balance)
	}
}

func TestAccountService_Errors(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name    string
		call    func() error
		wantErr error
	}{
		{"withdraw beyond available", func() error { _, err := env.accountSvc.Withdraw("acc", 100000.01); return err }, domain.ErrInsufficientFunds},
		{"zero deposit", func() error { _, err := env.accountSvc.Deposit("acc", 0); return err }, domain.ErrInvalidConfig},
		{"zero adjust", func() error { _, err := env.accountSvc.Adjust("acc", 0); return err }, domain.ErrInvalidConfig},
		{"three decimals", func() error { _, err := env.accountSvc.Deposit("acc", 1.005); return err }, domain.ErrInvalidConfig},
		{"unknown account", func() error { _, err := env.accountSvc.Deposit("ghost", 1); return err }, domain.ErrAccountNotFound},
		{"unknown snapshot", func() error { _, err := env.accountSvc.Get("ghost"); return err }, domain.ErrAccountNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.call(); !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	snap, _ := env.accountSvc.Get("acc")
	if got := snap.Balance.String(); got != "100000" {
		t.Errorf("failed calls changed the balance to %s", got)
	}
}
