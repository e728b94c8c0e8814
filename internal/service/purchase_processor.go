package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"cashback-service/internal/client"
	"cashback-service/internal/models"
)

const (
	PurchasePlaced    = "placed"
	PurchaseConfirmed = "confirmed"
	PurchaseCancelled = "cancelled"
)

// PurchaseProcessor applies order pipeline events: cashback bookings and
// the referral confirmation a first confirmed purchase triggers.
type PurchaseProcessor struct {
	wallet    *WalletService
	referrals *ReferralService
	logger    *zap.Logger
}

func NewPurchaseProcessor(wallet *WalletService, referrals *ReferralService, logger *zap.Logger) *PurchaseProcessor {
	return &PurchaseProcessor{wallet: wallet, referrals: referrals, logger: logger}
}

// Handle is safe to call more than once per event.
func (p *PurchaseProcessor) Handle(ctx context.Context, ev models.PurchaseEvent) error {
	if ev.OrderID == "" || ev.UserID == "" {
		return fmt.Errorf("%w: order and user are required", ErrInvalidInput)
	}
	hasCashback := ev.Cashback.IsPositive()

	switch ev.Status {
	case PurchasePlaced:
		if hasCashback {
			if _, err := p.wallet.AddPendingCashback(ctx, ev.OrderID, ev.UserID, ev.Cashback); err != nil {
				return err
			}
		}
	case PurchaseConfirmed:
		if hasCashback {
			// The placed event may not have arrived; booking is idempotent.
			if _, err := p.wallet.AddPendingCashback(ctx, ev.OrderID, ev.UserID, ev.Cashback); err != nil {
				return err
			}
			_, err := p.wallet.ConfirmPendingCashback(ctx, ev.OrderID, ev.UserID, ev.Cashback)
			if errors.Is(err, ErrInvalidTransition) {
				p.logger.Warn("confirm for order that was already cancelled",
					zap.String("order_id", ev.OrderID),
					zap.Error(err))
			} else if err != nil {
				return err
			}
		}
		if _, err := p.referrals.Confirm(ctx, ev.UserID); err != nil {
			return err
		}
	case PurchaseCancelled:
		if hasCashback {
			_, err := p.wallet.CancelPendingCashback(ctx, ev.OrderID, ev.UserID, ev.Cashback)
			if errors.Is(err, ErrInvalidTransition) {
				p.logger.Warn("cancel for order with no pending cashback",
					zap.String("order_id", ev.OrderID),
					zap.Error(err))
				return nil
			}
			if err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("%w: unknown purchase status %q", ErrInvalidInput, ev.Status)
	}
	return nil
}

// KafkaHandler decodes purchase events for client.KafkaConsumer. Malformed
// or invalid events and refused transitions are skipped; anything else is
// retried.
func (p *PurchaseProcessor) KafkaHandler() func(context.Context, kafka.Message) error {
	return func(ctx context.Context, msg kafka.Message) error {
		var ev models.PurchaseEvent
		if err := json.Unmarshal(msg.Value, &ev); err != nil {
			return fmt.Errorf("%w: %v", client.ErrSkipMessage, err)
		}
		err := p.Handle(ctx, ev)
		if errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrInvalidTransition) {
			return fmt.Errorf("%w: %v", client.ErrSkipMessage, err)
		}
		return err
	}
}
