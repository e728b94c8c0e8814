// Package audit records security and funnel events (OTP sends, signups,
// logins, withdrawals, manual credits). Recording never blocks or fails the
// operation that produced the event.
package audit

import (
	"context"

	"go.uber.org/zap"

	"cashback-service/internal/models"
	"cashback-service/internal/util"
)

type Recorder interface {
	Record(ctx context.Context, ev models.SecurityEvent)
}

// LogRecorder writes events to the process log. Used when ClickHouse is not
// configured.
type LogRecorder struct{}

func (LogRecorder) Record(_ context.Context, ev models.SecurityEvent) {
	util.Info("security event",
		zap.String("event_type", ev.EventType),
		zap.String("user_id", ev.UserID),
		zap.String("ip", ev.IPAddress),
		zap.Any("details", ev.Details))
}

type NopRecorder struct{}

func (NopRecorder) Record(context.Context, models.SecurityEvent) {}
