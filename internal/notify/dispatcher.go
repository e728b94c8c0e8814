// Package notify delivers non-critical email (welcome, withdrawal updates)
// off the request path. Callers hand a Notification to a Dispatcher and do
// not wait for delivery.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"cashback-service/internal/util"
)

var ErrQueueFull = errors.New("notify: queue full")

const dispatchTimeout = 5 * time.Second

type Notification struct {
	ID        string    `json:"id"`
	Category  string    `json:"category"`
	To        string    `json:"to"`
	Subject   string    `json:"subject"`
	HTMLBody  string    `json:"htmlBody"`
	CreatedAt time.Time `json:"createdAt"`
}

const (
	CategoryWelcome    = "welcome"
	CategoryWithdrawal = "withdrawal"
)

func New(category, to, subject, htmlBody string) Notification {
	return Notification{
		ID:        uuid.NewString(),
		Category:  category,
		To:        to,
		Subject:   subject,
		HTMLBody:  htmlBody,
		CreatedAt: time.Now().UTC(),
	}
}

type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}

// DispatchAsync hands n to d on a detached context so request cancellation
// does not drop it. Failures are logged.
func DispatchAsync(d Dispatcher, n Notification) {
	if d == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
		defer cancel()
		if err := d.Dispatch(ctx, n); err != nil {
			util.Warn("notification dispatch failed",
				zap.String("id", n.ID),
				zap.String("category", n.Category),
				zap.Error(err))
		}
	}()
}
