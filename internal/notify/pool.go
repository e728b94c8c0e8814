package notify

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"cashback-service/internal/mailer"
	"cashback-service/internal/util"
)

// PoolDispatcher sends notifications from a fixed set of in-process
// workers. It is used when Kafka is not configured; queued messages are lost
// if the process exits before they are sent.
type PoolDispatcher struct {
	mailer mailer.Mailer
	queue  chan Notification
	wg     sync.WaitGroup
	once   sync.Once
}

func NewPoolDispatcher(m mailer.Mailer, workers, queueSize int) *PoolDispatcher {
	d := &PoolDispatcher{
		mailer: m,
		queue:  make(chan Notification, queueSize),
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	return d
}

func (d *PoolDispatcher) work() {
	defer d.wg.Done()
	for n := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), 2*dispatchTimeout)
		if _, err := d.mailer.Send(ctx, n.To, n.Subject, n.HTMLBody); err != nil {
			util.Warn("notification send failed",
				zap.String("id", n.ID),
				zap.String("category", n.Category),
				zap.Error(err))
		}
		cancel()
	}
}

// Dispatch enqueues n without blocking.
func (d *PoolDispatcher) Dispatch(_ context.Context, n Notification) error {
	select {
	case d.queue <- n:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops accepting work and waits for queued notifications until ctx
// is done.
func (d *PoolDispatcher) Close(ctx context.Context) error {
	d.once.Do(func() { close(d.queue) })
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
