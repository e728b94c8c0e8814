package notify

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"cashback-service/internal/client"
)

type recordingMailer struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (m *recordingMailer) Send(_ context.Context, to, _, _ string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return "", m.err
	}
	m.sent = append(m.sent, to)
	return "<id@test>", nil
}

func (m *recordingMailer) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sent)
}

type recordingProducer struct {
	topic string
	key   []byte
	value []byte
}

func (p *recordingProducer) Produce(_ context.Context, topic string, key, value []byte, _ map[string]string) error {
	p.topic, p.key, p.value = topic, key, value
	return nil
}

func TestKafkaDispatcherAndHandler(t *testing.T) {
	p := &recordingProducer{}
	d := NewKafkaDispatcher(p, "notifications.email")
	n := New(CategoryWelcome, "a@example.com", "hi", "<p>hi</p>")

	if err := d.Dispatch(context.Background(), n); err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if p.topic != "notifications.email" || string(p.key) != "a@example.com" {
		t.Fatalf("produced topic=%q key=%q", p.topic, p.key)
	}

	m := &recordingMailer{}
	h := Handler(m)
	if err := h(context.Background(), kafka.Message{Value: p.value}); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if m.count() != 1 {
		t.Fatalf("sent %d, want 1", m.count())
	}

	if err := h(context.Background(), kafka.Message{Value: []byte("{")}); !errors.Is(err, client.ErrSkipMessage) {
		t.Errorf("malformed payload err = %v, want ErrSkipMessage", err)
	}

	m.err = errors.New("smtp down")
	raw, _ := json.Marshal(n)
	if err := h(context.Background(), kafka.Message{Value: raw}); err == nil || errors.Is(err, client.ErrSkipMessage) {
		t.Errorf("mailer failure err = %v, want retryable error", err)
	}
}

func TestPoolDispatcher(t *testing.T) {
	m := &recordingMailer{}
	d := NewPoolDispatcher(m, 2, 10)
	for i := 0; i < 5; i++ {
		if err := d.Dispatch(context.Background(), New(CategoryWelcome, "a@example.com", "s", "b")); err != nil {
			t.Fatalf("Dispatch: %v", err)
		}
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if m.count() != 5 {
		t.Errorf("sent %d, want 5", m.count())
	}
}

type blockingMailer struct{ release chan struct{} }

func (b blockingMailer) Send(context.Context, string, string, string) (string, error) {
	<-b.release
	return "", nil
}

func TestPoolDispatcherQueueFull(t *testing.T) {
	b := blockingMailer{release: make(chan struct{})}
	d := NewPoolDispatcher(b, 1, 1)
	defer func() {
		close(b.release)
		_ = d.Close(context.Background())
	}()

	var full bool
	for i := 0; i < 5; i++ {
		if err := d.Dispatch(context.Background(), New(CategoryWelcome, "a@example.com", "s", "b")); errors.Is(err, ErrQueueFull) {
			full = true
			break
		}
	}
	if !full {
		t.Fatal("queue never reported full")
	}
}

type fnDispatcher func(context.Context, Notification) error

func (f fnDispatcher) Dispatch(ctx context.Context, n Notification) error { return f(ctx, n) }

func TestDispatchAsyncIgnoresCallerCancel(t *testing.T) {
	got := make(chan Notification, 1)
	d := fnDispatcher(func(ctx context.Context, n Notification) error {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		got <- n
		return nil
	})
	DispatchAsync(d, New(CategoryWelcome, "a@example.com", "s", "b"))
	select {
	case n := <-got:
		if n.To != "a@example.com" {
			t.Errorf("To = %q", n.To)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notification not dispatched")
	}
}
