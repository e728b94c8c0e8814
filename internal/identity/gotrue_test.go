package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"cashback-service/internal/config"
)

type fakeGoTrue struct {
	mu    sync.Mutex
	users map[string]string // email -> password
	ids   map[string]string // id -> email
}

func (f *fakeGoTrue) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Header.Get("apikey") != "service-key" {
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	var body map[string]interface{}
	_ = json.NewDecoder(r.Body).Decode(&body)

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/admin/users":
		email := body["email"].(string)
		if _, ok := f.users[email]; ok {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_, _ = w.Write([]byte(`{"code":422,"error_code":"email_exists","msg":"A user with this email address has already been registered"}`))
			return
		}
		id := uuid.NewString()
		f.users[email] = body["password"].(string)
		f.ids[id] = email
		_ = json.NewEncoder(w).Encode(map[string]string{"id": id, "email": email})
	case r.Method == http.MethodDelete && strings.HasPrefix(r.URL.Path, "/admin/users/"):
		id := strings.TrimPrefix(r.URL.Path, "/admin/users/")
		email, ok := f.ids[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"msg":"User not found"}`))
			return
		}
		delete(f.ids, id)
		delete(f.users, email)
	case r.Method == http.MethodPost && r.URL.Path == "/token":
		email, _ := body["email"].(string)
		pw, ok := f.users[email]
		if !ok || pw != body["password"] {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":"invalid_grant","error_description":"Invalid login credentials"}`))
			return
		}
		for id, e := range f.ids {
			if e == email {
				_ = json.NewEncoder(w).Encode(map[string]interface{}{"user": map[string]string{"id": id}})
				return
			}
		}
	case r.Method == http.MethodPut && strings.HasPrefix(r.URL.Path, "/admin/users/"):
		id := strings.TrimPrefix(r.URL.Path, "/admin/users/")
		email, ok := f.ids[id]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		f.users[email] = body["password"].(string)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestClient(t *testing.T) *GoTrueClient {
	srv := httptest.NewServer(&fakeGoTrue{users: map[string]string{}, ids: map[string]string{}})
	t.Cleanup(srv.Close)
	cfg := &config.Config{Identity: config.IdentityConfig{URL: srv.URL + "/", ServiceRoleKey: "service-key", Timeout: 5 * time.Second}}
	return NewGoTrueClient(cfg)
}

func TestGoTrueLifecycle(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	id, err := c.CreateUser(ctx, CreateUserInput{Email: "a@example.com", Password: "hunter222", Confirmed: true})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	if _, err := c.CreateUser(ctx, CreateUserInput{Email: "a@example.com", Password: "x"}); !errors.Is(err, ErrUserExists) {
		t.Fatalf("duplicate CreateUser err = %v, want ErrUserExists", err)
	}

	got, err := c.SignIn(ctx, "a@example.com", "hunter222")
	if err != nil || got != id {
		t.Fatalf("SignIn = %q, %v; want %q", got, err, id)
	}
	if _, err := c.SignIn(ctx, "a@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("bad password err = %v", err)
	}

	if err := c.UpdatePassword(ctx, id, "newpass99"); err != nil {
		t.Fatalf("UpdatePassword: %v", err)
	}
	if _, err := c.SignIn(ctx, "a@example.com", "newpass99"); err != nil {
		t.Fatalf("SignIn after update: %v", err)
	}

	if err := c.DeleteUser(ctx, id); err != nil {
		t.Fatalf("DeleteUser: %v", err)
	}
	if err := c.DeleteUser(ctx, id); err != nil {
		t.Fatalf("second DeleteUser should be a no-op: %v", err)
	}
	if err := c.UpdatePassword(ctx, id, "x"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("UpdatePassword deleted user err = %v", err)
	}
}

func TestGoTrueUnavailable(t *testing.T) {
	cfg := &config.Config{Identity: config.IdentityConfig{URL: "http://127.0.0.1:1", ServiceRoleKey: "k", Timeout: time.Second}}
	c := NewGoTrueClient(cfg)
	if _, err := c.CreateUser(context.Background(), CreateUserInput{Email: "a@example.com"}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestGoTrueHonoursCancelledContext(t *testing.T) {
	c := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.CreateUser(ctx, CreateUserInput{Email: "c@example.com", Password: "hunter222"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if err := c.DeleteUser(context.Background(), "not-a-uuid"); err != nil {
		t.Fatalf("DeleteUser with foreign id: %v", err)
	}
	if err := c.UpdatePassword(context.Background(), uuid.NewString(), "x"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("UpdatePassword unknown err = %v", err)
	}
}
