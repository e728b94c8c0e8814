package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/supabase-community/gotrue-go"
	"github.com/supabase-community/gotrue-go/types"
	"go.uber.org/zap"

	"cashback-service/internal/config"
	"cashback-service/internal/util"
)

// GoTrueClient calls a GoTrue admin API (Supabase Auth) with the service
// role key. URL includes the auth prefix, e.g.
// https://project.supabase.co/auth/v1.
type GoTrueClient struct {
	api gotrue.Client
}

func NewGoTrueClient(cfg *config.Config) *GoTrueClient {
	api := gotrue.New("", cfg.Identity.ServiceRoleKey).
		WithCustomGoTrueURL(strings.TrimRight(cfg.Identity.URL, "/")).
		WithToken(cfg.Identity.ServiceRoleKey).
		WithClient(http.Client{Timeout: cfg.Identity.Timeout})
	return &GoTrueClient{api: api}
}

// call runs fn unless ctx is already done. The gotrue client takes no
// context, so the HTTP timeout bounds each request.
func call[T any](ctx context.Context, fn func() (T, error)) (T, error) {
	if err := ctx.Err(); err != nil {
		var zero T
		return zero, err
	}
	return fn()
}

// statusOf extracts the HTTP status gotrue-go puts in its error text.
// Transport failures report 0.
func statusOf(err error) int {
	var status int
	if _, scanErr := fmt.Sscanf(err.Error(), "response status code %d", &status); scanErr != nil {
		return 0
	}
	return status
}

func unavailable(err error) bool {
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}

func (c *GoTrueClient) CreateUser(ctx context.Context, in CreateUserInput) (string, error) {
	req := types.AdminCreateUserRequest{
		Email:        in.Email,
		Password:     &in.Password,
		EmailConfirm: in.Confirmed,
	}
	if len(in.Metadata) > 0 {
		req.UserMetadata = make(map[string]interface{}, len(in.Metadata))
		for k, v := range in.Metadata {
			req.UserMetadata[k] = v
		}
	}

	resp, err := call(ctx, func() (*types.AdminCreateUserResponse, error) { return c.api.AdminCreateUser(req) })
	if err != nil {
		if unavailable(err) {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if isAlreadyExists(err) {
			return "", ErrUserExists
		}
		util.Error("identity create user failed", zap.Int("status", statusOf(err)), zap.Error(err))
		return "", fmt.Errorf("identity create user: %w", err)
	}
	if resp.ID == uuid.Nil {
		return "", fmt.Errorf("identity create user: empty id")
	}
	return resp.ID.String(), nil
}

func isAlreadyExists(err error) bool {
	status := statusOf(err)
	if status == http.StatusConflict {
		return true
	}
	text := strings.ToLower(err.Error())
	if strings.Contains(text, "email_exists") || strings.Contains(text, "user_already_exists") {
		return true
	}
	return status == http.StatusUnprocessableEntity && strings.Contains(text, "already")
}

func (c *GoTrueClient) DeleteUser(ctx context.Context, id string) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		// not an id the provider could have issued
		return nil
	}
	_, err = call(ctx, func() (struct{}, error) {
		return struct{}{}, c.api.AdminDeleteUser(types.AdminDeleteUserRequest{UserID: uid})
	})
	switch {
	case err == nil || statusOf(err) == http.StatusNotFound:
		return nil
	case unavailable(err):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	default:
		return fmt.Errorf("identity delete user: %w", err)
	}
}

func (c *GoTrueClient) SignIn(ctx context.Context, email, password string) (string, error) {
	resp, err := call(ctx, func() (*types.TokenResponse, error) { return c.api.SignInWithEmailPassword(email, password) })
	if err != nil {
		if errors.Is(err, types.ErrInvalidTokenRequest) {
			return "", ErrInvalidCredentials
		}
		if unavailable(err) {
			return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
		}
		if s := statusOf(err); s == http.StatusBadRequest || s == http.StatusUnauthorized {
			return "", ErrInvalidCredentials
		}
		return "", fmt.Errorf("identity sign in: %w", err)
	}
	if resp.User.ID == uuid.Nil {
		return "", ErrInvalidCredentials
	}
	return resp.User.ID.String(), nil
}

func (c *GoTrueClient) UpdatePassword(ctx context.Context, id, password string) error {
	uid, err := uuid.Parse(id)
	if err != nil {
		return ErrUserNotFound
	}
	_, err = call(ctx, func() (*types.AdminUpdateUserResponse, error) {
		return c.api.AdminUpdateUser(types.AdminUpdateUserRequest{UserID: uid, Password: password})
	})
	switch {
	case err == nil:
		return nil
	case statusOf(err) == http.StatusNotFound:
		return ErrUserNotFound
	case unavailable(err):
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	default:
		return fmt.Errorf("identity update password: %w", err)
	}
}
