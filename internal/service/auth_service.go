package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"cashback-service/internal/audit"
	"cashback-service/internal/cache"
	"cashback-service/internal/identity"
	"cashback-service/internal/mailer"
	"cashback-service/internal/models"
	"cashback-service/internal/notify"
	"cashback-service/internal/repository"
	"cashback-service/internal/token"
	"cashback-service/internal/util"
)

const (
	actionOTPSend       = "otp_send"
	actionPasswordReset = "password_reset"

	maxNameRunes          = 100
	minPasswordLen        = 8
	referralCodeAttempts  = 3
	compensationTimeout   = 10 * time.Second
	defaultIdentityBudget = 10 * time.Second
	defaultMailBudget     = 15 * time.Second
)

type SignupData struct {
	Password     string `json:"password"`
	Phone        string `json:"phone,omitempty"`
	ReferralCode string `json:"referralCode,omitempty"`
}

type SendOTPRequest struct {
	Email      string     `json:"email"`
	Name       string     `json:"name"`
	SignupData SignupData `json:"signupData"`
}

type SendOTPResult struct {
	Message   string `json:"message"`
	ExpiresIn int64  `json:"expiresIn"`
}

type AuthResult struct {
	User         *models.User `json:"user"`
	AccessToken  string       `json:"accessToken"`
	RefreshToken string       `json:"refreshToken"`
	ExpiresIn    int64        `json:"expiresIn"`
}

// AuthSettings are the tunables AuthService reads from config.
type AuthSettings struct {
	OTPSendLimit    int
	OTPSendWindow   time.Duration
	IdentityTimeout time.Duration
	MailTimeout     time.Duration
	ReferralBonus   decimal.Decimal
}

// AuthDeps groups AuthService collaborators. Notifier and Audit may be nil.
type AuthDeps struct {
	Users     repository.UserRepository
	Provider  identity.Provider
	OTPs      *cache.OTPCache
	Signups   *cache.SignupCache
	Sessions  *cache.SessionCache
	Limiter   *cache.RateLimitCache
	Tokens    *token.Issuer
	Mailer    mailer.Mailer
	Notifier  notify.Dispatcher
	Referrals *ReferralService
	Audit     audit.Recorder
}

// AuthService provisions accounts behind an emailed OTP and issues tokens.
// Account creation spans the identity provider and the local users table;
// a failed local insert deletes the provider account again.
type AuthService struct {
	AuthDeps
	settings AuthSettings
	logger   *zap.Logger

	generateOTP  func() (string, error)
	referralCode func(name string) (string, error)
}

func NewAuthService(deps AuthDeps, settings AuthSettings, logger *zap.Logger) *AuthService {
	if deps.Audit == nil {
		deps.Audit = audit.NopRecorder{}
	}
	if settings.IdentityTimeout <= 0 {
		settings.IdentityTimeout = defaultIdentityBudget
	}
	if settings.MailTimeout <= 0 {
		settings.MailTimeout = defaultMailBudget
	}
	return &AuthService{
		AuthDeps:     deps,
		settings:     settings,
		logger:       logger,
		generateOTP:  GenerateOTP,
		referralCode: GenerateReferralCode,
	}
}

// SendOTP validates the signup payload, parks it in the ephemeral store and
// emails a code. The email is awaited: it is the only way the code reaches
// the user.
func (s *AuthService) SendOTP(ctx context.Context, req SendOTPRequest) (*SendOTPResult, error) {
	email := util.NormalizeEmail(req.Email)
	name := strings.TrimSpace(req.Name)
	if err := validateSignup(email, name, req.SignupData); err != nil {
		return nil, err
	}

	if !s.allow(ctx, actionOTPSend, email) {
		s.Audit.Record(ctx, event(models.EventOTPRateLimited, "", email, nil))
		return nil, ErrRateLimited
	}

	existing, err := s.Users.GetByEmail(ctx, email)
	if err != nil {
		s.logger.Error("user lookup failed", zap.Error(err))
		return nil, fmt.Errorf("%w: user lookup", ErrInternal)
	}
	if existing != nil {
		return nil, ErrUserAlreadyExists
	}

	code, err := s.generateOTP()
	if err != nil {
		return nil, fmt.Errorf("%w: generate otp: %v", ErrInternal, err)
	}
	if err := s.OTPs.Issue(ctx, models.OTPPurposeSignup, email, code); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	pending := &models.PendingSignup{
		Email:        email,
		Name:         util.SanitizeInput(name),
		Phone:        strings.TrimSpace(req.SignupData.Phone),
		Password:     req.SignupData.Password,
		ReferralCode: strings.TrimSpace(req.SignupData.ReferralCode),
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.Signups.Save(ctx, pending); err != nil {
		_ = s.OTPs.Delete(ctx, models.OTPPurposeSignup, email)
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}

	subject, body := mailer.OTPEmail(pending.Name, code, s.OTPs.TTL())
	if err := s.sendCritical(ctx, email, subject, body); err != nil {
		_ = s.OTPs.Delete(ctx, models.OTPPurposeSignup, email)
		_ = s.Signups.Delete(ctx, email)
		return nil, err
	}

	s.Audit.Record(ctx, event(models.EventOTPSent, "", email, map[string]string{"purpose": models.OTPPurposeSignup}))
	return &SendOTPResult{
		Message:   "OTP sent to your email",
		ExpiresIn: int64(s.OTPs.TTL().Seconds()),
	}, nil
}

// VerifyOTP consumes the challenge and creates the account.
func (s *AuthService) VerifyOTP(ctx context.Context, email, code string) (*AuthResult, error) {
	email = util.NormalizeEmail(email)
	code = strings.TrimSpace(code)
	if !util.ValidEmail(email) || !validOTPFormat(code) {
		return nil, ErrInvalidOTP
	}

	ok, err := s.OTPs.Consume(ctx, models.OTPPurposeSignup, email, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if !ok {
		s.Audit.Record(ctx, event(models.EventOTPFailed, "", email, map[string]string{"purpose": models.OTPPurposeSignup}))
		return nil, ErrInvalidOTP
	}

	pending, err := s.Signups.Get(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if pending == nil {
		return nil, ErrSignupExpired
	}

	referrer := s.resolveReferrer(ctx, pending.ReferralCode)

	identityID, err := s.createIdentity(ctx, pending)
	if err != nil {
		return nil, err
	}

	user, err := s.createProfile(ctx, identityID, pending, referrer)
	if err != nil {
		s.compensate(identityID, email, err)
		if errors.Is(err, repository.ErrDuplicateEmail) {
			return nil, ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("%w: create profile", ErrInternal)
	}

	if err := s.Signups.Delete(ctx, email); err != nil {
		s.logger.Warn("failed to delete pending signup", zap.String("user_id", user.ID), zap.Error(err))
	}

	if referrer != nil && s.Referrals != nil {
		if _, err := s.Referrals.Attribute(ctx, referrer.ID, user.ID, s.settings.ReferralBonus); err != nil {
			s.logger.Error("referral attribution failed",
				zap.String("referrer_id", referrer.ID),
				zap.String("user_id", user.ID),
				zap.Error(err))
		}
	}

	subject, body := mailer.WelcomeEmail(user.Name, user.ReferralCode)
	notify.DispatchAsync(s.Notifier, notify.New(notify.CategoryWelcome, user.Email, subject, body))
	s.Audit.Record(ctx, event(models.EventSignupCompleted, user.ID, email, nil))

	result, err := s.issue(ctx, user)
	if err != nil {
		s.logger.Error("account created, token issue failed", zap.String("user_id", user.ID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrSignInRequired, err)
	}

	s.logger.Info("signup completed", zap.String("user_id", user.ID), zap.Bool("referred", referrer != nil))
	return result, nil
}

func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	email = util.NormalizeEmail(email)
	if !util.ValidEmail(email) || password == "" {
		return nil, ErrInvalidCredentials
	}

	pctx, cancel := context.WithTimeout(ctx, s.settings.IdentityTimeout)
	identityID, err := s.Provider.SignIn(pctx, email, password)
	cancel()
	if err != nil {
		if errors.Is(err, identity.ErrInvalidCredentials) {
			s.Audit.Record(ctx, event(models.EventLoginFailed, "", email, nil))
			return nil, ErrInvalidCredentials
		}
		s.logger.Error("identity sign-in failed", zap.Error(err))
		return nil, fmt.Errorf("%w: sign in", ErrInternal)
	}

	user, err := s.Users.GetByID(ctx, identityID)
	if err != nil {
		return nil, fmt.Errorf("%w: load profile: %v", ErrInternal, err)
	}
	if user == nil {
		s.logger.Warn("identity has no local profile", zap.String("identity_id", identityID))
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		s.Audit.Record(ctx, event(models.EventLoginFailed, user.ID, email, map[string]string{"reason": "deactivated"}))
		return nil, ErrAccountDeactivated
	}

	s.Audit.Record(ctx, event(models.EventLoginSucceeded, user.ID, email, nil))
	return s.issue(ctx, user)
}

// Refresh rotates a refresh token. Each refresh token works once.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (*AuthResult, error) {
	claims, err := s.Tokens.ValidateRefresh(refreshToken)
	if err != nil {
		return nil, ErrUnauthorized
	}
	ok, err := s.Sessions.Consume(ctx, claims.ID, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if !ok {
		return nil, ErrUnauthorized
	}

	user, err := s.Users.GetByID(ctx, claims.Subject)
	if err != nil {
		return nil, fmt.Errorf("%w: load profile: %v", ErrInternal, err)
	}
	if user == nil {
		return nil, ErrUnauthorized
	}
	if !user.IsActive {
		return nil, ErrAccountDeactivated
	}
	return s.issue(ctx, user)
}

func (s *AuthService) Logout(ctx context.Context, refreshToken string) error {
	claims, err := s.Tokens.ValidateRefresh(refreshToken)
	if err != nil {
		return ErrUnauthorized
	}
	if err := s.Sessions.Revoke(ctx, claims.ID); err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return nil
}

// ForgotPassword emails a reset code. Unknown addresses get the same
// response as known ones.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	email = util.NormalizeEmail(email)
	if !util.ValidEmail(email) {
		return fmt.Errorf("%w: invalid email", ErrInvalidInput)
	}
	if !s.allow(ctx, actionPasswordReset, email) {
		return ErrRateLimited
	}

	user, err := s.Users.GetByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("%w: user lookup: %v", ErrInternal, err)
	}
	if user == nil || !user.IsActive {
		return nil
	}

	code, err := s.generateOTP()
	if err != nil {
		return fmt.Errorf("%w: generate otp: %v", ErrInternal, err)
	}
	if err := s.OTPs.Issue(ctx, models.OTPPurposeReset, email, code); err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	subject, body := mailer.PasswordResetEmail(code, s.OTPs.TTL())
	if err := s.sendCritical(ctx, email, subject, body); err != nil {
		_ = s.OTPs.Delete(ctx, models.OTPPurposeReset, email)
		return err
	}
	s.Audit.Record(ctx, event(models.EventOTPSent, user.ID, email, map[string]string{"purpose": models.OTPPurposeReset}))
	return nil
}

func (s *AuthService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	email = util.NormalizeEmail(email)
	code = strings.TrimSpace(code)
	if len(newPassword) < minPasswordLen {
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	}
	if !util.ValidEmail(email) || !validOTPFormat(code) {
		return ErrInvalidOTP
	}

	ok, err := s.OTPs.Consume(ctx, models.OTPPurposeReset, email, code)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if !ok {
		s.Audit.Record(ctx, event(models.EventOTPFailed, "", email, map[string]string{"purpose": models.OTPPurposeReset}))
		return ErrInvalidOTP
	}

	user, err := s.Users.GetByEmail(ctx, email)
	if err != nil {
		return fmt.Errorf("%w: user lookup: %v", ErrInternal, err)
	}
	if user == nil {
		return ErrInvalidOTP
	}

	pctx, cancel := context.WithTimeout(ctx, s.settings.IdentityTimeout)
	defer cancel()
	if err := s.Provider.UpdatePassword(pctx, user.ID, newPassword); err != nil {
		if errors.Is(err, identity.ErrUserNotFound) {
			return ErrNotFound
		}
		s.logger.Error("password update failed", zap.String("user_id", user.ID), zap.Error(err))
		return fmt.Errorf("%w: update password", ErrInternal)
	}
	s.Audit.Record(ctx, event(models.EventPasswordReset, user.ID, email, nil))
	return nil
}

func (s *AuthService) Me(ctx context.Context, userID string) (*models.User, error) {
	user, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	if user == nil {
		return nil, ErrNotFound
	}
	return user, nil
}

func validateSignup(email, name string, data SignupData) error {
	switch {
	case !util.ValidEmail(email):
		return fmt.Errorf("%w: invalid email", ErrInvalidInput)
	case name == "" || util.RuneLen(name) > maxNameRunes:
		return fmt.Errorf("%w: name must be 1 to %d characters", ErrInvalidInput, maxNameRunes)
	case util.ContainsSuspicious(name):
		return fmt.Errorf("%w: name contains invalid characters", ErrInvalidInput)
	case len(data.Password) < minPasswordLen:
		return fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	case data.Phone != "" && !util.ValidPhone(data.Phone):
		return fmt.Errorf("%w: invalid phone number", ErrInvalidInput)
	}
	return nil
}

// allow maps limiter errors to a denial.
func (s *AuthService) allow(ctx context.Context, action, email string) bool {
	ok, err := s.Limiter.Allow(ctx, action, email, s.settings.OTPSendLimit, s.settings.OTPSendWindow)
	if err != nil {
		s.logger.Warn("rate limiter unavailable, denying", zap.String("action", action), zap.Error(err))
		return false
	}
	return ok
}

func (s *AuthService) sendCritical(ctx context.Context, to, subject, body string) error {
	mctx, cancel := context.WithTimeout(ctx, s.settings.MailTimeout)
	defer cancel()
	if _, err := s.Mailer.Send(mctx, to, subject, body); err != nil {
		s.logger.Error("failed to send email", zap.String("subject", subject), zap.Error(err))
		return ErrDeliveryFailed
	}
	return nil
}

func (s *AuthService) resolveReferrer(ctx context.Context, code string) *models.User {
	if code == "" {
		return nil
	}
	referrer, err := s.Users.GetByReferralCode(ctx, code)
	if err != nil {
		s.logger.Warn("referral code lookup failed, continuing without referrer", zap.Error(err))
		return nil
	}
	if referrer == nil || !referrer.IsActive {
		return nil
	}
	return referrer
}

func (s *AuthService) createIdentity(ctx context.Context, p *models.PendingSignup) (string, error) {
	pctx, cancel := context.WithTimeout(ctx, s.settings.IdentityTimeout)
	defer cancel()

	id, err := s.Provider.CreateUser(pctx, identity.CreateUserInput{
		Email:     p.Email,
		Password:  p.Password,
		Confirmed: true,
		Metadata:  map[string]string{"name": p.Name},
	})
	if err != nil {
		if errors.Is(err, identity.ErrUserExists) {
			return "", ErrUserAlreadyExists
		}
		s.logger.Error("identity provider create failed", zap.Error(err))
		return "", fmt.Errorf("%w: create identity", ErrInternal)
	}
	return id, nil
}

// createProfile inserts the local user row. A referral code collision
// draws a new code.
func (s *AuthService) createProfile(ctx context.Context, id string, p *models.PendingSignup, referrer *models.User) (*models.User, error) {
	user := &models.User{
		ID:         id,
		Email:      p.Email,
		Name:       p.Name,
		Role:       models.RoleUser,
		IsActive:   true,
		IsVerified: true,
		WalletState: models.WalletState{
			TotalCashback:     decimal.Zero,
			AvailableCashback: decimal.Zero,
			PendingCashback:   decimal.Zero,
		},
	}
	if p.Phone != "" {
		phone := p.Phone
		user.Phone = &phone
	}
	if referrer != nil {
		referrerID := referrer.ID
		user.ReferredBy = &referrerID
	}

	var err error
	for attempt := 1; attempt <= referralCodeAttempts; attempt++ {
		if user.ReferralCode, err = s.referralCode(p.Name); err != nil {
			return nil, err
		}
		err = s.Users.Create(ctx, user)
		if err == nil {
			return user, nil
		}
		if !errors.Is(err, repository.ErrDuplicateReferralCode) {
			break
		}
		s.logger.Debug("referral code collision, regenerating", zap.Int("attempt", attempt))
	}
	s.logger.Error("failed to create user profile", zap.String("user_id", id), zap.Error(err))
	return nil, err
}

// compensate removes the provider account after the local insert failed.
// It runs detached from the request so a disconnecting client cannot skip
// it.
func (s *AuthService) compensate(identityID, email string, cause error) {
	ctx, cancel := context.WithTimeout(context.Background(), compensationTimeout)
	defer cancel()

	if err := s.Provider.DeleteUser(ctx, identityID); err != nil {
		s.logger.Error("COMPENSATION FAILED: orphaned identity provider account",
			zap.String("identity_id", identityID),
			zap.NamedError("cause", cause),
			zap.Error(err))
		return
	}
	s.logger.Warn("signup rolled back", zap.String("identity_id", identityID), zap.NamedError("cause", cause))
	s.Audit.Record(ctx, event(models.EventSignupRolledBack, identityID, email, nil))
}

func (s *AuthService) issue(ctx context.Context, user *models.User) (*AuthResult, error) {
	pair, err := s.Tokens.IssuePair(token.Subject{UserID: user.ID, Email: user.Email, Role: user.Role})
	if err != nil {
		return nil, fmt.Errorf("%w: issue tokens: %v", ErrInternal, err)
	}
	if err := s.Sessions.Create(ctx, pair.RefreshJTI, user.ID, s.Tokens.RefreshTTL()); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return &AuthResult{
		User:         user,
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		ExpiresIn:    pair.ExpiresIn,
	}, nil
}

func event(kind, userID, email string, details map[string]string) models.SecurityEvent {
	return models.SecurityEvent{
		EventTime: time.Now().UTC(),
		EventType: kind,
		UserID:    userID,
		Email:     email,
		Details:   details,
	}
}
