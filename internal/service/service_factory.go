package service

import (
	"go.uber.org/zap"

	"cashback-service/internal/audit"
	"cashback-service/internal/cache"
	"cashback-service/internal/identity"
	"cashback-service/internal/mailer"
	"cashback-service/internal/notify"
	"cashback-service/internal/repository"
	"cashback-service/internal/token"
)

// Dependencies is everything the services are built from. It is assembled
// once at process start.
type Dependencies struct {
	Users       repository.UserRepository
	Wallets     repository.WalletRepository
	Referrals   repository.ReferralRepository
	Withdrawals repository.WithdrawalRepository
	Ledger      repository.LedgerRepository

	Provider identity.Provider
	OTPs     *cache.OTPCache
	Signups  *cache.SignupCache
	Sessions *cache.SessionCache
	Limiter  *cache.RateLimitCache
	Tokens   *token.Issuer
	Mailer   mailer.Mailer
	Notifier notify.Dispatcher
	Audit    audit.Recorder
}

// ServiceFactory creates and manages service instances
type ServiceFactory struct {
	deps     Dependencies
	settings AuthSettings
	logger   *zap.Logger

	authService       *AuthService
	referralService   *ReferralService
	walletService     *WalletService
	purchaseProcessor *PurchaseProcessor
}

func NewServiceFactory(deps Dependencies, settings AuthSettings, logger *zap.Logger) *ServiceFactory {
	return &ServiceFactory{deps: deps, settings: settings, logger: logger}
}

// ReferralService returns the referral service instance (singleton)
func (f *ServiceFactory) ReferralService() *ReferralService {
	if f.referralService == nil {
		f.referralService = NewReferralService(f.deps.Referrals, f.deps.Ledger, f.logger.Named("referral"))
	}
	return f.referralService
}

// WalletService returns the wallet service instance (singleton)
func (f *ServiceFactory) WalletService() *WalletService {
	if f.walletService == nil {
		f.walletService = NewWalletService(WalletDeps{
			Users:       f.deps.Users,
			Wallets:     f.deps.Wallets,
			Withdrawals: f.deps.Withdrawals,
			Ledger:      f.deps.Ledger,
			Notifier:    f.deps.Notifier,
			Audit:       f.deps.Audit,
		}, f.logger.Named("wallet"))
	}
	return f.walletService
}

// AuthService returns the auth service instance (singleton)
func (f *ServiceFactory) AuthService() *AuthService {
	if f.authService == nil {
		f.authService = NewAuthService(AuthDeps{
			Users:     f.deps.Users,
			Provider:  f.deps.Provider,
			OTPs:      f.deps.OTPs,
			Signups:   f.deps.Signups,
			Sessions:  f.deps.Sessions,
			Limiter:   f.deps.Limiter,
			Tokens:    f.deps.Tokens,
			Mailer:    f.deps.Mailer,
			Notifier:  f.deps.Notifier,
			Referrals: f.ReferralService(),
			Audit:     f.deps.Audit,
		}, f.settings, f.logger.Named("auth"))
	}
	return f.authService
}

// PurchaseProcessor returns the purchase event processor (singleton)
func (f *ServiceFactory) PurchaseProcessor() *PurchaseProcessor {
	if f.purchaseProcessor == nil {
		f.purchaseProcessor = NewPurchaseProcessor(f.WalletService(), f.ReferralService(), f.logger.Named("purchases"))
	}
	return f.purchaseProcessor
}

func (f *ServiceFactory) Tokens() *token.Issuer {
	return f.deps.Tokens
}
