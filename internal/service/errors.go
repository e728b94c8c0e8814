package service

import "errors"

var (
	ErrInvalidInput        = errors.New("invalid input")
	ErrInvalidOTP          = errors.New("invalid or expired OTP")
	ErrSignupExpired       = errors.New("signup session expired, request a new OTP")
	ErrBelowMinimum        = errors.New("amount is below the minimum for this method")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrAccountDeactivated  = errors.New("account is deactivated")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrForbidden           = errors.New("forbidden")
	ErrNotFound            = errors.New("not found")
	ErrUserAlreadyExists   = errors.New("user already exists")
	ErrInvalidTransition   = errors.New("invalid status transition")
	ErrRateLimited         = errors.New("too many requests, try again later")
	ErrDeliveryFailed      = errors.New("could not deliver email")
	ErrSignInRequired      = errors.New("account created, sign in to continue")
	ErrInternal            = errors.New("internal error")
)
