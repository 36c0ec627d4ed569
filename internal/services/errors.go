package services

import "errors"

var (
	// ErrCheckoutSessionInvalidInput indicates a command that cannot be
	// processed as given.
	ErrCheckoutSessionInvalidInput = errors.New("checkout session: invalid input")
	// ErrCheckoutSessionNotFound indicates an unknown session id.
	ErrCheckoutSessionNotFound = errors.New("checkout session: not found")
	// ErrCheckoutSessionTerminal indicates a mutation attempted on a
	// completed or canceled session.
	ErrCheckoutSessionTerminal = errors.New("checkout session: terminal state")
	// ErrCheckoutSessionNotCancelable indicates a cancel attempted on a
	// completed session.
	ErrCheckoutSessionNotCancelable = errors.New("checkout session: not cancelable")
	// ErrCheckoutSessionNotReady indicates a completion attempted before
	// the session reached ready_for_payment.
	ErrCheckoutSessionNotReady = errors.New("checkout session: not ready for payment")
	// ErrCheckoutSessionPaymentDeclined indicates the payment provider
	// rejected the presented credential.
	ErrCheckoutSessionPaymentDeclined = errors.New("checkout session: payment declined")
	// ErrCheckoutSessionUnavailable indicates a dependency failure while
	// processing the session.
	ErrCheckoutSessionUnavailable = errors.New("checkout session: unavailable")
)
