package core

import "fmt"

// ValidationError reports malformed input rejected before any store call.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// StoreError reports a transport or permission failure from the ledger store.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error { return e.Err }

// SubscriptionError reports a failure to establish or keep the live feed.
type SubscriptionError struct {
	UserID string
	Err    error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscription for user %s: %v", e.UserID, e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }
