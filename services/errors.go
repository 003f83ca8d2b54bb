// services/errors.go
package services

import "errors"

var (
	// ErrDepositMissingPackage and ErrDepositMissingUser are data integrity
	// failures: the deposit cannot be processed and is reported in the run.
	ErrDepositMissingPackage = errors.New("deposit has no package")
	ErrDepositMissingUser    = errors.New("deposit has no user")

	// ErrAlreadyDistributed means the deposit was already credited for the
	// target day. Batch callers count it as skipped, not failed.
	ErrAlreadyDistributed = errors.New("deposit already distributed for this day")

	// ErrEnumerationFailed wraps failures to list deposits; the whole run fails.
	ErrEnumerationFailed = errors.New("failed to enumerate deposits")

	// ErrAlreadyRunning is returned to any trigger arriving while a run is active.
	ErrAlreadyRunning = errors.New("distribution run already in progress")

	ErrInvalidAmount  = errors.New("amount must be greater than zero")
	ErrInvalidROIType = errors.New("invalid roi type")
	ErrUserNotFound   = errors.New("user not found")

	ErrReferrerNotFound   = errors.New("referrer not found")
	ErrSelfReferral       = errors.New("user cannot refer themselves")
	ErrReferralCycle      = errors.New("referral would create a cycle")
	ErrReferrerAlreadySet = errors.New("user already has a referrer")
)
