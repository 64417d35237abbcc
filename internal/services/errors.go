package services

import (
	"errors"
	"fmt"

	"wallet-backend/internal/repository"
)

// Validation-class errors. These are deterministic given current chain and
// database state and are surfaced to the caller without retrying.
var (
	// ErrWalletNotFound aliases the store error so callers can match either.
	ErrWalletNotFound = repository.ErrWalletNotFound

	// ErrInvalidSignature covers every way a challenge verification can fail
	// short of the wallet missing: bad signature bytes, a recovered address
	// that does not match, a consumed or absent challenge.
	ErrInvalidSignature = errors.New("signature does not match wallet address")

	// ErrChallengeExpired is returned when a login challenge is verified
	// after its validity window. The challenge is consumed regardless.
	ErrChallengeExpired = errors.New("login challenge expired")

	// ErrInsufficientBalance is returned when the sender cannot cover the
	// transferred value plus the estimated commission.
	ErrInsufficientBalance = errors.New("not enough balance: value + commission")

	// ErrInsufficientAllowance is returned when the router is not approved
	// to move enough of the input token.
	ErrInsufficientAllowance = errors.New("not enough allowance for router")

	// ErrRouteNotFound is returned when the router cannot quote the hop
	// path, e.g. no liquidity.
	ErrRouteNotFound = errors.New("no swap route available")
)

// ApprovalRequiredError reports that the input token allowance was too low,
// so an approve transaction was broadcast instead of the swap. The swap
// itself must be re-submitted once the approval is mined.
type ApprovalRequiredError struct {
	Token  string // input token contract
	TxHash string // broadcast approve transaction
}

func (e *ApprovalRequiredError) Error() string {
	return fmt.Sprintf("allowance too low for token %s, approval submitted: %s", e.Token, e.TxHash)
}

// Is lets callers classify this as an allowance failure with errors.Is.
func (e *ApprovalRequiredError) Is(target error) bool {
	return target == ErrInsufficientAllowance
}
