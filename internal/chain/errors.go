package chain

import (
	"errors"
	"strings"
)

// Kind buckets every failure the engines can see into the categories the
// notification layer understands. Classification is by kind, never by raw
// error text, so UI messages stay stable across RPC providers.
type Kind string

const (
	KindUnknown               Kind = "unknown"
	KindUserRejected          Kind = "user_rejected"
	KindInsufficientFunds     Kind = "insufficient_funds"
	KindInsufficientAllowance Kind = "insufficient_allowance"
	KindInsufficientBalance   Kind = "insufficient_balance"
	KindNetworkTransient      Kind = "network_transient"
	KindContractReverted      Kind = "contract_reverted"
	KindOperationInProgress   Kind = "operation_in_progress"
	KindTimeout               Kind = "timeout"
	KindUnsupportedNetwork    Kind = "unsupported_network"
)

// Error is a classified chain error. Reason carries the extracted revert
// string when the contract supplied one.
type Error struct {
	Kind    Kind
	Message string
	Reason  string
	cause   error
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return e.Message + ": " + e.Reason
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.cause
}

func NewError(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func wrapError(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, cause: cause}
}

var (
	ErrOperationInProgress = NewError(KindOperationInProgress, "another operation is already in progress")
	ErrUnsupportedNetwork  = NewError(KindUnsupportedNetwork, "connected chain is not supported")
)

// KindOf extracts the classified kind from an error chain, running the raw
// pattern classifier when no *Error is present.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return Classify(err).Kind
}

// IsTransient reports whether the error is worth retrying.
func IsTransient(err error) bool {
	return KindOf(err) == KindNetworkTransient
}

// Classify maps a raw RPC/provider error onto the taxonomy. Pattern lists
// collected from the error texts geth-lineage nodes and wallet providers
// actually emit.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var ce *Error
	if errors.As(err, &ce) {
		return ce
	}

	msg := strings.ToLower(err.Error())

	switch {
	case containsAny(msg,
		"user denied", "user rejected", "action_rejected", "rejected by user"):
		return wrapError(KindUserRejected, "signing request was declined", err)

	case containsAny(msg,
		"insufficient funds for gas", "insufficient funds for transfer", "gas required exceeds allowance"):
		return wrapError(KindInsufficientFunds, "not enough gas currency to submit", err)

	case containsAny(msg, "insufficient allowance", "erc20: transfer amount exceeds allowance"):
		return wrapError(KindInsufficientAllowance, "token allowance too low, approve first", err)

	case containsAny(msg, "transfer amount exceeds balance", "insufficient balance"):
		return wrapError(KindInsufficientBalance, "token balance too low for this bet", err)

	case containsAny(msg,
		"timeout", "timed out", "deadline exceeded", "rate limit", "too many requests",
		"missing response", "connection refused", "connection reset", "broken pipe",
		"eof", "no such host", "network is unreachable", "dial tcp", "503", "502"):
		return wrapError(KindNetworkTransient, "network request failed", err)

	case containsAny(msg, "execution reverted", "revert"):
		e := wrapError(KindContractReverted, "contract rejected the call", err)
		e.Reason = extractRevertReason(err)
		return e
	}

	return wrapError(KindUnknown, "unexpected chain error", err)
}

// extractRevertReason pulls the human-readable revert string out of the error
// text when present. Geth formats it as `execution reverted: <reason>`.
func extractRevertReason(err error) string {
	msg := err.Error()
	const marker = "execution reverted"
	idx := strings.Index(strings.ToLower(msg), marker)
	if idx < 0 {
		return ""
	}
	rest := msg[idx+len(marker):]
	rest = strings.TrimLeft(rest, ": ")
	return strings.TrimSpace(rest)
}

func containsAny(s string, patterns ...string) bool {
	for _, p := range patterns {
		if strings.Contains(s, p) {
			return true
		}
	}
	return false
}
