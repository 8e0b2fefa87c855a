package errors

import "net/http"

// Code is a machine-readable error code. Values are wire-stable: they appear
// verbatim in JSON error bodies and payment challenges.
type Code string

const (
	// CodeInternal represents an unexpected internal error.
	CodeInternal Code = "internal"

	// Validation errors
	CodeInvalidRequest    Code = "invalid_request"
	CodeInvalidWallet     Code = "invalid_wallet"
	CodeInvalidAmount     Code = "invalid_amount"
	CodeInvalidNetwork    Code = "invalid_network"
	CodeNetworkNotAllowed Code = "network_not_allowed"
	CodeAssetNotAllowed   Code = "asset_not_allowed"

	// Authorization errors
	CodeUnauthenticated     Code = "unauthenticated"
	CodeForbidden           Code = "forbidden"
	CodeGuestWalletLocked   Code = "guest_wallet_locked"
	CodeGuestNotAccepted    Code = "guest_not_accepted"
	CodeGuestRevoked        Code = "guest_revoked"
	CodeBridgeNotStarted    Code = "bridge_not_started"
	CodeBridgeTicketExpired Code = "bridge_ticket_expired"

	// State conflicts
	CodeRoomNotFound       Code = "room_not_found"
	CodeRoomNotLive        Code = "room_not_live"
	CodeRoomAlreadyEnded   Code = "room_already_ended"
	CodeMaxSegmentsReached Code = "max_segments_reached"
	CodeReplayNotReady     Code = "replay_not_ready"
	CodeReplayTokenInvalid Code = "replay_token_invalid"

	// Payment errors
	CodePaymentRequired                         Code = "payment_required"
	CodeSegmentCheckoutRequired                 Code = "segment_checkout_required"
	CodeSegmentCheckoutMismatch                 Code = "segment_checkout_mismatch"
	CodePaymentSignatureReused                  Code = "payment_signature_reused"
	CodePaymentSignatureAlreadyConsumed         Code = "payment_signature_already_consumed"
	CodePaymentSettlementFailed                 Code = "payment_settlement_failed"
	CodePaymentSettlementNotExplicitlyConfirmed Code = "payment_settlement_not_explicitly_confirmed"

	// Upstream errors
	CodeFacilitatorUnreachable Code = "facilitator_unreachable"
	CodeMediaProviderFailure   Code = "media_provider_failure"
)

// HTTPStatus maps domain codes to HTTP status codes.
func (c Code) HTTPStatus() int {
	switch c {
	// Bad request - validation failures, caller must correct input
	case CodeInvalidRequest,
		CodeInvalidWallet,
		CodeInvalidAmount,
		CodeInvalidNetwork,
		CodeNetworkNotAllowed,
		CodeAssetNotAllowed:
		return http.StatusBadRequest

	case CodeUnauthenticated:
		return http.StatusUnauthorized

	// Forbidden - terminal for that credential
	case CodeForbidden,
		CodeGuestWalletLocked,
		CodeGuestNotAccepted,
		CodeGuestRevoked,
		CodeBridgeNotStarted,
		CodeBridgeTicketExpired:
		return http.StatusForbidden

	case CodeRoomNotFound:
		return http.StatusNotFound

	// Conflict - state doesn't allow the operation, caller must re-check
	case CodeRoomNotLive,
		CodeRoomAlreadyEnded,
		CodeMaxSegmentsReached,
		CodeReplayNotReady,
		CodePaymentSignatureReused,
		CodePaymentSignatureAlreadyConsumed:
		return http.StatusConflict

	case CodeReplayTokenInvalid:
		return http.StatusGone

	// Payment required - carries a fresh challenge, retried with a claim attached
	case CodePaymentRequired,
		CodeSegmentCheckoutRequired,
		CodeSegmentCheckoutMismatch,
		CodePaymentSettlementFailed,
		CodePaymentSettlementNotExplicitlyConfirmed:
		return http.StatusPaymentRequired

	// Upstream/transient - safe to retry with backoff
	case CodeFacilitatorUnreachable,
		CodeMediaProviderFailure:
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}
