// Package httpapi exposes the room authority over HTTP. Payment flows follow
// the x402 header protocol: challenges ride on PAYMENT-REQUIRED, claims on
// X-PAYMENT, and settlement artifacts on PAYMENT-RESPONSE.
package httpapi

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	apperrors "github.com/louisbranch/duetstage/internal/platform/errors"
	"github.com/louisbranch/duetstage/internal/platform/requestctx"
	"github.com/louisbranch/duetstage/internal/voice/payment"
	"github.com/louisbranch/duetstage/internal/voice/room"
)

const (
	headerPayment         = "X-Payment"
	headerPaymentRequired = "Payment-Required"
	headerPaymentResponse = "Payment-Response"
)

// maxBodyBytes caps request bodies; payment claims are small.
const maxBodyBytes = 64 << 10

// Handler routes room authority requests.
type Handler struct {
	rooms *room.Service
	auth  *Authenticator
	log   *log.Logger
}

// New constructs the HTTP handler.
func New(rooms *room.Service, auth *Authenticator, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.Default()
	}
	return &Handler{rooms: rooms, auth: auth, log: logger}
}

// Routes builds the route table. Every route runs behind the wallet
// middleware; handlers that require authentication enforce it themselves.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /duet/create", h.createRoom)
	mux.HandleFunc("GET /duet/{id}/public-info", h.publicInfo)
	mux.HandleFunc("POST /duet/{id}/start", h.startRoom)
	mux.HandleFunc("POST /duet/{id}/end", h.endRoom)

	mux.HandleFunc("POST /duet/{id}/guest/accept", h.guestAccept)
	mux.HandleFunc("POST /duet/{id}/guest/start", h.guestStart)
	mux.HandleFunc("POST /duet/{id}/guest/remove", h.guestRemove)

	mux.HandleFunc("POST /duet/{id}/bridge-token", h.bridgeToken)
	mux.HandleFunc("POST /duet/{id}/heartbeat", h.heartbeat)
	mux.HandleFunc("POST /duet/{id}/recording-complete", h.recordingComplete)
	mux.HandleFunc("POST /duet/{id}/segments/start", h.startSegment)

	mux.HandleFunc("POST /duet/{id}/enter", h.enter)
	mux.HandleFunc("POST /duet/{id}/public-enter", h.publicEnter)
	mux.HandleFunc("POST /duet/{id}/replay-access", h.replayAccess)
	mux.HandleFunc("GET /duet/{id}/replay-source", h.replaySource)

	return h.withWallet(mux)
}

// withWallet verifies an optional bearer token and stashes the wallet in the
// request context. Invalid tokens fail here; absent ones pass through.
func (h *Handler) withWallet(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		wallet, err := h.auth.Wallet(r)
		if err != nil {
			h.writeError(w, r, err)
			return
		}
		if wallet != "" {
			r = r.WithContext(requestctx.WithWallet(r.Context(), wallet))
		}
		next.ServeHTTP(w, r)
	})
}

// requireWallet returns the authenticated wallet or an unauthenticated error.
func requireWallet(r *http.Request) (string, error) {
	wallet := requestctx.WalletFromContext(r.Context())
	if wallet == "" {
		return "", apperrors.New(apperrors.CodeUnauthenticated, "a wallet bearer token is required")
	}
	return wallet, nil
}

// optionalWallet returns the authenticated wallet, or empty for anonymous
// callers.
func optionalWallet(r *http.Request) string {
	return requestctx.WalletFromContext(r.Context())
}

// decode reads a JSON request body into dst. An empty body is allowed when
// dst fields are all optional; handlers validate afterwards.
func decode(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidRequest, "read request body", err)
	}
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return apperrors.Wrap(apperrors.CodeInvalidRequest, "request body is not valid json", err)
	}
	return nil
}

// paymentClaim extracts a payment claim from the X-Payment header (base64
// JSON) or, failing that, the already-decoded body field.
func paymentClaim(r *http.Request, bodyClaim json.RawMessage) ([]byte, error) {
	if header := r.Header.Get(headerPayment); header != "" {
		raw, err := base64.StdEncoding.DecodeString(header)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CodeInvalidRequest, "x-payment header is not valid base64", err)
		}
		return raw, nil
	}
	if len(bodyClaim) > 0 {
		return bodyClaim, nil
	}
	return nil, nil
}

// challengeBody is the JSON rendering of a 402 response.
type challengeBody struct {
	Error   apperrors.Code        `json:"error"`
	Reason  string                `json:"reason,omitempty"`
	Accepts []payment.Requirement `json:"accepts"`
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Printf("write response: %v", err)
	}
}

// writePaymentResponse attaches the settlement artifact as a response header
// before the body is written.
func (h *Handler) writePaymentResponse(w http.ResponseWriter, receipt *room.Receipt) {
	if receipt == nil {
		return
	}
	encoded, err := json.Marshal(receipt)
	if err != nil {
		h.log.Printf("encode payment response: %v", err)
		return
	}
	w.Header().Set(headerPaymentResponse, base64.StdEncoding.EncodeToString(encoded))
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if challenge, ok := room.AsChallenge(err); ok {
		body := challengeBody{Error: challenge.Code, Reason: challenge.Reason, Accepts: challenge.Accepts}
		if encoded, err := json.Marshal(body); err == nil {
			w.Header().Set(headerPaymentRequired, base64.StdEncoding.EncodeToString(encoded))
		}
		h.writeJSON(w, http.StatusPaymentRequired, body)
		return
	}

	code := apperrors.GetCode(err)
	status := code.HTTPStatus()
	message := "internal error"
	var coded *apperrors.Error
	if errors.As(err, &coded) && code != apperrors.CodeInternal {
		message = coded.Message
	}
	if status >= http.StatusInternalServerError {
		h.log.Printf("%s %s: %v", r.Method, r.URL.Path, err)
	}
	h.writeJSON(w, status, map[string]any{"error": code, "message": message})
}
