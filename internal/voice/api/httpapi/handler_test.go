package httpapi

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/louisbranch/duetstage/internal/voice/domain"
	"github.com/louisbranch/duetstage/internal/voice/media"
	"github.com/louisbranch/duetstage/internal/voice/payment"
	"github.com/louisbranch/duetstage/internal/voice/room"
	bboltstore "github.com/louisbranch/duetstage/internal/voice/storage/bbolt"
	"github.com/louisbranch/duetstage/internal/voice/token"
)

const (
	hostWallet   = "0x1111111111111111111111111111111111111111"
	payeeWallet  = "0x3333333333333333333333333333333333333333"
	viewerWallet = "0x4444444444444444444444444444444444444444"
	assetAddr    = "0x6666666666666666666666666666666666666666"
)

type testServer struct {
	handler http.Handler
	signKey ed25519.PrivateKey
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store, err := bboltstore.Open(filepath.Join(t.TempDir(), "voice.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	issuer, err := token.NewCheckoutIssuer([]byte("checkout-secret"), 10*time.Minute, time.Now)
	if err != nil {
		t.Fatalf("checkout issuer: %v", err)
	}
	minter := media.LocalMinter{AppID: "app", Key: []byte("media-key")}
	rooms, err := room.New(store, payment.Mock{}, minter, issuer)
	if err != nil {
		t.Fatalf("room service: %v", err)
	}

	publicKey, privateKey, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	auth, err := NewAuthenticator(publicKey)
	if err != nil {
		t.Fatalf("authenticator: %v", err)
	}

	return &testServer{
		handler: New(rooms, auth, nil).Routes(),
		signKey: privateKey,
	}
}

func (s *testServer) bearer(t *testing.T, wallet string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"wallet": wallet,
		"exp":    time.Now().Add(time.Hour).Unix(),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims).SignedString(s.signKey)
	if err != nil {
		t.Fatalf("sign bearer: %v", err)
	}
	return "Bearer " + signed
}

func (s *testServer) do(t *testing.T, method, path, authorization string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func createRoomBody() map[string]any {
	return map[string]any{
		"room_id":               "room1",
		"pay_to":                payeeWallet,
		"network":               "base-sepolia",
		"asset":                 assetAddr,
		"live_amount":           "100000",
		"replay_amount":         "5000",
		"access_window_minutes": 60,
	}
}

func paymentHeaderValue(t *testing.T, from, to, value, signature string) string {
	t.Helper()
	claim := map[string]any{
		"x402Version": 1,
		"scheme":      "exact",
		"network":     "base-sepolia",
		"payload": map[string]any{
			"signature": signature,
			"authorization": map[string]any{
				"from":  from,
				"to":    to,
				"value": value,
			},
		},
	}
	raw, err := json.Marshal(claim)
	if err != nil {
		t.Fatalf("marshal claim: %v", err)
	}
	return base64.StdEncoding.EncodeToString(raw)
}

func TestCreateRequiresBearerToken(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)

	rec := server.do(t, http.MethodPost, "/duet/create", "", createRoomBody(), nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}

	rec = server.do(t, http.MethodPost, "/duet/create", "Bearer not-a-jwt", createRoomBody(), nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestCreateStartAndPaidEnterFlow(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	host := server.bearer(t, hostWallet)

	rec := server.do(t, http.MethodPost, "/duet/create", host, createRoomBody(), nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		RoomID    string `json:"room_id"`
		ChannelID string `json:"channel_id"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decode create: %v", err)
	}
	if created.ChannelID != "duet-room1" {
		t.Fatalf("channel = %q", created.ChannelID)
	}

	// Replaying the creation is not an error.
	rec = server.do(t, http.MethodPost, "/duet/create", host, createRoomBody(), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("replay create status = %d", rec.Code)
	}

	rec = server.do(t, http.MethodPost, "/duet/room1/start", host, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("start status = %d: %s", rec.Code, rec.Body.String())
	}
	var started struct {
		BridgeTicket string `json:"bridge_ticket"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &started); err != nil {
		t.Fatalf("decode start: %v", err)
	}
	if started.BridgeTicket == "" {
		t.Fatal("expected bridge ticket")
	}

	// Anonymous entry without a claim is challenged.
	rec = server.do(t, http.MethodPost, "/duet/room1/public-enter", "", nil, nil)
	if rec.Code != http.StatusPaymentRequired {
		t.Fatalf("challenge status = %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Payment-Required") == "" {
		t.Fatal("expected Payment-Required header")
	}
	var challenge struct {
		Error   string                `json:"error"`
		Accepts []payment.Requirement `json:"accepts"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &challenge); err != nil {
		t.Fatalf("decode challenge: %v", err)
	}
	if challenge.Error != "payment_required" || len(challenge.Accepts) != 1 {
		t.Fatalf("challenge = %+v", challenge)
	}
	if challenge.Accepts[0].MaxAmountRequired != "100000" || challenge.Accepts[0].PayTo != payeeWallet {
		t.Fatalf("requirement = %+v", challenge.Accepts[0])
	}

	// A matching claim on the X-Payment header settles.
	viewer := server.bearer(t, viewerWallet)
	headers := map[string]string{"X-Payment": paymentHeaderValue(t, viewerWallet, payeeWallet, "100000", "0xsig1")}
	rec = server.do(t, http.MethodPost, "/duet/room1/enter", viewer, nil, headers)
	if rec.Code != http.StatusOK {
		t.Fatalf("enter status = %d: %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("Payment-Response") == "" {
		t.Fatal("expected Payment-Response header")
	}
	var entered struct {
		Credential media.Credential `json:"credential"`
		Receipt    *room.Receipt    `json:"receipt"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &entered); err != nil {
		t.Fatalf("decode enter: %v", err)
	}
	if entered.Credential.Token == "" || entered.Receipt == nil || !entered.Receipt.Settled {
		t.Fatalf("entered = %+v", entered)
	}

	// The wallet is now entitled; re-entry needs no claim.
	rec = server.do(t, http.MethodPost, "/duet/room1/enter", viewer, nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("re-enter status = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestHeartbeatAndBridgeTokenRoutes(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	host := server.bearer(t, hostWallet)

	server.do(t, http.MethodPost, "/duet/create", host, createRoomBody(), nil)
	rec := server.do(t, http.MethodPost, "/duet/room1/start", host, nil, nil)
	var started struct {
		BridgeTicket string `json:"bridge_ticket"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &started); err != nil {
		t.Fatalf("decode start: %v", err)
	}

	beat := map[string]any{"ticket": started.BridgeTicket, "status": "live", "mode": "voice", "audio_active": true}
	rec = server.do(t, http.MethodPost, "/duet/room1/heartbeat", "", beat, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("heartbeat status = %d: %s", rec.Code, rec.Body.String())
	}
	var beatResp struct {
		Seat domain.Seat          `json:"seat"`
		View domain.BroadcastView `json:"view"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &beatResp); err != nil {
		t.Fatalf("decode heartbeat: %v", err)
	}
	if beatResp.Seat != domain.SeatHost || beatResp.View.State != domain.SeatLive {
		t.Fatalf("beat = %+v", beatResp)
	}

	rec = server.do(t, http.MethodPost, "/duet/room1/bridge-token", "", map[string]string{"ticket": started.BridgeTicket}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("bridge token status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = server.do(t, http.MethodPost, "/duet/room1/bridge-token", "", map[string]string{"ticket": "bogus"}, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("bad ticket status = %d", rec.Code)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)

	rec := server.do(t, http.MethodGet, "/duet/missing/public-info", "", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if body.Error != "room_not_found" {
		t.Fatalf("error = %q", body.Error)
	}

	rec = server.do(t, http.MethodGet, "/duet/missing/replay-source?token=abc", "", nil, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 for missing room", rec.Code)
	}
}

func TestReplaySourceTokenIsGoneAfterUse(t *testing.T) {
	t.Parallel()

	server := newTestServer(t)
	host := server.bearer(t, hostWallet)

	body := createRoomBody()
	body["replay_mode"] = "worker_gated"
	body["replay_amount"] = "0"
	server.do(t, http.MethodPost, "/duet/create", host, body, nil)

	rec := server.do(t, http.MethodPost, "/duet/room1/start", host, nil, nil)
	var started struct {
		BridgeTicket string `json:"bridge_ticket"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &started); err != nil {
		t.Fatalf("decode start: %v", err)
	}
	server.do(t, http.MethodPost, "/duet/room1/end", host, nil, nil)

	recording := map[string]string{"ticket": started.BridgeTicket, "playback_url": "https://cdn.example/replay.m3u8"}
	rec = server.do(t, http.MethodPost, "/duet/room1/recording-complete", "", recording, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("recording status = %d: %s", rec.Code, rec.Body.String())
	}

	// Zero replay price grants without a claim.
	rec = server.do(t, http.MethodPost, "/duet/room1/replay-access", "", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("replay access status = %d: %s", rec.Code, rec.Body.String())
	}
	var access struct {
		GrantToken string `json:"grant_token"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &access); err != nil {
		t.Fatalf("decode access: %v", err)
	}

	rec = server.do(t, http.MethodGet, "/duet/room1/replay-source?token="+access.GrantToken, "", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("replay source status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = server.do(t, http.MethodGet, "/duet/room1/replay-source?token="+access.GrantToken, "", nil, nil)
	if rec.Code != http.StatusGone {
		t.Fatalf("second redemption status = %d, want 410", rec.Code)
	}
}
