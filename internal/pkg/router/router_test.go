package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/ArtFox/app/controllers"
	"github.com/ManuelReschke/ArtFox/internal/pkg/billing"
	"github.com/ManuelReschke/ArtFox/internal/pkg/credits"
	"github.com/ManuelReschke/ArtFox/internal/pkg/generation"
	"github.com/ManuelReschke/ArtFox/internal/pkg/guard"
	"github.com/ManuelReschke/ArtFox/internal/pkg/orders"
	"github.com/ManuelReschke/ArtFox/internal/pkg/usercontext"
)

const (
	testInternalKey     = "internal-secret"
	testNotificationURL = "https://artfox.example/api/v1/webhooks/payment"
	testSigningKey      = "signing-key"
)

type stubProvider struct {
	err error
}

func (p *stubProvider) Generate(_ context.Context, req generation.ProviderRequest) (*generation.ProviderResult, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &generation.ProviderResult{ImageURL: "https://cdn.example/" + req.ProjectID + ".jpg", Model: "stub"}, nil
}

type testServer struct {
	app      *fiber.App
	ledger   *credits.Ledger
	state    *orders.State
	provider *stubProvider
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWithOptions(t, Options{InternalAPIKey: testInternalKey})
}

func newTestServerWithOptions(t *testing.T, opts Options) *testServer {
	t.Helper()
	ledger := credits.NewLedger(credits.Config{FreeCredits: 3, MaxPurchaseCredits: 100}, nil, credits.EmptyDocument())
	state := orders.NewState(nil, orders.DefaultProcessedEventsCap, orders.EmptyDocument())
	verifier := billing.NewSignatureVerifier(testNotificationURL, []string{testSigningKey})
	reconciler := billing.NewReconciler(verifier, state, nil, nil)
	provider := &stubProvider{}
	generator := generation.NewService(ledger, guard.NewLocalGuard(), provider, 256)

	app := fiber.New(fiber.Config{Immutable: true})
	InstallRouter(app, controllers.NewHandler(ledger, state, reconciler, generator), opts)
	return &testServer{app: app, ledger: ledger, state: state, provider: provider}
}

func (s *testServer) do(t *testing.T, method, path, userID string, body any, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if userID != "" {
		req.Header.Set(usercontext.HeaderUserID, userID)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return s.send(t, req)
}

func (s *testServer) send(t *testing.T, req *http.Request) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

func pngUpload(t *testing.T, projectID string) *http.Request {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 64, 48))
	for x := 0; x < 64; x++ {
		for y := 0; y < 48; y++ {
			img.Set(x, y, color.NRGBA{R: uint8(x * 4), G: uint8(y * 5), B: 120, A: 255})
		}
	}
	var imgBuf bytes.Buffer
	require.NoError(t, png.Encode(&imgBuf, img))

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	require.NoError(t, mw.WriteField("projectId", projectID))
	require.NoError(t, mw.WriteField("style", "watercolor"))
	fw, err := mw.CreateFormFile("image", "pet.png")
	require.NoError(t, err)
	_, err = fw.Write(imgBuf.Bytes())
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(fiber.MethodPost, "/api/v1/generate", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)
	resp, body := s.do(t, fiber.MethodGet, "/health", "", nil, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestCredits_RequireUser(t *testing.T) {
	s := newTestServer(t)
	resp, _ := s.do(t, fiber.MethodGet, "/api/v1/credits", "", nil, nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestCredits_SetupRequiredThenInit(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, fiber.MethodGet, "/api/v1/credits", "user-1", nil, nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "setup_required", body["action"])

	resp, body = s.do(t, fiber.MethodPost, "/api/v1/credits/init", "user-1", nil, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 3, body["freeRemaining"])
	assert.EqualValues(t, 3, body["remaining"])

	resp, body = s.do(t, fiber.MethodGet, "/api/v1/credits/transactions", "user-1", nil, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	txs, ok := body["transactions"].([]any)
	require.True(t, ok)
	assert.Len(t, txs, 1)
}

func TestCredits_UserKeptAcrossRequests(t *testing.T) {
	s := newTestServer(t)

	resp, _ := s.do(t, fiber.MethodPost, "/api/v1/credits/init", "user-aaaa", nil, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	for i := 0; i < 3; i++ {
		resp, _ = s.do(t, fiber.MethodGet, "/api/v1/credits", "user-zzzz", nil, nil)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	}

	resp, body := s.do(t, fiber.MethodGet, "/api/v1/credits", "user-aaaa", nil, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "user-aaaa", body["userId"])

	bal, ok := s.ledger.GetBalance("user-aaaa")
	require.True(t, ok)
	assert.Equal(t, "user-aaaa", bal.UserID)
	_, ok = s.ledger.GetBalance("user-zzzz")
	assert.False(t, ok)
}

func TestApi_RateLimit(t *testing.T) {
	s := newTestServerWithOptions(t, Options{InternalAPIKey: testInternalKey, RateLimit: 2})

	for i := 0; i < 2; i++ {
		resp, _ := s.do(t, fiber.MethodGet, "/api/v1/credits", "user-1", nil, nil)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	}
	resp, err := s.app.Test(httptest.NewRequest(fiber.MethodGet, "/api/v1/credits", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusTooManyRequests, resp.StatusCode)

	resp, _ = s.do(t, fiber.MethodGet, "/health", "", nil, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestCredits_PurchaseNeedsInternalKey(t *testing.T) {
	s := newTestServer(t)
	purchase := map[string]any{"userId": "user-1", "amount": 5, "referenceId": "checkout-1"}

	resp, _ := s.do(t, fiber.MethodPost, "/api/v1/credits/purchase", "user-1", purchase, nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	auth := map[string]string{"X-API-Key": testInternalKey}
	resp, body := s.do(t, fiber.MethodPost, "/api/v1/credits/purchase", "", purchase, auth)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	balance := body["balance"].(map[string]any)
	assert.EqualValues(t, 3, balance["freeRemaining"])
	assert.EqualValues(t, 5, balance["paidRemaining"])

	// Retried confirmation does not credit twice.
	resp, body = s.do(t, fiber.MethodPost, "/api/v1/credits/purchase", "", purchase, auth)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	balance = body["balance"].(map[string]any)
	assert.EqualValues(t, 5, balance["paidRemaining"])

	resp, _ = s.do(t, fiber.MethodPost, "/api/v1/credits/purchase", "",
		map[string]any{"userId": "user-1", "amount": 101, "referenceId": "checkout-2"}, auth)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestGenerate_ChargesAndRunsOut(t *testing.T) {
	s := newTestServer(t)

	req := pngUpload(t, "proj-0")
	req.Header.Set(usercontext.HeaderUserID, "user-1")
	resp, body := s.send(t, req)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "setup_required", body["action"])

	_, err := s.ledger.Initialize("user-1")
	require.NoError(t, err)

	for i, want := range []float64{2, 1, 0} {
		req := pngUpload(t, "proj-"+string(rune('a'+i)))
		req.Header.Set(usercontext.HeaderUserID, "user-1")
		resp, body := s.send(t, req)
		require.Equal(t, fiber.StatusOK, resp.StatusCode, body)
		assert.Equal(t, want, body["creditsRemaining"])
	}

	req = pngUpload(t, "proj-z")
	req.Header.Set(usercontext.HeaderUserID, "user-1")
	resp, body = s.send(t, req)
	assert.Equal(t, fiber.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, "buy_credits", body["action"])
}

func TestGenerate_ProviderFailureChargesNothing(t *testing.T) {
	s := newTestServer(t)
	_, err := s.ledger.Initialize("user-1")
	require.NoError(t, err)
	s.provider.err = errors.New("upstream timeout")

	req := pngUpload(t, "proj-1")
	req.Header.Set(usercontext.HeaderUserID, "user-1")
	resp, _ := s.send(t, req)
	assert.Equal(t, fiber.StatusBadGateway, resp.StatusCode)

	bal, ok := s.ledger.GetBalance("user-1")
	require.True(t, ok)
	assert.Equal(t, 3, bal.FreeRemaining)
}

func TestGenerate_MissingImage(t *testing.T) {
	s := newTestServer(t)
	resp, _ := s.do(t, fiber.MethodPost, "/api/v1/generate", "user-1", map[string]any{"projectId": "p"}, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func sampleOrderBody(id string) map[string]any {
	return map[string]any{
		"orderId":     id,
		"totalAmount": 4900,
		"couponCode":  "SPRING10",
		"items": []map[string]any{
			{"productId": "poster-a3", "projectId": "proj-1", "format": "poster", "quantity": 1, "unitPrice": 4900},
		},
	}
}

func TestOrders_CreateListGet(t *testing.T) {
	s := newTestServer(t)

	resp, body := s.do(t, fiber.MethodPost, "/api/v1/orders", "user-1", sampleOrderBody("order-1"), nil)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)
	assert.Equal(t, "PENDING", body["status"])
	assert.Equal(t, "user-1", body["userId"])
	assert.Equal(t, false, body["couponUsed"])

	resp, _ = s.do(t, fiber.MethodPost, "/api/v1/orders", "user-1", sampleOrderBody("order-1"), nil)
	assert.Equal(t, fiber.StatusConflict, resp.StatusCode)

	resp, body = s.do(t, fiber.MethodGet, "/api/v1/orders", "user-1", nil, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Len(t, body["orders"], 1)

	resp, _ = s.do(t, fiber.MethodGet, "/api/v1/orders/order-1", "user-1", nil, nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, _ = s.do(t, fiber.MethodGet, "/api/v1/orders/order-1", "user-2", nil, nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestOrders_CreateValidation(t *testing.T) {
	s := newTestServer(t)

	resp, _ := s.do(t, fiber.MethodPost, "/api/v1/orders", "user-1", map[string]any{"orderId": "order-1"}, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	bad := sampleOrderBody("order-2")
	bad["items"] = []map[string]any{{"productId": "poster-a3", "quantity": 0}}
	resp, _ = s.do(t, fiber.MethodPost, "/api/v1/orders", "user-1", bad, nil)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestOrders_ConfirmPayment(t *testing.T) {
	s := newTestServer(t)
	auth := map[string]string{"Authorization": "Bearer " + testInternalKey}

	resp, _ := s.do(t, fiber.MethodPost, "/api/v1/orders/missing/confirm", "", map[string]any{"status": "COMPLETED"}, auth)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)

	resp, _ = s.do(t, fiber.MethodPost, "/api/v1/orders", "user-1", sampleOrderBody("order-1"), nil)
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp, body := s.do(t, fiber.MethodPost, "/api/v1/orders/order-1/confirm", "", map[string]any{"paymentId": "pay-1", "status": "completed"}, auth)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, "COMPLETED", body["status"])
	assert.Equal(t, true, body["applied"])

	// A late APPROVED never moves a completed order back.
	resp, body = s.do(t, fiber.MethodPost, "/api/v1/orders/order-1/confirm", "", map[string]any{"status": "APPROVED"}, auth)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["applied"])

	order, ok := s.state.Get("order-1")
	require.True(t, ok)
	assert.Equal(t, "COMPLETED", order.Status)
	assert.Equal(t, "pay-1", order.PaymentID)
}

func signedWebhook(payload string, signature string) *http.Request {
	req := httptest.NewRequest(fiber.MethodPost, "/api/v1/webhooks/payment", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if signature != "" {
		req.Header.Set(billing.SignatureHeader, signature)
	}
	return req
}

func TestWebhook_SignatureAndDuplicate(t *testing.T) {
	s := newTestServer(t)
	payload := `{"event_id":"evt-1","type":"payment.updated","data":{"object":{"payment":{"id":"pay-1","order_id":"order-9","status":"APPROVED"}}}}`

	resp, _ := s.send(t, signedWebhook(payload, ""))
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, _ = s.send(t, signedWebhook(payload, billing.SignBase64(testNotificationURL, []byte(payload), "wrong-key")))
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
	assert.False(t, s.state.HasProcessed("evt-1"))

	sig := billing.SignBase64(testNotificationURL, []byte(payload), testSigningKey)
	resp, body := s.send(t, signedWebhook(payload, sig))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, false, body["duplicate"])
	assert.Equal(t, "APPROVED", body["status"])

	resp, body = s.send(t, signedWebhook(payload, sig))
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["duplicate"])

	order, ok := s.state.Get("order-9")
	require.True(t, ok)
	assert.Equal(t, "APPROVED", order.Status)
}

func TestWebhook_InvalidPayload(t *testing.T) {
	s := newTestServer(t)
	payload := `{not json`
	sig := billing.SignBase64(testNotificationURL, []byte(payload), testSigningKey)

	resp, _ := s.send(t, signedWebhook(payload, sig))
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestStats_CountsWebhooks(t *testing.T) {
	s := newTestServer(t)
	payload := `{"event_id":"evt-7","type":"payment.updated","data":{"object":{"payment":{"id":"pay-7","order_id":"order-7","status":"COMPLETED"}}}}`
	sig := billing.SignBase64(testNotificationURL, []byte(payload), testSigningKey)
	s.send(t, signedWebhook(payload, sig))
	s.send(t, signedWebhook(payload, sig))
	s.send(t, signedWebhook(payload, "bad"))

	resp, _ := s.do(t, fiber.MethodGet, "/api/v1/internal/stats", "", nil, nil)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, body := s.do(t, fiber.MethodGet, "/api/v1/internal/stats", "", nil, map[string]string{"X-API-Key": testInternalKey})
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	counters := body["counters"].(map[string]any)
	assert.EqualValues(t, 1, counters["webhooks_applied"])
	assert.EqualValues(t, 1, counters["webhooks_duplicate"])
	assert.EqualValues(t, 1, counters["webhooks_rejected"])
	_, hasJobs := body["jobs"]
	assert.False(t, hasJobs)
}
