package wallet

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/sudo-init-do/bundlehub/internal/paystack"
	"github.com/sudo-init-do/bundlehub/internal/utils"
)

func serve(t *testing.T, h echo.HandlerFunc, method, body string) *httptest.ResponseRecorder {
	t.Helper()
	e := echo.New()
	e.Validator = utils.NewValidator()

	req := httptest.NewRequest(method, "/", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set("user_id", "user-1")
	c.Set("email", "ama@example.com")

	require.NoError(t, h(c))
	return rec
}

func TestTopUpHandler(t *testing.T) {
	s, _ := newTestService(t, &fakeGateway{}, nil)
	h := NewHandler(s, zaptest.NewLogger(t))

	rec := serve(t, h.TopUp, http.MethodPost, `{"amount":5000}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "pending", body["status"])
	assert.Contains(t, body["checkout_url"], "https://checkout.paystack.com/wallet_topup_")
}

func TestTopUpHandlerErrors(t *testing.T) {
	s, _ := newTestService(t, &fakeGateway{}, nil)
	h := NewHandler(s, zaptest.NewLogger(t))
	assert.Equal(t, http.StatusBadRequest, serve(t, h.TopUp, http.MethodPost, `{"amount":50}`).Code)
	assert.Equal(t, http.StatusBadRequest, serve(t, h.TopUp, http.MethodPost, `{"amount":0}`).Code)

	down, _ := newTestService(t, &fakeGateway{err: &paystack.GatewayError{Op: "initialize"}}, nil)
	h = NewHandler(down, zaptest.NewLogger(t))
	assert.Equal(t, http.StatusBadGateway, serve(t, h.TopUp, http.MethodPost, `{"amount":5000}`).Code)
}

func TestBalanceHandler(t *testing.T) {
	s, _ := newTestService(t, &fakeGateway{}, nil)
	fund(t, s, "user-1", 1250)
	h := NewHandler(s, zaptest.NewLogger(t))

	rec := serve(t, h.Balance, http.MethodGet, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"user_id":"user-1","balance":1250,"display":"GHS 12.50","currency":"GHS"}`, rec.Body.String())
}
