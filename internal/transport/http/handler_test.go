package http

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/potanshop/topup-admin/internal/config"
	"github.com/potanshop/topup-admin/internal/model"
	"github.com/potanshop/topup-admin/internal/repo"
	"github.com/potanshop/topup-admin/internal/service"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func newTestRouter(t *testing.T, rl config.RateLimitConfig) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, repo.Migrate(db))

	require.NoError(t, db.Create(&model.AdminWallet{ID: "A1", Name: "Alice", RechargeBalance: decimal.NewFromInt(100)}).Error)
	require.NoError(t, db.Create(&model.UserWallet{ID: "U1", Name: "Bob", Balance: decimal.NewFromInt(50), TotalBalance: decimal.NewFromInt(500)}).Error)
	require.NoError(t, db.Create(&model.Order{ID: "o1", UserID: "U1", Amount: decimal.NewFromInt(20), Status: model.OrderPending}).Error)

	log := zap.NewNop().Sugar()
	r := repo.NewRepository(db, nil, nil, time.Minute, log)
	svcs := Services{
		Transfers: service.NewTransferService(r, config.TransferConfig{MaxRetries: 2, RetryBackoff: time.Millisecond}, log),
		Queries:   service.NewQueryService(r, log),
		Orders:    service.NewOrderService(r, log),
	}
	return NewRouter(svcs, rl, log), db
}

var generousLimit = config.RateLimitConfig{RPS: 1000, Burst: 1000}

func do(t *testing.T, router *gin.Engine, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var out map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &out)
	return w, out
}

func TestTopUp_Created(t *testing.T) {
	router, db := newTestRouter(t, generousLimit)

	w, out := do(t, router, http.MethodPost, "/v1/topups", `{"admin_id":"A1","user_id":"U1","amount":30,"remark":"promo"}`)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "30", out["amount"])
	assert.Equal(t, "100", out["admin_balance_before"])
	assert.Equal(t, "70", out["admin_balance_after"])
	assert.Equal(t, "promo", out["remark"])

	var u model.UserWallet
	require.NoError(t, db.First(&u, "id = ?", "U1").Error)
	assert.True(t, u.Balance.Equal(decimal.NewFromInt(80)))
}

func TestTopUp_ErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"zero amount", `{"admin_id":"A1","user_id":"U1","amount":0}`, http.StatusBadRequest, "invalid_amount"},
		{"string amount", `{"admin_id":"A1","user_id":"U1","amount":"abc"}`, http.StatusBadRequest, "invalid_amount"},
		{"nan amount", `{"admin_id":"A1","user_id":"U1","amount":"NaN"}`, http.StatusBadRequest, "invalid_amount"},
		{"missing admin", `{"admin_id":"missing","user_id":"U1","amount":10}`, http.StatusNotFound, "admin_not_found"},
		{"missing user", `{"admin_id":"A1","user_id":"missing","amount":10}`, http.StatusNotFound, "user_not_found"},
		{"overdraw", `{"admin_id":"A1","user_id":"U1","amount":150}`, http.StatusConflict, "insufficient_admin_balance"},
		{"bad body", `{"admin_id":"A1"}`, http.StatusBadRequest, "bad_request"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router, db := newTestRouter(t, generousLimit)

			w, out := do(t, router, http.MethodPost, "/v1/topups", tc.body)
			assert.Equal(t, tc.status, w.Code, w.Body.String())
			assert.Equal(t, tc.code, out["error"])

			var n int64
			require.NoError(t, db.Model(&model.TopUpRecord{}).Count(&n).Error)
			assert.Zero(t, n)
		})
	}
}

func TestTopUp_IdempotencyHeader(t *testing.T) {
	router, db := newTestRouter(t, generousLimit)
	body := `{"admin_id":"A1","user_id":"U1","amount":"12.5"}`

	send := func() (int, map[string]any) {
		req := httptest.NewRequest(http.MethodPost, "/v1/topups", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", "k-1")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		var out map[string]any
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
		return w.Code, out
	}

	code1, first := send()
	code2, second := send()
	require.Equal(t, http.StatusCreated, code1)
	require.Equal(t, http.StatusCreated, code2)
	assert.Equal(t, first["id"], second["id"])

	var a model.AdminWallet
	require.NoError(t, db.First(&a, "id = ?", "A1").Error)
	assert.True(t, a.RechargeBalance.Equal(decimal.RequireFromString("87.5")))
}

func TestListsAndSummary(t *testing.T) {
	router, _ := newTestRouter(t, generousLimit)

	w, _ := do(t, router, http.MethodPost, "/v1/topups", `{"admin_id":"A1","user_id":"U1","amount":5}`)
	require.Equal(t, http.StatusCreated, w.Code)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/topups?user_id=U1&limit=10", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var recs []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &recs))
	assert.Len(t, recs, 1)

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/activity-logs?type=top-up", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var logs []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &logs))
	require.Len(t, logs, 1)
	assert.Equal(t, "top-up", logs[0]["activity_type"])

	w, _ = do(t, router, http.MethodGet, "/v1/activity-logs?type=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = do(t, router, http.MethodGet, "/v1/topups?since=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = do(t, router, http.MethodGet, "/v1/topups?limit=-1", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, out := do(t, router, http.MethodGet, "/v1/dashboard/summary", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(1), out["top_up_count"])
	assert.Equal(t, "5", out["total_top_ups"])
}

func TestWalletEndpoints(t *testing.T) {
	router, _ := newTestRouter(t, generousLimit)

	w, out := do(t, router, http.MethodGet, "/v1/admins/A1/wallet", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "100", out["recharge_balance"])

	w, out = do(t, router, http.MethodGet, "/v1/users/U1/balance", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "50", out["balance"])

	w, out = do(t, router, http.MethodGet, "/v1/users/ghost/wallet", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "user_not_found", out["error"])
}

func TestUserAndOrderListings(t *testing.T) {
	router, _ := newTestRouter(t, generousLimit)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/users?limit=10", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var users []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &users))
	require.Len(t, users, 1)
	assert.Equal(t, "U1", users[0]["id"])

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/orders?status=pending&user_id=U1", nil))
	require.Equal(t, http.StatusOK, w.Code)
	var orders []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &orders))
	require.Len(t, orders, 1)
	assert.Equal(t, "o1", orders[0]["id"])

	w, _ = do(t, router, http.MethodGet, "/v1/orders?status=shipped", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, out := do(t, router, http.MethodGet, "/v1/orders/o1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pending", out["status"])
	assert.Equal(t, "20", out["amount"])

	w, out = do(t, router, http.MethodGet, "/v1/orders/o404", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "order_not_found", out["error"])
}

func TestOrderStatus(t *testing.T) {
	router, _ := newTestRouter(t, generousLimit)

	w, out := do(t, router, http.MethodPatch, "/v1/orders/o1/status", `{"admin_id":"A1","status":"refunded"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "refunded", out["status"])

	w, out = do(t, router, http.MethodPatch, "/v1/orders/o1/status", `{"admin_id":"A1","status":"lost"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_order_status", out["error"])

	w, out = do(t, router, http.MethodPatch, "/v1/orders/o404/status", `{"admin_id":"A1","status":"failed"}`)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "order_not_found", out["error"])
}

func TestRateLimit(t *testing.T) {
	router, _ := newTestRouter(t, config.RateLimitConfig{RPS: 1, Burst: 1})

	w, _ := do(t, router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, out := do(t, router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "rate_limited", out["error"])
}
