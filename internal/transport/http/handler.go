package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/potanshop/topup-admin/internal/model"
	"github.com/potanshop/topup-admin/internal/service"
)

func RegisterHandlers(r *gin.Engine, svcs Services) {
	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	v1 := r.Group("/v1")
	{
		v1.POST("/topups", topUpHandler(svcs.Transfers))
		v1.GET("/topups", listTopUpsHandler(svcs.Queries))
		v1.GET("/activity-logs", listActivityHandler(svcs.Queries))
		v1.GET("/admins/:id/wallet", adminWalletHandler(svcs.Queries))
		v1.GET("/admins/:id/balance", balanceHandler(svcs.Queries, service.AdminWalletKind))
		v1.GET("/users", listUsersHandler(svcs.Queries))
		v1.GET("/users/:id/wallet", userWalletHandler(svcs.Queries))
		v1.GET("/users/:id/balance", balanceHandler(svcs.Queries, service.UserWalletKind))
		v1.GET("/orders", listOrdersHandler(svcs.Queries))
		v1.GET("/orders/:id", orderHandler(svcs.Queries))
		v1.PATCH("/orders/:id/status", orderStatusHandler(svcs.Orders))
		v1.GET("/dashboard/summary", summaryHandler(svcs.Queries))
	}
}

// writeError maps service errors to a status and a stable error code.
// Store failures get a fixed message; their cause is only logged.
func writeError(c *gin.Context, err error) {
	status, code, msg := http.StatusInternalServerError, "internal_error", "internal error"
	switch {
	case errors.Is(err, service.ErrInvalidAmount):
		status, code, msg = http.StatusBadRequest, "invalid_amount", err.Error()
	case errors.Is(err, service.ErrInvalidOrderStatus):
		status, code, msg = http.StatusBadRequest, "invalid_order_status", err.Error()
	case errors.Is(err, service.ErrAdminNotFound):
		status, code, msg = http.StatusNotFound, "admin_not_found", err.Error()
	case errors.Is(err, service.ErrUserNotFound):
		status, code, msg = http.StatusNotFound, "user_not_found", err.Error()
	case errors.Is(err, service.ErrOrderNotFound):
		status, code, msg = http.StatusNotFound, "order_not_found", err.Error()
	case errors.Is(err, service.ErrInsufficientAdminBalance):
		status, code, msg = http.StatusConflict, "insufficient_admin_balance", err.Error()
	case errors.Is(err, service.ErrReconciliationRequired):
		status, code, msg = http.StatusInternalServerError, "reconciliation_required",
			"transfer outcome unknown; do not resubmit until balances are reconciled"
	case errors.Is(err, service.ErrPersistence):
		status, code, msg = http.StatusServiceUnavailable, "persistence_failure",
			"storage unavailable; no funds were moved, the same request may be retried"
	}
	_ = c.Error(err)
	c.JSON(status, gin.H{"error": code, "message": msg})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": "bad_request", "message": msg})
}

type topUpReq struct {
	AdminID        string          `json:"admin_id" binding:"required"`
	UserID         string          `json:"user_id" binding:"required"`
	Amount         json.RawMessage `json:"amount" binding:"required"`
	Remark         string          `json:"remark" binding:"max=500"`
	IdempotencyKey string          `json:"idempotency_key" binding:"max=64"`
}

func topUpHandler(svc *service.TransferService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req topUpReq
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		amt, err := service.ParseAmount(req.Amount)
		if err != nil {
			writeError(c, err)
			return
		}
		key := req.IdempotencyKey
		if key == "" {
			key = c.GetHeader("Idempotency-Key")
		}
		rec, err := svc.Transfer(c.Request.Context(), service.TransferRequest{
			AdminID:        req.AdminID,
			UserID:         req.UserID,
			Amount:         amt,
			Remark:         req.Remark,
			IdempotencyKey: key,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, rec)
	}
}

// parseWindow reads the optional since (RFC3339) and limit query parameters.
func parseWindow(c *gin.Context) (time.Time, int, bool) {
	var since time.Time
	if s := c.Query("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			badRequest(c, "invalid since")
			return since, 0, false
		}
		since = t
	}
	limit := 0
	if l := c.Query("limit"); l != "" {
		n, err := strconv.Atoi(l)
		if err != nil || n < 0 {
			badRequest(c, "invalid limit")
			return since, 0, false
		}
		limit = n
	}
	return since, limit, true
}

func listTopUpsHandler(svc *service.QueryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		since, limit, ok := parseWindow(c)
		if !ok {
			return
		}
		recs, err := svc.TopUps(c.Request.Context(), service.TopUpFilter{
			AdminID: c.Query("admin_id"),
			UserID:  c.Query("user_id"),
			Since:   since,
			Limit:   limit,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, recs)
	}
}

func listActivityHandler(svc *service.QueryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		since, limit, ok := parseWindow(c)
		if !ok {
			return
		}
		typ := model.ActivityType(c.Query("type"))
		if typ != "" && !typ.Valid() {
			badRequest(c, "invalid type")
			return
		}
		logs, err := svc.ActivityLogs(c.Request.Context(), service.ActivityFilter{
			AdminID: c.Query("admin_id"),
			Type:    typ,
			Since:   since,
			Limit:   limit,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, logs)
	}
}

func listUsersHandler(svc *service.QueryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		since, limit, ok := parseWindow(c)
		if !ok {
			return
		}
		users, err := svc.Users(c.Request.Context(), service.UserFilter{Since: since, Limit: limit})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, users)
	}
}

func listOrdersHandler(svc *service.QueryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		since, limit, ok := parseWindow(c)
		if !ok {
			return
		}
		status := model.OrderStatus(c.Query("status"))
		if status != "" && !status.Valid() {
			badRequest(c, "invalid status")
			return
		}
		orders, err := svc.Orders(c.Request.Context(), service.OrderFilter{
			UserID: c.Query("user_id"),
			Status: status,
			Since:  since,
			Limit:  limit,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, orders)
	}
}

func orderHandler(svc *service.QueryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		o, err := svc.Order(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, o)
	}
}

func adminWalletHandler(svc *service.QueryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		a, err := svc.AdminWallet(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, a)
	}
}

func userWalletHandler(svc *service.QueryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := svc.UserWallet(c.Request.Context(), c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, u)
	}
}

func balanceHandler(svc *service.QueryService, kind service.WalletKind) gin.HandlerFunc {
	return func(c *gin.Context) {
		bal, err := svc.Balance(c.Request.Context(), kind, c.Param("id"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": c.Param("id"), "balance": bal})
	}
}

type orderStatusReq struct {
	AdminID string `json:"admin_id" binding:"required"`
	Status  string `json:"status" binding:"required"`
}

func orderStatusHandler(svc *service.OrderService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req orderStatusReq
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
		o, err := svc.UpdateStatus(c.Request.Context(), req.AdminID, c.Param("id"), model.OrderStatus(req.Status))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, o)
	}
}

func summaryHandler(svc *service.QueryService) gin.HandlerFunc {
	return func(c *gin.Context) {
		sum, err := svc.Summary(c.Request.Context())
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, sum)
	}
}
