package http

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/leozhang2048/ledger-service/internal/metrics"
	"github.com/leozhang2048/ledger-service/internal/model"
	"github.com/leozhang2048/ledger-service/internal/money"
	"github.com/leozhang2048/ledger-service/internal/repo"
	"github.com/leozhang2048/ledger-service/internal/service"
)

func RegisterHandlers(r *gin.Engine, svc *service.LedgerService) {
	v1 := r.Group("/v1")
	{
		v1.POST("/transactions", createTransactionHandler(svc))
		v1.GET("/users/:id/balance", balanceHandler(svc))
		v1.GET("/users/:id/transactions", historyHandler(svc))
	}
}

type createTransactionReq struct {
	TransactionID string `json:"transactionId" binding:"required,uuid"`
	UserID        string `json:"userId" binding:"required,uuid"`
	Amount        string `json:"amount" binding:"required"`
	Type          string `json:"type" binding:"required,oneof=deposit withdraw"`
}

type transactionResp struct {
	TransactionID string `json:"transactionId"`
	UserID        string `json:"userId"`
	AmountCents   int64  `json:"amountCents"`
	Type          string `json:"type"`
	BalanceCents  int64  `json:"balanceCents"`
	CreatedAt     string `json:"createdAt"`
	Flagged       bool   `json:"flagged"`
}

func createTransactionHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createTransactionReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		result, err := svc.Process(c.Request.Context(), service.ProcessRequest{
			TransactionID: req.TransactionID,
			UserID:        req.UserID,
			Amount:        req.Amount,
			Type:          req.Type,
		})
		if err != nil {
			metrics.TransactionsFailed.Inc()
			writeError(c, err)
			return
		}
		metrics.TransactionsTotal.WithLabelValues(result.Transaction.Type).Inc()
		c.JSON(http.StatusOK, transactionResp{
			TransactionID: result.Transaction.TransactionID,
			UserID:        result.Transaction.UserID,
			AmountCents:   result.Transaction.AmountCents,
			Type:          result.Transaction.Type,
			BalanceCents:  result.BalanceCents,
			CreatedAt:     result.Transaction.CreatedAt.UTC().Format(time.RFC3339Nano),
			Flagged:       result.Flagged,
		})
	}
}

func balanceHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("id")
		if _, err := uuid.Parse(userID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}
		cents, err := svc.GetBalance(c.Request.Context(), userID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"userId": userID, "balanceCents": cents})
	}
}

func historyHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := c.Param("id")
		if _, err := uuid.Parse(userID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
			return
		}
		limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(service.DefaultHistoryLimit)))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		var before *time.Time
		if raw := c.Query("before"); raw != "" {
			t, err := time.Parse(time.RFC3339, raw)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "invalid before"})
				return
			}
			before = &t
		}
		txs, err := svc.GetHistory(c.Request.Context(), userID, limit, before)
		if err != nil {
			writeError(c, err)
			return
		}
		if txs == nil {
			txs = []model.Transaction{}
		}
		c.JSON(http.StatusOK, gin.H{"transactions": txs})
	}
}

// writeError keeps the client-facing error surface small: recognized business
// rejections map to 4xx, everything else is an internal fault.
func writeError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, money.ErrInvalidAmountFormat),
		errors.Is(err, money.ErrNonPositiveAmount),
		errors.Is(err, service.ErrInvalidTransactionType),
		errors.Is(err, repo.ErrInsufficientFunds):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, repo.ErrDuplicateTransaction):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
