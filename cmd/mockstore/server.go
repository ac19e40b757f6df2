package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	transactionPath = "/api/v3/store/transaction/update"
	apiKeyHeader    = "X-API-Key"
)

// store holds pending transactions per player until they are claimed.
type store struct {
	sync.Mutex
	pending map[string][]json.RawMessage
}

func newStore() *store {
	return &store{pending: make(map[string][]json.RawMessage)}
}

// loadFixtures queues transactions from a JSON object keyed by player name.
func (s *store) loadFixtures(data []byte) (int, error) {
	var fixtures map[string][]json.RawMessage
	if err := json.Unmarshal(data, &fixtures); err != nil {
		return 0, fmt.Errorf("decode fixtures: %w", err)
	}
	queued := 0
	for player, transactions := range fixtures {
		queued += s.enqueue(player, transactions)
	}
	return queued, nil
}

func (s *store) enqueue(player string, transactions []json.RawMessage) int {
	s.Lock()
	defer s.Unlock()
	s.pending[player] = append(s.pending[player], transactions...)
	return len(s.pending[player])
}

// take returns and forgets everything pending for player. The result is never nil.
func (s *store) take(player string) []json.RawMessage {
	s.Lock()
	defer s.Unlock()
	transactions := s.pending[player]
	delete(s.pending, player)
	if transactions == nil {
		transactions = []json.RawMessage{}
	}
	return transactions
}

type claimRequest struct {
	PlayerName string `json:"playerName" binding:"required"`
}

func newRouter(s *store, apiKey string, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	authorized := r.Group("/", requireAPIKey(apiKey))

	authorized.POST(transactionPath, func(c *gin.Context) {
		var req claimRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		transactions := s.take(req.PlayerName)
		logger.Info("claimed transactions", zap.String("player", req.PlayerName), zap.Int("count", len(transactions)))
		c.JSON(http.StatusOK, transactions)
	})

	authorized.POST("/queue/:player", func(c *gin.Context) {
		var transactions []json.RawMessage
		if err := c.ShouldBindJSON(&transactions); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		player := c.Param("player")
		pending := s.enqueue(player, transactions)
		c.JSON(http.StatusOK, gin.H{"player": player, "pending": pending})
	})

	return r
}

func requireAPIKey(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetHeader(apiKeyHeader) != apiKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			return
		}
		c.Next()
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)),
		)
	}
}
