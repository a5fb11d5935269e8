package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	contractx "github.com/tanpawarit/smartops-bi/agent/contract"
	"github.com/tanpawarit/smartops-bi/agent/warehouse"
)

type Assistant interface {
	Ask(ctx context.Context, message string) (string, error)
}

// Catalog is the slice of the warehouse the HTTP surface reports on.
type Catalog interface {
	ListTables(ctx context.Context) ([]string, error)
	DescribeTable(ctx context.Context, name string) (warehouse.Table, error)
	Counts(ctx context.Context) ([]warehouse.TableCount, error)
	Ping(ctx context.Context) error
}

type ModelProbe interface {
	Check(ctx context.Context) error
}

type ChatRequest struct {
	Message string `json:"message"`
}

type ChatResponse struct {
	Response string  `json:"response"`
	Success  bool    `json:"success"`
	Error    *string `json:"error"`
}

type StatsResponse struct {
	Tables    []warehouse.TableCount `json:"tables"`
	TotalRows int64                  `json:"total_rows"`
}

type Handler struct {
	assistant     Assistant
	catalog       Catalog
	probe         ModelProbe
	notReady      string
	healthTimeout time.Duration
}

// NewHandler accepts nil dependencies; the matching endpoints then report
// the service as not ready instead of failing.
func NewHandler(assistant Assistant, catalog Catalog, probe ModelProbe, notReady string, cfg Config) *Handler {
	timeout := cfg.HealthTimeout
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	if notReady == "" {
		notReady = "assistant not initialized"
	}
	return &Handler{
		assistant:     assistant,
		catalog:       catalog,
		probe:         probe,
		notReady:      notReady,
		healthTimeout: timeout,
	}
}

func (h *Handler) Chat(c *gin.Context) {
	if h.assistant == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": h.notReady})
		return
	}

	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid request: " + err.Error()})
		return
	}

	answer, err := h.assistant.Ask(c.Request.Context(), req.Message)
	if err != nil {
		msg := clientError(err)
		log.Warn().Err(err).Str("request_id", requestID(c)).Msg("chat answered with error")
		c.JSON(http.StatusOK, ChatResponse{Response: answer, Success: false, Error: &msg})
		return
	}
	c.JSON(http.StatusOK, ChatResponse{Response: answer, Success: true})
}

// clientError keeps internal error text (wrapped causes, panic traces) in
// the logs and out of the response body.
func clientError(err error) string {
	if errors.Is(err, contractx.ErrValidation) {
		return "invalid message"
	}
	return "failed to process the question"
}

func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), h.healthTimeout)
	defer cancel()

	c.JSON(http.StatusOK, gin.H{
		"status":      "healthy",
		"agent_ready": h.assistant != nil,
		"database":    h.databaseStatus(ctx),
		"model":       h.modelStatus(ctx),
	})
}

func (h *Handler) Stats(c *gin.Context) {
	if h.catalog == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "database not configured"})
		return
	}
	counts, err := h.catalog.Counts(c.Request.Context())
	if err != nil {
		log.Error().Err(err).Str("request_id", requestID(c)).Msg("stats failed")
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	resp := StatsResponse{Tables: counts}
	for _, tc := range counts {
		resp.TotalRows += tc.Rows
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) Tables(c *gin.Context) {
	if h.catalog == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"detail": "database not configured"})
		return
	}
	ctx := c.Request.Context()
	names, err := h.catalog.ListTables(ctx)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
		return
	}
	tables := make([]warehouse.Table, 0, len(names))
	for _, name := range names {
		tbl, err := h.catalog.DescribeTable(ctx, name)
		if errors.Is(err, warehouse.ErrTableNotFound) {
			continue
		}
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"detail": err.Error()})
			return
		}
		tables = append(tables, tbl)
	}
	c.JSON(http.StatusOK, gin.H{"tables": tables})
}

func (h *Handler) databaseStatus(ctx context.Context) string {
	if h.catalog == nil {
		return "not configured"
	}
	return status(h.catalog.Ping(ctx))
}

func (h *Handler) modelStatus(ctx context.Context) string {
	if h.probe == nil {
		return "not configured"
	}
	return status(h.probe.Check(ctx))
}

func status(err error) string {
	if err != nil {
		return "error: " + err.Error()
	}
	return "ok"
}
