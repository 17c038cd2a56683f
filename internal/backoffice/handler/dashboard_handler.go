package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tayaan/arena/internal/domain"
	"github.com/tayaan/arena/internal/service"
	"github.com/tayaan/arena/internal/ws"
)

// DashboardHandler serves the /admin/dashboard endpoint.
type DashboardHandler struct {
	matchSvc  *service.MatchService
	walletSvc *service.WalletService
	injectSvc *service.InjectionService
	hub       *ws.Hub
	log       *zap.Logger
}

// NewDashboardHandler creates a DashboardHandler.
func NewDashboardHandler(
	matchSvc *service.MatchService,
	walletSvc *service.WalletService,
	injectSvc *service.InjectionService,
	hub *ws.Hub,
	log *zap.Logger,
) *DashboardHandler {
	return &DashboardHandler{
		matchSvc:  matchSvc,
		walletSvc: walletSvc,
		injectSvc: injectSvc,
		hub:       hub,
		log:       log,
	}
}

// Dashboard godoc
// GET /admin/dashboard
// Each panel is best-effort: a failing query leaves its field null.
func (h *DashboardHandler) Dashboard(c *gin.Context) {
	ctx := c.Request.Context()

	// ── Match board ──────────────────────────────────────────────────────────
	counts, err := h.matchSvc.StatusCounts(ctx)
	if err != nil {
		h.log.Warn("dashboard: match counts", zap.Error(err))
		counts = map[domain.EventStatus]int{}
	}

	// ── House ledger, last 24h ───────────────────────────────────────────────
	summary, err := h.walletSvc.HouseSummary(ctx, 24*time.Hour)
	if err != nil {
		h.log.Warn("dashboard: house summary", zap.Error(err))
	}

	// ── Injections ───────────────────────────────────────────────────────────
	inj, err := h.injectSvc.Stats(ctx)
	if err != nil {
		h.log.Warn("dashboard: injection stats", zap.Error(err))
	}

	// ── WS connections ───────────────────────────────────────────────────────
	var wsConnections int
	if h.hub != nil {
		wsConnections = h.hub.ConnectedCount()
	}

	respondSuccess(c, http.StatusOK, gin.H{
		"timestamp":      time.Now().UTC(),
		"matches":        counts,
		"house_24h":      summary,
		"injections":     inj,
		"ws_connections": wsConnections,
	})
}
