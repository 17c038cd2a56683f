package backoffice

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tayaan/arena/internal/api/middleware"
	"github.com/tayaan/arena/internal/backoffice/handler"
	"github.com/tayaan/arena/internal/config"
	"github.com/tayaan/arena/internal/service"
	"github.com/tayaan/arena/internal/ws"
)

// BackofficeDeps bundles every dependency needed for the admin router.
type BackofficeDeps struct {
	AuthSvc      *service.AuthService
	MatchSvc     *service.MatchService
	SettleSvc    *service.SettlementService
	InjectSvc    *service.InjectionService
	BetSvc       *service.BetService
	KareraSvc    *service.KareraService
	WalletSvc    *service.WalletService
	UserAdminSvc *service.UserAdminService
	SettingsSvc  *service.SettingsService
	Hub          *ws.Hub
	Cfg          *config.Config
	Logger       *zap.Logger
}

// SetupBackofficeRouter creates the admin Gin engine on port 8081.
//
// Agents, master agents and loaders reach the user and balance routes, scoped
// to their downline by the services. Event control, settlement, risk and
// settings are admin-only.
func SetupBackofficeRouter(deps BackofficeDeps) *gin.Engine {
	if deps.Cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(middleware.RequestLogger(log.Named("backoffice")))
	r.Use(gin.Recovery())
	r.Use(ipWhitelistMiddleware(deps.Cfg.Server.BackofficeAllowedIPs))

	dashH := handler.NewDashboardHandler(deps.MatchSvc, deps.WalletSvc, deps.InjectSvc, deps.Hub, log)
	matchH := handler.NewMatchAdminHandler(deps.MatchSvc, deps.SettleSvc, deps.InjectSvc, deps.BetSvc)
	kareraH := handler.NewKareraAdminHandler(deps.KareraSvc)
	userH := handler.NewUserAdminHandler(deps.UserAdminSvc)
	riskH := handler.NewRiskHandler(deps.BetSvc, deps.InjectSvc)
	financeH := handler.NewFinanceHandler(deps.WalletSvc)
	settingsH := handler.NewSettingsHandler(deps.SettingsSvc)

	admin := r.Group("/admin")
	admin.Use(middleware.JWTMiddleware(deps.AuthSvc), middleware.BackofficeMiddleware())
	{
		// Users (downline-scoped)
		u := admin.Group("/users")
		{
			u.GET("", userH.List)
			u.POST("", userH.Create)
			u.GET("/:id", userH.Detail)
			u.POST("/:id/:action", userH.Update)
		}

		admin.POST("/finance/balance", financeH.Balance)

		ops := admin.Group("")
		ops.Use(middleware.AdminMiddleware())
		{
			ops.GET("/dashboard", dashH.Dashboard)
			ops.GET("/bots", userH.Bots)

			// Sabong matches
			m := ops.Group("/matches")
			{
				m.GET("", matchH.List)
				m.POST("", matchH.Create)
				m.GET("/:id", matchH.Detail)
				m.POST("/:id/last-call", matchH.LastCall)
				m.POST("/:id/close", matchH.Close)
				m.POST("/:id/start", matchH.Start)
				m.POST("/:id/status", matchH.SetStatus)
				m.POST("/:id/winner", matchH.Winner)
				m.POST("/:id/cancel", matchH.Cancel)
				m.POST("/:id/inject", matchH.Inject)
				m.POST("/:id/bot-bet", matchH.BotBet)
			}

			// Karera races
			k := ops.Group("/karera/races")
			{
				k.GET("", kareraH.List)
				k.POST("", kareraH.Create)
				k.GET("/:id", kareraH.Detail)
				k.POST("/:id/horses", kareraH.AddHorse)
				k.POST("/:id/status", kareraH.SetStatus)
				k.POST("/:id/scratch", kareraH.Scratch)
				k.POST("/:id/winner", kareraH.Winner)
				k.POST("/:id/cancel", kareraH.Cancel)
			}

			// Risk
			risk := ops.Group("/risk")
			{
				risk.GET("/exposure", riskH.Exposure)
				risk.GET("/injections", riskH.Injections)
				risk.GET("/injections/stats", riskH.InjectionStats)
			}

			// Finance
			fin := ops.Group("/finance")
			{
				fin.GET("/report", financeH.Report)
				fin.GET("/ledger", financeH.Ledger)
				fin.GET("/transactions", financeH.Transactions)
			}

			// Runtime settings
			ops.GET("/settings", settingsH.List)
			ops.PUT("/settings/:key", settingsH.Set)
		}
	}

	return r
}

// ── IP whitelist middleware ───────────────────────────────────────────────────

// ipWhitelistMiddleware blocks requests from IPs not in the allowlist.
// allowedIPs is a comma-separated string; empty means allow all.
func ipWhitelistMiddleware(allowedIPs string) gin.HandlerFunc {
	if allowedIPs == "" {
		return func(c *gin.Context) { c.Next() } // dev mode: no restriction
	}

	allowed := make(map[string]bool)
	for _, ip := range strings.Split(allowedIPs, ",") {
		ip = strings.TrimSpace(ip)
		if ip != "" {
			allowed[ip] = true
		}
	}

	return func(c *gin.Context) {
		if !allowed[c.ClientIP()] {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "access denied: your IP is not whitelisted",
				"code":    "ERR_IP_DENIED",
			})
			return
		}
		c.Next()
	}
}
