package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/tayaan/arena/internal/api/handler"
	"github.com/tayaan/arena/internal/api/middleware"
	"github.com/tayaan/arena/internal/config"
	"github.com/tayaan/arena/internal/service"
	"github.com/tayaan/arena/internal/ws"
)

// RouterDeps is what the public API needs from main. Nil services are fine
// for routes a test never reaches.
type RouterDeps struct {
	AuthSvc      *service.AuthService
	MatchSvc     *service.MatchService
	PoolSvc      *service.PoolService
	BetSvc       *service.BetService
	KareraSvc    *service.KareraService
	WalletSvc    *service.WalletService
	UserAdminSvc *service.UserAdminService
	Hub          *ws.Hub
	Cfg          *config.Config
	Logger       *zap.Logger
}

// SetupRouter builds the bettor-facing engine.
func SetupRouter(deps RouterDeps) *gin.Engine {
	if deps.Cfg.IsProd() {
		gin.SetMode(gin.ReleaseMode)
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.Use(middleware.RequestLogger(log))
	r.Use(gin.Recovery())

	// ── Cross-cutting ────────────────────────────────────────────────────────
	r.Use(corsMiddleware(deps.Cfg))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// ── Handlers + guards ────────────────────────────────────────────────────
	userH := handler.NewUserHandler(deps.AuthSvc)
	matchH := handler.NewMatchHandler(deps.MatchSvc, deps.PoolSvc)
	betH := handler.NewBetHandler(deps.BetSvc)
	kareraH := handler.NewKareraHandler(deps.KareraSvc)
	walletH := handler.NewWalletHandler(deps.WalletSvc)
	adminH := handler.NewAdminHandler(deps.WalletSvc, deps.UserAdminSvc)

	jwtMW := middleware.JWTMiddleware(deps.AuthSvc)

	authRL := middleware.RateLimitMiddleware(10, middleware.ByIP)  // login/register brute force
	betRL := middleware.RateLimitMiddleware(30, middleware.ByUser) // per account, after JWT

	api := r.Group("/api")
	{
		// ── Accounts ─────────────────────────────────────────────────────────
		auth := api.Group("/auth")
		auth.Use(authRL)
		{
			auth.POST("/register", userH.Register)
			auth.POST("/login", userH.Login)
			auth.POST("/refresh", userH.Refresh)
		}

		// ── Sabong matches (public) ──────────────────────────────────────────
		matches := api.Group("/matches")
		{
			matches.GET("", matchH.ListMatches)
			matches.GET("/:id", matchH.GetMatch)
			matches.GET("/:id/pool", matchH.Pool)
			matches.GET("/:id/odds", matchH.Odds)
		}

		// ── Karera races (public) ────────────────────────────────────────────
		races := api.Group("/karera/races")
		{
			races.GET("", kareraH.ListRaces)
			races.GET("/:id", kareraH.GetRace)
		}

		// ── Bettor routes (JWT) ──────────────────────────────────────────────
		authed := api.Group("")
		authed.Use(jwtMW)
		{
			// Profile
			authed.GET("/me", userH.Me)

			// Bets
			bets := authed.Group("/bets")
			bets.Use(betRL)
			{
				bets.POST("", betH.PlaceBet)
				bets.GET("/my", betH.GetMyBets)
				bets.GET("/:id", betH.GetBetByID)
			}

			kbets := authed.Group("/karera/bets")
			kbets.Use(betRL)
			{
				kbets.POST("", kareraH.PlaceBet)
				kbets.GET("/my", kareraH.MyBets)
			}

			// Wallet
			wallet := authed.Group("/wallet")
			{
				wallet.GET("/balance", walletH.GetBalance)
				wallet.GET("/transactions", walletH.GetTransactions)
			}

			// Agent hierarchy and admin balance control
			admin := authed.Group("/admin")
			admin.Use(middleware.BackofficeMiddleware())
			{
				admin.POST("/balance", adminH.Balance)
				admin.POST("/create-user", adminH.CreateUser)
				admin.POST("/update-user", adminH.UpdateUser)
				admin.GET("/users", adminH.ListUsers)
			}
		}
	}

	// ── Live feed ────────────────────────────────────────────────────────────
	if deps.Hub != nil {
		r.GET("/ws", func(c *gin.Context) {
			deps.Hub.ServeWs(c.Writer, c.Request)
		})
	}

	return r
}

// ── CORS ──────────────────────────────────────────────────────────────────────

// corsMiddleware answers preflights itself. Production echoes only origins
// listed in ALLOWED_ORIGINS; elsewhere any origin is accepted.
func corsMiddleware(cfg *config.Config) gin.HandlerFunc {
	allowed := make(map[string]bool, len(cfg.Server.AllowedOrigins))
	for _, o := range cfg.Server.AllowedOrigins {
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if !cfg.IsProd() {
			c.Header("Access-Control-Allow-Origin", "*")
		} else if origin != "" && allowed[origin] {
			c.Header("Access-Control-Allow-Origin", origin)
			c.Header("Vary", "Origin")
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
