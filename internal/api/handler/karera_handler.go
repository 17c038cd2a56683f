package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tayaan/arena/internal/api/middleware"
	"github.com/tayaan/arena/internal/domain"
	"github.com/tayaan/arena/internal/service"
)

// KareraHandler serves the public horse-racing endpoints.
type KareraHandler struct {
	kareraSvc *service.KareraService
}

// NewKareraHandler creates a KareraHandler.
func NewKareraHandler(kareraSvc *service.KareraService) *KareraHandler {
	return &KareraHandler{kareraSvc: kareraSvc}
}

type legBody struct {
	RaceID string `json:"race_id" binding:"required"`
	Horse  int    `json:"horse"   binding:"required"`
}

// ListRaces godoc
// GET /api/karera/races?status=open&page=1&limit=20
func (h *KareraHandler) ListRaces(c *gin.Context) {
	page, limit := parsePagination(c)
	races, err := h.kareraSvc.ListRaces(c.Request.Context(), c.Query("status"), limit, (page-1)*limit)
	if err != nil {
		respondDomainError(c, err, "could not fetch races")
		return
	}
	respondList(c, races, len(races), page, limit)
}

// GetRace godoc
// GET /api/karera/races/:id
func (h *KareraHandler) GetRace(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	view, err := h.kareraSvc.GetRace(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err, "could not fetch race")
		return
	}
	respondSuccess(c, http.StatusOK, view)
}

// PlaceBet godoc
// POST /api/karera/bets [JWT]
// Body: {"bet_type":"forecast","amount":"100","legs":[{"race_id":"uuid","horse":3},{"race_id":"uuid","horse":5}]}
// Leg order is the finishing position for forecast and trifecta, the race
// sequence for daily double and pick bets.
func (h *KareraHandler) PlaceBet(c *gin.Context) {
	var body struct {
		BetType string    `json:"bet_type" binding:"required"`
		Amount  string    `json:"amount"   binding:"required"`
		Legs    []legBody `json:"legs"     binding:"required,min=1,dive"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}

	amount, err := decimal.NewFromString(body.Amount)
	if err != nil || !amount.IsPositive() {
		respondError(c, http.StatusBadRequest, "ERR_INVALID_AMOUNT", "amount must be a positive decimal string")
		return
	}

	legs := make([]domain.KareraLeg, 0, len(body.Legs))
	for i, l := range body.Legs {
		raceID, err := uuid.Parse(l.RaceID)
		if err != nil {
			respondError(c, http.StatusBadRequest, "ERR_INVALID_RACE_ID", "invalid race_id format")
			return
		}
		legs = append(legs, domain.KareraLeg{LegNo: i + 1, RaceID: raceID, Horse: l.Horse})
	}

	bet, err := h.kareraSvc.PlaceBet(c.Request.Context(), domain.PlaceKareraBetRequest{
		UserID:  middleware.GetUserID(c),
		BetType: domain.KareraBetType(body.BetType),
		Amount:  amount,
		Source:  domain.SourceUser,
		Legs:    legs,
	})
	if err != nil {
		respondDomainError(c, err, "could not place bet")
		return
	}
	respondSuccess(c, http.StatusCreated, bet)
}

// MyBets godoc
// GET /api/karera/bets/my [JWT]
func (h *KareraHandler) MyBets(c *gin.Context) {
	page, limit := parsePagination(c)
	bets, err := h.kareraSvc.GetMyBets(c.Request.Context(), middleware.GetUserID(c), limit, (page-1)*limit)
	if err != nil {
		respondDomainError(c, err, "could not fetch bets")
		return
	}
	respondList(c, bets, len(bets), page, limit)
}
