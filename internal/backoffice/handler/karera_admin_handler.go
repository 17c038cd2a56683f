package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/tayaan/arena/internal/domain"
	"github.com/tayaan/arena/internal/service"
)

// KareraAdminHandler serves /admin/karera endpoints.
type KareraAdminHandler struct {
	kareraSvc *service.KareraService
}

// NewKareraAdminHandler creates a KareraAdminHandler.
func NewKareraAdminHandler(kareraSvc *service.KareraService) *KareraAdminHandler {
	return &KareraAdminHandler{kareraSvc: kareraSvc}
}

type horseBody struct {
	Number int    `json:"number" binding:"required,min=1"`
	Name   string `json:"name"   binding:"required,max=100"`
}

// List godoc
// GET /admin/karera/races?status=open
func (h *KareraAdminHandler) List(c *gin.Context) {
	page, limit := adminPagination(c)
	races, err := h.kareraSvc.ListRaces(c.Request.Context(), c.Query("status"), limit, (page-1)*limit)
	if err != nil {
		respondDomainError(c, err, "could not fetch races")
		return
	}
	respondList(c, races, len(races), page, limit)
}

// Detail godoc
// GET /admin/karera/races/:id
func (h *KareraAdminHandler) Detail(c *gin.Context) {
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

// Create godoc
// POST /admin/karera/races
// Body: {"name":"Race 5","horses":[{"number":1,"name":"Bagyo"},{"number":2,"name":"Kidlat"}]}
func (h *KareraAdminHandler) Create(c *gin.Context) {
	var body struct {
		Name   string      `json:"name"   binding:"required,max=100"`
		Horses []horseBody `json:"horses" binding:"required,min=2,dive"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	horses := make([]domain.Horse, 0, len(body.Horses))
	for _, hb := range body.Horses {
		horses = append(horses, domain.Horse{Number: hb.Number, Name: hb.Name})
	}

	race, err := h.kareraSvc.CreateRace(c.Request.Context(), body.Name, horses)
	if err != nil {
		respondDomainError(c, err, "could not create race")
		return
	}
	respondSuccess(c, http.StatusCreated, race)
}

// AddHorse godoc
// POST /admin/karera/races/:id/horses
func (h *KareraAdminHandler) AddHorse(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var body horseBody
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	if err := h.kareraSvc.AddHorse(c.Request.Context(), id, domain.Horse{Number: body.Number, Name: body.Name}); err != nil {
		respondDomainError(c, err, "could not add horse")
		return
	}
	respondSuccess(c, http.StatusCreated, gin.H{"race_id": id, "number": body.Number})
}

// SetStatus godoc
// POST /admin/karera/races/:id/status
// Body: {"status":"closed"}
func (h *KareraAdminHandler) SetStatus(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var body struct {
		Status string `json:"status" binding:"required,oneof=last_call closed ongoing"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	race, err := h.kareraSvc.SetStatus(c.Request.Context(), id, domain.EventStatus(body.Status))
	if err != nil {
		respondDomainError(c, err, "status change failed")
		return
	}
	respondSuccess(c, http.StatusOK, race)
}

// Scratch godoc
// POST /admin/karera/races/:id/scratch
// Body: {"horse":4}
func (h *KareraAdminHandler) Scratch(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var body struct {
		Horse int `json:"horse" binding:"required,min=1"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	res, err := h.kareraSvc.ScratchHorse(c.Request.Context(), id, body.Horse)
	if err != nil {
		respondDomainError(c, err, "scratch failed")
		return
	}
	respondSuccess(c, http.StatusOK, res)
}

// Winner godoc
// POST /admin/karera/races/:id/winner
// Body: {"finish":[3,1,4,2],"odds":{"forecast":"12.50","trifecta":"48"}}
// Win bets are priced from the frozen pool; exotic prices come from odds.
func (h *KareraAdminHandler) Winner(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	var body struct {
		Finish []int                      `json:"finish" binding:"required,min=1"`
		Odds   map[string]decimal.Decimal `json:"odds"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "ERR_VALIDATION", err.Error())
		return
	}
	odds := make(domain.OddsMap, len(body.Odds))
	for k, v := range body.Odds {
		t := domain.KareraBetType(k)
		if !t.IsValid() {
			respondError(c, http.StatusBadRequest, "ERR_VALIDATION", "unknown bet type in odds: "+k)
			return
		}
		odds[t] = v
	}

	res, err := h.kareraSvc.AnnounceWinner(c.Request.Context(), id, domain.FinishOrder(body.Finish), odds)
	if err != nil {
		respondDomainError(c, err, "settlement failed")
		return
	}
	respondSuccess(c, http.StatusOK, res)
}

// Cancel godoc
// POST /admin/karera/races/:id/cancel
func (h *KareraAdminHandler) Cancel(c *gin.Context) {
	id, ok := paramID(c)
	if !ok {
		return
	}
	res, err := h.kareraSvc.CancelRace(c.Request.Context(), id)
	if err != nil {
		respondDomainError(c, err, "cancellation failed")
		return
	}
	respondSuccess(c, http.StatusOK, res)
}
