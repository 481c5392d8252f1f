package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"landed-cost-service/internal/models"
	"landed-cost-service/internal/providers"
)

// RatesHandler exposes raw rate lookups for diagnostics and clients
// that want rates without running a full calculation
type RatesHandler struct {
	fx *providers.FxProvider
	uk *providers.UKTariffProvider
	eu *providers.EUTaricProvider
}

func NewRatesHandler(fx *providers.FxProvider, uk *providers.UKTariffProvider, eu *providers.EUTaricProvider) *RatesHandler {
	return &RatesHandler{fx: fx, uk: uk, eu: eu}
}

// GetFxRate handles GET /api/v1/rates/fx
func (h *RatesHandler) GetFxRate(c *gin.Context) {
	base := strings.ToUpper(c.Query("base"))
	quote := strings.ToUpper(c.Query("quote"))
	if len(base) != 3 || len(quote) != 3 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "base and quote must be 3-letter currency codes"})
		return
	}
	result, err := h.fx.Rate(c.Request.Context(), base, quote, nil)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"base":    base,
		"quote":   quote,
		"rate":    result.Rate,
		"missing": result.Missing,
		"source":  result.Source,
	})
}

// GetUKDuty handles GET /api/v1/rates/uk-duty
func (h *RatesHandler) GetUKDuty(c *gin.Context) {
	code := models.NormalizeGoodsCode(c.Query("commodity_code"))
	if code == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "commodity_code is required"})
		return
	}
	result, err := h.uk.Rate(c.Request.Context(), code, nil)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"commodity_code": code,
		"rate":           result.Rate,
		"missing":        result.Missing,
		"is_estimated":   result.IsEstimated,
		"source":         result.Source,
	})
}

// GetEUDuty handles GET /api/v1/rates/eu-duty
func (h *RatesHandler) GetEUDuty(c *gin.Context) {
	hsCode := models.NormalizeGoodsCode(c.Query("hs_code"))
	origin := strings.ToUpper(c.Query("origin"))
	if hsCode == "" || origin == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "hs_code and origin are required"})
		return
	}
	preferential := c.Query("preferential") == "true"
	result, err := h.eu.Rate(c.Request.Context(), hsCode, origin, preferential, nil)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"hs_code":      hsCode,
		"origin":       origin,
		"preferential": preferential,
		"rate":         result.Rate,
		"missing":      result.Missing,
		"is_estimated": result.IsEstimated,
		"source":       result.Source,
	})
}
