package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"landed-cost-service/internal/middleware"
	"landed-cost-service/internal/models"
	"landed-cost-service/internal/services"
)

// CalculationHandler runs and fetches landed-cost calculations
type CalculationHandler struct {
	calculator *services.Calculator
	service    *services.ShipmentService
}

func NewCalculationHandler(calculator *services.Calculator, service *services.ShipmentService) *CalculationHandler {
	return &CalculationHandler{calculator: calculator, service: service}
}

// Calculate handles POST /api/v1/shipments/:id/calculate
func (h *CalculationHandler) Calculate(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	result, err := h.calculator.Calculate(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if result.Status == models.CalcStatusNotFound {
		c.JSON(http.StatusNotFound, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetCalculation handles GET /api/v1/shipments/:id/calculation
func (h *CalculationHandler) GetCalculation(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	calc, err := h.service.GetCalculation(c.Request.Context(), middleware.UserID(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, calc)
}
