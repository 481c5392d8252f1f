package handlers

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"landed-cost-service/internal/models"
	"landed-cost-service/internal/repository"
	"landed-cost-service/internal/services"
	"landed-cost-service/internal/taric"
)

// TaricHandler exposes TARIC resolution and snapshot administration
type TaricHandler struct {
	resolver services.TaricResolver
	importer *taric.Importer
	repo     repository.TaricRepository
}

func NewTaricHandler(resolver services.TaricResolver, importer *taric.Importer, repo repository.TaricRepository) *TaricHandler {
	return &TaricHandler{resolver: resolver, importer: importer, repo: repo}
}

// Resolve handles GET /api/v1/taric/resolve
func (h *TaricHandler) Resolve(c *gin.Context) {
	hsCode := c.Query("hs_code")
	origin := c.Query("origin")
	if hsCode == "" || origin == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "hs_code and origin are required"})
		return
	}

	asOf := time.Now().UTC()
	if raw := c.Query("as_of"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "as_of must be YYYY-MM-DD"})
			return
		}
		asOf = parsed
	}

	var additionalCode *string
	if raw := c.Query("additional_code"); raw != "" {
		additionalCode = &raw
	}

	resolved, err := h.resolver.Resolve(c.Request.Context(), hsCode, origin, asOf, additionalCode)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resolved)
}

// GoodsDescription handles GET /api/v1/taric/goods
func (h *TaricHandler) GoodsDescription(c *gin.Context) {
	hsCode := c.Query("hs_code")
	if hsCode == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "hs_code is required"})
		return
	}
	asOf := time.Now().UTC()
	if raw := c.Query("as_of"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "as_of must be YYYY-MM-DD"})
			return
		}
		asOf = parsed
	}

	snap, err := h.repo.ActiveSnapshot(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	candidates := services.CandidateCodes(hsCode)
	if len(candidates) == 0 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "hs_code must contain digits"})
		return
	}
	goods, err := h.repo.GoodsCandidates(c.Request.Context(), snap.ID, candidates, asOf)
	if err != nil {
		respondError(c, err)
		return
	}
	byCode := make(map[string]models.GoodsNomenclature, len(goods))
	for _, g := range goods {
		byCode[g.GoodsCode] = g
	}
	for _, code := range candidates {
		g, ok := byCode[code]
		if !ok {
			continue
		}
		desc, err := h.repo.GoodsDescription(c.Request.Context(), g.ID, c.Query("lang"))
		if err != nil {
			continue
		}
		c.JSON(http.StatusOK, gin.H{
			"goods_code":   hsCode,
			"matched_code": code,
			"language":     desc.Language,
			"description":  desc.Description,
		})
		return
	}
	c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "no description found"})
}

// ImportSnapshot handles POST /api/v1/admin/taric/import
func (h *TaricHandler) ImportSnapshot(c *gin.Context) {
	snapshotDate, err := time.Parse("2006-01-02", c.PostForm("snapshot_date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "snapshot_date must be YYYY-MM-DD"})
		return
	}
	source := c.PostForm("source")
	if source == "" {
		source = "upload"
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "multipart form required"})
		return
	}
	files := make(map[string][]byte)
	for _, headers := range form.File {
		for _, header := range headers {
			f, err := header.Open()
			if err != nil {
				c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "unreadable upload " + header.Filename})
				return
			}
			data, err := io.ReadAll(f)
			f.Close()
			if err != nil {
				c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "unreadable upload " + header.Filename})
				return
			}
			files[header.Filename] = data
		}
	}
	if len(files) == 0 {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "at least one file is required"})
		return
	}

	summary, err := h.importer.Import(c.Request.Context(), snapshotDate, source, files)
	if err != nil {
		respondError(c, err)
		return
	}
	status := http.StatusCreated
	if summary.Reused {
		status = http.StatusOK
	}
	c.JSON(status, summary)
}
