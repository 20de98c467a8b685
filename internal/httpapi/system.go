package httpapi

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"kodejudge/internal/catalog"
)

func (h *Handler) ping(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "pong"})
}

func (h *Handler) healthOverall(c *gin.Context) {
	c.JSON(http.StatusOK, h.health.Overall(c.Request.Context()))
}

func (h *Handler) healthDatabase(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"database": h.health.CheckDatabase(c.Request.Context())})
}

func (h *Handler) healthRedis(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"redis": h.health.CheckRedis(c.Request.Context())})
}

func (h *Handler) healthWorkers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"workers": h.health.CheckWorkers(c.Request.Context())})
}

func (h *Handler) healthInfo(c *gin.Context) {
	c.JSON(http.StatusOK, h.health.ProcessInfo(c.Request.Context()))
}

// languageView is the public projection of a catalog entry; commands stay
// internal.
type languageView struct {
	ID      int    `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version"`
}

func (h *Handler) listLanguages(c *gin.Context) {
	langs := h.catalog.List()
	out := make([]languageView, 0, len(langs))
	for _, l := range langs {
		out = append(out, languageView{ID: l.ID, Name: l.Name, Version: l.Version})
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) getLanguage(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "language id must be an integer"})
		return
	}
	lang, err := h.catalog.Get(id)
	if errors.Is(err, catalog.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "language not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "catalog lookup failed"})
		return
	}
	c.JSON(http.StatusOK, languageView{ID: lang.ID, Name: lang.Name, Version: lang.Version})
}
