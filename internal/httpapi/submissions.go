package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"kodejudge/internal/codec"
	"kodejudge/internal/metrics"
	"kodejudge/internal/models"
	"kodejudge/internal/service"
	"kodejudge/internal/store"
)

func (h *Handler) createSubmission(c *gin.Context) {
	base64Encoded := boolQuery(c, "base64_encoded")
	wait := boolQuery(c, "wait")

	var req codec.SubmissionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed JSON body"})
		return
	}
	sub, err := req.Decode(base64Encoded)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if wait {
		final, err := h.svc.CreateAndWait(c.Request.Context(), sub)
		if errors.Is(err, service.ErrWaitTimeout) {
			metrics.WaitTimeout()
			c.JSON(http.StatusRequestTimeout, gin.H{"error": "submission did not finish within the wait budget"})
			return
		}
		if errors.Is(err, store.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "submission deleted while waiting"})
			return
		}
		if err != nil {
			h.submissionError(c, err)
			return
		}
		metrics.SubmissionCreated()
		c.JSON(http.StatusCreated, h.encode(c, final, base64Encoded))
		return
	}

	id, err := h.svc.Create(c.Request.Context(), sub)
	if err != nil {
		h.submissionError(c, err)
		return
	}
	metrics.SubmissionCreated()
	c.JSON(http.StatusCreated, gin.H{"id": id.String()})
}

func (h *Handler) createBatch(c *gin.Context) {
	base64Encoded := boolQuery(c, "base64_encoded")

	var reqs []codec.SubmissionRequest
	if err := c.ShouldBindJSON(&reqs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed JSON body"})
		return
	}

	subs := make([]*models.Submission, 0, len(reqs))
	for i := range reqs {
		sub, err := reqs[i].Decode(base64Encoded)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		subs = append(subs, sub)
	}

	ids, err := h.svc.CreateBatch(c.Request.Context(), subs)
	if err != nil {
		h.submissionError(c, err)
		return
	}
	out := make([]gin.H, 0, len(ids))
	for _, id := range ids {
		metrics.SubmissionCreated()
		out = append(out, gin.H{"id": id.String()})
	}
	c.JSON(http.StatusCreated, out)
}

func (h *Handler) listSubmissions(c *gin.Context) {
	base64Encoded := boolQuery(c, "base64_encoded")
	page, err := intQuery(c, "page", 1)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "page must be an integer"})
		return
	}
	pageSize, err := intQuery(c, "page_size", 20)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "page_size must be an integer"})
		return
	}

	result, err := h.svc.List(c.Request.Context(), page, pageSize)
	if errors.Is(err, store.ErrBadPage) {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list submissions failed"})
		return
	}

	items := make([]map[string]any, 0, len(result.Items))
	for i := range result.Items {
		items = append(items, h.encode(c, &result.Items[i], base64Encoded))
	}
	c.JSON(http.StatusOK, gin.H{
		"items":        items,
		"total_items":  result.TotalItems,
		"total_pages":  result.TotalPages,
		"current_page": result.CurrentPage,
		"page_size":    result.PageSize,
	})
}

func (h *Handler) getBatch(c *gin.Context) {
	base64Encoded := boolQuery(c, "base64_encoded")

	raw := strings.Split(c.Query("ids"), ",")
	ids := make([]uuid.UUID, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		id, err := uuid.Parse(s)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "malformed submission id: " + s})
			return
		}
		ids = append(ids, id)
	}

	subs, err := h.svc.GetBatch(c.Request.Context(), ids)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "fetch submissions failed"})
		return
	}
	out := make([]map[string]any, 0, len(subs))
	for i := range subs {
		out = append(out, h.encode(c, &subs[i], base64Encoded))
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) getSubmission(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed submission id"})
		return
	}

	sub, err := h.svc.Get(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "submission not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "fetch submission failed"})
		return
	}
	c.JSON(http.StatusOK, h.encode(c, sub, boolQuery(c, "base64_encoded")))
}

func (h *Handler) deleteSubmission(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed submission id"})
		return
	}

	err = h.svc.Delete(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "submission not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete submission failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

// submissionError maps service failures onto the HTTP status table.
func (h *Handler) submissionError(c *gin.Context, err error) {
	var verr *service.ValidationError
	if errors.As(err, &verr) {
		status := http.StatusBadRequest
		if verr.Unprocessable {
			status = http.StatusUnprocessableEntity
		}
		c.JSON(status, gin.H{"error": verr.Error(), "field": verr.Field})
		return
	}
	c.JSON(http.StatusInternalServerError, gin.H{"error": "submission pipeline unavailable"})
}

// encode renders one submission honoring base64_encoded and the fields
// query filter.
func (h *Handler) encode(c *gin.Context, sub *models.Submission, base64Encoded bool) map[string]any {
	record := codec.EncodeSubmission(sub, base64Encoded)
	if fields := c.Query("fields"); fields != "" {
		record = codec.FilterFields(record, strings.Split(fields, ","))
	}
	return record
}

func boolQuery(c *gin.Context, name string) bool {
	v, err := strconv.ParseBool(c.DefaultQuery(name, "false"))
	return err == nil && v
}

func intQuery(c *gin.Context, name string, fallback int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}
