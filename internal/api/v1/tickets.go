package v1

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"flowline/internal/services"
)

func (h *APIHandlers) ingestTicket(c *gin.Context) {
	var req services.IngestTicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.ticketService.Ingest(c.Request.Context(), req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	status := http.StatusCreated
	if !result.Matched {
		// Accepted but parked as unmatched until a workflow covers it.
		status = http.StatusAccepted
	}
	c.JSON(status, result)
}

func (h *APIHandlers) getTicket(c *gin.Context) {
	ticket, err := h.ticketService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ticket": ticket})
}

// resubmitUnmatched re-runs matching for parked tickets, typically after a
// new workflow has been published and activated.
func (h *APIHandlers) resubmitUnmatched(c *gin.Context) {
	limit := int64(100)
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = parsed
	}

	results, err := h.ticketService.ResubmitUnmatched(c.Request.Context(), limit)
	if err != nil {
		h.respondError(c, err)
		return
	}

	matched := 0
	for _, r := range results {
		if r.Matched {
			matched++
		}
	}
	c.JSON(http.StatusOK, gin.H{"results": results, "count": len(results), "matched": matched})
}
