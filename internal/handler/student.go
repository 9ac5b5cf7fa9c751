package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"placement/internal/auth"
)

// StudentRounds lists the caller's rounds for a job, with a fresh QR token
// on the round that is currently open to them.
func (h *Handler) StudentRounds(c *gin.Context) {
	view, err := h.svc.Attendance.RoundStatuses(c.Request.Context(), auth.Student(c), c.Param("jobId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}
