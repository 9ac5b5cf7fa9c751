package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"placement/internal/apperr"
	"placement/internal/attendance"
	"placement/internal/auth"
	"placement/internal/export"
	"placement/internal/model"
	"placement/internal/repository"
	"placement/internal/selection"
	"placement/internal/session"
)

// ---------- Rounds ----------

func (h *Handler) CreateRounds(c *gin.Context) {
	var req struct {
		Names []string `json:"names" binding:"required"`
	}
	if !h.bind(c, &req) {
		return
	}
	rounds, err := h.svc.Rounds.Create(c.Request.Context(), auth.Admin(c), c.Param("jobId"), req.Names)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"rounds": rounds})
}

func (h *Handler) ListRounds(c *gin.Context) {
	rounds, err := h.svc.Rounds.List(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rounds": rounds})
}

func (h *Handler) SwapRounds(c *gin.Context) {
	var req struct {
		RoundA string `json:"roundA" binding:"required"`
		RoundB string `json:"roundB" binding:"required"`
	}
	if !h.bind(c, &req) {
		return
	}
	rounds, err := h.svc.Rounds.Swap(c.Request.Context(), auth.Admin(c), c.Param("jobId"), req.RoundA, req.RoundB)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"rounds": rounds})
}

func (h *Handler) RemoveRound(c *gin.Context) {
	if err := h.svc.Rounds.Remove(c.Request.Context(), auth.Admin(c), c.Param("jobId"), c.Param("roundId")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// ---------- Sessions ----------

func (h *Handler) StartSession(c *gin.Context) {
	var req struct {
		RoundID         string     `json:"roundId" binding:"required"`
		StartTime       *time.Time `json:"startTime"`
		DurationMinutes int        `json:"durationMinutes"`
	}
	if !h.bind(c, &req) {
		return
	}
	if req.DurationMinutes < 0 {
		h.fail(c, apperr.Validation(apperr.CodeInvalidRequest, "durationMinutes must not be negative"))
		return
	}
	s, err := h.svc.Sessions.Start(c.Request.Context(), auth.Admin(c), session.StartRequest{
		JobID:     c.Param("jobId"),
		RoundID:   req.RoundID,
		StartTime: req.StartTime,
		Duration:  time.Duration(req.DurationMinutes) * time.Minute,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"session": s})
}

func (h *Handler) ListSessions(c *gin.Context) {
	sessions, err := h.svc.Sessions.List(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *Handler) UpdateSession(c *gin.Context) {
	var req struct {
		Action string `json:"action" binding:"required"`
	}
	if !h.bind(c, &req) {
		return
	}
	action, err := session.ParseAction(req.Action)
	if err != nil {
		h.fail(c, apperr.Validation(apperr.CodeInvalidRequest, "%v", err))
		return
	}
	s, err := h.svc.Sessions.Apply(c.Request.Context(), auth.Admin(c), c.Param("jobId"), c.Param("sessionId"), action)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": s})
}

// ---------- Scanning ----------

func (h *Handler) Scan(c *gin.Context) {
	var req struct {
		QRData   string `json:"qrData" binding:"required"`
		JobID    string `json:"jobId"`
		Location string `json:"location"`
	}
	if !h.bind(c, &req) {
		return
	}
	res, err := h.svc.Attendance.Scan(c.Request.Context(), auth.Admin(c), attendance.ScanRequest{
		QRData: req.QRData, JobID: req.JobID, Location: req.Location,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Confirm(c *gin.Context) {
	var req struct {
		attendance.Tuple
		Location string `json:"location"`
	}
	if !h.bind(c, &req) {
		return
	}
	a, err := h.svc.Attendance.Confirm(c.Request.Context(), auth.Admin(c), attendance.ConfirmRequest{
		Tuple: req.Tuple, Location: req.Location,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "attendance marked", "attendance": a})
}

// ---------- Round attendance ----------

func (h *Handler) ListAttendance(c *gin.Context) {
	f := repository.AttendanceFilter{JobID: c.Param("jobId"), RoundID: c.Query("roundId")}
	if raw := c.Query("status"); raw != "" {
		st, ok := model.ParseAttendanceStatus(raw)
		if !ok {
			h.fail(c, apperr.Validation(apperr.CodeInvalidRequest, "unknown status %q", raw))
			return
		}
		f.Status = st
	}
	f.Page, f.Limit = pageParams(c)
	page, err := h.svc.Attendance.List(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) UpdateAttendance(c *gin.Context) {
	var req struct {
		AttendanceIDs []string `json:"attendanceIds" binding:"required"`
		Status        string   `json:"status" binding:"required"`
	}
	if !h.bind(c, &req) {
		return
	}
	res, err := h.svc.Selection.UpdateStatus(c.Request.Context(), auth.Admin(c), c.Param("jobId"), req.AttendanceIDs, req.Status)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ---------- Final selections ----------

func (h *Handler) ListFinalSelected(c *gin.Context) {
	f := repository.SelectionFilter{JobID: c.Param("jobId"), Year: c.Query("year")}
	f.Page, f.Limit = pageParams(c)
	page, err := h.svc.Selection.List(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) AddFinalSelected(c *gin.Context) {
	var req struct {
		UserID  string   `json:"userId" binding:"required"`
		Tier    string   `json:"tier"`
		Package *float64 `json:"package"`
		Role    string   `json:"role"`
	}
	if !h.bind(c, &req) {
		return
	}
	fs, err := h.svc.Selection.ManualSelect(c.Request.Context(), auth.Admin(c), c.Param("jobId"), selection.ManualRequest{
		UserID: req.UserID, Tier: req.Tier, Package: req.Package, Role: req.Role,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"selection": fs})
}

func (h *Handler) RemoveFinalSelected(c *gin.Context) {
	if err := h.svc.Selection.Remove(c.Request.Context(), auth.Admin(c), c.Param("jobId"), c.Param("selectionId")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) Reconcile(c *gin.Context) {
	res, err := h.svc.Selection.Reconcile(c.Request.Context(), c.Param("jobId"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// ---------- Export ----------

func (h *Handler) Export(c *gin.Context) {
	f := export.Filter{
		Kind:    c.DefaultQuery("kind", export.KindAttendance),
		JobID:   c.Param("jobId"),
		RoundID: c.Query("roundId"),
		Year:    c.Query("year"),
	}
	if raw := c.Query("status"); raw != "" {
		st, ok := model.ParseAttendanceStatus(raw)
		if !ok {
			h.fail(c, apperr.Validation(apperr.CodeInvalidRequest, "unknown status %q", raw))
			return
		}
		f.Status = st
	}
	buf, name, err := h.svc.Export.Workbook(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", buf.Bytes())
}
