// Package handler exposes the placement services over HTTP.
package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"placement/internal/apperr"
	"placement/internal/attendance"
	"placement/internal/auth"
	"placement/internal/export"
	"placement/internal/round"
	"placement/internal/selection"
	"placement/internal/session"
)

// Services are the domain services the routes delegate to.
type Services struct {
	Rounds     *round.Service
	Sessions   *session.Service
	Attendance *attendance.Service
	Selection  *selection.Service
	Export     *export.Service
}

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) bool

type Handler struct {
	svc    Services
	checks map[string]Check
	log    *zap.Logger
}

func New(svc Services, checks map[string]Check, log *zap.Logger) *Handler {
	return &Handler{svc: svc, checks: checks, log: log}
}

// Auth carries the bearer token settings.
type Auth struct {
	SigningKey string
	Issuer     string
}

// Register mounts every route on r.
func (h *Handler) Register(r gin.IRouter, a Auth) {
	r.GET("/healthz", h.Healthz)

	bearer := auth.Bearer(a.SigningKey, a.Issuer)

	admin := r.Group("/v1/admin", bearer, auth.RequireRole(auth.RoleAdmin))
	admin.POST("/attendance/scan", h.Scan)
	admin.POST("/attendance/confirm", h.Confirm)

	jobs := admin.Group("/jobs/:jobId")
	jobs.POST("/rounds", h.CreateRounds)
	jobs.GET("/rounds", h.ListRounds)
	jobs.POST("/rounds/swap", h.SwapRounds)
	jobs.DELETE("/rounds/:roundId", h.RemoveRound)
	jobs.POST("/sessions", h.StartSession)
	jobs.GET("/sessions", h.ListSessions)
	jobs.PUT("/sessions/:sessionId", h.UpdateSession)
	jobs.GET("/round-attendance", h.ListAttendance)
	jobs.PUT("/round-attendance", h.UpdateAttendance)
	jobs.GET("/final-selected", h.ListFinalSelected)
	jobs.POST("/final-selected", h.AddFinalSelected)
	jobs.DELETE("/final-selected/:selectionId", h.RemoveFinalSelected)
	jobs.POST("/reconcile", h.Reconcile)
	jobs.GET("/export", h.Export)

	student := r.Group("/v1/student", bearer, auth.RequireRole(auth.RoleStudent))
	student.GET("/jobs/:jobId/rounds", h.StudentRounds)
}

func (h *Handler) Healthz(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range h.checks {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}

// fail renders err as {"error","code","details"}.
func (h *Handler) fail(c *gin.Context, err error) {
	ae, ok := apperr.As(err)
	if !ok {
		ae = apperr.Internal(err)
	}
	if ae.Kind == apperr.KindInternal {
		h.log.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	_ = c.Error(err)
	body := gin.H{"error": ae.Message, "code": ae.Code}
	if len(ae.Details) > 0 {
		body["details"] = ae.Details
	}
	c.AbortWithStatusJSON(ae.Status(), body)
}

func (h *Handler) bind(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		h.fail(c, apperr.Validation(apperr.CodeInvalidRequest, "invalid request body: %v", err))
		return false
	}
	return true
}

// pageParams reads page and limit; repository.Paginate normalizes them.
func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	return page, limit
}
