package rest

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/solotracker/audit"
	"github.com/kasuganosora/solotracker/game/notify"
	"github.com/kasuganosora/solotracker/game/progression"
	"github.com/kasuganosora/solotracker/game/quest"
	mw "github.com/kasuganosora/solotracker/middleware"
)

// statusFor maps domain errors to an HTTP status and a client message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, quest.ErrNotFound), errors.Is(err, notify.ErrNotFound):
		return http.StatusNotFound, "not found"
	case errors.Is(err, progression.ErrProfileNotFound):
		return http.StatusNotFound, "profile not found"
	case errors.Is(err, quest.ErrAlreadyCompleted):
		return http.StatusConflict, "already completed"
	case errors.Is(err, progression.ErrConflict):
		return http.StatusConflict, "concurrent update, retry"
	case errors.Is(err, quest.ErrInvalidInput), errors.Is(err, progression.ErrInvalidAmount),
		errors.Is(err, progression.ErrAmountTooLarge):
		return http.StatusBadRequest, err.Error()
	default:
		return http.StatusInternalServerError, "internal error"
	}
}

func writeError(c *gin.Context, err error) {
	status, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(status, gin.H{"error": msg})
}

func paramID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

// record writes an audit entry for the current request. a may be nil.
func record(a *audit.Service, c *gin.Context, userID int64, action string, start time.Time, req, resp interface{}, err error) {
	if a == nil {
		return
	}
	e := audit.Entry{
		TraceID:    mw.GetTraceID(c),
		Action:     action,
		Request:    req,
		Response:   resp,
		IP:         c.ClientIP(),
		DurationMs: int(time.Since(start).Milliseconds()),
	}
	if userID > 0 {
		e.UserID = &userID
	}
	if err != nil {
		e.Error = err.Error()
	}
	a.Log(e)
}
