package server

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ArionMiles/dispatchcost/pkg/api"
	"github.com/ArionMiles/dispatchcost/pkg/conversion"
	"github.com/ArionMiles/dispatchcost/pkg/currency"
	"github.com/ArionMiles/dispatchcost/pkg/form"
)

const sessionKey = "session"

type itemRequest struct {
	Item *string `json:"item" binding:"required"`
}

type amountRequest struct {
	Amount *string `json:"amount" binding:"required"`
}

type currencyRequest struct {
	Code string `json:"code" binding:"required,len=3,alpha"`
}

type rateRequest struct {
	Rate string `json:"rate" binding:"required"`
}

type formResponse struct {
	ID          string           `json:"id"`
	RecordID    string           `json:"record_id,omitempty"`
	EditMode    bool             `json:"edit_mode"`
	Status      string           `json:"status"`
	State       conversion.State `json:"state"`
	PayingIn    string           `json:"paying_in,omitempty"`
	Cost        string           `json:"cost,omitempty"`
	RateSummary string           `json:"rate_summary,omitempty"`
	ShowRate    bool             `json:"show_rate"`
	// Warning carries a non-fatal error such as a failed rate fetch or record load.
	Warning string `json:"warning,omitempty"`
}

type submitResponse struct {
	Mode   string             `json:"mode"`
	Result api.MutationResult `json:"result"`
}

func newFormResponse(id string, sess *form.Session) formResponse {
	state := sess.Engine().State()
	summary, show := state.RateSummary()

	resp := formResponse{
		ID:          id,
		RecordID:    sess.RecordID(),
		EditMode:    sess.EditMode(),
		Status:      sess.Status().String(),
		State:       state,
		RateSummary: summary,
		ShowRate:    show,
	}
	// Display strings are best effort; a code missing from the table only fails at submit.
	resp.PayingIn, _ = currency.Display(state.SourceCurrency, state.Amount, -1)
	resp.Cost, _ = currency.Display(state.TargetCurrency, state.TargetAmount, 2)
	return resp
}

func registerCurrencyRoutes(rg *gin.RouterGroup) {
	rg.GET("/currencies", func(c *gin.Context) {
		c.JSON(http.StatusOK, currency.All())
	})
}

func (s *Server) registerFormRoutes(rg *gin.RouterGroup) {
	rg.POST("/forms", s.createForm)

	forms := rg.Group("/forms/:sid", s.loadSession)
	{
		forms.GET("", s.getForm)
		forms.DELETE("", s.discardForm)
		forms.PUT("/item", s.setItem)
		forms.PUT("/amount", s.setAmount)
		forms.PUT("/source-currency", s.setCurrency("SourceCurrency", (*conversion.Engine).SetSourceCurrency))
		forms.PUT("/target-currency", s.setCurrency("TargetCurrency", (*conversion.Engine).SetTargetCurrency))
		forms.PUT("/override-rate", s.stageOverrideRate)
		forms.POST("/override-rate/commit", s.commitOverrideRate)
		forms.DELETE("/override-rate", s.cancelOverrideRate)
		forms.POST("/submit", s.submit)
	}
}

// loadSession resolves the :sid path parameter or aborts with 404.
func (s *Server) loadSession(c *gin.Context) {
	sess, ok := s.session(c.Param("sid"))
	if !ok {
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "form not found"})
		return
	}
	c.Set(sessionKey, sess)
	c.Next()
}

func sessionFrom(c *gin.Context) *form.Session {
	return c.MustGet(sessionKey).(*form.Session)
}

// createForm opens a form. With ?id= the record is loaded for editing, otherwise the rate for
// the default pair is fetched.
func (s *Server) createForm(c *gin.Context) {
	recordID := strings.TrimSpace(c.Query("id"))
	if recordID != "" {
		if err := form.ValidateRecordID(recordID); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	sess := form.NewSession(s.deps, recordID)
	loadErr := sess.Load(c.Request.Context())
	id := s.addSession(sess)

	s.logger.Info("form opened", "session", id, "record_id", recordID, "edit_mode", sess.EditMode())

	resp := newFormResponse(id, sess)
	if loadErr != nil {
		resp.Warning = loadErr.Error()
	}
	c.JSON(http.StatusCreated, resp)
}

func (s *Server) getForm(c *gin.Context) {
	c.JSON(http.StatusOK, newFormResponse(c.Param("sid"), sessionFrom(c)))
}

func (s *Server) discardForm(c *gin.Context) {
	s.removeSession(c.Param("sid"))
	c.Status(http.StatusNoContent)
}

func (s *Server) setItem(c *gin.Context) {
	var req itemRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	sess := sessionFrom(c)
	sess.Engine().SetItem(*req.Item)
	c.JSON(http.StatusOK, newFormResponse(c.Param("sid"), sess))
}

func (s *Server) setAmount(c *gin.Context) {
	var req amountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	sess := sessionFrom(c)
	if err := sess.Engine().SetAmount(*req.Amount); err != nil {
		c.JSON(http.StatusUnprocessableEntity, form.ValidationError{Field: "Amount", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, newFormResponse(c.Param("sid"), sess))
}

type currencySetter func(e *conversion.Engine, ctx context.Context, code string) error

// setCurrency applies a currency change. A failed rate fetch keeps the previous rate and is
// reported as a warning.
func (s *Server) setCurrency(field string, set currencySetter) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req currencyRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
			return
		}

		sess := sessionFrom(c)
		err := set(sess.Engine(), c.Request.Context(), req.Code)
		if errors.Is(err, currency.ErrUnknownCurrency) {
			c.JSON(http.StatusUnprocessableEntity, form.ValidationError{Field: field, Message: err.Error()})
			return
		}

		resp := newFormResponse(c.Param("sid"), sess)
		if err != nil {
			resp.Warning = err.Error()
		}
		c.JSON(http.StatusOK, resp)
	}
}

func (s *Server) stageOverrideRate(c *gin.Context) {
	var req rateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request format: " + err.Error()})
		return
	}

	sess := sessionFrom(c)
	if err := sess.Engine().StageOverrideRate(req.Rate); err != nil {
		c.JSON(http.StatusUnprocessableEntity, form.ValidationError{Field: "OverrideRate", Message: err.Error()})
		return
	}
	c.JSON(http.StatusOK, newFormResponse(c.Param("sid"), sess))
}

func (s *Server) commitOverrideRate(c *gin.Context) {
	sess := sessionFrom(c)
	sess.Engine().CommitOverrideRate()
	c.JSON(http.StatusOK, newFormResponse(c.Param("sid"), sess))
}

func (s *Server) cancelOverrideRate(c *gin.Context) {
	sess := sessionFrom(c)
	sess.Engine().CancelOverride()
	c.JSON(http.StatusOK, newFormResponse(c.Param("sid"), sess))
}

// submit persists the form. A successful submission closes the session.
func (s *Server) submit(c *gin.Context) {
	sid := c.Param("sid")
	sess := sessionFrom(c)
	logger := s.logger.With("session", sid)

	result, err := sess.Submit(c.Request.Context())
	if err != nil {
		var verr *form.ValidationError
		switch {
		case errors.As(err, &verr):
			c.JSON(http.StatusUnprocessableEntity, verr)
		case errors.Is(err, form.ErrSubmissionInProgress), errors.Is(err, form.ErrAlreadySubmitted):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case errors.Is(err, currency.ErrUnknownCurrency):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
		default:
			logger.Error("submission failed", "error", err)
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "status": sess.Status().String()})
		}
		return
	}

	mode := form.ModeCreate
	if sess.EditMode() {
		mode = form.ModeUpdate
	}
	s.removeSession(sid)
	logger.Info("form submitted", "mode", mode, "record_id", result.ID)

	c.JSON(http.StatusOK, submitResponse{Mode: mode, Result: result})
}
