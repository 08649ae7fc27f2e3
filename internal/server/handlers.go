package server

import (
	"errors"
	"net/http"
	"strconv"

	"numrelay-go/internal/apperrors"

	"github.com/gin-gonic/gin"
)

func renderError(c *gin.Context, err error) {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{"code": "internal_error", "message": err.Error()},
		})
		return
	}

	status := http.StatusBadGateway
	switch appErr.Kind {
	case apperrors.KindHardDeny:
		status = http.StatusForbidden
		if appErr.Code == "number_not_found" || appErr.Code == "account_not_found" {
			status = http.StatusNotFound
		}
	case apperrors.KindPoolExhausted:
		status = http.StatusServiceUnavailable
	case apperrors.KindCredential:
		status = http.StatusUnprocessableEntity
	case apperrors.KindMembershipUnreachable:
		status = http.StatusServiceUnavailable
	}

	c.JSON(status, gin.H{
		"error": gin.H{
			"code":    appErr.Code,
			"kind":    appErr.Kind.String(),
			"message": appErr.Message,
		},
	})
}

func principalParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "invalid_principal", "message": "principal id must be an integer"},
		})
		return 0, false
	}
	return id, true
}

func (s *Server) handleHealth(c *gin.Context) {
	status := "ok"
	code := http.StatusOK
	if s.health != nil {
		if err := s.health.Health(c.Request.Context()); err != nil {
			status = "degraded"
			code = http.StatusServiceUnavailable
		}
	}
	c.JSON(code, gin.H{
		"status":      status,
		"shared_pool": s.svc.Registry().Shared().ActiveCount(),
	})
}

func (s *Server) handlePoolStatus(c *gin.Context) {
	principal, ok := principalQuery(c)
	if !ok {
		return
	}
	report, err := s.svc.PoolStatus(principal)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

type addAccountRequest struct {
	Principal int64  `json:"principal" binding:"required"`
	SID       string `json:"sid" binding:"required"`
	Token     string `json:"token" binding:"required"`
}

func (s *Server) handleAddAccount(c *gin.Context) {
	var req addAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "invalid_request", "message": err.Error()},
		})
		return
	}
	if err := s.svc.AddSharedAccount(c.Request.Context(), req.Principal, req.SID, req.Token); err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"sid": req.SID, "status": "active"})
}

func (s *Server) handleReactivateAccount(c *gin.Context) {
	principal, ok := principalQuery(c)
	if !ok {
		return
	}
	if err := s.svc.ReactivateSharedAccount(principal, c.Param("sid")); err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sid": c.Param("sid"), "status": "active"})
}

func (s *Server) handleGetPrincipal(c *gin.Context) {
	id, ok := principalParam(c)
	if !ok {
		return
	}
	rec, found := s.svc.Record(id)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{
			"error": gin.H{"code": "principal_not_found", "message": "no record for principal"},
		})
		return
	}
	// Tokens never leave through the management surface.
	for i := range rec.Accounts {
		rec.Accounts[i].Token = ""
	}
	c.JSON(http.StatusOK, rec)
}

func (s *Server) handleVerify(c *gin.Context) {
	id, ok := principalParam(c)
	if !ok {
		return
	}
	decision := s.svc.Verifier().Verify(c.Request.Context(), id)
	c.JSON(http.StatusOK, decision)
}

type loginRequest struct {
	SID   string `json:"sid" binding:"required"`
	Token string `json:"token" binding:"required"`
}

func (s *Server) handleLogin(c *gin.Context) {
	id, ok := principalParam(c)
	if !ok {
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "invalid_request", "message": err.Error()},
		})
		return
	}
	if err := s.svc.Login(c.Request.Context(), id, req.SID, req.Token); err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "logged_in", "sid": req.SID})
}

type bulkLoginRequest struct {
	Blob string `json:"blob" binding:"required"`
}

func (s *Server) handleBulkLogin(c *gin.Context) {
	id, ok := principalParam(c)
	if !ok {
		return
	}
	var req bulkLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "invalid_request", "message": err.Error()},
		})
		return
	}
	report, err := s.svc.BulkLogin(c.Request.Context(), id, req.Blob)
	if err != nil {
		if report != nil {
			c.JSON(http.StatusUnprocessableEntity, gin.H{"report": report, "error": gin.H{
				"code": apperrors.KindOf(err).String(), "message": err.Error(),
			}})
			return
		}
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleLogout(c *gin.Context) {
	id, ok := principalParam(c)
	if !ok {
		return
	}
	s.svc.Logout(c.Request.Context(), id)
	c.JSON(http.StatusOK, gin.H{"status": "logged_out"})
}

type searchRequest struct {
	Principal int64  `json:"principal" binding:"required"`
	Country   string `json:"country"`
	TollFree  bool   `json:"toll_free"`
}

func (s *Server) handleSearch(c *gin.Context) {
	var req searchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "invalid_request", "message": err.Error()},
		})
		return
	}

	ctx := c.Request.Context()
	numbers, err := func() (interface{}, error) {
		if req.TollFree {
			return s.svc.SearchTollFree(ctx, req.Principal)
		}
		return s.svc.SearchNumbers(ctx, req.Principal, req.Country)
	}()
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"numbers": numbers})
}

type purchaseRequest struct {
	Principal int64  `json:"principal" binding:"required"`
	Number    string `json:"number" binding:"required"`
}

func (s *Server) handlePurchase(c *gin.Context) {
	var req purchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "invalid_request", "message": err.Error()},
		})
		return
	}
	target, err := s.svc.PurchaseNumber(c.Request.Context(), req.Principal, req.Number)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, target)
}

func (s *Server) handleMessages(c *gin.Context) {
	principal, ok := principalQuery(c)
	if !ok {
		return
	}
	number := c.Query("number")
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	messages, err := s.svc.FetchMessages(c.Request.Context(), principal, number, limit)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

type broadcastRequest struct {
	Principal int64  `json:"principal" binding:"required"`
	Message   string `json:"message" binding:"required"`
}

func (s *Server) handleBroadcast(c *gin.Context) {
	var req broadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "invalid_request", "message": err.Error()},
		})
		return
	}
	summary, err := s.svc.Broadcast(c.Request.Context(), req.Principal, req.Message)
	if err != nil {
		renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

func principalQuery(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Query("principal"), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": gin.H{"code": "invalid_principal", "message": "principal query parameter must be an integer"},
		})
		return 0, false
	}
	return id, true
}
