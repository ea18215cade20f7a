package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/yourusername/signup-api/internal/pkg/errors"
	"github.com/yourusername/signup-api/internal/service"
	"github.com/yourusername/signup-api/pkg/auth"
)

// SignupHandler serves the signup OTP endpoint and signin.
type SignupHandler struct {
	otpService     *service.OTPService
	accountService *service.AccountService
	tokenService   *auth.TokenService
}

func NewSignupHandler(otpService *service.OTPService, accountService *service.AccountService, tokenService *auth.TokenService) *SignupHandler {
	return &SignupHandler{
		otpService:     otpService,
		accountService: accountService,
		tokenService:   tokenService,
	}
}

// SignupRequest is the single JSON request of the signup endpoint; the
// action field selects the operation.
type SignupRequest struct {
	Action   string `json:"action" binding:"required,oneof=generate verify resend"`
	Email    string `json:"email" binding:"required,email"`
	OTP      string `json:"otp" binding:"omitempty,len=6,numeric"`
	Password string `json:"password" binding:"omitempty,min=6,max=50"`
}

// LoginRequest представляет запрос на вход
type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse is returned once signup or signin succeeds.
type AuthResponse struct {
	User        interface{} `json:"user"`
	AccessToken string      `json:"accessToken"`
	TokenType   string      `json:"tokenType"`
}

// Signup dispatches generate/verify/resend.
func (h *SignupHandler) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data"})
		return
	}

	meta := service.RequestMeta{
		IPAddress: c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}

	switch req.Action {
	case "generate":
		h.generate(c, req, meta)
	case "verify":
		h.verify(c, req, meta)
	case "resend":
		h.resend(c, req, meta)
	}
}

func (h *SignupHandler) generate(c *gin.Context, req SignupRequest, meta service.RequestMeta) {
	result, err := h.otpService.Generate(c.Request.Context(), req.Email, meta)
	if err != nil {
		respondSignupError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"message":      "Verification code sent",
		"attemptsLeft": result.AttemptsRemaining,
	})
}

func (h *SignupHandler) verify(c *gin.Context, req SignupRequest, meta service.RequestMeta) {
	if req.OTP == "" || req.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "otp and password are required for verify"})
		return
	}

	result, err := h.otpService.Verify(c.Request.Context(), req.Email, req.OTP, req.Password, meta)
	if err != nil {
		respondSignupError(c, err)
		return
	}

	token, err := h.tokenService.Generate(result.User.ID, result.User.Email)
	if err != nil {
		log.Printf("[SignupHandler] failed to issue token for user id=%d: %v", result.User.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user":    result.User,
		"auth": AuthResponse{
			User:        result.User,
			AccessToken: token,
			TokenType:   "Bearer",
		},
	})
}

func (h *SignupHandler) resend(c *gin.Context, req SignupRequest, meta service.RequestMeta) {
	result, err := h.otpService.Resend(c.Request.Context(), req.Email, meta)
	if err != nil {
		respondSignupError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":      true,
		"message":      "Verification code resent",
		"attemptsLeft": result.AttemptsRemaining,
	})
}

// Login обрабатывает запрос на вход
func (h *SignupHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request data"})
		return
	}

	user, err := h.accountService.Authenticate(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondSignupError(c, err)
		return
	}

	token, err := h.tokenService.Generate(user.ID, user.Email)
	if err != nil {
		log.Printf("[SignupHandler] failed to issue token for user id=%d: %v", user.ID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
		return
	}

	c.JSON(http.StatusOK, AuthResponse{
		User:        user,
		AccessToken: token,
		TokenType:   "Bearer",
	})
}

// respondSignupError maps service errors to the stable wire taxonomy.
func respondSignupError(c *gin.Context, err error) {
	var rateLimited *service.RateLimitedError
	if errors.As(err, &rateLimited) {
		resp := gin.H{"error": "RateLimited"}
		if rateLimited.BlockedUntil != nil {
			resp["blockedUntil"] = rateLimited.BlockedUntil
		}
		c.JSON(http.StatusTooManyRequests, resp)
		return
	}

	var accountBlocked *service.AccountBlockedError
	if errors.As(err, &accountBlocked) {
		resp := gin.H{"error": "AccountTemporarilyBlocked"}
		if accountBlocked.BlockedUntil != nil {
			resp["blockedUntil"] = accountBlocked.BlockedUntil
		}
		c.JSON(http.StatusTooManyRequests, resp)
		return
	}

	switch {
	case errors.Is(err, service.ErrTooSoon):
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "TooSoon"})
	case errors.Is(err, service.ErrEmailTaken):
		c.JSON(http.StatusBadRequest, gin.H{"error": "EmailTaken"})
	case errors.Is(err, service.ErrInvalidOrExpiredCode):
		c.JSON(http.StatusBadRequest, gin.H{"error": "InvalidOrExpiredCode"})
	case errors.Is(err, service.ErrInvalidCredentials):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "InvalidCredentials"})
	case errors.Is(err, service.ErrDeliveryFailed):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "DeliveryFailed"})
	case errors.Is(err, service.ErrAccountCreationFailed):
		c.JSON(http.StatusInternalServerError, gin.H{"error": "AccountCreationFailed"})
	case errors.Is(err, apperrors.ErrStorageUnavailable):
		log.Printf("[SignupHandler] storage unavailable: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "StorageUnavailable"})
	default:
		log.Printf("[SignupHandler] unexpected error: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
