package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/BAOscarAndersson/BrowserBirdFunctionApi/internal/models"
	"github.com/BAOscarAndersson/BrowserBirdFunctionApi/pkg/logger"
	"github.com/BAOscarAndersson/BrowserBirdFunctionApi/pkg/middleware"
)

// TokenExchanger redeems an OAuth authorization code for a bearer token.
type TokenExchanger interface {
	ExchangeCode(ctx context.Context, code string) (string, error)
}

// Leaderboard stores and returns a user's ranked scores.
type Leaderboard interface {
	Submit(ctx context.Context, userID string, value int32) ([]models.Score, error)
	Retrieve(ctx context.Context, userID string) ([]models.Score, error)
}

// HighscoreHandler holds dependencies. A nil dependency is not an error at
// construction; the endpoints needing it answer 424 instead.
type HighscoreHandler struct {
	exchanger TokenExchanger
	board     Leaderboard
	validator middleware.Validator
	limiter   gin.HandlerFunc
}

func NewHighscoreHandler(exchanger TokenExchanger, board Leaderboard, validator middleware.Validator) *HighscoreHandler {
	return &HighscoreHandler{exchanger: exchanger, board: board, validator: validator}
}

// WithLimiter runs l on the score endpoints after authentication, so it can
// key on the user id.
func (h *HighscoreHandler) WithLimiter(l gin.HandlerFunc) *HighscoreHandler {
	h.limiter = l
	return h
}

// Register routes
func (h *HighscoreHandler) Register(r gin.IRoutes) {
	r.GET("/liveness", Liveness)
	r.POST("/jwt/:code", h.ExchangeCode)
	r.POST("/score/:score", h.scoreChain(h.PostScore)...)
	r.GET("/scores", h.scoreChain(h.GetScores)...)
}

func (h *HighscoreHandler) scoreChain(final gin.HandlerFunc) []gin.HandlerFunc {
	chain := []gin.HandlerFunc{h.requireScoreDeps, middleware.AuthMiddleware(h.validator)}
	if h.limiter != nil {
		chain = append(chain, h.limiter)
	}
	return append(chain, final)
}

// requireScoreDeps answers 424 before authentication when the signing secret
// or the store is not wired.
func (h *HighscoreHandler) requireScoreDeps(c *gin.Context) {
	if h.validator == nil || h.board == nil {
		c.AbortWithStatus(http.StatusFailedDependency)
		return
	}
	c.Next()
}

func Liveness(c *gin.Context) {
	c.Status(http.StatusOK)
}

// ExchangeCode handles POST /jwt/:code. The body is the token as a JSON string.
func (h *HighscoreHandler) ExchangeCode(c *gin.Context) {
	if h.exchanger == nil {
		c.AbortWithStatus(http.StatusFailedDependency)
		return
	}
	tok, err := h.exchanger.ExchangeCode(c.Request.Context(), c.Param("code"))
	if err != nil {
		c.AbortWithStatus(http.StatusUnauthorized)
		return
	}
	c.JSON(http.StatusCreated, tok)
}

// PostScore handles POST /score/:score.
func (h *HighscoreHandler) PostScore(c *gin.Context) {
	log := logger.Named("TryPostScore")
	userID, _ := middleware.UserID(c)

	v, err := strconv.ParseInt(c.Param("score"), 10, 32)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "score must be a 32-bit integer"})
		return
	}
	if _, err := h.board.Submit(c.Request.Context(), userID, int32(v)); err != nil {
		log.Errorf("Failed to update table with new highscore for user %s: %v", userID, err)
		c.AbortWithStatus(http.StatusInternalServerError)
		return
	}
	c.Status(http.StatusCreated)
}

// GetScores handles GET /scores, returning the caller's scores best first.
func (h *HighscoreHandler) GetScores(c *gin.Context) {
	log := logger.Named("TryGetScores")
	userID, _ := middleware.UserID(c)

	scores, err := h.board.Retrieve(c.Request.Context(), userID)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.Errorf("In TryGetScores: %v", err)
		}
		c.AbortWithStatus(http.StatusNotFound)
		return
	}
	if scores == nil {
		scores = []models.Score{}
	}
	c.JSON(http.StatusOK, scores)
}
