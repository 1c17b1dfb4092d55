package server

import (
	"context"
	"net/http"

	"github.com/auragrid/arbiter-server-go/internal/config"
	"github.com/auragrid/arbiter-server-go/internal/game"
	"github.com/auragrid/arbiter-server-go/internal/game/board"
	"github.com/auragrid/arbiter-server-go/internal/game/rules"
	"github.com/auragrid/arbiter-server-go/internal/session"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RestrictionChecker reports whether a player is currently banned from
// play. Implemented by the restrictions repository.
type RestrictionChecker interface {
	IsRestricted(ctx context.Context, playerID string) (bool, error)
}

// Server is the HTTP and websocket front of the match engine.
type Server struct {
	cfg          *config.Config
	logger       *zap.Logger
	manager      *game.Manager
	sessions     *session.Manager
	hub          *Hub
	restrictions RestrictionChecker
	redis        *redis.Client
}

// NewServer wires the transport layer. restrictions and redisClient may be
// nil; the corresponding checks are skipped.
func NewServer(cfg *config.Config, manager *game.Manager, sessions *session.Manager, hub *Hub, restrictions RestrictionChecker, redisClient *redis.Client, logger *zap.Logger) *Server {
	return &Server{
		cfg:          cfg,
		logger:       logger,
		manager:      manager,
		sessions:     sessions,
		hub:          hub,
		restrictions: restrictions,
		redis:        redisClient,
	}
}

// Router builds the gin engine with all routes and middleware attached.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.Use(Recovery(s.logger))
	router.Use(RequestLogger(s.logger))
	router.Use(Metrics())
	router.Use(RateLimit(s.redis, s.cfg.Server.RateLimit, s.cfg.Server.RateWindow, s.logger))

	router.GET("/healthz", s.handleHealth)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api")
	api.POST("/matches", s.handleCreateMatch)

	authed := api.Group("/matches/:id", Auth(s.sessions))
	authed.GET("/state", s.handleGetState)
	authed.POST("/actions", s.handleSubmitAction)
	authed.POST("/commit", s.handleCommitTurn)
	authed.POST("/forfeit", s.handleForfeit)
	authed.GET("/ws", s.handleWebSocket)

	return router
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type createUnitRequest struct {
	Owner     string         `json:"owner" binding:"required"`
	Position  board.Position `json:"position"`
	MaxHealth int            `json:"maxHealth" binding:"required"`
	MoveRange int            `json:"moveRange" binding:"required"`
	Abilities []string       `json:"abilities"`
}

type createMatchRequest struct {
	Players [2]string           `json:"players" binding:"required"`
	Units   []createUnitRequest `json:"units" binding:"required"`
}

type createMatchResponse struct {
	Success   bool              `json:"success"`
	MatchID   string            `json:"matchId,omitempty"`
	Tokens    map[string]string `json:"tokens,omitempty"`
	GameState *game.StateUpdate `json:"gameState,omitempty"`
	ErrorCode string            `json:"errorCode,omitempty"`
	ErrorMsg  string            `json:"errorMessage,omitempty"`
}

// handleCreateMatch starts a match and issues a session token per player.
func (s *Server) handleCreateMatch(c *gin.Context) {
	var req createMatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, createMatchResponse{
			Success:   false,
			ErrorCode: string(rules.ReasonInvalidInput),
			ErrorMsg:  "malformed request body",
		})
		return
	}
	if req.Players[0] == "" || req.Players[1] == "" || req.Players[0] == req.Players[1] {
		c.JSON(http.StatusBadRequest, createMatchResponse{
			Success:   false,
			ErrorCode: string(rules.ReasonInvalidInput),
			ErrorMsg:  "a match needs two distinct players",
		})
		return
	}

	if s.restrictions != nil {
		for _, player := range req.Players {
			restricted, err := s.restrictions.IsRestricted(c.Request.Context(), player)
			if err != nil {
				s.logger.Warn("restriction lookup failed",
					zap.String("player", player),
					zap.Error(err),
				)
				continue
			}
			if restricted {
				c.JSON(http.StatusForbidden, createMatchResponse{
					Success:   false,
					ErrorCode: string(rules.ReasonSecurityViolation),
					ErrorMsg:  "player is restricted from play",
				})
				return
			}
		}
	}

	grid := s.manager.Grid()
	occupied := make(map[board.Position]bool, len(req.Units))
	units := make([]*game.UnitState, 0, len(req.Units))
	for i, u := range req.Units {
		if u.Owner != req.Players[0] && u.Owner != req.Players[1] {
			c.JSON(http.StatusBadRequest, createMatchResponse{
				Success:   false,
				ErrorCode: string(rules.ReasonInvalidInput),
				ErrorMsg:  "unit owner is not one of the match players",
			})
			return
		}
		if !grid.Contains(u.Position) {
			c.JSON(http.StatusBadRequest, createMatchResponse{
				Success:   false,
				ErrorCode: string(rules.ReasonInvalidPosition),
				ErrorMsg:  "unit starting position is outside the grid",
			})
			return
		}
		if occupied[u.Position] {
			c.JSON(http.StatusBadRequest, createMatchResponse{
				Success:   false,
				ErrorCode: string(rules.ReasonPositionOccupied),
				ErrorMsg:  "two units share a starting position",
			})
			return
		}
		occupied[u.Position] = true
		units = append(units, &game.UnitState{
			ID:            i + 1,
			Owner:         u.Owner,
			Position:      u.Position,
			CurrentHealth: u.MaxHealth,
			MaxHealth:     u.MaxHealth,
			MoveRange:     u.MoveRange,
			Abilities:     u.Abilities,
		})
	}

	match := s.manager.CreateMatch(req.Players, units)

	tokens := make(map[string]string, 2)
	for _, player := range req.Players {
		token, err := s.sessions.Issue(player, match.ID)
		if err != nil {
			s.logger.Error("failed to issue session token",
				zap.String("match_id", match.ID),
				zap.String("player", player),
				zap.Error(err),
			)
			s.manager.RemoveMatch(match.ID)
			c.JSON(http.StatusInternalServerError, createMatchResponse{
				Success:   false,
				ErrorCode: string(rules.ReasonInternalError),
				ErrorMsg:  "failed to create match sessions",
			})
			return
		}
		tokens[player] = token
	}

	state, _ := s.manager.StateFor(match.ID)
	c.JSON(http.StatusOK, createMatchResponse{
		Success:   true,
		MatchID:   match.ID,
		Tokens:    tokens,
		GameState: &state,
	})
}

type actionResponse struct {
	Success   bool              `json:"success"`
	ErrorCode string            `json:"errorCode,omitempty"`
	ErrorMsg  string            `json:"errorMessage,omitempty"`
	GameState *game.StateUpdate `json:"gameState,omitempty"`
}

type submitActionRequest struct {
	Action rules.Action `json:"action" binding:"required"`
}

// handleSubmitAction runs one proposed action through validation and
// anti-cheat. The match is only mutated on acceptance.
func (s *Server) handleSubmitAction(c *gin.Context) {
	claims, matchID, ok := s.matchScope(c)
	if !ok {
		return
	}

	var req submitActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, actionResponse{
			Success:   false,
			ErrorCode: string(rules.ReasonInvalidInput),
			ErrorMsg:  "malformed request body",
		})
		return
	}

	result := s.manager.SubmitAction(c.Request.Context(), matchID, claims.PlayerID, req.Action)
	s.writeVerdict(c, matchID, result.Verdict)
}

// handleCommitTurn locks in a player's submissions for the turn.
func (s *Server) handleCommitTurn(c *gin.Context) {
	claims, matchID, ok := s.matchScope(c)
	if !ok {
		return
	}
	result := s.manager.CommitTurn(matchID, claims.PlayerID)
	s.writeVerdict(c, matchID, result.Verdict)
}

// handleForfeit concedes the match for the calling player.
func (s *Server) handleForfeit(c *gin.Context) {
	claims, matchID, ok := s.matchScope(c)
	if !ok {
		return
	}
	verdict := s.manager.Forfeit(matchID, claims.PlayerID)
	s.writeVerdict(c, matchID, verdict)
}

// handleGetState returns the full authoritative state projection. Clients
// use it for initial load and for reconciliation resync.
func (s *Server) handleGetState(c *gin.Context) {
	_, matchID, ok := s.matchScope(c)
	if !ok {
		return
	}
	state, found := s.manager.StateFor(matchID)
	if !found {
		c.JSON(http.StatusNotFound, actionResponse{
			Success:   false,
			ErrorCode: string(rules.ReasonMatchNotFound),
			ErrorMsg:  "match not found",
		})
		return
	}
	c.JSON(http.StatusOK, actionResponse{Success: true, GameState: &state})
}

// handleWebSocket upgrades the connection and subscribes it to the match's
// update stream.
func (s *Server) handleWebSocket(c *gin.Context) {
	claims, matchID, ok := s.matchScope(c)
	if !ok {
		return
	}

	up := upgrader(s.cfg.Server.AllowedOrigin)
	conn, err := up.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed",
			zap.String("match_id", matchID),
			zap.Error(err),
		)
		return
	}
	s.hub.serve(conn, matchID, claims.PlayerID)
}

// matchScope checks that the session token belongs to the match in the
// path. A token for match A never grants access to match B.
func (s *Server) matchScope(c *gin.Context) (*session.Claims, string, bool) {
	claims, ok := sessionClaims(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, actionResponse{
			Success:   false,
			ErrorCode: string(rules.ReasonSecurityViolation),
			ErrorMsg:  "missing session",
		})
		return nil, "", false
	}
	matchID := c.Param("id")
	if claims.MatchID != matchID {
		c.JSON(http.StatusForbidden, actionResponse{
			Success:   false,
			ErrorCode: string(rules.ReasonNotInMatch),
			ErrorMsg:  "session is not valid for this match",
		})
		return nil, "", false
	}
	return claims, matchID, true
}

// writeVerdict renders a verdict in the standard response envelope. The
// authoritative state rides along on success so clients can reconcile.
func (s *Server) writeVerdict(c *gin.Context, matchID string, verdict rules.Verdict) {
	if !verdict.Accepted {
		c.JSON(statusFor(verdict.Reason), actionResponse{
			Success:   false,
			ErrorCode: string(verdict.Reason),
			ErrorMsg:  verdict.Message,
		})
		return
	}
	state, _ := s.manager.StateFor(matchID)
	c.JSON(http.StatusOK, actionResponse{Success: true, GameState: &state})
}

func statusFor(reason rules.ReasonCode) int {
	switch reason {
	case rules.ReasonMatchNotFound:
		return http.StatusNotFound
	case rules.ReasonNotInMatch, rules.ReasonSecurityViolation:
		return http.StatusForbidden
	case rules.ReasonInternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}
