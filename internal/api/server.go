package api

import (
	"context"
	"errors"
	"net/http"

	"telecare/internal/core"
	"telecare/internal/db"
	"telecare/internal/events"
	"telecare/internal/logger"

	"github.com/gin-gonic/gin"
)

// Server bundles the dependencies behind the HTTP surface.
type Server struct {
	Repo      *db.Repository
	Assistant *core.Assistant
	Notifier  *db.Notifier
	Emitter   *events.Emitter
}

// NewRouter builds the gin engine with all routes mounted.
func NewRouter(s *Server) *gin.Engine {
	router := gin.Default()

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	apiGroup := router.Group("/api")
	{
		apiGroup.POST("/ai/chat", s.handleAIChat)
		apiGroup.GET("/ai/chat/:userID", s.handleAIHistory)
		apiGroup.GET("/doctors", s.handleListDoctors)
		apiGroup.POST("/connections", s.handleCreateConnection)
		apiGroup.POST("/connections/:id/accept", s.handleAcceptConnection)
		apiGroup.GET("/patients/:id/connections", s.handlePatientConnections)
		apiGroup.GET("/doctors/:id/connections", s.handleDoctorConnections)
	}
	return router
}

type aiChatRequest struct {
	UserID  string `json:"user_id" binding:"required"`
	Message string `json:"message" binding:"required"`
}

// handleAIChat runs the assistant pipeline for one message, persists the
// completed exchange and notifies row-change listeners.
func (s *Server) handleAIChat(c *gin.Context) {
	var req aiChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}

	response, err := s.Assistant.Respond(c.Request.Context(), req.UserID, req.Message)
	if err != nil {
		if errors.Is(err, core.ErrAIProcessing) {
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	exchange, err := s.Repo.SaveExchange(c.Request.Context(), req.UserID, req.Message, response)
	if err != nil {
		logger.For("api").WithError(err).Error("saving exchange failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save exchange"})
		return
	}
	s.notify("ai_chats:" + req.UserID)

	c.JSON(http.StatusOK, exchange)
}

func (s *Server) handleAIHistory(c *gin.Context) {
	exchanges, err := s.Repo.ListExchanges(c.Request.Context(), c.Param("userID"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load history"})
		return
	}
	c.JSON(http.StatusOK, exchanges)
}

func (s *Server) handleListDoctors(c *gin.Context) {
	doctors, err := s.Repo.ListDoctors(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load doctors"})
		return
	}
	c.JSON(http.StatusOK, doctors)
}

type createConnectionRequest struct {
	PatientID string `json:"patient_id" binding:"required"`
	DoctorID  string `json:"doctor_id" binding:"required"`
}

func (s *Server) handleCreateConnection(c *gin.Context) {
	var req createConnectionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request: " + err.Error()})
		return
	}
	conn, err := s.Repo.CreateConnection(c.Request.Context(), req.PatientID, req.DoctorID)
	if err != nil {
		c.JSON(http.StatusConflict, gin.H{"error": "failed to create connection"})
		return
	}
	s.Emitter.ConnectionRequested(*conn)
	s.notify("connections:" + conn.DoctorID)
	c.JSON(http.StatusCreated, conn)
}

func (s *Server) handleAcceptConnection(c *gin.Context) {
	conn, err := s.Repo.AcceptConnection(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, db.ErrNotPending) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to accept connection"})
		return
	}
	s.Emitter.ConnectionAccepted(*conn)
	s.notify("connections:" + conn.PatientID)
	c.JSON(http.StatusOK, conn)
}

func (s *Server) handlePatientConnections(c *gin.Context) {
	conns, err := s.Repo.ListConnectionsByPatient(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load connections"})
		return
	}
	c.JSON(http.StatusOK, conns)
}

func (s *Server) handleDoctorConnections(c *gin.Context) {
	conns, err := s.Repo.ListConnectionsByDoctor(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load connections"})
		return
	}
	c.JSON(http.StatusOK, conns)
}

func (s *Server) notify(payload string) {
	if s.Notifier == nil {
		return
	}
	if err := s.Notifier.Notify(context.Background(), payload); err != nil {
		logger.For("api").WithError(err).Warn("row-change notify failed")
	}
}
