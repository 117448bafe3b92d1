package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"wabridge/internal/middleware"
	"wabridge/internal/models"
	"wabridge/internal/service"
	"wabridge/internal/tracing"
	"wabridge/pkg/qr"
)

type Server struct {
	router     *mux.Router
	logger     *logrus.Logger
	controller *service.Controller
	gateway    *service.SendGateway
	cfg        *models.Config
	server     *http.Server
}

func NewServer(cfg *models.Config, controller *service.Controller, gateway *service.SendGateway, logger *logrus.Logger) *Server {
	s := &Server{
		router:     mux.NewRouter(),
		logger:     logger,
		controller: controller,
		gateway:    gateway,
		cfg:        cfg,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(tracing.Middleware)
	s.router.Use(middleware.RequestLogging(s.logger))

	s.router.HandleFunc("/health", s.handleHealth()).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/session/status/{id}", s.handleSessionStatus()).Methods(http.MethodGet)
	api.HandleFunc("/session/{id}", s.handleCreateSession()).Methods(http.MethodPost)
	api.HandleFunc("/session/{id}", s.handleDeleteSession()).Methods(http.MethodDelete)
	api.HandleFunc("/session/{id}/send", s.handleSend()).Methods(http.MethodPost)
	api.HandleFunc("/session/{id}/qr", s.handleQR()).Methods(http.MethodGet)
	api.HandleFunc("/session/{id}/qr-image", s.handleQRImage()).Methods(http.MethodGet)
	api.HandleFunc("/session/{id}/qr-view", s.handleQRView()).Methods(http.MethodGet)
	api.HandleFunc("/sessions", s.handleListSessions()).Methods(http.MethodGet)
}

func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.cfg.Server.Port),
		Handler:      s.router,
		ReadTimeout:  time.Duration(s.cfg.Server.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(s.cfg.Server.WriteTimeoutSec) * time.Second,
		IdleTimeout:  time.Duration(s.cfg.Server.IdleTimeoutSec) * time.Second,
	}

	s.logger.Infof("Starting server on port %d", s.cfg.Server.Port)
	return s.server.ListenAndServe()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.WithError(err).Error("Failed to write response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

func (s *Server) handleHealth() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

// handleCreateSession persists the posted config fields and creates or
// recovers the session.
func (s *Server) handleCreateSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		var update models.SessionConfig
		if r.Body != nil {
			if err := json.NewDecoder(r.Body).Decode(&update); err != nil && err.Error() != "EOF" {
				s.writeError(w, http.StatusBadRequest, "invalid request body")
				return
			}
		}

		if err := s.controller.SaveConfig(id, &update); err != nil {
			s.logger.WithError(err).WithField("session", id).Error("Failed to save session config")
			s.writeError(w, http.StatusInternalServerError, "Failed to create session")
			return
		}

		if _, err := s.controller.CreateSession(r.Context(), id); err != nil {
			s.logger.WithError(err).WithField("session", id).Error("Failed to create session")
			s.writeError(w, http.StatusInternalServerError, "Failed to create session")
			return
		}

		s.writeJSON(w, http.StatusOK, map[string]string{
			"message": fmt.Sprintf("Session %s created or recovered successfully.", id),
		})
	}
}

func (s *Server) handleSessionStatus() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		connected, user, ok := s.controller.SessionStatus(id)
		if !ok {
			s.writeError(w, http.StatusNotFound, "Session not found")
			return
		}

		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"session":   id,
			"connected": connected,
			"user":      user,
		})
	}
}

func (s *Server) handleSend() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		var body struct {
			Fields *models.SendRequest `json:"fields"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		result, err := s.gateway.Send(r.Context(), id, body.Fields)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrMissingRecipient):
				s.writeError(w, http.StatusBadRequest, err.Error())
			case errors.Is(err, service.ErrSessionNotFound):
				s.writeError(w, http.StatusNotFound, "Session not found")
			default:
				s.logger.WithError(err).WithField("session", id).Error("Failed to send message")
				s.writeError(w, http.StatusInternalServerError, "Failed to send message")
			}
			return
		}

		s.writeJSON(w, http.StatusOK, result)
	}
}

func (s *Server) handleQR() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		code, ok := s.controller.QR(id)
		if !ok {
			s.writeError(w, http.StatusNotFound, "QR code not found or already scanned")
			return
		}

		s.writeJSON(w, http.StatusOK, map[string]string{"qr": code})
	}
}

func (s *Server) handleQRImage() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		code, ok := s.controller.QR(id)
		if !ok {
			s.writeError(w, http.StatusNotFound, "QR code not found or already scanned")
			return
		}

		svg, err := qr.ToSVG(code)
		if err != nil {
			s.logger.WithError(err).WithField("session", id).Error("Failed to render QR code")
			s.writeError(w, http.StatusInternalServerError, "Failed to generate QR code image")
			return
		}

		s.writeJSON(w, http.StatusOK, map[string]string{"qr": code, "svg": svg})
	}
}

// handleQRView serves a minimal HTML page embedding the pairing code, for
// scanning straight from a browser tab.
func (s *Server) handleQRView() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		code, ok := s.controller.QR(id)
		if !ok {
			s.writeError(w, http.StatusNotFound, "QR code not found or already scanned")
			return
		}

		svg, err := qr.ToSVG(code)
		if err != nil {
			s.logger.WithError(err).WithField("session", id).Error("Failed to render QR code")
			s.writeError(w, http.StatusInternalServerError, "Failed to generate QR code image")
			return
		}

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprintf(w, `<!DOCTYPE html><html><head><title>Pair session %s</title></head>`+
			`<body style="display:flex;justify-content:center;align-items:center;height:100vh;margin:0">`+
			`<div style="width:320px;height:320px">%s</div></body></html>`, id, svg)
	}
}

func (s *Server) handleListSessions() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.writeJSON(w, http.StatusOK, map[string][]string{"sessions": s.controller.Sessions()})
	}
}

func (s *Server) handleDeleteSession() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := mux.Vars(r)["id"]

		removed, err := s.controller.DeleteSession(id)
		if err != nil {
			s.logger.WithError(err).WithField("session", id).Error("Failed to delete session")
			s.writeError(w, http.StatusInternalServerError, "Failed to delete session")
			return
		}
		if !removed {
			s.writeError(w, http.StatusNotFound, "Session not found")
			return
		}

		s.writeJSON(w, http.StatusOK, map[string]string{
			"message": fmt.Sprintf("Session %s deleted.", id),
		})
	}
}
