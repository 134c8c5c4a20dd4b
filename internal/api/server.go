// Package api serves the model loader over HTTP.
package api

import (
	"net/http"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/ferry/internal/logger"
)

type Server struct {
	models ModelProvider
	log    logger.Logger
}

func NewServer(models ModelProvider, log logger.Logger) *Server {
	if log == nil {
		log = logger.Discard()
	}
	return &Server{models: models, log: log}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET("/healthz", s.handleHealth)
	e.GET("/v1/models", s.handleListModels)
	e.POST("/v1/models/load", s.handleLoadModel)
}

func (s *Server) handleHealth(c *echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListModels(c *echo.Context) error {
	return c.JSON(http.StatusOK, ModelList{Object: "list", Data: s.models.List()})
}

func (s *Server) handleLoadModel(c *echo.Context) error {
	req, err := decodeJSON[LoadRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, err.Error())
	}
	ctx := logger.WithContext(c.Request().Context(), s.log.With("model", req.Model))
	summary, err := s.models.Load(ctx, req)
	if err != nil {
		s.log.Warn("load failed", "model", req.Model, "error", err)
		return writeLoadError(c, err)
	}
	return c.JSON(http.StatusOK, summary)
}
