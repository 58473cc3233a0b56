package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/casting-aggregator/internal/common"
	"github.com/joseph-ayodele/casting-aggregator/internal/sources"
)

type registerSourceRequest struct {
	Kind    string `json:"kind" binding:"required"`
	Locator string `json:"locator" binding:"required"`
	Name    string `json:"name"`
	Enabled *bool  `json:"enabled"`
}

func (s *Server) handleListSources(c *gin.Context) {
	srcs, err := s.deps.Sources.List(c.Request.Context())
	if err != nil {
		s.fail(c, "sources.list", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sources": srcs})
}

func (s *Server) handleRegisterSource(c *gin.Context) {
	var req registerSourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, "sources.register", common.InvalidInputErrorf("%v", err))
		return
	}
	reg, err := sources.NewRegistration(req.Kind, req.Locator, req.Name)
	if err != nil {
		s.fail(c, "sources.register", err)
		return
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	src, err := s.deps.Sources.Upsert(c.Request.Context(), reg.Kind, reg.Locator, reg.Name, enabled)
	if err != nil {
		s.fail(c, "sources.register", err)
		return
	}
	c.JSON(http.StatusCreated, src)
}
