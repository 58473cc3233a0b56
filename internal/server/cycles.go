package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/casting-aggregator/internal/common"
)

// handleTriggerCycle runs a cycle synchronously; 409 while another cycle runs.
func (s *Server) handleTriggerCycle(c *gin.Context) {
	sum, err := s.deps.Cycles.TriggerManualRun(c.Request.Context())
	if err != nil {
		s.fail(c, "cycle.manual", err)
		return
	}
	c.JSON(http.StatusOK, sum)
}

func (s *Server) handleLastCycle(c *gin.Context) {
	sum, ok := s.deps.Cycles.Last()
	if !ok {
		s.fail(c, "cycle.last", common.NotFoundErrorf("no cycle has finished yet"))
		return
	}
	c.JSON(http.StatusOK, sum)
}
