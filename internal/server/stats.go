package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/casting-aggregator/constants"
)

type statsResponse struct {
	Queues      map[string]int                 `json:"queues"`
	Outbox      map[constants.OutboxStatus]int `json:"outbox"`
	DeadLetters int                            `json:"dead_letters"`
	Records     int                            `json:"records"`
	LastCycle   any                            `json:"last_cycle,omitempty"`
}

// handleStats exposes the state operators watch for a stalled pipeline.
func (s *Server) handleStats(c *gin.Context) {
	ctx := c.Request.Context()
	resp := statsResponse{Queues: map[string]int{}}

	for _, q := range []string{constants.QueueIngestion, constants.QueueValidation} {
		n, err := s.deps.Jobs.Depth(ctx, q)
		if err != nil {
			s.fail(c, "stats", err)
			return
		}
		resp.Queues[q] = n
	}
	counts, err := s.deps.Outbox.Counts(ctx)
	if err != nil {
		s.fail(c, "stats", err)
		return
	}
	resp.Outbox = counts
	if resp.DeadLetters, err = s.deps.DeadLetters.Count(ctx); err != nil {
		s.fail(c, "stats", err)
		return
	}
	if resp.Records, err = s.deps.Records.Count(ctx); err != nil {
		s.fail(c, "stats", err)
		return
	}
	if last, ok := s.deps.Cycles.Last(); ok {
		resp.LastCycle = last
	}
	c.JSON(http.StatusOK, resp)
}
