package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (s *Server) handleListDeadLetters(c *gin.Context) {
	limit, err := queryLimit(c, 100, 1000)
	if err != nil {
		s.fail(c, "dead_letters.list", err)
		return
	}
	dls, err := s.deps.DeadLetters.List(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, "dead_letters.list", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"dead_letters": dls})
}

func (s *Server) handleGetDeadLetter(c *gin.Context) {
	dl, err := s.deps.DeadLetters.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, "dead_letters.get", err)
		return
	}
	c.JSON(http.StatusOK, dl)
}

func (s *Server) handleRequeueDeadLetter(c *gin.Context) {
	id := c.Param("id")
	target, err := s.deps.DeadLetters.Requeue(c.Request.Context(), id)
	if err != nil {
		s.fail(c, "dead_letters.requeue", err)
		return
	}
	s.log(c).Info("dead_letters.requeued", "dead_letter_id", id, "target_id", target)
	c.JSON(http.StatusOK, gin.H{"dead_letter_id": id, "requeued_as": target})
}
