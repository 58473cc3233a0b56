package server

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/casting-aggregator/constants"
	"github.com/joseph-ayodele/casting-aggregator/internal/common"
)

func queryLimit(c *gin.Context, def, max int) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, common.InvalidInputErrorf("limit must be a positive integer")
	}
	return min(n, max), nil
}

func queryStatus(c *gin.Context) (constants.RecordStatus, error) {
	raw := c.Query("status")
	if raw == "" {
		return "", nil
	}
	st, ok := constants.ParseRecordStatus(raw)
	if !ok {
		return "", common.InvalidInputErrorf("unknown status %q", raw)
	}
	return st, nil
}

func (s *Server) handleListRecords(c *gin.Context) {
	status, err := queryStatus(c)
	if err != nil {
		s.fail(c, "records.list", err)
		return
	}
	limit, err := queryLimit(c, 100, 1000)
	if err != nil {
		s.fail(c, "records.list", err)
		return
	}
	recs, err := s.deps.Records.List(c.Request.Context(), status, limit)
	if err != nil {
		s.fail(c, "records.list", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"records": recs})
}

func (s *Server) handleGetRecord(c *gin.Context) {
	rec, err := s.deps.Records.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.fail(c, "records.get", err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

type setStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

// handleSetRecordStatus is the review step: pending_review to open or rejected.
func (s *Server) handleSetRecordStatus(c *gin.Context) {
	var req setStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.fail(c, "records.status", common.InvalidInputErrorf("%v", err))
		return
	}
	st, ok := constants.ParseRecordStatus(req.Status)
	if !ok {
		s.fail(c, "records.status", common.InvalidInputErrorf("unknown status %q", req.Status))
		return
	}
	id := c.Param("id")
	if err := s.deps.Records.UpdateStatus(c.Request.Context(), id, st); err != nil {
		s.fail(c, "records.status", err)
		return
	}
	s.log(c).Info("records.status_changed", "record_id", id, "status", st)
	c.JSON(http.StatusOK, gin.H{"id": id, "status": st})
}
