package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) handleExportDeadLetters(c *gin.Context) {
	limit, err := queryLimit(c, 1000, 10000)
	if err != nil {
		s.fail(c, "export.dead_letters", err)
		return
	}
	b, err := s.deps.Exports.DeadLettersXLSX(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, "export.dead_letters", err)
		return
	}
	s.attachment(c, "dead-letters", b)
}

func (s *Server) handleExportRecords(c *gin.Context) {
	status, err := queryStatus(c)
	if err != nil {
		s.fail(c, "export.records", err)
		return
	}
	limit, err := queryLimit(c, 1000, 10000)
	if err != nil {
		s.fail(c, "export.records", err)
		return
	}
	b, err := s.deps.Exports.RecordsXLSX(c.Request.Context(), status, limit)
	if err != nil {
		s.fail(c, "export.records", err)
		return
	}
	s.attachment(c, "casting-calls", b)
}

func (s *Server) attachment(c *gin.Context, name string, b []byte) {
	filename := fmt.Sprintf("%s-%s.xlsx", name, time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, xlsxContentType, b)
}
