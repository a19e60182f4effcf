package server

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/TobiSchelling/accidentwatch/internal/database"
	"github.com/TobiSchelling/accidentwatch/internal/metrics"
	"github.com/TobiSchelling/accidentwatch/internal/report"
	"github.com/TobiSchelling/accidentwatch/internal/runner"
)

const (
	defaultLimit = 50
	maxLimit     = 500
	recentRuns   = 10
)

var md = goldmark.New(goldmark.WithExtensions(extension.Table))

var page = template.Must(template.New("page").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Road Accident Digest</title>
</head>
<body>
<main>
{{.}}
</main>
</body>
</html>
`))

// Runner is the run control the API exposes. *runner.Runner implements it.
type Runner interface {
	Start() (string, error)
	Stop() error
	Status() runner.Status
}

// Server is the HTTP API and digest page.
type Server struct {
	db      *database.DB
	runner  Runner
	metrics *metrics.Metrics
	engine  *gin.Engine
}

// New creates a new Server. m may be nil, in which case /metrics is not served.
func New(db *database.DB, r Runner, m *metrics.Metrics) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{db: db, runner: r, metrics: m, engine: engine}
	s.routes()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.engine
}

func (s *Server) routes() {
	s.engine.GET("/", s.handleIndex)

	api := s.engine.Group("/api")
	{
		api.POST("/scrape/start", s.handleStart)
		api.POST("/scrape/stop", s.handleStop)
		api.GET("/scrape/status", s.handleStatus)

		api.GET("/summary", s.handleSummaries)
		api.GET("/summary/:year", s.handleSummary)
		api.GET("/accidents", s.handleAccidents)
		api.GET("/runs", s.handleRuns)
		api.GET("/stats", s.handleStats)
	}

	if s.metrics != nil {
		s.engine.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	}
}

func (s *Server) handleStart(c *gin.Context) {
	id, err := s.runner.Start()
	if errors.Is(err, runner.ErrAlreadyRunning) {
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Accident data scraping started successfully",
		"run_id":  id,
	})
}

func (s *Server) handleStop(c *gin.Context) {
	if err := s.runner.Stop(); err != nil {
		if errors.Is(err, runner.ErrNotRunning) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Accident data scraping stop requested"})
}

func (s *Server) handleStatus(c *gin.Context) {
	c.JSON(http.StatusOK, s.runner.Status())
}

func (s *Server) handleSummaries(c *gin.Context) {
	summaries, err := s.db.YearlySummaries()
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, summaries)
}

func (s *Server) handleSummary(c *gin.Context) {
	year, err := strconv.Atoi(c.Param("year"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid year"})
		return
	}
	summary, err := s.db.YearlySummary(year)
	if err != nil {
		internalError(c, err)
		return
	}
	if summary == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": fmt.Sprintf("no summary for %d", year)})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (s *Server) handleAccidents(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid offset"})
		return
	}
	year, err := strconv.Atoi(c.DefaultQuery("year", "0"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid year"})
		return
	}
	opts := database.ListOptions{
		Limit:             min(limit, maxLimit),
		Offset:            offset,
		Year:              year,
		IncludeDuplicates: c.Query("include_duplicates") == "true",
	}

	records, err := s.db.ListRecords(opts)
	if err != nil {
		internalError(c, err)
		return
	}
	total, err := s.db.CountRecords(opts)
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"total": total, "records": records})
}

func (s *Server) handleRuns(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(recentRuns)))
	if err != nil || limit < 1 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
		return
	}
	runs, err := s.db.RecentRuns(min(limit, maxLimit))
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, runs)
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.db.GetStats()
	if err != nil {
		internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleIndex(c *gin.Context) {
	summaries, err := s.db.YearlySummaries()
	if err != nil {
		internalError(c, err)
		return
	}
	runs, err := s.db.RecentRuns(recentRuns)
	if err != nil {
		internalError(c, err)
		return
	}

	var buf bytes.Buffer
	if err := page.Execute(&buf, renderMarkdown(report.Compose(summaries, runs))); err != nil {
		internalError(c, err)
		return
	}
	c.Data(http.StatusOK, "text/html; charset=utf-8", buf.Bytes())
}

func internalError(c *gin.Context, err error) {
	log.Printf("Error handling %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// Serve starts the HTTP server on the given port.
func (s *Server) Serve(port int) error {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	log.Printf("Server listening on http://%s", addr)
	return http.ListenAndServe(addr, s.Handler())
}
