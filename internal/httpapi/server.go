// internal/httpapi/server.go
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	gin "github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rovshanmuradov/whale-tracker/internal/domain"
	"github.com/rovshanmuradov/whale-tracker/internal/history"
	"github.com/rovshanmuradov/whale-tracker/internal/tracker"
)

type Status interface {
	State() tracker.State
	Cycles() uint64
	LastCycle() time.Time
}

type Addresses interface {
	List() []domain.TrackedAddress
	Resolve(address string) string
	Contains(address string) bool
}

type Positions interface {
	Get(address string) domain.Positions
	Snapshot() domain.Snapshot
}

type Changes interface {
	Recent(limit int) []history.Entry
	ForAddress(address string) []history.Entry
	TopMovers(n int) []string
	Stats() history.Stats
}

type Subscribers interface {
	Len() int
}

type EventStats interface {
	Stats() map[string]interface{}
}

// Deps are the read-only views the API serves.
type Deps struct {
	Status      Status
	Addresses   Addresses
	Positions   Positions
	Changes     Changes
	Subscribers Subscribers
	// Events, when set, adds event bus counters to /healthz.
	Events EventStats
	// Metrics is mounted at /metrics when set.
	Metrics http.Handler
}

type Server struct {
	R       *gin.Engine
	deps    Deps
	logger  *zap.Logger
	started time.Time
}

type apiError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type addressPositions struct {
	Address    string            `json:"address"`
	Label      string            `json:"label"`
	Positions  []domain.Position `json:"positions"`
	TotalValue string            `json:"totalValue"`
}

type changesResponse struct {
	Rows      []history.Entry `json:"rows"`
	Stats     history.Stats   `json:"stats"`
	TopMovers []string        `json:"topMovers"`
}

// NewServer wires the router and middleware.
func NewServer(deps Deps, logger *zap.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	g := gin.New()
	logger = logger.Named("http")

	// Request logging
	g.Use(func(cn *gin.Context) {
		start := time.Now()
		cn.Next()
		logger.Info("http_request",
			zap.String("method", cn.Request.Method),
			zap.String("path", cn.Request.URL.Path),
			zap.Int("status", cn.Writer.Status()),
			zap.String("ip", cn.ClientIP()),
			zap.Duration("latency", time.Since(start)),
		)
	})

	g.Use(gin.Recovery())

	s := &Server{R: g, deps: deps, logger: logger, started: time.Now()}

	g.GET("/healthz", s.health)
	g.GET("/api/addresses", s.getAddresses)
	g.GET("/api/positions", s.getAllPositions)
	g.GET("/api/positions/:address", s.getAddressPositions)
	g.GET("/api/changes", s.getChanges)
	g.GET("/api/subscribers", s.getSubscribers)
	if deps.Metrics != nil {
		g.GET("/metrics", gin.WrapH(deps.Metrics))
	}

	return s
}

// Serve listens on addr until ctx is cancelled, then drains for up to five
// seconds.
func (s *Server) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.R,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP API listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	s.logger.Info("HTTP API stopped")
	return nil
}

// --- Helpers ---

func (s *Server) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, apiError{Code: "bad_request", Message: msg})
}

func (s *Server) notFound(c *gin.Context, msg string) {
	c.JSON(http.StatusNotFound, apiError{Code: "not_found", Message: msg})
}

func parseLimit(v string, def, min, max int) int {
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < min || n > max {
		return def
	}
	return n
}

func (s *Server) view(address string, positions domain.Positions) addressPositions {
	rows := make([]domain.Position, 0, len(positions))
	for _, sym := range positions.Symbols() {
		rows = append(rows, positions[sym])
	}
	return addressPositions{
		Address:    address,
		Label:      s.deps.Addresses.Resolve(address),
		Positions:  rows,
		TotalValue: positions.TotalValue().StringFixed(2),
	}
}

// --- Handlers ---

func (s *Server) health(c *gin.Context) {
	body := gin.H{
		"ok":      true,
		"state":   s.deps.Status.State().String(),
		"cycles":  s.deps.Status.Cycles(),
		"uptime":  time.Since(s.started).Round(time.Second).String(),
		"tracked": len(s.deps.Addresses.List()),
	}
	if last := s.deps.Status.LastCycle(); !last.IsZero() {
		body["lastCycle"] = last.UTC().Format(time.RFC3339)
	}
	if s.deps.Events != nil {
		body["events"] = s.deps.Events.Stats()
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) getAddresses(c *gin.Context) {
	rows := s.deps.Addresses.List()
	if rows == nil {
		rows = []domain.TrackedAddress{}
	}
	c.JSON(http.StatusOK, rows)
}

func (s *Server) getAllPositions(c *gin.Context) {
	snapshot := s.deps.Positions.Snapshot()

	rows := make([]addressPositions, 0, len(snapshot))
	for _, tracked := range s.deps.Addresses.List() {
		positions, ok := snapshot[tracked.Address]
		if !ok {
			continue
		}
		rows = append(rows, s.view(tracked.Address, positions))
	}
	c.JSON(http.StatusOK, rows)
}

func (s *Server) getAddressPositions(c *gin.Context) {
	address := strings.TrimSpace(c.Param("address"))
	if err := domain.ValidateAddress(address); err != nil {
		s.badRequest(c, err.Error())
		return
	}
	if !s.deps.Addresses.Contains(address) {
		s.notFound(c, "address is not tracked")
		return
	}
	c.JSON(http.StatusOK, s.view(address, s.deps.Positions.Get(address)))
}

func (s *Server) getChanges(c *gin.Context) {
	limit := parseLimit(c.Query("limit"), 50, 1, 500)

	var rows []history.Entry
	if address := strings.TrimSpace(c.Query("address")); address != "" {
		if err := domain.ValidateAddress(address); err != nil {
			s.badRequest(c, err.Error())
			return
		}
		rows = s.deps.Changes.ForAddress(address)
		// newest first, like Recent
		for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
			rows[i], rows[j] = rows[j], rows[i]
		}
		if len(rows) > limit {
			rows = rows[:limit]
		}
	} else {
		rows = s.deps.Changes.Recent(limit)
	}
	if rows == nil {
		rows = []history.Entry{}
	}

	c.JSON(http.StatusOK, changesResponse{
		Rows:      rows,
		Stats:     s.deps.Changes.Stats(),
		TopMovers: s.deps.Changes.TopMovers(5),
	})
}

func (s *Server) getSubscribers(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"count": s.deps.Subscribers.Len()})
}
