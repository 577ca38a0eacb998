// Package statusapi exposes the daemon's sync state and controls over
// local HTTP.
package statusapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/tonio1998/snsulms-sub001/internal/app"
	"github.com/tonio1998/snsulms-sub001/internal/lms"
	"github.com/tonio1998/snsulms-sub001/internal/outbox"
	"github.com/tonio1998/snsulms-sub001/internal/syncer"
)

// Backend is the part of the app the endpoints drive.
type Backend interface {
	Status(ctx context.Context) (*app.Status, error)
	Sync(ctx context.Context) (app.SyncResult, error)
	Drain(ctx context.Context) (outbox.DrainResult, error)
	Reload(ctx context.Context, task string) error
	Foreground()
	Background()
}

var _ Backend = (*app.LMSApp)(nil)

// Server serves the status endpoints.
type Server struct {
	addr    string
	backend Backend
	logger  lms.Logger
	e       *echo.Echo
}

// NewServer creates a Server listening on addr once Start is called.
func NewServer(addr string, backend Backend, logger lms.Logger) *Server {
	s := &Server{
		addr:    addr,
		backend: backend,
		logger:  logger,
		e:       echo.New(),
	}
	s.setup()
	return s
}

func (s *Server) setup() {
	s.e.HideBanner = true
	s.e.HidePort = true
	s.e.HTTPErrorHandler = s.handleError

	s.e.Pre(middleware.RemoveTrailingSlash())
	s.e.Use(middleware.Recover())
	s.e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:  true,
		LogURI:     true,
		LogStatus:  true,
		LogLatency: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Debug("status request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))

	s.e.GET("/status", s.status)
	s.e.POST("/sync", s.sync)
	s.e.POST("/drain", s.drain)
	s.e.POST("/reload/:task", s.reload)
	s.e.POST("/foreground", s.foreground)
	s.e.POST("/background", s.background)
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.logger.Info("status server listening", "addr", s.addr)
	if err := s.e.Start(s.addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops the server, waiting for in-flight requests until ctx ends.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.e.Shutdown(ctx)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.e.ServeHTTP(w, r)
}

func (s *Server) handleError(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	msg := err.Error()
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		}
	case errors.Is(err, syncer.ErrUnknownTask):
		code = http.StatusNotFound
	default:
		s.logger.Warn("status request failed", "uri", c.Request().RequestURI, "error", err)
	}

	if err := c.JSON(code, map[string]string{"error": msg}); err != nil {
		s.logger.Error("writing error response", "error", err)
	}
}

type statusResponse struct {
	*app.Status
	Banner string `json:"banner,omitempty"`
}

type drainResponse struct {
	Submitted int  `json:"submitted"`
	Failed    int  `json:"failed"`
	Remaining int  `json:"remaining"`
	Skipped   bool `json:"skipped"`
}

type resyncResponse struct {
	Succeeded []string          `json:"succeeded"`
	Failed    map[string]string `json:"failed"`
	Skipped   bool              `json:"skipped"`
}

type syncResponse struct {
	Drain  drainResponse  `json:"drain"`
	Resync resyncResponse `json:"resync"`
}

func toDrain(r outbox.DrainResult) drainResponse {
	return drainResponse{Submitted: r.Submitted, Failed: r.Failed, Remaining: r.Remaining, Skipped: r.Skipped}
}

func toResync(r syncer.Report) resyncResponse {
	out := resyncResponse{Succeeded: r.Succeeded, Failed: make(map[string]string, len(r.Failed)), Skipped: r.Skipped}
	if out.Succeeded == nil {
		out.Succeeded = []string{}
	}
	for name, err := range r.Failed {
		out.Failed[name] = err.Error()
	}
	return out
}

func (s *Server) status(c echo.Context) error {
	st, err := s.backend.Status(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, statusResponse{Status: st, Banner: st.StalledBanner()})
}

func (s *Server) sync(c echo.Context) error {
	res, err := s.backend.Sync(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, syncResponse{Drain: toDrain(res.Drain), Resync: toResync(res.Resync)})
}

func (s *Server) drain(c echo.Context) error {
	res, err := s.backend.Drain(c.Request().Context())
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toDrain(res))
}

func (s *Server) reload(c echo.Context) error {
	task := c.Param("task")
	start := time.Now()
	if err := s.backend.Reload(c.Request().Context(), task); err != nil {
		if errors.Is(err, syncer.ErrUnknownTask) {
			return err
		}
		return echo.NewHTTPError(http.StatusBadGateway, err.Error())
	}
	return c.JSON(http.StatusOK, map[string]string{
		"task":     task,
		"duration": time.Since(start).Round(time.Millisecond).String(),
	})
}

func (s *Server) foreground(c echo.Context) error {
	s.backend.Foreground()
	return c.NoContent(http.StatusNoContent)
}

func (s *Server) background(c echo.Context) error {
	s.backend.Background()
	return c.NoContent(http.StatusNoContent)
}
