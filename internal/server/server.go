// Package server exposes the scheduler and the cache over HTTP.
package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/ffscout/scouter"
)

// MaxIDsPerRequest caps the ids accepted by the batch endpoint.
const MaxIDsPerRequest = 1000

// Scheduler is the part of *scouter.Scouter the server uses.
type Scheduler interface {
	Lookup(id scouter.ID) *scouter.Future
	Flush()
	NumPending() int
	QueueLength() int
	Running() bool
}

type Server struct {
	scheduler Scheduler
	store     scouter.Store
	gatherer  prometheus.Gatherer
	log       logrus.FieldLogger
}

func New(scheduler Scheduler, store scouter.Store, gatherer prometheus.Gatherer, log logrus.FieldLogger) *Server {
	return &Server{
		scheduler: scheduler,
		store:     store,
		gatherer:  gatherer,
		log:       log,
	}
}

// Handler builds the gin engine with every route.
func (s *Server) Handler() http.Handler {
	engine := gin.New()
	engine.Use(gin.Recovery(), s.requestLogger())

	v1 := engine.Group("/v1")
	v1.GET("/estimates", s.getEstimates)
	v1.GET("/estimates/:id", s.getEstimate)
	v1.GET("/cache", s.dumpCache)
	v1.POST("/cache/sweep", s.sweepCache)

	engine.GET("/healthz", s.health)
	if s.gatherer != nil {
		engine.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}
	return engine
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		c.Header("X-Request-ID", requestID)

		start := time.Now()
		c.Next()

		s.log.WithFields(logrus.Fields{
			"request_id": requestID,
			"method":     c.Request.Method,
			"path":       c.FullPath(),
			"status":     c.Writer.Status(),
			"latency":    time.Since(start),
		}).Debug("server: request handled")
	}
}

// EstimateView is the JSON form of a result.
type EstimateView struct {
	PlayerID        scouter.ID `json:"player_id"`
	NoData          bool       `json:"no_data"`
	FairFight       float64    `json:"fair_fight,omitempty"`
	BSEstimate      int64      `json:"bs_estimate,omitempty"`
	BSEstimateHuman string     `json:"bs_estimate_human,omitempty"`
	LastUpdated     int64      `json:"last_updated,omitempty"`
	Expiry          int64      `json:"expiry,omitempty"`
	Error           string     `json:"error,omitempty"`
}

// ViewOf converts a result for JSON output.
func ViewOf(result scouter.Result) EstimateView {
	switch r := result.(type) {
	case scouter.Estimate:
		return EstimateView{
			PlayerID:        r.PlayerID,
			FairFight:       r.Score,
			BSEstimate:      r.Estimate,
			BSEstimateHuman: r.EstimateHuman,
			LastUpdated:     r.LastUpdated.Unix(),
		}
	case scouter.NoData:
		return EstimateView{PlayerID: r.PlayerID, NoData: true}
	default:
		return EstimateView{}
	}
}

func parseID(raw string) (scouter.ID, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid player id " + strconv.Quote(raw))
	}
	return scouter.ID(id), nil
}

func parseIDs(raw string) ([]scouter.ID, error) {
	if raw == "" {
		return nil, errors.New("ids is required")
	}
	parts := strings.Split(raw, ",")
	if len(parts) > MaxIDsPerRequest {
		return nil, errors.New("too many ids")
	}
	ids := make([]scouter.ID, 0, len(parts))
	for _, part := range parts {
		id, err := parseID(part)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// statusOf maps a lookup error to an HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, context.Canceled):
		return 499
	case errors.Is(err, scouter.ErrTooManyAttempts), errors.Is(err, scouter.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) getEstimate(c *gin.Context) {
	id, err := parseID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	future := s.scheduler.Lookup(id)
	s.scheduler.Flush()
	result, err := future.Wait(c.Request.Context())
	if err != nil {
		c.JSON(statusOf(err), gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, ViewOf(result))
}

// getEstimates answers in request order. Failed ids carry their error
// instead of failing the whole request.
func (s *Server) getEstimates(c *gin.Context) {
	ids, err := parseIDs(c.Query("ids"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	futures := make([]*scouter.Future, len(ids))
	for i, id := range ids {
		futures[i] = s.scheduler.Lookup(id)
	}
	s.scheduler.Flush()

	views := make([]EstimateView, len(ids))
	for i, future := range futures {
		result, err := future.Wait(c.Request.Context())
		if err != nil {
			if ctxErr := c.Request.Context().Err(); ctxErr != nil {
				c.JSON(statusOf(ctxErr), gin.H{"error": ctxErr.Error()})
				return
			}
			views[i] = EstimateView{PlayerID: ids[i], Error: err.Error()}
			continue
		}
		views[i] = ViewOf(result)
	}
	c.JSON(http.StatusOK, gin.H{"results": views})
}

func (s *Server) dumpCache(c *gin.Context) {
	entries, err := s.store.Dump(c.Request.Context())
	if err != nil {
		s.log.WithError(err).Warn("server: failed to dump the cache")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	views := make([]EstimateView, 0, len(entries))
	for _, entry := range entries {
		view := ViewOf(entry.Result)
		view.Expiry = entry.Expiry.UnixMilli()
		views = append(views, view)
	}
	c.JSON(http.StatusOK, gin.H{"entries": views})
}

func (s *Server) sweepCache(c *gin.Context) {
	swept, err := s.store.SweepExpired(c.Request.Context())
	if err != nil {
		s.log.WithError(err).Warn("server: failed to sweep the cache")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"swept": swept})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"pending":      s.scheduler.NumPending(),
		"queue_length": s.scheduler.QueueLength(),
		"running":      s.scheduler.Running(),
	})
}
