// Package handlers implements the inventory HTTP API.
//
// Handlers report failures with c.Error and leave the JSON error body to
// middleware.ErrorHandler.
package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/rivertype"

	"aura.dev/aura/internal/domain"
	"aura.dev/aura/internal/query"
	"aura.dev/aura/internal/repository"
	"aura.dev/aura/internal/usecase"
)

// Pipeline is the ingestion and resolution surface used by the write
// endpoints.
type Pipeline interface {
	IngestEvents(ctx context.Context, events []domain.Event) (usecase.IngestReport, error)
	ResolveItems(ctx context.Context, itemIDs []string) (usecase.ResolveReport, error)
	ResolveAll(ctx context.Context) (usecase.ResolveReport, error)
}

// JobInserter enqueues background jobs. *river.Client[pgx.Tx] satisfies it.
type JobInserter interface {
	Insert(ctx context.Context, args river.JobArgs, opts *river.InsertOpts) (*rivertype.JobInsertResult, error)
}

// Pinger is a readiness dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping implements Pinger.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// PoolStats reports worker pool occupancy. *worker.Pools satisfies it.
type PoolStats interface {
	Metrics() map[string]interface{}
}

// Server holds the handler dependencies.
type Server struct {
	query    *query.Service
	facts    repository.FactStore
	pipeline Pipeline
	jobs     JobInserter
	checks   map[string]Pinger
	pools    PoolStats
}

// ServerDeps holds all dependencies for creating a Server.
// Jobs is nil when no River client runs; resolve requests then run inline.
type ServerDeps struct {
	Query    *query.Service
	Facts    repository.FactStore
	Pipeline Pipeline
	Jobs     JobInserter
	Checks   map[string]Pinger
	Pools    PoolStats
}

// NewServer creates a new Server with all dependencies.
func NewServer(deps ServerDeps) *Server {
	return &Server{
		query:    deps.Query,
		facts:    deps.Facts,
		pipeline: deps.Pipeline,
		jobs:     deps.Jobs,
		checks:   deps.Checks,
		pools:    deps.Pools,
	}
}

// RegisterPublic registers the unauthenticated routes.
func (s *Server) RegisterPublic(rg *gin.RouterGroup) {
	rg.GET("/health/live", s.GetLiveness)
	rg.GET("/health/ready", s.GetReadiness)
}

// RegisterRead registers the query routes.
func (s *Server) RegisterRead(rg *gin.RouterGroup) {
	rg.GET("/items/low-stock", s.ListLowStock)
	rg.GET("/items/warnings", s.ListWarnings)
	rg.GET("/items/:item_id/ask", s.Ask)
	rg.GET("/items/:item_id/history", s.GetHistory)
}

// RegisterWrite registers the ingestion and resolution routes.
func (s *Server) RegisterWrite(rg *gin.RouterGroup) {
	rg.POST("/events", s.PostEvents)
	rg.POST("/resolve", s.PostResolve)
}
