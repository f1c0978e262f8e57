package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/riverqueue/river"
	"go.uber.org/zap"

	"aura.dev/aura/internal/domain"
	"aura.dev/aura/internal/jobs"
	apperrors "aura.dev/aura/internal/pkg/errors"
	"aura.dev/aura/internal/pkg/logger"
	"aura.dev/aura/internal/usecase"
)

// maxEventsPerRequest bounds one POST /events body.
const maxEventsPerRequest = 5000

// EventsRequest is the POST /events body.
type EventsRequest struct {
	Events []domain.Event `json:"events"`
}

// EventsResponse reports ingestion and the resolution of affected items.
type EventsResponse struct {
	Ingest  usecase.IngestReport  `json:"ingest"`
	Resolve usecase.ResolveReport `json:"resolve"`
}

// ResolveRequest is the optional POST /resolve body. An empty ItemIDs
// resolves every item.
type ResolveRequest struct {
	ItemIDs []string `json:"item_ids"`
}

// ResolveEnqueued is returned when resolution was handed to the job queue.
type ResolveEnqueued struct {
	Status string  `json:"status"`
	JobIDs []int64 `json:"job_ids"`
}

// PostEvents handles POST /events: the events are appended to the event
// log and every affected item is re-resolved before the response.
func (s *Server) PostEvents(c *gin.Context) {
	var req EventsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		_ = c.Error(apperrors.ErrInvalidRequestFieldf("events"))
		return
	}
	if len(req.Events) == 0 || len(req.Events) > maxEventsPerRequest {
		_ = c.Error(apperrors.ErrInvalidRequestFieldf("events"))
		return
	}

	ctx := c.Request.Context()
	ingest, err := s.pipeline.IngestEvents(ctx, req.Events)
	if err != nil {
		_ = c.Error(err)
		return
	}
	resolved, err := s.pipeline.ResolveItems(ctx, ingest.AffectedItems)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, EventsResponse{Ingest: ingest, Resolve: resolved})
}

// PostResolve handles POST /resolve. With a job queue the work is enqueued
// and 202 is returned; otherwise it runs inline and the report is returned.
func (s *Server) PostResolve(c *gin.Context) {
	var req ResolveRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			_ = c.Error(apperrors.ErrInvalidRequestFieldf("item_ids"))
			return
		}
	}
	for i, itemID := range req.ItemIDs {
		req.ItemIDs[i] = domain.NormalizeItemID(itemID)
	}
	ctx := c.Request.Context()

	if s.jobs != nil {
		var ids []int64
		insert := func(args river.JobArgs) bool {
			res, err := s.jobs.Insert(ctx, args, nil)
			if err != nil {
				_ = c.Error(apperrors.ErrEnqueueFailedf(args.Kind(), err))
				return false
			}
			ids = append(ids, res.Job.ID)
			return true
		}
		if len(req.ItemIDs) == 0 {
			if !insert(jobs.ResolveAllArgs{}) {
				return
			}
		}
		for _, itemID := range req.ItemIDs {
			if !insert(jobs.ResolveItemArgs{ItemID: itemID}) {
				return
			}
		}
		logger.Info("Resolution enqueued", zap.Int("jobs", len(ids)))
		c.JSON(http.StatusAccepted, ResolveEnqueued{Status: "enqueued", JobIDs: ids})
		return
	}

	var (
		report usecase.ResolveReport
		err    error
	)
	if len(req.ItemIDs) == 0 {
		report, err = s.pipeline.ResolveAll(ctx)
	} else {
		report, err = s.pipeline.ResolveItems(ctx, req.ItemIDs)
	}
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, report)
}
