package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/AgencyHub/app/models"
	"github.com/ManuelReschke/AgencyHub/internal/pkg/events"
)

// Enqueuer is the part of Queue the OrderWriter needs.
type Enqueuer interface {
	Enqueue(ctx context.Context, jobType JobType, pipelineID string, rows map[string]string) error
}

// laneRow and ticketRow are the queued forms of the order rows. Origin is the
// board instance that already shows the order.
type laneRow struct {
	models.LaneOrder
	Origin string `json:"origin,omitempty"`
}

type ticketRow struct {
	models.TicketOrder
	Origin string `json:"origin,omitempty"`
}

// OrderWriter turns board order snapshots into queued rows.
type OrderWriter struct {
	queue Enqueuer
}

func NewOrderWriter(queue Enqueuer) *OrderWriter {
	return &OrderWriter{queue: queue}
}

func (w *OrderWriter) WriteLaneOrder(ctx context.Context, pipelineID, origin string, lanes []models.Lane) error {
	rows := make(map[string]string, len(lanes))
	for _, lane := range lanes {
		data, err := json.Marshal(laneRow{
			LaneOrder: models.LaneOrder{ID: lane.ID, PipelineID: pipelineID, Order: lane.Order},
			Origin:    origin,
		})
		if err != nil {
			return fmt.Errorf("marshal lane order %s: %w", lane.ID, err)
		}
		rows[lane.ID] = string(data)
	}
	return w.queue.Enqueue(ctx, JobTypeLaneOrder, pipelineID, rows)
}

func (w *OrderWriter) WriteTicketOrder(ctx context.Context, pipelineID, origin string, tickets []models.Ticket) error {
	rows := make(map[string]string, len(tickets))
	for _, t := range tickets {
		data, err := json.Marshal(ticketRow{
			TicketOrder: models.TicketOrder{ID: t.ID, LaneID: t.LaneID, Order: t.Order},
			Origin:      origin,
		})
		if err != nil {
			return fmt.Errorf("marshal ticket order %s: %w", t.ID, err)
		}
		rows[t.ID] = string(data)
	}
	return w.queue.Enqueue(ctx, JobTypeTicketOrder, pipelineID, rows)
}

// OrderStore applies drained order rows to the database.
type OrderStore interface {
	UpdateLaneOrder(ctx context.Context, pipelineID string, rows []models.LaneOrder) error
	UpdateTicketOrder(ctx context.Context, pipelineID string, rows []models.TicketOrder) error
}

// RegisterOrderHandlers wires the lane and ticket order job types to store.
// A board change is announced on publisher once the store holds the rows.
func RegisterOrderHandlers(q *Queue, store OrderStore, publisher events.Publisher) {
	if publisher == nil {
		publisher = &events.NoopPublisher{}
	}

	q.Register(JobTypeLaneOrder, func(ctx context.Context, job *Job) error {
		queued, err := decodeRows[laneRow](job)
		if err != nil {
			return err
		}
		rows := make([]models.LaneOrder, 0, len(queued))
		origins := make([]string, 0, len(queued))
		for _, r := range queued {
			rows = append(rows, r.LaneOrder)
			origins = append(origins, r.Origin)
		}
		sort.Slice(rows, func(i, j int) bool { return rows[i].Order < rows[j].Order })
		if err := store.UpdateLaneOrder(ctx, job.PipelineID, rows); err != nil {
			return err
		}
		announce(ctx, publisher, job, origins)
		return nil
	})

	q.Register(JobTypeTicketOrder, func(ctx context.Context, job *Job) error {
		queued, err := decodeRows[ticketRow](job)
		if err != nil {
			return err
		}
		rows := make([]models.TicketOrder, 0, len(queued))
		origins := make([]string, 0, len(queued))
		for _, r := range queued {
			rows = append(rows, r.TicketOrder)
			origins = append(origins, r.Origin)
		}
		sort.Slice(rows, func(i, j int) bool {
			if rows[i].LaneID != rows[j].LaneID {
				return rows[i].LaneID < rows[j].LaneID
			}
			return rows[i].Order < rows[j].Order
		})
		if err := store.UpdateTicketOrder(ctx, job.PipelineID, rows); err != nil {
			return err
		}
		announce(ctx, publisher, job, origins)
		return nil
	})
}

// announce publishes the committed change. Rows merged from several instances
// carry no single origin, so every instance drops its board.
func announce(ctx context.Context, publisher events.Publisher, job *Job, origins []string) {
	evt := events.BoardChanged{
		PipelineID: job.PipelineID,
		Origin:     commonOrigin(origins),
		Reason:     string(job.Type),
	}
	if err := publisher.Publish(ctx, events.TopicBoardChanged, evt); err != nil {
		log.Warnf("[OrderQueue] Publishing change for pipeline %s failed: %v", job.PipelineID, err)
	}
}

func commonOrigin(origins []string) string {
	if len(origins) == 0 {
		return ""
	}
	for _, o := range origins[1:] {
		if o != origins[0] {
			return ""
		}
	}
	return origins[0]
}

func decodeRows[T any](job *Job) ([]T, error) {
	out := make([]T, 0, len(job.Rows))
	for id, raw := range job.Rows {
		var row T
		if err := json.Unmarshal([]byte(raw), &row); err != nil {
			return nil, fmt.Errorf("decode %s row %s: %w", job.Type, id, err)
		}
		out = append(out, row)
	}
	return out, nil
}
