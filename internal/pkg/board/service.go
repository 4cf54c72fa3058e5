package board

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/google/uuid"

	"github.com/ManuelReschke/AgencyHub/app/models"
	"github.com/ManuelReschke/AgencyHub/internal/pkg/events"
)

const (
	dispatchBuffer  = 1024
	dispatchTimeout = 10 * time.Second
)

// Store is the durable side of the boards.
type Store interface {
	LoadBoard(ctx context.Context, pipelineID string) ([]models.Lane, error)
	FindLane(ctx context.Context, laneID string) (*models.Lane, error)
	FindTicket(ctx context.Context, ticketID string) (*models.Ticket, error)
	CreateLane(ctx context.Context, lane *models.Lane) error
	UpdateLane(ctx context.Context, lane *models.Lane) error
	DeleteLane(ctx context.Context, laneID string) error
	CreateTicket(ctx context.Context, ticket *models.Ticket) error
	UpdateTicket(ctx context.Context, ticket *models.Ticket) error
	DeleteTicket(ctx context.Context, ticketID string) error
}

// Writer persists order snapshots. Calls are made from the dispatcher
// goroutine, never from the request that changed the board. The writer
// announces the change to other instances once the snapshot is durable;
// origin is the instance whose board already shows it.
type Writer interface {
	WriteLaneOrder(ctx context.Context, pipelineID, origin string, lanes []models.Lane) error
	WriteTicketOrder(ctx context.Context, pipelineID, origin string, tickets []models.Ticket) error
}

type writeKind string

const (
	writeLanes   writeKind = "lanes"
	writeTickets writeKind = "tickets"
	// writeContent only announces a change that the store already holds.
	writeContent writeKind = "content"
)

type writeRequest struct {
	kind       writeKind
	pipelineID string
	lanes      []models.Lane
	tickets    []models.Ticket
}

type entry struct {
	// op serializes mutations and their dispatch so writes leave in mutation order.
	op    sync.Mutex
	board *Board
}

// Service keeps one Board per pipeline and hands order changes to the Writer
// without waiting for them.
type Service struct {
	store      Store
	writer     Writer
	publisher  events.Publisher
	instanceID string

	mu     sync.RWMutex
	boards map[string]*entry

	writes  chan writeRequest
	stopCh  chan struct{}
	wg      sync.WaitGroup
	runMu   sync.Mutex
	running bool
}

func NewService(store Store, writer Writer, publisher events.Publisher) *Service {
	if publisher == nil {
		publisher = &events.NoopPublisher{}
	}
	return &Service{
		store:      store,
		writer:     writer,
		publisher:  publisher,
		instanceID: uuid.New().String(),
		boards:     make(map[string]*entry),
		writes:     make(chan writeRequest, dispatchBuffer),
	}
}

// InstanceID identifies this process in board change events.
func (s *Service) InstanceID() string {
	return s.instanceID
}

// Start launches the dispatcher goroutine.
func (s *Service) Start() {
	s.runMu.Lock()
	defer s.runMu.Unlock()
	if s.running {
		return
	}
	s.stopCh = make(chan struct{})
	s.running = true
	s.wg.Add(1)
	go s.dispatcher()
	log.Info("[Board] Dispatcher started")
}

// Stop drains pending writes and stops the dispatcher.
func (s *Service) Stop() {
	s.runMu.Lock()
	if !s.running {
		s.runMu.Unlock()
		return
	}
	close(s.stopCh)
	s.running = false
	s.runMu.Unlock()
	s.wg.Wait()
	log.Info("[Board] Dispatcher stopped")
}

func (s *Service) dispatcher() {
	defer s.wg.Done()
	for {
		select {
		case req := <-s.writes:
			s.persist(req)
		case <-s.stopCh:
			for {
				select {
				case req := <-s.writes:
					s.persist(req)
				default:
					return
				}
			}
		}
	}
}

func (s *Service) persist(req writeRequest) {
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	var err error
	switch req.kind {
	case writeLanes:
		err = s.writer.WriteLaneOrder(ctx, req.pipelineID, s.instanceID, req.lanes)
	case writeTickets:
		err = s.writer.WriteTicketOrder(ctx, req.pipelineID, s.instanceID, req.tickets)
	case writeContent:
		s.announce(ctx, req)
	}
	if err != nil {
		log.Errorf("[Board] Persisting %s order for pipeline %s failed: %v", req.kind, req.pipelineID, err)
	}
}

// announce tells peers about a change the store already holds.
func (s *Service) announce(ctx context.Context, req writeRequest) {
	evt := events.BoardChanged{PipelineID: req.pipelineID, Origin: s.instanceID, Reason: string(req.kind)}
	if err := s.publisher.Publish(ctx, events.TopicBoardChanged, evt); err != nil {
		log.Warnf("[Board] Publishing change for pipeline %s failed: %v", req.pipelineID, err)
	}
}

// dispatch never blocks; a full buffer drops the write and the next refresh reconciles.
func (s *Service) dispatch(req writeRequest) {
	select {
	case s.writes <- req:
	default:
		log.Warnf("[Board] Write buffer full, dropping %s order for pipeline %s", req.kind, req.pipelineID)
	}
}

func (s *Service) entry(ctx context.Context, pipelineID string) (*entry, error) {
	e, _, err := s.load(ctx, pipelineID)
	return e, err
}

// load returns the cached board, loading it from the store on a miss. fresh
// reports whether this call did the load.
func (s *Service) load(ctx context.Context, pipelineID string) (*entry, bool, error) {
	s.mu.RLock()
	e := s.boards[pipelineID]
	s.mu.RUnlock()
	if e != nil {
		return e, false, nil
	}

	lanes, err := s.store.LoadBoard(ctx, pipelineID)
	if err != nil {
		return nil, false, fmt.Errorf("loading board %s: %w", pipelineID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if e := s.boards[pipelineID]; e != nil {
		return e, false, nil
	}
	e = &entry{board: New(pipelineID, lanes)}
	s.boards[pipelineID] = e
	return e, true, nil
}

// Lanes returns the board of a pipeline, reloading it from the store when refresh is set.
func (s *Service) Lanes(ctx context.Context, pipelineID string, refresh bool) ([]models.Lane, error) {
	e, fresh, err := s.load(ctx, pipelineID)
	if err != nil {
		return nil, err
	}
	if refresh && !fresh {
		lanes, err := s.store.LoadBoard(ctx, pipelineID)
		if err != nil {
			return nil, fmt.Errorf("refreshing board %s: %w", pipelineID, err)
		}
		e.op.Lock()
		e.board.Replace(lanes)
		e.op.Unlock()
	}
	return e.board.Snapshot(), nil
}

// Tickets returns every ticket of the pipeline, optionally filtered by a
// case-insensitive match on name, description or tag name.
func (s *Service) Tickets(ctx context.Context, pipelineID, query string) ([]models.Ticket, error) {
	e, err := s.entry(ctx, pipelineID)
	if err != nil {
		return nil, err
	}
	all := e.board.AllTickets()
	query = strings.ToLower(strings.TrimSpace(query))
	if query == "" {
		return all, nil
	}
	out := make([]models.Ticket, 0, len(all))
	for _, t := range all {
		if matchesTicket(t, query) {
			out = append(out, t)
		}
	}
	return out, nil
}

func matchesTicket(t models.Ticket, query string) bool {
	if strings.Contains(strings.ToLower(t.Name), query) || strings.Contains(strings.ToLower(t.Description), query) {
		return true
	}
	for _, tag := range t.Tags {
		if strings.Contains(strings.ToLower(tag.Name), query) {
			return true
		}
	}
	return false
}

// ReorderLanes applies a lane drag and queues the new lane order.
func (s *Service) ReorderLanes(ctx context.Context, pipelineID string, src, dst int) ([]models.Lane, error) {
	e, err := s.entry(ctx, pipelineID)
	if err != nil {
		return nil, err
	}
	e.op.Lock()
	defer e.op.Unlock()

	lanes, err := e.board.ReorderLanes(src, dst)
	if err != nil {
		return nil, err
	}
	if lanes != nil {
		s.dispatch(writeRequest{kind: writeLanes, pipelineID: pipelineID, lanes: lanes})
	}
	return e.board.Snapshot(), nil
}

// MoveTicket applies a ticket drag and queues the touched lanes' ticket order.
func (s *Service) MoveTicket(ctx context.Context, pipelineID, srcLaneID string, srcIdx int, dstLaneID string, dstIdx int) ([]models.Lane, error) {
	e, err := s.entry(ctx, pipelineID)
	if err != nil {
		return nil, err
	}
	e.op.Lock()
	defer e.op.Unlock()

	tickets, err := e.board.MoveTicket(srcLaneID, srcIdx, dstLaneID, dstIdx)
	if err != nil {
		return nil, err
	}
	if tickets != nil {
		s.dispatch(writeRequest{kind: writeTickets, pipelineID: pipelineID, tickets: tickets})
	}
	return e.board.Snapshot(), nil
}

// CreateLane stores a new lane at the end of the pipeline.
func (s *Service) CreateLane(ctx context.Context, pipelineID, name string) (*models.Lane, error) {
	e, err := s.entry(ctx, pipelineID)
	if err != nil {
		return nil, err
	}
	e.op.Lock()
	defer e.op.Unlock()

	lane := &models.Lane{Name: name, PipelineID: pipelineID, Tickets: []models.Ticket{}}
	if err := s.store.CreateLane(ctx, lane); err != nil {
		return nil, fmt.Errorf("creating lane: %w", err)
	}
	stored := lane.Order
	added := e.board.AppendLane(*lane)
	if added.Order != stored {
		s.dispatch(writeRequest{kind: writeLanes, pipelineID: pipelineID, lanes: laneHeads(e.board.Snapshot())})
	} else {
		s.dispatch(writeRequest{kind: writeContent, pipelineID: pipelineID})
	}
	return &added, nil
}

// UpdateLane renames a lane. Its position and tickets are untouched.
func (s *Service) UpdateLane(ctx context.Context, laneID, name string) (*models.Lane, error) {
	lane, err := s.store.FindLane(ctx, laneID)
	if err != nil {
		return nil, err
	}
	lane.Name = name
	if err := s.store.UpdateLane(ctx, lane); err != nil {
		return nil, fmt.Errorf("updating lane %s: %w", laneID, err)
	}

	s.mu.RLock()
	e := s.boards[lane.PipelineID]
	s.mu.RUnlock()
	if e != nil {
		e.op.Lock()
		defer e.op.Unlock()
		if !e.board.UpdateLane(laneID, name) {
			s.Invalidate(lane.PipelineID)
		}
	}
	s.dispatch(writeRequest{kind: writeContent, pipelineID: lane.PipelineID})
	return lane, nil
}

// DeleteLane removes a lane with its tickets and closes the gap in lane order.
func (s *Service) DeleteLane(ctx context.Context, laneID string) (*models.Lane, error) {
	lane, err := s.store.FindLane(ctx, laneID)
	if err != nil {
		return nil, err
	}
	e, err := s.entry(ctx, lane.PipelineID)
	if err != nil {
		return nil, err
	}
	e.op.Lock()
	defer e.op.Unlock()

	if err := s.store.DeleteLane(ctx, laneID); err != nil {
		return nil, fmt.Errorf("deleting lane %s: %w", laneID, err)
	}
	remaining, err := e.board.RemoveLane(laneID)
	if errors.Is(err, ErrLaneNotFound) {
		s.Invalidate(lane.PipelineID)
		s.dispatch(writeRequest{kind: writeContent, pipelineID: lane.PipelineID})
		return lane, nil
	}
	s.dispatch(writeRequest{kind: writeLanes, pipelineID: lane.PipelineID, lanes: remaining})
	return lane, nil
}

// CreateTicket validates and stores a ticket at the end of its lane.
func (s *Service) CreateTicket(ctx context.Context, ticket *models.Ticket) (*models.Ticket, error) {
	if err := ticket.Validate(); err != nil {
		return nil, err
	}
	lane, err := s.store.FindLane(ctx, ticket.LaneID)
	if err != nil {
		return nil, err
	}
	e, err := s.entry(ctx, lane.PipelineID)
	if err != nil {
		return nil, err
	}
	e.op.Lock()
	defer e.op.Unlock()

	if err := s.store.CreateTicket(ctx, ticket); err != nil {
		return nil, fmt.Errorf("creating ticket: %w", err)
	}
	stored := ticket.Order
	added, err := e.board.AppendTicket(*ticket)
	if err != nil {
		s.Invalidate(lane.PipelineID)
		s.dispatch(writeRequest{kind: writeContent, pipelineID: lane.PipelineID})
		return ticket, nil
	}
	if l, ok := e.board.Lane(lane.ID); ok && added.Order != stored {
		s.dispatch(writeRequest{kind: writeTickets, pipelineID: lane.PipelineID, tickets: l.Tickets})
	} else {
		s.dispatch(writeRequest{kind: writeContent, pipelineID: lane.PipelineID})
	}
	return &added, nil
}

// UpdateTicket changes the content of a ticket. Lane and position are untouched.
func (s *Service) UpdateTicket(ctx context.Context, ticketID string, apply func(*models.Ticket)) (*models.Ticket, error) {
	ticket, err := s.store.FindTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	laneID, order := ticket.LaneID, ticket.Order
	apply(ticket)
	ticket.ID, ticket.LaneID, ticket.Order = ticketID, laneID, order
	if err := ticket.Validate(); err != nil {
		return nil, err
	}

	lane, err := s.store.FindLane(ctx, laneID)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateTicket(ctx, ticket); err != nil {
		return nil, fmt.Errorf("updating ticket %s: %w", ticketID, err)
	}
	// reload so tags and customer match the stored ids
	if stored, err := s.store.FindTicket(ctx, ticketID); err == nil {
		ticket = stored
	}

	s.mu.RLock()
	e := s.boards[lane.PipelineID]
	s.mu.RUnlock()
	if e != nil {
		e.op.Lock()
		if !e.board.UpdateTicket(*ticket) {
			s.Invalidate(lane.PipelineID)
		}
		s.dispatch(writeRequest{kind: writeContent, pipelineID: lane.PipelineID})
		e.op.Unlock()
	} else {
		s.dispatch(writeRequest{kind: writeContent, pipelineID: lane.PipelineID})
	}
	return ticket, nil
}

// DeleteTicket removes a ticket and closes the gap in its lane.
func (s *Service) DeleteTicket(ctx context.Context, ticketID string) (*models.Ticket, error) {
	ticket, err := s.store.FindTicket(ctx, ticketID)
	if err != nil {
		return nil, err
	}
	lane, err := s.store.FindLane(ctx, ticket.LaneID)
	if err != nil {
		return nil, err
	}
	e, err := s.entry(ctx, lane.PipelineID)
	if err != nil {
		return nil, err
	}
	e.op.Lock()
	defer e.op.Unlock()

	if err := s.store.DeleteTicket(ctx, ticketID); err != nil {
		return nil, fmt.Errorf("deleting ticket %s: %w", ticketID, err)
	}
	remaining, ok := e.board.RemoveTicket(ticketID)
	switch {
	case !ok:
		s.Invalidate(lane.PipelineID)
		s.dispatch(writeRequest{kind: writeContent, pipelineID: lane.PipelineID})
	case len(remaining) == 0:
		s.dispatch(writeRequest{kind: writeContent, pipelineID: lane.PipelineID})
	default:
		s.dispatch(writeRequest{kind: writeTickets, pipelineID: lane.PipelineID, tickets: remaining})
	}
	return ticket, nil
}

// Invalidate drops the cached board; the next access reloads it.
func (s *Service) Invalidate(pipelineID string) {
	s.mu.Lock()
	delete(s.boards, pipelineID)
	s.mu.Unlock()
}

// WatchPeers drops cached boards that other instances changed. It returns
// once the subscription is set up and stops when ctx is cancelled.
func (s *Service) WatchPeers(ctx context.Context, sub events.Subscriber) error {
	ch, cancel, err := sub.Subscribe(events.TopicBoardChanged)
	if err != nil {
		return fmt.Errorf("subscribing to board changes: %w", err)
	}
	go func() {
		defer cancel()
		for {
			select {
			case <-ctx.Done():
				return
			case data, ok := <-ch:
				if !ok {
					return
				}
				var evt events.BoardChanged
				if err := json.Unmarshal(data, &evt); err != nil {
					log.Warnf("[Board] Ignoring malformed board event: %v", err)
					continue
				}
				if evt.Origin == s.instanceID {
					continue
				}
				s.Invalidate(evt.PipelineID)
			}
		}
	}()
	return nil
}

func laneHeads(lanes []models.Lane) []models.Lane {
	for i := range lanes {
		lanes[i].Tickets = nil
	}
	return lanes
}
