package board

import (
	"errors"
	"slices"
	"sort"
	"sync"

	"github.com/ManuelReschke/AgencyHub/app/models"
)

var (
	ErrIndexOutOfRange = errors.New("board: index out of range")
	ErrLaneNotFound    = errors.New("board: lane not found")
)

// Board is the in-memory ordered view of one pipeline: its lanes, each with
// its tickets. Every mutation re-indexes the touched lists so that Order is
// always the 0-based position.
type Board struct {
	mu         sync.RWMutex
	pipelineID string
	lanes      []models.Lane
}

// New builds a board from a snapshot of lanes.
func New(pipelineID string, lanes []models.Lane) *Board {
	b := &Board{pipelineID: pipelineID}
	b.Replace(lanes)
	return b
}

func (b *Board) PipelineID() string {
	return b.pipelineID
}

// Replace swaps in an authoritative snapshot. Lanes and tickets are ordered
// by their persisted Order; ties keep the snapshot order.
func (b *Board) Replace(lanes []models.Lane) {
	next := cloneLanes(lanes)
	sort.SliceStable(next, func(i, j int) bool { return next[i].Order < next[j].Order })
	for i := range next {
		tickets := next[i].Tickets
		sort.SliceStable(tickets, func(x, y int) bool { return tickets[x].Order < tickets[y].Order })
	}

	b.mu.Lock()
	b.lanes = next
	b.mu.Unlock()
}

// Snapshot returns a deep copy of the current lanes.
func (b *Board) Snapshot() []models.Lane {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return cloneLanes(b.lanes)
}

// AllTickets flattens the tickets of every lane in board order.
func (b *Board) AllTickets() []models.Ticket {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var out []models.Ticket
	for _, lane := range b.lanes {
		for _, t := range lane.Tickets {
			out = append(out, cloneTicket(t))
		}
	}
	return out
}

// Lane returns a copy of the lane with the given id.
func (b *Board) Lane(laneID string) (models.Lane, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	i := b.laneIndex(laneID)
	if i < 0 {
		return models.Lane{}, false
	}
	return cloneLane(b.lanes[i]), true
}

// ReorderLanes moves the lane at src to dst and returns every lane of the
// pipeline with its new Order. Equal indices change nothing and return nil.
func (b *Board) ReorderLanes(src, dst int) ([]models.Lane, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(b.lanes)
	if src < 0 || src >= n || dst < 0 || dst >= n {
		return nil, ErrIndexOutOfRange
	}
	if src == dst {
		return nil, nil
	}

	moved := b.lanes[src]
	lanes := slices.Delete(b.lanes, src, src+1)
	lanes = slices.Insert(lanes, dst, moved)
	for i := range lanes {
		lanes[i].Order = i
	}
	b.lanes = lanes

	out := make([]models.Lane, len(lanes))
	for i, lane := range lanes {
		out[i] = lane
		out[i].Tickets = nil
	}
	return out, nil
}

// MoveTicket moves the ticket at srcIdx of lane srcLaneID to dstIdx of lane
// dstLaneID. It returns the final ticket lists of the source and destination
// lanes. A move onto the same position changes nothing and returns nil.
func (b *Board) MoveTicket(srcLaneID string, srcIdx int, dstLaneID string, dstIdx int) ([]models.Ticket, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	si := b.laneIndex(srcLaneID)
	di := b.laneIndex(dstLaneID)
	if si < 0 || di < 0 {
		return nil, ErrLaneNotFound
	}

	srcTickets := b.lanes[si].Tickets
	if srcIdx < 0 || srcIdx >= len(srcTickets) {
		return nil, ErrIndexOutOfRange
	}

	if si == di {
		if dstIdx < 0 || dstIdx >= len(srcTickets) {
			return nil, ErrIndexOutOfRange
		}
		if srcIdx == dstIdx {
			return nil, nil
		}
		moved := srcTickets[srcIdx]
		tickets := slices.Delete(srcTickets, srcIdx, srcIdx+1)
		tickets = slices.Insert(tickets, dstIdx, moved)
		reindexTickets(tickets)
		b.lanes[si].Tickets = tickets
		return cloneTickets(tickets), nil
	}

	dstTickets := b.lanes[di].Tickets
	if dstIdx < 0 || dstIdx > len(dstTickets) {
		return nil, ErrIndexOutOfRange
	}

	moved := srcTickets[srcIdx]
	srcTickets = slices.Delete(srcTickets, srcIdx, srcIdx+1)
	reindexTickets(srcTickets)

	moved.LaneID = b.lanes[di].ID
	dstTickets = slices.Insert(slices.Clone(dstTickets), dstIdx, moved)
	reindexTickets(dstTickets)

	b.lanes[si].Tickets = srcTickets
	b.lanes[di].Tickets = dstTickets

	out := cloneTickets(srcTickets)
	return append(out, cloneTickets(dstTickets)...), nil
}

// AppendLane adds a lane at the end of the board and sets its Order.
func (b *Board) AppendLane(lane models.Lane) models.Lane {
	b.mu.Lock()
	defer b.mu.Unlock()
	lane = cloneLane(lane)
	lane.Order = len(b.lanes)
	if lane.Tickets == nil {
		lane.Tickets = []models.Ticket{}
	}
	b.lanes = append(b.lanes, lane)
	return cloneLane(lane)
}

// RemoveLane drops a lane with its tickets and closes the gap in lane order.
// The remaining lanes are returned; an unknown lane id returns ErrLaneNotFound.
func (b *Board) RemoveLane(laneID string) ([]models.Lane, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.laneIndex(laneID)
	if i < 0 {
		return nil, ErrLaneNotFound
	}
	b.lanes = slices.Delete(b.lanes, i, i+1)
	out := make([]models.Lane, len(b.lanes))
	for idx := range b.lanes {
		b.lanes[idx].Order = idx
		out[idx] = b.lanes[idx]
		out[idx].Tickets = nil
	}
	return out, nil
}

// AppendTicket adds a ticket at the end of a lane and sets its LaneID and Order.
func (b *Board) AppendTicket(ticket models.Ticket) (models.Ticket, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.laneIndex(ticket.LaneID)
	if i < 0 {
		return models.Ticket{}, ErrLaneNotFound
	}
	ticket = cloneTicket(ticket)
	ticket.Order = len(b.lanes[i].Tickets)
	b.lanes[i].Tickets = append(b.lanes[i].Tickets, ticket)
	return cloneTicket(ticket), nil
}

// RemoveTicket drops a ticket and re-indexes its lane. It returns the lane's
// remaining tickets; false means the board does not hold the ticket.
func (b *Board) RemoveTicket(ticketID string) ([]models.Ticket, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for li := range b.lanes {
		tickets := b.lanes[li].Tickets
		for ti := range tickets {
			if tickets[ti].ID != ticketID {
				continue
			}
			tickets = slices.Delete(tickets, ti, ti+1)
			reindexTickets(tickets)
			b.lanes[li].Tickets = tickets
			return cloneTickets(tickets), true
		}
	}
	return nil, false
}

// UpdateLane renames a lane in place.
func (b *Board) UpdateLane(laneID, name string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.laneIndex(laneID)
	if i < 0 {
		return false
	}
	b.lanes[i].Name = name
	return true
}

// UpdateTicket replaces the content of a ticket in place. Position fields are kept.
func (b *Board) UpdateTicket(ticket models.Ticket) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	for li := range b.lanes {
		for ti, t := range b.lanes[li].Tickets {
			if t.ID != ticket.ID {
				continue
			}
			updated := cloneTicket(ticket)
			updated.LaneID = t.LaneID
			updated.Order = t.Order
			b.lanes[li].Tickets[ti] = updated
			return true
		}
	}
	return false
}

func (b *Board) laneIndex(laneID string) int {
	for i := range b.lanes {
		if b.lanes[i].ID == laneID {
			return i
		}
	}
	return -1
}

func reindexTickets(tickets []models.Ticket) {
	for i := range tickets {
		tickets[i].Order = i
	}
}

func cloneLanes(lanes []models.Lane) []models.Lane {
	out := make([]models.Lane, len(lanes))
	for i, lane := range lanes {
		out[i] = cloneLane(lane)
	}
	return out
}

func cloneLane(lane models.Lane) models.Lane {
	lane.Tickets = cloneTickets(lane.Tickets)
	return lane
}

func cloneTickets(tickets []models.Ticket) []models.Ticket {
	out := make([]models.Ticket, len(tickets))
	for i, t := range tickets {
		out[i] = cloneTicket(t)
	}
	return out
}

func cloneTicket(t models.Ticket) models.Ticket {
	t.Tags = slices.Clone(t.Tags)
	return t
}
