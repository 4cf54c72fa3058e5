package board

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/AgencyHub/app/models"
)

func sampleLanes() []models.Lane {
	return []models.Lane{
		{ID: "A", Name: "Lead", PipelineID: "p1", Order: 0, Tickets: []models.Ticket{
			{ID: "T1", Name: "T1", LaneID: "A", Order: 0},
			{ID: "T2", Name: "T2", LaneID: "A", Order: 1},
		}},
		{ID: "B", Name: "Won", PipelineID: "p1", Order: 1, Tickets: []models.Ticket{
			{ID: "T3", Name: "T3", LaneID: "B", Order: 0},
		}},
	}
}

func ticketIDs(tickets []models.Ticket) []string {
	ids := make([]string, len(tickets))
	for i, t := range tickets {
		ids[i] = t.ID
	}
	return ids
}

func laneIDs(lanes []models.Lane) []string {
	ids := make([]string, len(lanes))
	for i, l := range lanes {
		ids[i] = l.ID
	}
	return ids
}

func assertContiguousLanes(t *testing.T, lanes []models.Lane) {
	t.Helper()
	for i, l := range lanes {
		assert.Equal(t, i, l.Order, "lane %s", l.ID)
	}
}

func assertContiguousTickets(t *testing.T, lane models.Lane) {
	t.Helper()
	for i, tk := range lane.Tickets {
		assert.Equal(t, i, tk.Order, "ticket %s in lane %s", tk.ID, lane.ID)
		assert.Equal(t, lane.ID, tk.LaneID, "ticket %s", tk.ID)
	}
}

func TestMoveTicketAcrossLanes(t *testing.T) {
	b := New("p1", sampleLanes())

	changed, err := b.MoveTicket("A", 0, "B", 1)
	require.NoError(t, err)

	lanes := b.Snapshot()
	require.Len(t, lanes, 2)

	assert.Equal(t, []string{"T2"}, ticketIDs(lanes[0].Tickets))
	assert.Equal(t, 0, lanes[0].Tickets[0].Order)

	assert.Equal(t, []string{"T3", "T1"}, ticketIDs(lanes[1].Tickets))
	assert.Equal(t, 0, lanes[1].Tickets[0].Order)
	assert.Equal(t, 1, lanes[1].Tickets[1].Order)
	assert.Equal(t, "B", lanes[1].Tickets[1].LaneID)

	assert.ElementsMatch(t, []string{"T2", "T3", "T1"}, ticketIDs(changed))
}

func TestMoveTicketWithinLane(t *testing.T) {
	b := New("p1", sampleLanes())

	changed, err := b.MoveTicket("A", 0, "A", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"T2", "T1"}, ticketIDs(changed))

	lane, ok := b.Lane("A")
	require.True(t, ok)
	assert.Equal(t, []string{"T2", "T1"}, ticketIDs(lane.Tickets))
	assertContiguousTickets(t, lane)
}

func TestMoveTicketSamePositionIsNoop(t *testing.T) {
	b := New("p1", sampleLanes())
	before := b.Snapshot()

	changed, err := b.MoveTicket("A", 1, "A", 1)
	require.NoError(t, err)
	assert.Nil(t, changed)
	assert.Equal(t, before, b.Snapshot())
}

func TestMoveTicketUnknownLane(t *testing.T) {
	b := New("p1", sampleLanes())
	before := b.Snapshot()

	_, err := b.MoveTicket("A", 0, "missing", 0)
	assert.ErrorIs(t, err, ErrLaneNotFound)
	_, err = b.MoveTicket("missing", 0, "B", 0)
	assert.ErrorIs(t, err, ErrLaneNotFound)

	assert.Equal(t, before, b.Snapshot())
}

func TestMoveTicketIndexOutOfRange(t *testing.T) {
	b := New("p1", sampleLanes())
	before := b.Snapshot()

	cases := []struct {
		src    string
		srcIdx int
		dst    string
		dstIdx int
	}{
		{"A", 2, "B", 0},
		{"A", -1, "B", 0},
		{"A", 0, "B", 2},
		{"A", 0, "A", 2},
		{"B", 0, "A", -1},
	}
	for _, tc := range cases {
		_, err := b.MoveTicket(tc.src, tc.srcIdx, tc.dst, tc.dstIdx)
		assert.ErrorIs(t, err, ErrIndexOutOfRange, "%+v", tc)
	}
	assert.Equal(t, before, b.Snapshot())
}

func TestMoveTicketIntoEmptyLane(t *testing.T) {
	lanes := append(sampleLanes(), models.Lane{ID: "C", PipelineID: "p1", Order: 2})
	b := New("p1", lanes)

	_, err := b.MoveTicket("B", 0, "C", 0)
	require.NoError(t, err)

	c, _ := b.Lane("C")
	assert.Equal(t, []string{"T3"}, ticketIDs(c.Tickets))
	assertContiguousTickets(t, c)
	bl, _ := b.Lane("B")
	assert.Empty(t, bl.Tickets)
}

func TestReorderLanes(t *testing.T) {
	lanes := []models.Lane{
		{ID: "A", Order: 0}, {ID: "B", Order: 1}, {ID: "C", Order: 2}, {ID: "D", Order: 3},
	}
	b := New("p1", lanes)

	changed, err := b.ReorderLanes(0, 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C", "A", "D"}, laneIDs(changed))
	assertContiguousLanes(t, changed)
	assertContiguousLanes(t, b.Snapshot())

	changed, err = b.ReorderLanes(3, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"D", "B", "C", "A"}, laneIDs(changed))
	assertContiguousLanes(t, changed)
}

func TestReorderLanesSameIndexIsNoop(t *testing.T) {
	b := New("p1", sampleLanes())
	before := b.Snapshot()

	changed, err := b.ReorderLanes(1, 1)
	require.NoError(t, err)
	assert.Nil(t, changed)
	assert.Equal(t, before, b.Snapshot())
}

func TestReorderLanesOutOfRange(t *testing.T) {
	b := New("p1", sampleLanes())
	for _, idx := range [][2]int{{-1, 0}, {0, 2}, {2, 0}, {0, -1}} {
		_, err := b.ReorderLanes(idx[0], idx[1])
		assert.ErrorIs(t, err, ErrIndexOutOfRange)
	}
}

func TestReorderLanesKeepsTickets(t *testing.T) {
	b := New("p1", sampleLanes())
	changed, err := b.ReorderLanes(0, 1)
	require.NoError(t, err)
	for _, l := range changed {
		assert.Nil(t, l.Tickets)
	}

	lanes := b.Snapshot()
	assert.Equal(t, []string{"B", "A"}, laneIDs(lanes))
	assert.Equal(t, []string{"T1", "T2"}, ticketIDs(lanes[1].Tickets))
}

func TestReplaceSortsByOrder(t *testing.T) {
	b := New("p1", []models.Lane{
		{ID: "B", Order: 1, Tickets: []models.Ticket{{ID: "x", Order: 1}, {ID: "y", Order: 0}}},
		{ID: "A", Order: 0},
	})

	lanes := b.Snapshot()
	assert.Equal(t, []string{"A", "B"}, laneIDs(lanes))
	assert.Equal(t, []string{"y", "x"}, ticketIDs(lanes[1].Tickets))
}

func TestSnapshotIsIsolated(t *testing.T) {
	b := New("p1", sampleLanes())
	snap := b.Snapshot()
	snap[0].Name = "changed"
	snap[0].Tickets[0].LaneID = "changed"

	lane, _ := b.Lane("A")
	assert.Equal(t, "Lead", lane.Name)
	assert.Equal(t, "A", lane.Tickets[0].LaneID)
}

func TestAllTicketsFollowsLanes(t *testing.T) {
	b := New("p1", sampleLanes())
	assert.Equal(t, []string{"T1", "T2", "T3"}, ticketIDs(b.AllTickets()))

	_, err := b.MoveTicket("A", 0, "B", 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"T2", "T3", "T1"}, ticketIDs(b.AllTickets()))
}

func TestAppendAndRemoveLane(t *testing.T) {
	b := New("p1", sampleLanes())

	added := b.AppendLane(models.Lane{ID: "C", Name: "Lost", PipelineID: "p1"})
	assert.Equal(t, 2, added.Order)

	remaining, err := b.RemoveLane("A")
	require.NoError(t, err)
	assert.Equal(t, []string{"B", "C"}, laneIDs(remaining))
	assertContiguousLanes(t, remaining)

	_, err = b.RemoveLane("A")
	assert.ErrorIs(t, err, ErrLaneNotFound)
}

func TestAppendAndUpdateTicket(t *testing.T) {
	b := New("p1", sampleLanes())

	added, err := b.AppendTicket(models.Ticket{ID: "T4", Name: "T4", LaneID: "B"})
	require.NoError(t, err)
	assert.Equal(t, 1, added.Order)

	_, err = b.AppendTicket(models.Ticket{ID: "T5", LaneID: "missing"})
	assert.ErrorIs(t, err, ErrLaneNotFound)

	ok := b.UpdateTicket(models.Ticket{ID: "T4", Name: "renamed", LaneID: "A", Order: 9})
	require.True(t, ok)
	lane, _ := b.Lane("B")
	assert.Equal(t, "renamed", lane.Tickets[1].Name)
	assert.Equal(t, "B", lane.Tickets[1].LaneID)
	assert.Equal(t, 1, lane.Tickets[1].Order)

	assert.False(t, b.UpdateTicket(models.Ticket{ID: "nope"}))
}

func randomBoard(r *rand.Rand) []models.Lane {
	laneCount := 1 + r.Intn(5)
	lanes := make([]models.Lane, laneCount)
	for i := range lanes {
		id := fmt.Sprintf("L%d", i)
		lanes[i] = models.Lane{ID: id, PipelineID: "p1", Order: i}
		ticketCount := r.Intn(6)
		for j := 0; j < ticketCount; j++ {
			lanes[i].Tickets = append(lanes[i].Tickets, models.Ticket{
				ID:     fmt.Sprintf("%s-T%d", id, j),
				LaneID: id,
				Order:  j,
			})
		}
	}
	return lanes
}

func TestRandomMovesKeepOrderContiguous(t *testing.T) {
	r := rand.New(rand.NewSource(42))

	for round := 0; round < 200; round++ {
		b := New("p1", randomBoard(r))
		lanes := b.Snapshot()

		src := lanes[r.Intn(len(lanes))]
		dst := lanes[r.Intn(len(lanes))]
		if len(src.Tickets) == 0 {
			continue
		}
		srcIdx := r.Intn(len(src.Tickets))
		limit := len(dst.Tickets)
		if src.ID != dst.ID {
			limit++
		}
		dstIdx := r.Intn(limit)
		moved := src.Tickets[srcIdx].ID

		laneOf := map[string]string{}
		for _, tk := range b.AllTickets() {
			laneOf[tk.ID] = tk.LaneID
		}

		_, err := b.MoveTicket(src.ID, srcIdx, dst.ID, dstIdx)
		require.NoError(t, err)

		after := b.Snapshot()
		for _, l := range after {
			assertContiguousTickets(t, l)
		}
		for _, tk := range b.AllTickets() {
			if tk.ID == moved {
				assert.Equal(t, dst.ID, tk.LaneID)
				continue
			}
			assert.Equal(t, laneOf[tk.ID], tk.LaneID, "ticket %s must stay in its lane", tk.ID)
		}
		assert.Len(t, b.AllTickets(), len(laneOf))
	}
}

func TestRandomLaneReordersKeepOrderContiguous(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	b := New("p1", randomBoard(r))
	n := len(b.Snapshot())

	for round := 0; round < 100; round++ {
		_, err := b.ReorderLanes(r.Intn(n), r.Intn(n))
		require.NoError(t, err)

		lanes := b.Snapshot()
		seen := map[int]bool{}
		for _, l := range lanes {
			seen[l.Order] = true
		}
		assert.Len(t, seen, n)
		assertContiguousLanes(t, lanes)
	}
}

func TestRemoveTicketReindexesLane(t *testing.T) {
	b := New("p1", sampleLanes())

	remaining, ok := b.RemoveTicket("T1")
	require.True(t, ok)
	assert.Equal(t, []string{"T2"}, ticketIDs(remaining))
	assert.Equal(t, 0, remaining[0].Order)

	lanes := b.Snapshot()
	assertContiguousTickets(t, lanes[0])
	assert.Equal(t, []string{"T3"}, ticketIDs(lanes[1].Tickets))

	_, ok = b.RemoveTicket("T1")
	assert.False(t, ok)
}

func TestRemoveLastTicketLeavesEmptyLane(t *testing.T) {
	b := New("p1", sampleLanes())

	remaining, ok := b.RemoveTicket("T3")
	require.True(t, ok)
	assert.Empty(t, remaining)
	assert.Empty(t, b.Snapshot()[1].Tickets)
}

func TestUpdateLaneRenamesOnly(t *testing.T) {
	b := New("p1", sampleLanes())

	require.True(t, b.UpdateLane("B", "Closed"))
	lanes := b.Snapshot()
	assert.Equal(t, "Closed", lanes[1].Name)
	assert.Equal(t, 1, lanes[1].Order)
	assert.Equal(t, []string{"T3"}, ticketIDs(lanes[1].Tickets))

	assert.False(t, b.UpdateLane("Z", "Nope"))
}
