package models

// LaneOrder is the persisted position of a lane.
type LaneOrder struct {
	ID         string `json:"id"`
	PipelineID string `json:"pipelineId"`
	Order      int    `json:"order"`
}

// TicketOrder is the persisted lane and position of a ticket.
type TicketOrder struct {
	ID     string `json:"id"`
	LaneID string `json:"laneId"`
	Order  int    `json:"order"`
}
