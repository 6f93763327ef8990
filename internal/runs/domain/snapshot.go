package domain

import "time"

// Snapshot types.
const (
	SnapshotMarket      = "market"
	SnapshotMovers      = "movers"
	SnapshotNews        = "news"
	SnapshotLLMInput    = "llm_input"
	SnapshotLLMOutput   = "llm_output"
	SnapshotBriefResult = "brief"
)

// DefaultSnapshotKeep is how many snapshots per type survive pruning.
const DefaultSnapshotKeep = 30

// Snapshot is an audit copy of an external input or model exchange.
type Snapshot struct {
	ID        int64
	RunGUID   string
	Type      string
	Payload   []byte // JSON
	CreatedAt time.Time
}
