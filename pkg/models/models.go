package models

// Unset is stored in the optional numeric fields of a Record when the
// server sent nothing parseable for them.
const Unset = -1

// Record is one decoded line of a call-stack report.
type Record struct {
	Level             int     `json:"level"`
	ID                string  `json:"id"`
	Name              string  `json:"name"`
	TotalCount        int     `json:"total_count"`
	SelfCount         int     `json:"self_count"`
	TotalBytes        float64 `json:"total_bytes"`
	SelfBytes         float64 `json:"self_bytes"`
	SelfCountPerFrame float64 `json:"self_count_per_frame"`
	CallsPerFrame     float64 `json:"calls_per_frame"`
}

// Snapshot is a JSON-friendly copy of a reconciled tree.
type Snapshot struct {
	Record
	Children []Snapshot `json:"children,omitempty"`
}
