package domain

import "time"

// StructureInfo describes one stored structure for listings
type StructureInfo struct {
	Name    string `json:"name"`
	Records int64  `json:"records"`
}

// SweepResult summarizes one retention pass over a structure family or
// node subtree.
type SweepResult struct {
	Root            string    `json:"root"`
	Cutoff          time.Time `json:"cutoff"`
	StructuresSwept int       `json:"structures_swept"`
	RecordsDeleted  int64     `json:"records_deleted"`
}
