package domain

import "fmt"

// WritePolicy selects how repeated stores of the same structure behave.
// The policy is caller-visible configuration, never inferred from data.
type WritePolicy string

const (
	// PolicyAppendHistory inserts a new record on every store, keeping the
	// full write history. Reads select the latest record.
	PolicyAppendHistory WritePolicy = "append_history"

	// PolicyUpsertSingleton keeps exactly one logical record per structure,
	// updated in place on every store.
	PolicyUpsertSingleton WritePolicy = "upsert_singleton"
)

// ParseWritePolicy validates a configured policy name
func ParseWritePolicy(s string) (WritePolicy, error) {
	switch p := WritePolicy(s); p {
	case PolicyAppendHistory, PolicyUpsertSingleton:
		return p, nil
	default:
		return "", fmt.Errorf("unknown write policy %q", s)
	}
}
