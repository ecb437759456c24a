package domain

// CandidateBatch is the merged intake message published on the raw channel.
type CandidateBatch struct {
	Tokens     []TokenCandidate `json:"tokens"`
	IngestedAt int64            `json:"ingested_at"` // unix ms
}
