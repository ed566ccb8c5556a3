package models

import "github.com/Gobusters/ectolinq"

// PersonGroup is a cluster of documents believed to belong to one person
type PersonGroup struct {
	ID          string   `json:"id"`
	Name        *string  `json:"name"`
	Confidence  float64  `json:"confidence"`
	DocumentIDs []string `json:"document_ids"`
	MatchReason string   `json:"match_reason"`
}

// SuggestedMerge pairs two distinct groups that may be the same person
type SuggestedMerge struct {
	GroupID1   string  `json:"group_id_1"`
	GroupID2   string  `json:"group_id_2"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// GroupingResult is the output of one grouping run
type GroupingResult struct {
	Groups          []PersonGroup    `json:"groups"`
	SuggestedMerges []SuggestedMerge `json:"suggested_merges"`
}

// GroupOf returns the group holding documentID, or nil.
func (r GroupingResult) GroupOf(documentID string) *PersonGroup {
	for i := range r.Groups {
		if ectolinq.Contains(r.Groups[i].DocumentIDs, documentID) {
			return &r.Groups[i]
		}
	}
	return nil
}
