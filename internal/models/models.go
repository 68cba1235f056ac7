package models

import (
	"sort"
	"time"
)

type Role struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type CanonicalTerm struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type Synonym struct {
	ID     int    `json:"id,omitempty"`
	TermID int    `json:"diagnosis_term_id"`
	Text   string `json:"synonym"`
}

// ProbabilityVector maps a canonical term id to the model's probability for it.
type ProbabilityVector map[int]float64

// Entries returns the vector as predictions ordered by term id.
func (v ProbabilityVector) Entries() []Prediction {
	out := make([]Prediction, 0, len(v))
	for id, p := range v {
		out = append(out, Prediction{TermID: id, Probability: p})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TermID < out[j].TermID })
	return out
}

type Prediction struct {
	TermID      int     `json:"term_id"`
	Probability float64 `json:"probability"`
}

type Case struct {
	ID                int               `json:"id"`
	GroundTruthTermID int               `json:"ground_truth_diagnosis_id"`
	Probabilities     ProbabilityVector `json:"ai_predictions"`
	CreatedAt         time.Time         `json:"created_at"`
}

type Image struct {
	ID     int    `json:"id,omitempty"`
	CaseID int    `json:"case_id"`
	URL    string `json:"image_url"`
}

type AIOutput struct {
	ID         int     `json:"id,omitempty"`
	CaseID     int     `json:"case_id"`
	Rank       int     `json:"rank"`
	TermID     int     `json:"prediction_id"`
	Confidence float64 `json:"confidence_score"`
}
