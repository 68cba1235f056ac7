package ranking

import (
	"sort"

	"readerstudy/internal/models"
)

const DefaultK = 3

// TopK returns up to k predictions ordered by probability descending, exact ties broken by
// ascending term id. A term id seen more than once keeps its first occurrence. Fewer than k
// distinct entries are returned as-is; k <= 0 falls back to DefaultK.
func TopK(entries []models.Prediction, k int) []models.Prediction {
	if k <= 0 {
		k = DefaultK
	}
	seen := make(map[int]struct{}, len(entries))
	uniq := make([]models.Prediction, 0, len(entries))
	for _, e := range entries {
		if _, ok := seen[e.TermID]; ok {
			continue
		}
		seen[e.TermID] = struct{}{}
		uniq = append(uniq, e)
	}
	sort.SliceStable(uniq, func(i, j int) bool {
		if uniq[i].Probability != uniq[j].Probability {
			return uniq[i].Probability > uniq[j].Probability
		}
		return uniq[i].TermID < uniq[j].TermID
	})
	if len(uniq) > k {
		uniq = uniq[:k]
	}
	return uniq
}

// TopKVector ranks a probability vector.
func TopKVector(v models.ProbabilityVector, k int) []models.Prediction {
	return TopK(v.Entries(), k)
}

// Outputs turns ranked predictions into AI output rows for a case, rank starting at 1.
func Outputs(caseID int, ranked []models.Prediction) []models.AIOutput {
	out := make([]models.AIOutput, 0, len(ranked))
	for i, p := range ranked {
		out = append(out, models.AIOutput{
			CaseID:     caseID,
			Rank:       i + 1,
			TermID:     p.TermID,
			Confidence: p.Probability,
		})
	}
	return out
}
