package reconcile

import (
	"math"
	"strconv"
	"strings"

	"readerstudy/internal/models"
)

// ParseProbability accepts decimal and scientific notation; non-finite values and values
// outside [0,1] are rejected.
func ParseProbability(raw string) (float64, bool) {
	digits := strings.TrimLeft(raw, "+-")
	if strings.HasPrefix(digits, "0x") || strings.HasPrefix(digits, "0X") {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	if v < 0 || v > 1 {
		return 0, false
	}
	return v, true
}

// Record is a validated case row ready for the writer.
type Record struct {
	Line  int
	Case  models.Case
	Image models.Image
}

// Reconcile checks a candidate against the known terms. An unknown ground truth rejects the
// whole row; unknown probability terms are dropped from the vector.
func Reconcile(c Candidate, known func(termID int) bool) (Record, []models.Warning, bool) {
	warnings := append([]models.Warning(nil), c.Warnings...)
	if c.Malformed {
		return Record{}, warnings, false
	}
	if !known(c.GroundTruth) {
		warnings = append(warnings, models.Warnf(models.WarnUnknownReference, c.Line,
			"case %d references unknown ground truth term %d; row skipped", c.CaseID, c.GroundTruth))
		return Record{}, warnings, false
	}

	vector := make(models.ProbabilityVector, len(c.Entries))
	var unknown []int
	for _, e := range c.Entries {
		if !known(e.TermID) {
			unknown = append(unknown, e.TermID)
			continue
		}
		if _, dup := vector[e.TermID]; dup {
			continue
		}
		vector[e.TermID] = e.Probability
	}
	if len(unknown) > 0 {
		warnings = append(warnings, models.Warnf(models.WarnUnknownReference, c.Line,
			"case %d: dropped probabilities for unknown terms %v", c.CaseID, unknown))
	}
	return Record{
		Line: c.Line,
		Case: models.Case{
			ID:                c.CaseID,
			GroundTruthTermID: c.GroundTruth,
			Probabilities:     vector,
		},
		Image: models.Image{CaseID: c.CaseID, URL: c.ImagePath},
	}, warnings, true
}
