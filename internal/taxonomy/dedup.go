package taxonomy

import (
	"strings"

	"readerstudy/internal/models"

	"golang.org/x/text/cases"
)

// Key is the case-insensitive identity of a synonym or role name.
func Key(text string) string {
	return cases.Fold().String(strings.TrimSpace(text))
}

type DedupResult struct {
	Fresh    []SynonymCandidate
	Skipped  int
	Dropped  int
	Warnings []models.Warning
}

// DedupSynonyms keeps the proposed synonyms whose folded text is neither persisted nor proposed
// earlier. A persisted alias owned by the same term is skipped quietly; any other collision is
// dropped with a warning naming the retained owner.
func DedupSynonyms(proposed []SynonymCandidate, existing []models.Synonym) DedupResult {
	owners := make(map[string]models.Synonym, len(existing)+len(proposed))
	for _, s := range existing {
		owners[Key(s.Text)] = s
	}
	accepted := make(map[string]SynonymCandidate, len(proposed))

	var res DedupResult
	for _, c := range proposed {
		k := Key(c.Synonym.Text)
		if prev, ok := accepted[k]; ok {
			res.Dropped++
			res.Warnings = append(res.Warnings, models.Warnf(models.WarnDuplicateKey, c.Line,
				"synonym %q for term %d collides with %q (line %d); kept for term %d",
				c.Synonym.Text, c.Synonym.TermID, prev.Synonym.Text, prev.Line, prev.Synonym.TermID))
			continue
		}
		if prev, ok := owners[k]; ok {
			if prev.TermID == c.Synonym.TermID {
				res.Skipped++
				continue
			}
			res.Dropped++
			res.Warnings = append(res.Warnings, models.Warnf(models.WarnDuplicateKey, c.Line,
				"synonym %q for term %d already stored as %q; kept for term %d",
				c.Synonym.Text, c.Synonym.TermID, prev.Text, prev.TermID))
			continue
		}
		accepted[k] = c
		res.Fresh = append(res.Fresh, c)
	}
	return res
}
