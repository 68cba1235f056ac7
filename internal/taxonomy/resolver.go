package taxonomy

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"readerstudy/internal/csvsource"
	"readerstudy/internal/models"
	"readerstudy/internal/util"
)

var Columns = []string{"id", "canonical", "type", "alias"}

const (
	TypeCanonical    = ""
	TypeSynonym      = "synonym"
	TypeAbbreviation = "abbreviation"
)

type Row struct {
	Line      int
	ID        string
	Canonical string
	Type      string
	Alias     string
}

type TermCandidate struct {
	Line int
	Term models.CanonicalTerm
}

type SynonymCandidate struct {
	Line    int
	Synonym models.Synonym
}

type Resolution struct {
	Terms    []TermCandidate
	Synonyms []SynonymCandidate
	Warnings []models.Warning
	Rows     int
	// Rejected rows by the kind they would have produced; rows of unknown type count as terms.
	RejectedTerms    int
	RejectedSynonyms int
}

// ReadRows loads every taxonomy row. CSV syntax errors become warnings; only an unreadable
// source or a header other than id,canonical,type,alias fails.
func ReadRows(path string) ([]Row, []models.Warning, error) {
	src, err := csvsource.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer src.Close()
	if err := src.Require(true, Columns...); err != nil {
		return nil, nil, fmt.Errorf("taxonomy %s: %w", path, err)
	}

	rows := make([]Row, 0, 256)
	warnings := make([]models.Warning, 0)
	for {
		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if line, ok := csvsource.ParseErrorLine(err); ok {
			warnings = append(warnings, models.Warnf(models.WarnMalformedRow, line, "unparseable csv row: %v", err))
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read taxonomy %s: %w", path, err)
		}
		rows = append(rows, Row{
			Line:      rec.Line,
			ID:        rec.Get("id"),
			Canonical: util.CleanField(rec.Get("canonical")),
			Type:      strings.ToLower(rec.Get("type")),
			Alias:     util.CleanField(rec.Get("alias")),
		})
	}
	return rows, warnings, nil
}

// Resolve turns taxonomy rows into term and synonym candidates. It does not consult the store:
// a synonym may precede its canonical row or reference a term created by an earlier run.
func Resolve(rows []Row) Resolution {
	res := Resolution{Rows: len(rows)}
	byID := map[int]TermCandidate{}
	byName := map[string]int{}

	reject := func(row Row, w models.Warning) {
		res.Warnings = append(res.Warnings, w)
		if row.Type == TypeSynonym || row.Type == TypeAbbreviation {
			res.RejectedSynonyms++
			return
		}
		res.RejectedTerms++
	}

	for _, row := range rows {
		id, err := strconv.Atoi(row.ID)
		if err != nil {
			reject(row, models.Warnf(models.WarnMalformedRow, row.Line, "invalid term id %q", row.ID))
			continue
		}
		switch row.Type {
		case TypeCanonical:
			if row.Canonical == "" {
				reject(row, models.Warnf(models.WarnMalformedRow, row.Line, "term %d has no canonical name", id))
				continue
			}
			if prev, ok := byID[id]; ok {
				if prev.Term.Name != row.Canonical {
					reject(row, models.Warnf(models.WarnDuplicateKey, row.Line,
						"term %d redefined as %q; keeping %q from line %d", id, row.Canonical, prev.Term.Name, prev.Line))
				}
				continue
			}
			if owner, ok := byName[row.Canonical]; ok {
				reject(row, models.Warnf(models.WarnDuplicateKey, row.Line,
					"term name %q already used by term %d; dropping term %d", row.Canonical, owner, id))
				continue
			}
			c := TermCandidate{Line: row.Line, Term: models.CanonicalTerm{ID: id, Name: row.Canonical}}
			byID[id] = c
			byName[row.Canonical] = id
			res.Terms = append(res.Terms, c)
		case TypeSynonym, TypeAbbreviation:
			if row.Alias == "" {
				reject(row, models.Warnf(models.WarnMalformedRow, row.Line, "%s row for term %d has no alias", row.Type, id))
				continue
			}
			res.Synonyms = append(res.Synonyms, SynonymCandidate{
				Line:    row.Line,
				Synonym: models.Synonym{TermID: id, Text: row.Alias},
			})
		default:
			reject(row, models.Warnf(models.WarnMalformedRow, row.Line, "unknown row type %q", row.Type))
		}
	}
	return res
}
