package reconcile

import (
	"errors"
	"fmt"
	"io"
	"strconv"

	"readerstudy/internal/csvsource"
	"readerstudy/internal/models"
)

const (
	ColCaseID    = "case_id"
	ColImagePath = "image_path"
	ColGT        = "gt"
)

type termColumn struct {
	index  int
	termID int
}

// Candidate is one parsed case row before it is checked against the known terms.
type Candidate struct {
	Line        int
	CaseID      int
	ImagePath   string
	GroundTruth int
	Entries     []models.Prediction
	// Invalid lists term ids whose cell could not be used as a probability.
	Invalid  []int
	Warnings []models.Warning
	// Malformed rows carry a warning and nothing else.
	Malformed bool
}

type Reader struct {
	src     *csvsource.Reader
	columns []termColumn
}

// Open validates the case source header: case_id, image_path and gt plus one integer term id
// per remaining column.
func Open(path string) (*Reader, error) {
	src, err := csvsource.Open(path)
	if err != nil {
		return nil, err
	}
	r, err := newReader(src)
	if err != nil {
		_ = src.Close()
		return nil, fmt.Errorf("cases %s: %w", path, err)
	}
	return r, nil
}

func newReader(src *csvsource.Reader) (*Reader, error) {
	if err := src.Require(false, ColCaseID, ColImagePath, ColGT); err != nil {
		return nil, err
	}
	cols := make([]termColumn, 0)
	for i, h := range src.Header() {
		switch h {
		case ColCaseID, ColImagePath, ColGT:
			continue
		}
		id, err := strconv.Atoi(h)
		if err != nil {
			return nil, fmt.Errorf("%w: non-numeric diagnosis term column %q", csvsource.ErrBadHeader, h)
		}
		cols = append(cols, termColumn{index: i, termID: id})
	}
	return &Reader{src: src, columns: cols}, nil
}

// TermIDs lists the term id of every probability column in header order.
func (r *Reader) TermIDs() []int {
	out := make([]int, 0, len(r.columns))
	for _, c := range r.columns {
		out = append(out, c.termID)
	}
	return out
}

// Next parses the next row. io.EOF ends the source; other errors are structural.
func (r *Reader) Next() (Candidate, error) {
	rec, err := r.src.Next()
	if errors.Is(err, io.EOF) {
		return Candidate{}, io.EOF
	}
	if line, ok := csvsource.ParseErrorLine(err); ok {
		return malformed(line, "unparseable csv row: %v", err), nil
	}
	if err != nil {
		return Candidate{}, err
	}
	return r.parse(rec), nil
}

func (r *Reader) Close() error {
	return r.src.Close()
}

func (r *Reader) parse(rec csvsource.Record) Candidate {
	caseID, err := strconv.Atoi(rec.Get(ColCaseID))
	if err != nil {
		return malformed(rec.Line, "invalid case_id %q", rec.Get(ColCaseID))
	}
	image := rec.Get(ColImagePath)
	if image == "" {
		return malformed(rec.Line, "case %d has no image_path", caseID)
	}
	gt, err := strconv.Atoi(rec.Get(ColGT))
	if err != nil {
		return malformed(rec.Line, "case %d has invalid gt %q", caseID, rec.Get(ColGT))
	}

	c := Candidate{
		Line:        rec.Line,
		CaseID:      caseID,
		ImagePath:   image,
		GroundTruth: gt,
		Entries:     make([]models.Prediction, 0, len(r.columns)),
	}
	for _, col := range r.columns {
		raw := rec.Cell(col.index)
		if raw == "" {
			continue
		}
		p, ok := ParseProbability(raw)
		if !ok {
			c.Invalid = append(c.Invalid, col.termID)
			continue
		}
		c.Entries = append(c.Entries, models.Prediction{TermID: col.termID, Probability: p})
	}
	if len(c.Invalid) > 0 {
		c.Warnings = append(c.Warnings, models.Warnf(models.WarnMalformedRow, rec.Line,
			"case %d: dropped unparseable probabilities for terms %v", caseID, c.Invalid))
	}
	return c
}

func malformed(line int, format string, args ...any) Candidate {
	return Candidate{
		Line:      line,
		Malformed: true,
		Warnings:  []models.Warning{models.Warnf(models.WarnMalformedRow, line, format, args...)},
	}
}
