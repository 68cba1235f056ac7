// Package csvsource reads the tabular import sources with a normalized header.
package csvsource

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var (
	ErrSourceUnreadable = errors.New("source unreadable")
	ErrBadHeader        = errors.New("unexpected source header")
)

type Record struct {
	Line   int
	Fields []string
	index  map[string]int
}

// Get returns the trimmed cell under column name, or "" when the row is short.
func (r Record) Get(name string) string {
	i, ok := r.index[name]
	if !ok || i >= len(r.Fields) {
		return ""
	}
	return strings.TrimSpace(r.Fields[i])
}

// Cell returns the trimmed cell at position i, or "" when the row is short.
func (r Record) Cell(i int) string {
	if i < 0 || i >= len(r.Fields) {
		return ""
	}
	return strings.TrimSpace(r.Fields[i])
}

type Reader struct {
	closer io.Closer
	r      *csv.Reader
	header []string
	index  map[string]int
}

func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", ErrSourceUnreadable, path, err)
	}
	rd, err := NewReader(f)
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	rd.closer = f
	return rd, nil
}

// NewReader consumes the header line. A UTF-8 or UTF-16 byte order mark is honoured; header
// names are trimmed and lower-cased.
func NewReader(src io.Reader) (*Reader, error) {
	dec := transform.NewReader(src, unicode.BOMOverride(unicode.UTF8.NewDecoder()))
	cr := csv.NewReader(dec)
	cr.FieldsPerRecord = -1
	raw, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: empty source", ErrBadHeader)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read header: %w", ErrSourceUnreadable, err)
	}
	header := make([]string, len(raw))
	index := make(map[string]int, len(raw))
	for i, h := range raw {
		h = strings.ToLower(strings.TrimSpace(h))
		header[i] = h
		if _, dup := index[h]; !dup {
			index[h] = i
		}
	}
	return &Reader{r: cr, header: header, index: index}, nil
}

func (r *Reader) Header() []string {
	return append([]string(nil), r.header...)
}

// Require fails with ErrBadHeader unless every named column is present. With exact, no other
// columns may appear either.
func (r *Reader) Require(exact bool, cols ...string) error {
	missing := make([]string, 0)
	want := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		want[c] = struct{}{}
		if _, ok := r.index[c]; !ok {
			missing = append(missing, c)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing columns %v in %v", ErrBadHeader, missing, r.header)
	}
	if exact {
		for _, h := range r.header {
			if _, ok := want[h]; !ok {
				return fmt.Errorf("%w: unexpected column %q in %v", ErrBadHeader, h, r.header)
			}
		}
	}
	return nil
}

// Next returns the next data record. Malformed CSV syntax surfaces as *csv.ParseError, after
// which reading may continue; io.EOF marks the end; any other error is a read failure.
func (r *Reader) Next() (Record, error) {
	fields, err := r.r.Read()
	if err != nil {
		var perr *csv.ParseError
		if errors.As(err, &perr) || errors.Is(err, io.EOF) {
			return Record{}, err
		}
		return Record{}, fmt.Errorf("%w: %w", ErrSourceUnreadable, err)
	}
	line, _ := r.r.FieldPos(0)
	return Record{Line: line, Fields: fields, index: r.index}, nil
}

func (r *Reader) Close() error {
	if r.closer == nil {
		return nil
	}
	return r.closer.Close()
}

// ParseErrorLine reports the source line of a csv syntax error.
func ParseErrorLine(err error) (int, bool) {
	var perr *csv.ParseError
	if errors.As(err, &perr) {
		return perr.StartLine, true
	}
	return 0, false
}
