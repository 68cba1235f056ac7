package models

import "fmt"

type WarningKind string

const (
	WarnMalformedRow     WarningKind = "malformed_row"
	WarnUnknownReference WarningKind = "unknown_reference"
	WarnDuplicateKey     WarningKind = "duplicate_key"
)

// Warning is a row-level problem that was recovered locally.
type Warning struct {
	Kind    WarningKind `json:"kind" yaml:"kind"`
	Stage   string      `json:"stage,omitempty" yaml:"stage,omitempty"`
	Line    int         `json:"line,omitempty" yaml:"line,omitempty"`
	Message string      `json:"message" yaml:"message"`
}

func (w Warning) String() string {
	if w.Line > 0 {
		return fmt.Sprintf("%s line %d: %s (%s)", w.Stage, w.Line, w.Message, w.Kind)
	}
	return fmt.Sprintf("%s: %s (%s)", w.Stage, w.Message, w.Kind)
}

func Warnf(kind WarningKind, line int, format string, args ...any) Warning {
	return Warning{Kind: kind, Line: line, Message: fmt.Sprintf(format, args...)}
}
