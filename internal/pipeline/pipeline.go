package pipeline

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrMissingColumn is returned when a record lacks a column the pipeline was fitted with.
	ErrMissingColumn = errors.New("missing column")
	// ErrUnknownCategory is returned by encoders configured to reject unseen categories.
	ErrUnknownCategory = errors.New("unknown category")
	// ErrColumnType is returned when a column value has the wrong type for its transformer.
	ErrColumnType = errors.New("column type mismatch")
)

// Info describes a loaded pipeline.
type Info struct {
	Name              string   `json:"name"`
	Version           string   `json:"version"`
	Kind              string   `json:"kind"`
	Columns           []string `json:"columns"`
	DecisionThreshold *float64 `json:"decision_threshold,omitempty"`
	HandleUnknown     string   `json:"handle_unknown,omitempty"`
}

// Pipeline is the narrow capability every fitted pipeline offers: a class
// label for one row. Implementations must be safe for concurrent use.
type Pipeline interface {
	Info() Info
	Predict(ctx context.Context, frame Frame) (int, error)
}

// ProbabilityPipeline additionally exposes class probabilities [p(0), p(1)].
type ProbabilityPipeline interface {
	Pipeline
	PredictProba(ctx context.Context, frame Frame) ([2]float64, error)
}

// Frame is a single row laid out in the pipeline's fit-time column order.
type Frame struct {
	columns []string
	values  []any
}

// NewFrame selects columns from row in the given order. A column absent from
// row is a hard failure; extra row entries are ignored.
func NewFrame(columns []string, row map[string]any) (Frame, error) {
	values := make([]any, len(columns))
	for i, col := range columns {
		v, ok := row[col]
		if !ok {
			return Frame{}, fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
		values[i] = v
	}
	return Frame{columns: columns, values: values}, nil
}

func (f Frame) Columns() []string { return f.columns }

func (f Frame) Values() []any { return f.values }

func (f Frame) Len() int { return len(f.columns) }

// Lookup returns the value of the named column.
func (f Frame) Lookup(name string) (any, bool) {
	for i, col := range f.columns {
		if col == name {
			return f.values[i], true
		}
	}
	return nil, false
}
