package capabilities

import (
	"context"
	"testing"

	"github.com/aigoflow/rideguard/internal/pipeline"
)

type labelOnly struct{ info pipeline.Info }

func (l labelOnly) Info() pipeline.Info { return l.info }

func (l labelOnly) Predict(context.Context, pipeline.Frame) (int, error) { return 0, nil }

type withProba struct{ labelOnly }

func (w withProba) PredictProba(context.Context, pipeline.Frame) ([2]float64, error) {
	return [2]float64{0.5, 0.5}, nil
}

func TestDetect(t *testing.T) {
	d := NewDetector()

	tests := []struct {
		name string
		p    pipeline.Pipeline
		want []CapabilityType
		not  []CapabilityType
	}{
		{
			name: "label only",
			p:    labelOnly{pipeline.Info{Columns: []string{"booking_value"}, HandleUnknown: "error"}},
			want: []CapabilityType{CapabilityLabel},
			not:  []CapabilityType{CapabilityProbability, CapabilityUnknownTolerant, CapabilityTemporalFeatures},
		},
		{
			name: "probability and temporal",
			p:    withProba{labelOnly{pipeline.Info{Columns: []string{"booking_value", "hour_of_day"}, HandleUnknown: "ignore"}}},
			want: []CapabilityType{CapabilityLabel, CapabilityProbability, CapabilityUnknownTolerant, CapabilityTemporalFeatures},
			not:  []CapabilityType{CapabilityRemote},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			caps := d.Detect(tt.p)
			for _, c := range tt.want {
				if !Supports(caps, c) {
					t.Errorf("missing %s in %v", c, Strings(caps))
				}
			}
			for _, c := range tt.not {
				if Supports(caps, c) {
					t.Errorf("unexpected %s in %v", c, Strings(caps))
				}
			}
		})
	}
}

func TestDetectNil(t *testing.T) {
	caps := NewDetector().Detect(nil)
	if len(caps) != 0 {
		t.Fatalf("expected no capabilities, got %v", caps)
	}
	if Summary(caps) != "Unavailable" {
		t.Errorf("summary = %q", Summary(caps))
	}
}

func TestSummary(t *testing.T) {
	caps := []Capability{{Type: CapabilityLabel}, {Type: CapabilityProbability}}
	if got := Summary(caps); got != "Label, Probability" {
		t.Errorf("summary = %q", got)
	}
}
