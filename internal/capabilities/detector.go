package capabilities

import (
	"log/slog"
	"slices"
	"strings"

	"github.com/aigoflow/rideguard/internal/models"
	"github.com/aigoflow/rideguard/internal/pipeline"
)

// Detector inspects a pipeline once at startup
type Detector struct{}

func NewDetector() *Detector {
	return &Detector{}
}

// Detect lists every capability the pipeline supports. A nil pipeline has none.
func (d *Detector) Detect(p pipeline.Pipeline) []Capability {
	if p == nil {
		return nil
	}
	info := p.Info()

	capabilities := []Capability{{
		Type:        CapabilityLabel,
		Version:     "1.0",
		Description: "Predict a binary cancellation label",
	}}

	if _, ok := p.(pipeline.ProbabilityPipeline); ok {
		capabilities = append(capabilities, Capability{
			Type:        CapabilityProbability,
			Version:     "1.0",
			Description: "Report the probability of cancellation",
		})
		slog.Debug("Detected probability capability", "model", info.Name)
	}

	if info.HandleUnknown == pipeline.UnknownIgnore {
		capabilities = append(capabilities, Capability{
			Type:        CapabilityUnknownTolerant,
			Version:     "1.0",
			Description: "Accept categories unseen during training",
		})
	}

	if usesTemporal(info.Columns) {
		capabilities = append(capabilities, Capability{
			Type:        CapabilityTemporalFeatures,
			Version:     "1.0",
			Parameters:  map[string]interface{}{"columns": models.TemporalColumns},
			Description: "Requires day of week, weekend, hour and peak-hour features",
		})
	}

	switch p.(type) {
	case *pipeline.RemotePipeline, *pipeline.RemoteProbaPipeline:
		capabilities = append(capabilities, Capability{
			Type:        CapabilityRemote,
			Version:     "1.0",
			Description: "Served by a sidecar process over NATS",
		})
	}

	slog.Info("Capability detection completed",
		"model", info.Name,
		"kind", info.Kind,
		"total_capabilities", len(capabilities))

	return capabilities
}

// Supports reports whether capability is in capabilities
func Supports(capabilities []Capability, capability CapabilityType) bool {
	for _, c := range capabilities {
		if c.Type == capability {
			return true
		}
	}
	return false
}

// Strings converts capabilities to a string array for JSON serialization
func Strings(capabilities []Capability) []string {
	out := make([]string, len(capabilities))
	for i, c := range capabilities {
		out[i] = string(c.Type)
	}
	return out
}

// Summary returns a human-readable summary of capabilities
func Summary(capabilities []Capability) string {
	var summary []string
	for _, c := range capabilities {
		switch c.Type {
		case CapabilityLabel:
			summary = append(summary, "Label")
		case CapabilityProbability:
			summary = append(summary, "Probability")
		case CapabilityUnknownTolerant:
			summary = append(summary, "Unseen categories")
		case CapabilityTemporalFeatures:
			summary = append(summary, "Temporal")
		case CapabilityRemote:
			summary = append(summary, "Remote")
		}
	}
	if len(summary) == 0 {
		return "Unavailable"
	}
	return strings.Join(summary, ", ")
}

func usesTemporal(columns []string) bool {
	for _, col := range models.TemporalColumns {
		if slices.Contains(columns, col) {
			return true
		}
	}
	return false
}
