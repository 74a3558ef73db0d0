package capabilities

// CapabilityType represents something a loaded pipeline can do
type CapabilityType string

const (
	CapabilityLabel            CapabilityType = "label"
	CapabilityProbability      CapabilityType = "probability"
	CapabilityUnknownTolerant  CapabilityType = "unknown-category-tolerant"
	CapabilityTemporalFeatures CapabilityType = "temporal-features"
	CapabilityRemote           CapabilityType = "remote"
)

// Capability represents a specific pipeline capability with metadata
type Capability struct {
	Type        CapabilityType         `json:"type"`
	Version     string                 `json:"version"`
	Parameters  map[string]interface{} `json:"parameters,omitempty"`
	Description string                 `json:"description,omitempty"`
}
