package pipeline

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"
)

// Classifier kinds understood by the evaluator.
const (
	KindDecisionTree     = "decision_tree"
	KindRandomForest     = "random_forest"
	KindGradientBoosting = "gradient_boosting"
)

// Unknown-category policies.
const (
	UnknownIgnore   = "ignore"
	UnknownError    = "error"
	UnknownArtifact = "artifact"
)

// Artifact is the JSON export of a fitted scikit-learn pipeline
// (ColumnTransformer of MinMaxScaler + OneHotEncoder, then a tree classifier).
type Artifact struct {
	Name              string       `json:"name"`
	Version           string       `json:"version"`
	Columns           []string     `json:"columns"`
	DecisionThreshold *float64     `json:"decision_threshold,omitempty"`
	Preprocessor      Preprocessor `json:"preprocessor"`
	Classifier        Classifier   `json:"classifier"`
}

type Preprocessor struct {
	Numeric       []NumericFeature     `json:"numeric"`
	Categorical   []CategoricalFeature `json:"categorical"`
	HandleUnknown string               `json:"handle_unknown"`
	Passthrough   []string             `json:"passthrough,omitempty"`
}

// NumericFeature carries a fitted MinMaxScaler's data_min_ and data_max_ for one column.
type NumericFeature struct {
	Column  string  `json:"column"`
	DataMin float64 `json:"data_min"`
	DataMax float64 `json:"data_max"`
}

// CategoricalFeature carries a fitted OneHotEncoder's categories_ for one column.
type CategoricalFeature struct {
	Column     string   `json:"column"`
	Categories []string `json:"categories"`
}

type Classifier struct {
	Kind         string  `json:"kind"`
	Trees        []Tree  `json:"trees"`
	LearningRate float64 `json:"learning_rate,omitempty"`
	Init         float64 `json:"init,omitempty"` // boosting prior, log-odds
}

type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Node mirrors sklearn's tree_ arrays. Left == -1 marks a leaf.
type Node struct {
	Feature   int       `json:"feature"`
	Threshold float64   `json:"threshold"`
	Left      int       `json:"left"`
	Right     int       `json:"right"`
	Value     []float64 `json:"value"`
}

// Options adjust a loaded artifact.
type Options struct {
	// UnknownPolicy overrides the artifact's handle_unknown when set to
	// "ignore" or "error". Empty or "artifact" keeps the artifact's setting.
	UnknownPolicy string
}

// Load reads and validates a JSON artifact. The returned pipeline is
// immutable and safe for concurrent use.
func Load(path string, opts Options) (*ArtifactPipeline, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read artifact: %w", err)
	}

	var art Artifact
	if err := json.Unmarshal(data, &art); err != nil {
		return nil, fmt.Errorf("failed to decode artifact %s: %w", path, err)
	}

	p, err := New(art, opts)
	if err != nil {
		return nil, fmt.Errorf("invalid artifact %s: %w", path, err)
	}

	slog.Info("Pipeline artifact loaded",
		"path", path,
		"name", art.Name,
		"version", art.Version,
		"kind", art.Classifier.Kind,
		"columns", len(art.Columns),
		"features", p.features,
		"trees", len(art.Classifier.Trees),
		"handle_unknown", p.handleUnknown)

	return p, nil
}

// LoadWithAutoDownload loads an artifact, downloading it first if missing.
func LoadWithAutoDownload(path, url string, opts Options) (*ArtifactPipeline, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if url == "" {
			return nil, fmt.Errorf("artifact not found at %s and no download URL provided", path)
		}

		slog.Info("Artifact not found, downloading", "url", url, "path", path)

		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create artifact directory: %w", err)
		}
		if err := downloadFile(url, path); err != nil {
			return nil, fmt.Errorf("failed to download artifact: %w", err)
		}
	}

	return Load(path, opts)
}

// downloadFile writes to a temporary sibling and renames, so a failed
// download never leaves a truncated artifact behind.
func downloadFile(url, path string) error {
	client := &http.Client{Timeout: 2 * time.Minute}
	resp, err := client.Get(url)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("bad status: %s", resp.Status)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".*.part")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	start := time.Now()
	n, err := io.Copy(tmp, resp.Body)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}

	if err := os.Rename(tmp.Name(), path); err != nil {
		return err
	}

	slog.Info("Download completed",
		"bytes", n,
		"duration", time.Since(start).Round(time.Millisecond).String(),
		"file", path)
	return nil
}
