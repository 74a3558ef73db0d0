package pipeline

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"gonum.org/v1/gonum/floats"
)

// ArtifactPipeline evaluates an exported Artifact natively.
type ArtifactPipeline struct {
	art           Artifact
	handleUnknown string
	features      int
	colIndex      map[string]int

	// MinMaxScaler's scale_ and min_, one entry per numeric feature.
	scale []float64
	shift []float64
}

// New validates art and prepares it for evaluation.
func New(art Artifact, opts Options) (*ArtifactPipeline, error) {
	if len(art.Columns) == 0 {
		return nil, errors.New("artifact declares no columns")
	}

	colIndex := make(map[string]int, len(art.Columns))
	for i, col := range art.Columns {
		if _, dup := colIndex[col]; dup {
			return nil, fmt.Errorf("duplicate column %q", col)
		}
		colIndex[col] = i
	}

	pre := art.Preprocessor
	features := 0
	scale := make([]float64, 0, len(pre.Numeric))
	shift := make([]float64, 0, len(pre.Numeric))
	for _, nf := range pre.Numeric {
		if _, ok := colIndex[nf.Column]; !ok {
			return nil, fmt.Errorf("numeric transformer references unknown column %q", nf.Column)
		}
		if math.IsNaN(nf.DataMin) || math.IsNaN(nf.DataMax) {
			return nil, fmt.Errorf("column %q: data range is NaN", nf.Column)
		}
		if nf.DataMax < nf.DataMin {
			return nil, fmt.Errorf("column %q: data_max below data_min", nf.Column)
		}
		// A constant column keeps unit scale, as sklearn does.
		k := 1.0
		if span := nf.DataMax - nf.DataMin; span != 0 {
			k = 1 / span
		}
		scale = append(scale, k)
		shift = append(shift, -nf.DataMin*k)
		features++
	}
	for _, cf := range pre.Categorical {
		if _, ok := colIndex[cf.Column]; !ok {
			return nil, fmt.Errorf("categorical transformer references unknown column %q", cf.Column)
		}
		if len(cf.Categories) == 0 {
			return nil, fmt.Errorf("column %q: no categories", cf.Column)
		}
		features += len(cf.Categories)
	}
	for _, col := range pre.Passthrough {
		if _, ok := colIndex[col]; !ok {
			return nil, fmt.Errorf("passthrough references unknown column %q", col)
		}
		features++
	}
	if features == 0 {
		return nil, errors.New("preprocessor produces no features")
	}

	handleUnknown, err := resolveUnknownPolicy(pre.HandleUnknown, opts.UnknownPolicy)
	if err != nil {
		return nil, err
	}

	if t := art.DecisionThreshold; t != nil && (math.IsNaN(*t) || *t < 0 || *t > 1) {
		return nil, fmt.Errorf("decision_threshold %v outside [0, 1]", *t)
	}

	if err := validateClassifier(art.Classifier, features); err != nil {
		return nil, err
	}

	return &ArtifactPipeline{
		art:           art,
		handleUnknown: handleUnknown,
		features:      features,
		colIndex:      colIndex,
		scale:         scale,
		shift:         shift,
	}, nil
}

func resolveUnknownPolicy(artifact, override string) (string, error) {
	policy := artifact
	if override != "" && override != UnknownArtifact {
		policy = override
	}
	if policy == "" {
		// sklearn's OneHotEncoder default
		policy = UnknownError
	}
	if policy != UnknownIgnore && policy != UnknownError {
		return "", fmt.Errorf("unsupported handle_unknown %q", policy)
	}
	return policy, nil
}

func validateClassifier(c Classifier, features int) error {
	if len(c.Trees) == 0 {
		return errors.New("classifier has no trees")
	}

	leafWidth := 2
	switch c.Kind {
	case KindDecisionTree:
		if len(c.Trees) != 1 {
			return fmt.Errorf("decision_tree expects exactly one tree, got %d", len(c.Trees))
		}
	case KindRandomForest:
	case KindGradientBoosting:
		if c.LearningRate <= 0 {
			return errors.New("gradient_boosting requires a positive learning_rate")
		}
		leafWidth = 1
	default:
		return fmt.Errorf("unsupported classifier kind %q", c.Kind)
	}

	for ti, tree := range c.Trees {
		if len(tree.Nodes) == 0 {
			return fmt.Errorf("tree %d has no nodes", ti)
		}
		for ni, n := range tree.Nodes {
			if n.Left == -1 {
				if n.Right != -1 {
					return fmt.Errorf("tree %d node %d: half-leaf", ti, ni)
				}
				if len(n.Value) != leafWidth {
					return fmt.Errorf("tree %d node %d: leaf value has %d entries, want %d", ti, ni, len(n.Value), leafWidth)
				}
				continue
			}
			if n.Feature < 0 || n.Feature >= features {
				return fmt.Errorf("tree %d node %d: feature %d out of range", ti, ni, n.Feature)
			}
			// sklearn stores children after their parent; requiring it rules out cycles.
			if n.Left <= ni || n.Left >= len(tree.Nodes) || n.Right <= ni || n.Right >= len(tree.Nodes) {
				return fmt.Errorf("tree %d node %d: child index out of range", ti, ni)
			}
		}
	}
	return nil
}

func (p *ArtifactPipeline) Info() Info {
	return Info{
		Name:              p.art.Name,
		Version:           p.art.Version,
		Kind:              p.art.Classifier.Kind,
		Columns:           slices.Clone(p.art.Columns),
		DecisionThreshold: p.art.DecisionThreshold,
		HandleUnknown:     p.handleUnknown,
	}
}

func (p *ArtifactPipeline) Predict(ctx context.Context, frame Frame) (int, error) {
	proba, err := p.PredictProba(ctx, frame)
	if err != nil {
		return 0, err
	}
	// MaxIdx returns the first index on ties, matching numpy argmax.
	return floats.MaxIdx(proba[:]), nil
}

func (p *ArtifactPipeline) PredictProba(ctx context.Context, frame Frame) ([2]float64, error) {
	if err := ctx.Err(); err != nil {
		return [2]float64{}, err
	}

	x, err := p.transform(frame)
	if err != nil {
		return [2]float64{}, err
	}

	c := p.art.Classifier
	switch c.Kind {
	case KindGradientBoosting:
		stages := make([]float64, len(c.Trees))
		for i, tree := range c.Trees {
			stages[i] = tree.leaf(x).Value[0]
		}
		raw := c.Init + c.LearningRate*floats.Sum(stages)
		p1 := 1 / (1 + math.Exp(-raw))
		return [2]float64{1 - p1, p1}, nil

	default:
		acc := make([]float64, 2)
		for i, tree := range c.Trees {
			w := tree.leaf(x).Value
			total := floats.Sum(w)
			if total <= 0 {
				return [2]float64{}, fmt.Errorf("tree %d: leaf has no weight", i)
			}
			floats.AddScaled(acc, 1/total, w)
		}
		floats.Scale(1/float64(len(c.Trees)), acc)
		return [2]float64{acc[0], acc[1]}, nil
	}
}

// transform applies the column transformer: scaled numerics, one-hot
// blocks, then passthrough columns.
func (p *ArtifactPipeline) transform(frame Frame) ([]float64, error) {
	if err := p.checkFrame(frame); err != nil {
		return nil, err
	}
	values := frame.Values()
	pre := p.art.Preprocessor

	x := make([]float64, 0, p.features)
	for i, nf := range pre.Numeric {
		v, ok := values[p.colIndex[nf.Column]].(float64)
		if !ok {
			return nil, fmt.Errorf("%w: %s expects a number, got %T", ErrColumnType, nf.Column, values[p.colIndex[nf.Column]])
		}
		x = append(x, v*p.scale[i]+p.shift[i])
	}

	for _, cf := range pre.Categorical {
		s, ok := values[p.colIndex[cf.Column]].(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s expects a string, got %T", ErrColumnType, cf.Column, values[p.colIndex[cf.Column]])
		}
		hit := slices.Index(cf.Categories, s)
		if hit < 0 && p.handleUnknown == UnknownError {
			return nil, fmt.Errorf("%w: %s", ErrUnknownCategory, cf.Column)
		}
		for i := range cf.Categories {
			if i == hit {
				x = append(x, 1)
			} else {
				x = append(x, 0)
			}
		}
	}

	for _, col := range pre.Passthrough {
		v, ok := values[p.colIndex[col]].(float64)
		if !ok {
			return nil, fmt.Errorf("%w: %s expects a number, got %T", ErrColumnType, col, values[p.colIndex[col]])
		}
		x = append(x, v)
	}

	return x, nil
}

func (p *ArtifactPipeline) checkFrame(frame Frame) error {
	cols := frame.Columns()
	for i, col := range p.art.Columns {
		if i >= len(cols) || cols[i] != col {
			return fmt.Errorf("%w: %s", ErrMissingColumn, col)
		}
	}
	if len(cols) != len(p.art.Columns) {
		return fmt.Errorf("frame has %d columns, pipeline expects %d", len(cols), len(p.art.Columns))
	}
	return nil
}

func (t Tree) leaf(x []float64) Node {
	i := 0
	for {
		n := t.Nodes[i]
		if n.Left == -1 {
			return n
		}
		// sklearn compares on float32 inputs.
		if float64(float32(x[n.Feature])) <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}
