package ml

import (
	"encoding/json"
	"errors"
	"fmt"
)

const (
	ObjectiveBinaryLogistic = "binary:logistic"
	ObjectiveSquaredError   = "reg:squarederror"
)

// DecisionTree is a flattened regression tree; node 0 is the root.
type DecisionTree struct {
	nodes []TreeNode
}

type TreeNode struct {
	FeatureIdx int     `json:"feature_idx"`
	Threshold  float64 `json:"threshold"`
	LeftChild  int     `json:"left_child"`
	RightChild int     `json:"right_child"`
	Value      float64 `json:"value"`
	IsLeaf     bool    `json:"is_leaf"`
}

func NewDecisionTree(nodes []TreeNode) DecisionTree {
	return DecisionTree{nodes: append([]TreeNode(nil), nodes...)}
}

// Predict walks the tree for row. A value below the threshold goes left.
func (dt *DecisionTree) Predict(row []float64) (float64, error) {
	if len(dt.nodes) == 0 {
		return 0, errors.New("tree is empty")
	}
	idx := 0
	for steps := 0; steps <= len(dt.nodes); steps++ {
		node := dt.nodes[idx]
		if node.IsLeaf {
			return node.Value, nil
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= len(row) {
			return 0, errors.New("feature index out of range")
		}
		if row[node.FeatureIdx] < node.Threshold {
			idx = node.LeftChild
		} else {
			idx = node.RightChild
		}
		if idx < 0 || idx >= len(dt.nodes) {
			return 0, errors.New("invalid tree state")
		}
	}
	return 0, errors.New("tree contains a cycle")
}

func (dt DecisionTree) MarshalJSON() ([]byte, error) {
	return json.Marshal(dt.nodes)
}

func (dt *DecisionTree) UnmarshalJSON(payload []byte) error {
	var nodes []TreeNode
	if err := json.Unmarshal(payload, &nodes); err != nil {
		return err
	}
	dt.nodes = nodes
	return nil
}

func (dt *DecisionTree) validate(featureCount int) error {
	if len(dt.nodes) == 0 {
		return errors.New("tree is empty")
	}
	for i, node := range dt.nodes {
		if node.IsLeaf {
			if !isFinite(node.Value) {
				return fmt.Errorf("node %d: leaf value is not finite", i)
			}
			continue
		}
		if node.FeatureIdx < 0 || node.FeatureIdx >= featureCount {
			return fmt.Errorf("node %d: feature index %d out of range", i, node.FeatureIdx)
		}
		if node.LeftChild <= i || node.LeftChild >= len(dt.nodes) {
			return fmt.Errorf("node %d: invalid left child %d", i, node.LeftChild)
		}
		if node.RightChild <= i || node.RightChild >= len(dt.nodes) {
			return fmt.Errorf("node %d: invalid right child %d", i, node.RightChild)
		}
	}
	return nil
}

// GradientBoostedTrees sums the leaves of every tree on top of BaseScore.
// With the logistic objective the sum is a log-odds margin.
type GradientBoostedTrees struct {
	ModelName    string         `json:"name"`
	FeatureNames Schema         `json:"features"`
	Objective    string         `json:"objective"`
	BaseScore    float64        `json:"base_score"`
	Trees        []DecisionTree `json:"trees"`
	Threshold    float64        `json:"threshold,omitempty"`
}

func (m *GradientBoostedTrees) Kind() string     { return KindGradientBoostedTrees }
func (m *GradientBoostedTrees) Name() string     { return m.ModelName }
func (m *GradientBoostedTrees) Features() Schema { return m.FeatureNames }

func (m *GradientBoostedTrees) Margin(v Vector) (float64, error) {
	row, err := m.FeatureNames.Row(v)
	if err != nil {
		return 0, err
	}
	sum := m.BaseScore
	for i := range m.Trees {
		value, err := m.Trees[i].Predict(row)
		if err != nil {
			return 0, fmt.Errorf("tree %d: %w", i, err)
		}
		sum += value
	}
	return sum, nil
}

func (m *GradientBoostedTrees) validate() error {
	if err := validateSchema(m.FeatureNames); err != nil {
		return err
	}
	switch m.Objective {
	case ObjectiveBinaryLogistic, ObjectiveSquaredError:
	default:
		return fmt.Errorf("unsupported objective %q", m.Objective)
	}
	if len(m.Trees) == 0 {
		return errors.New("trees is empty")
	}
	for i := range m.Trees {
		if err := m.Trees[i].validate(len(m.FeatureNames)); err != nil {
			return fmt.Errorf("tree %d: %w", i, err)
		}
	}
	return nil
}

type boostedClassifier struct {
	*GradientBoostedTrees
}

func (c boostedClassifier) PredictProba(v Vector) (float64, error) {
	margin, err := c.Margin(v)
	if err != nil {
		return 0, err
	}
	return sigmoid(margin), nil
}

func (c boostedClassifier) Predict(v Vector) (int, error) {
	proba, err := c.PredictProba(v)
	if err != nil {
		return 0, err
	}
	threshold := c.Threshold
	if threshold <= 0 || threshold >= 1 {
		threshold = 0.5
	}
	return labelFor(proba, threshold), nil
}

type boostedRegressor struct {
	*GradientBoostedTrees
}

func (r boostedRegressor) Predict(v Vector) (float64, error) {
	return r.Margin(v)
}
