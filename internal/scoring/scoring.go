// Package scoring folds leaf results into section and assessment scores.
package scoring

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/programme-lv/grader/api"
	"github.com/programme-lv/grader/internal/spec"
)

// ErrAggregation means the tree cannot be scored, a weight is negative,
// NaN or infinite. It aborts the run.
var ErrAggregation = errors.New("cannot aggregate scores")

// Node is the mutable tree the executors build. Leaves have Leaf set and a
// final Status; inner nodes get theirs from Seal.
type Node struct {
	Kind api.NodeKind
	Name string
	// Weight is the leaf's points, or the multiplier an inner node applies
	// to its contribution.
	Weight   float64
	Mode     *spec.GradingMode
	IsPublic bool

	Leaf   bool
	Status api.Status

	Diagnostics []api.Diagnostic
	Runs        []api.RunData
	Children    []*Node
}

// NewInner returns an inner node with multiplier 1.
func NewInner(kind api.NodeKind, name string) *Node {
	return &Node{Kind: kind, Name: name, Weight: 1}
}

func NewLeaf(kind api.NodeKind, name string, weight float64, status api.Status) *Node {
	return &Node{Kind: kind, Name: name, Weight: weight, Leaf: true, Status: status}
}

func (n *Node) Add(children ...*Node) {
	n.Children = append(n.Children, children...)
}

// Seal validates the tree and returns its scored, immutable form. mode
// applies wherever a node does not set its own.
func Seal(root *Node, mode spec.GradingMode) (*api.ResultNode, error) {
	if mode == "" {
		mode = spec.Weighted
	}
	res, _, err := seal(root, mode, nil)
	return res, err
}

func seal(n *Node, mode spec.GradingMode, path []string) (*api.ResultNode, bool, error) {
	path = append(path[:len(path):len(path)], n.Name)
	if err := checkWeight(n.Weight); err != nil {
		return nil, false, fmt.Errorf("%w: %s: %v", ErrAggregation, strings.Join(path, "/"), err)
	}
	if n.Mode != nil {
		mode = *n.Mode
	}

	res := &api.ResultNode{
		Kind:        n.Kind,
		Name:        n.Name,
		Mode:        string(mode),
		Weight:      n.Weight,
		IsPublic:    n.IsPublic,
		Diagnostics: n.Diagnostics,
		Runs:        n.Runs,
	}

	if n.Leaf {
		res.Status = n.Status
		res.Possible = n.Weight
		passed := n.Status == api.Passed
		if passed {
			res.Earned = n.Weight
			res.Score = 1
		}
		return res, passed, nil
	}

	allPassed := true
	statuses := make([]api.Status, 0, len(n.Children))
	for _, c := range n.Children {
		child, childPassed, err := seal(c, mode, path)
		if err != nil {
			return nil, false, err
		}
		res.Children = append(res.Children, child)
		statuses = append(statuses, child.Status)
		allPassed = allPassed && childPassed

		possible := child.Possible
		if !c.Leaf {
			possible *= c.Weight
		}
		res.Possible += possible
		res.Earned += child.Score * possible
	}

	switch mode {
	case spec.Absolute:
		if allPassed {
			res.Score = 1
		}
	default:
		res.Score = 1
		if res.Possible > 0 {
			res.Score = res.Earned / res.Possible
		}
	}
	res.Status = foldStatus(statuses, mode)
	return res, allPassed, nil
}

func checkWeight(w float64) error {
	switch {
	case math.IsNaN(w):
		return fmt.Errorf("weight is NaN")
	case math.IsInf(w, 0):
		return fmt.Errorf("weight is infinite")
	case w < 0:
		return fmt.Errorf("weight %v is negative", w)
	}
	return nil
}

func foldStatus(statuses []api.Status, mode spec.GradingMode) api.Status {
	if len(statuses) == 0 {
		return api.Passed
	}
	count := make(map[api.Status]int)
	for _, s := range statuses {
		count[s]++
	}
	n := len(statuses)
	switch {
	case count[api.Skipped] == n:
		return api.Skipped
	case count[api.Errored] == n:
		return api.Errored
	case count[api.Passed] == n:
		return api.Passed
	case count[api.Passed] == 0 && count[api.PartiallyPassed] == 0:
		return api.Failed
	case mode == spec.Absolute:
		return api.Failed
	}
	return api.PartiallyPassed
}
