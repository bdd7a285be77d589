package classifier

import (
	"math"
	"sort"
)

// Gradient-boosted decision trees with a softmax objective. Each boosting
// round fits one regression tree per class to the softmax gradient and
// applies a Newton leaf step. Tree growth is best-first up to the
// configured leaf budget, which is what makes the "deep" and "wide"
// candidate configs differ.

const (
	minLeafSamples = 2
	maxLeafValue   = 4.0
)

type treeNode struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t"`
	Left      int     `json:"l"`
	Right     int     `json:"r"`
	Value     float64 `json:"v"`
	Leaf      bool    `json:"leaf"`
}

type regressionTree struct {
	Nodes []treeNode `json:"nodes"`
}

func (t *regressionTree) predict(x []float64) float64 {
	if len(t.Nodes) == 0 {
		return 0
	}
	i := 0
	for !t.Nodes[i].Leaf {
		n := t.Nodes[i]
		if x[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
	return t.Nodes[i].Value
}

type boostedModel struct {
	Classes int                `json:"classes"`
	Trees   [][]regressionTree `json:"trees"` // [round][class]
}

func (m *boostedModel) score(x []float64) []float64 {
	scores := make([]float64, m.Classes)
	for _, round := range m.Trees {
		for k := range round {
			scores[k] += round[k].predict(x)
		}
	}
	return scores
}

func fitBoosted(x [][]float64, y []int, classes int, cfg Config) *boostedModel {
	n := len(x)
	rounds := cfg.Iterations
	if rounds <= 0 {
		rounds = 100
	}
	lr := cfg.LearningRate
	if lr <= 0 {
		lr = 0.1
	}
	leaves := cfg.Leaves
	if leaves < 2 {
		leaves = 31
	}

	model := &boostedModel{Classes: classes}
	f := make([][]float64, n)
	for i := range f {
		f[i] = make([]float64, classes)
	}
	probs := make([][]float64, n)
	for i := range probs {
		probs[i] = make([]float64, classes)
	}
	residuals := make([]float64, n)
	newton := (float64(classes) - 1) / float64(classes)

	for r := 0; r < rounds; r++ {
		for i := range x {
			softmaxInto(f[i], probs[i])
		}

		roundTrees := make([]regressionTree, classes)
		for k := 0; k < classes; k++ {
			for i := range x {
				indicator := 0.0
				if y[i] == k {
					indicator = 1.0
				}
				residuals[i] = indicator - probs[i][k]
			}
			tree := buildRegressionTree(x, residuals, leaves, lr*newton)
			roundTrees[k] = tree
			for i := range x {
				f[i][k] += tree.predict(x[i])
			}
		}
		model.Trees = append(model.Trees, roundTrees)
	}
	return model
}

func softmaxInto(scores, out []float64) {
	maxScore := scores[0]
	for _, s := range scores[1:] {
		if s > maxScore {
			maxScore = s
		}
	}
	sum := 0.0
	for i, s := range scores {
		out[i] = math.Exp(s - maxScore)
		sum += out[i]
	}
	for i := range out {
		out[i] /= sum
	}
}

// buildNode is the in-progress form of a tree node during best-first
// growth; the serialized form is produced afterwards.
type buildNode struct {
	indices     []int
	left, right *buildNode
	feature     int
	threshold   float64

	bestGain      float64
	bestFeature   int
	bestThreshold float64
	bestLeft      []int
	bestRight     []int
}

func buildRegressionTree(x [][]float64, residuals []float64, maxLeaves int, step float64) regressionTree {
	indices := make([]int, len(x))
	for i := range indices {
		indices[i] = i
	}
	root := &buildNode{indices: indices}
	findBestSplit(root, x, residuals)

	leaves := []*buildNode{root}
	for len(leaves) < maxLeaves {
		best := -1
		for i, leaf := range leaves {
			if leaf.bestGain <= 1e-12 {
				continue
			}
			if best == -1 || leaf.bestGain > leaves[best].bestGain {
				best = i
			}
		}
		if best == -1 {
			break
		}

		leaf := leaves[best]
		leaf.feature = leaf.bestFeature
		leaf.threshold = leaf.bestThreshold
		leaf.left = &buildNode{indices: leaf.bestLeft}
		leaf.right = &buildNode{indices: leaf.bestRight}
		findBestSplit(leaf.left, x, residuals)
		findBestSplit(leaf.right, x, residuals)

		leaves[best] = leaf.left
		leaves = append(leaves, leaf.right)
	}

	tree := regressionTree{}
	flatten(root, residuals, step, &tree)
	return tree
}

// findBestSplit scans every feature for the SSE-reducing split with both
// sides holding at least minLeafSamples.
func findBestSplit(node *buildNode, x [][]float64, residuals []float64) {
	node.bestGain = 0
	n := len(node.indices)
	if n < 2*minLeafSamples {
		return
	}

	total := 0.0
	for _, i := range node.indices {
		total += residuals[i]
	}

	order := make([]int, n)
	for featureIdx := range x[0] {
		copy(order, node.indices)
		sort.SliceStable(order, func(a, b int) bool {
			return x[order[a]][featureIdx] < x[order[b]][featureIdx]
		})

		leftSum := 0.0
		for pos := 0; pos < n-1; pos++ {
			i := order[pos]
			leftSum += residuals[i]
			nl := pos + 1
			nr := n - nl
			if nl < minLeafSamples || nr < minLeafSamples {
				continue
			}
			// No valid threshold between equal values.
			if x[i][featureIdx] == x[order[pos+1]][featureIdx] {
				continue
			}
			rightSum := total - leftSum
			gain := leftSum*leftSum/float64(nl) + rightSum*rightSum/float64(nr) - total*total/float64(n)
			if gain > node.bestGain {
				node.bestGain = gain
				node.bestFeature = featureIdx
				node.bestThreshold = (x[i][featureIdx] + x[order[pos+1]][featureIdx]) / 2
				node.bestLeft = append([]int(nil), order[:pos+1]...)
				node.bestRight = append([]int(nil), order[pos+1:]...)
			}
		}
	}
}

func flatten(node *buildNode, residuals []float64, step float64, tree *regressionTree) int {
	idx := len(tree.Nodes)
	tree.Nodes = append(tree.Nodes, treeNode{})

	if node.left == nil {
		tree.Nodes[idx] = treeNode{Leaf: true, Value: newtonLeafValue(node.indices, residuals, step)}
		return idx
	}

	left := flatten(node.left, residuals, step, tree)
	right := flatten(node.right, residuals, step, tree)
	tree.Nodes[idx] = treeNode{
		Feature:   node.feature,
		Threshold: node.threshold,
		Left:      left,
		Right:     right,
	}
	return idx
}

// newtonLeafValue is the one-step Newton estimate for the softmax
// objective, clamped to keep single leaves from dominating the ensemble.
func newtonLeafValue(indices []int, residuals []float64, step float64) float64 {
	num, den := 0.0, 0.0
	for _, i := range indices {
		r := residuals[i]
		num += r
		den += math.Abs(r) * (1 - math.Abs(r))
	}
	if den < 1e-10 {
		return 0
	}
	v := step * num / den
	if v > maxLeafValue {
		v = maxLeafValue
	}
	if v < -maxLeafValue {
		v = -maxLeafValue
	}
	return v
}
