package forest

import (
	"math"
	"sort"
)

// minImpurity is the node SSE below which a node is treated as pure.
const minImpurity = 1e-12

type node struct {
	leaf        bool
	value       float64
	feature     int
	threshold   float64 // Numeric: x <= threshold goes left. Categorical: x == threshold goes left.
	categorical bool
	left        int
	right       int
}

// tree is a CART regression tree stored as a flat node slice; node 0 is the root.
type tree struct {
	nodes []node
	// gain[f] is the total SSE reduction contributed by splits on feature f.
	gain []float64
}

type split struct {
	feature     int
	threshold   float64
	categorical bool
	gain        float64
	left, right []int
}

type builder struct {
	x           [][]float64
	y           []float64
	categorical []bool
	cfg         Config
	t           *tree
}

func (b *builder) build(idx []int, depth int) int {
	id := len(b.t.nodes)
	b.t.nodes = append(b.t.nodes, node{leaf: true, value: mean(b.y, idx)})

	if depth >= b.cfg.MaxDepth || len(idx) < b.cfg.MinSamplesSplit {
		return id
	}
	parent := sse(b.y, idx)
	if parent <= minImpurity {
		return id
	}

	best, ok := b.bestSplit(idx, parent)
	if !ok {
		return id
	}
	b.t.gain[best.feature] += best.gain

	left := b.build(best.left, depth+1)
	right := b.build(best.right, depth+1)
	b.t.nodes[id] = node{
		feature:     best.feature,
		threshold:   best.threshold,
		categorical: best.categorical,
		left:        left,
		right:       right,
		value:       b.t.nodes[id].value,
	}
	return id
}

// bestSplit scans every feature and returns the split with the largest SSE
// reduction. Features are scanned in order, so ties keep the lower index.
func (b *builder) bestSplit(idx []int, parent float64) (split, bool) {
	var best split
	found := false
	for f := range b.x[0] {
		var s split
		var ok bool
		if f < len(b.categorical) && b.categorical[f] {
			s, ok = b.categoricalSplit(idx, f, parent)
		} else {
			s, ok = b.numericSplit(idx, f, parent)
		}
		if ok && (!found || s.gain > best.gain) {
			best, found = s, true
		}
	}
	return best, found
}

func (b *builder) numericSplit(idx []int, f int, parent float64) (split, bool) {
	sorted := append([]int(nil), idx...)
	sort.SliceStable(sorted, func(i, j int) bool { return b.x[sorted[i]][f] < b.x[sorted[j]][f] })

	n := len(sorted)
	var totalSum, totalSq float64
	for _, i := range sorted {
		totalSum += b.y[i]
		totalSq += b.y[i] * b.y[i]
	}

	var leftSum, leftSq float64
	bestGain, bestPos := 0.0, -1
	for pos := 0; pos < n-1; pos++ {
		yi := b.y[sorted[pos]]
		leftSum += yi
		leftSq += yi * yi
		nl := pos + 1
		nr := n - nl
		if b.x[sorted[pos]][f] == b.x[sorted[pos+1]][f] {
			continue
		}
		if nl < b.cfg.MinSamplesLeaf || nr < b.cfg.MinSamplesLeaf {
			continue
		}
		rightSum, rightSq := totalSum-leftSum, totalSq-leftSq
		child := (leftSq - leftSum*leftSum/float64(nl)) + (rightSq - rightSum*rightSum/float64(nr))
		if gain := parent - child; gain > bestGain+minImpurity {
			bestGain, bestPos = gain, pos
		}
	}
	if bestPos < 0 {
		return split{}, false
	}
	return split{
		feature:   f,
		threshold: (b.x[sorted[bestPos]][f] + b.x[sorted[bestPos+1]][f]) / 2,
		gain:      bestGain,
		left:      sorted[:bestPos+1],
		right:     sorted[bestPos+1:],
	}, true
}

// categoricalSplit tries every one-vs-rest partition of the class codes
// present in the node.
func (b *builder) categoricalSplit(idx []int, f int, parent float64) (split, bool) {
	levels := make([]float64, 0, 8)
	seen := make(map[float64]bool)
	for _, i := range idx {
		v := b.x[i][f]
		if !seen[v] {
			seen[v] = true
			levels = append(levels, v)
		}
	}
	if len(levels) < 2 {
		return split{}, false
	}
	sort.Float64s(levels)

	var best split
	found := false
	for _, level := range levels {
		var left, right []int
		for _, i := range idx {
			if b.x[i][f] == level {
				left = append(left, i)
			} else {
				right = append(right, i)
			}
		}
		if len(left) < b.cfg.MinSamplesLeaf || len(right) < b.cfg.MinSamplesLeaf {
			continue
		}
		gain := parent - sse(b.y, left) - sse(b.y, right)
		if gain > minImpurity && (!found || gain > best.gain) {
			best = split{feature: f, threshold: level, categorical: true, gain: gain, left: left, right: right}
			found = true
		}
	}
	return best, found
}

func (t *tree) predict(x []float64) float64 {
	i := 0
	for {
		nd := t.nodes[i]
		if nd.leaf {
			return nd.value
		}
		goLeft := x[nd.feature] <= nd.threshold
		if nd.categorical {
			goLeft = x[nd.feature] == nd.threshold
		}
		if goLeft {
			i = nd.left
		} else {
			i = nd.right
		}
	}
}

func mean(y []float64, idx []int) float64 {
	if len(idx) == 0 {
		return math.NaN()
	}
	var s float64
	for _, i := range idx {
		s += y[i]
	}
	return s / float64(len(idx))
}

// sse returns the sum of squared deviations from the mean over idx.
func sse(y []float64, idx []int) float64 {
	if len(idx) == 0 {
		return 0
	}
	m := mean(y, idx)
	var s float64
	for _, i := range idx {
		d := y[i] - m
		s += d * d
	}
	return s
}
