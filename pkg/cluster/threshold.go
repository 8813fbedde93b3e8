package cluster

import (
	"context"
	"fmt"
	"math"
	"sort"
)

// DefaultThresholds gives a two-level hierarchy: one coarse partition and a
// finer one inside it.
var DefaultThresholds = []float64{0.55, 0.75}

// ThresholdClusterer partitions entities by embedding similarity. For each
// threshold it links every pair of entities whose cosine similarity reaches
// the threshold and takes the connected components as that level's
// communities. Thresholds must be strictly ascending, so every level refines
// the previous one and a finer community is always contained in a coarser
// one.
type ThresholdClusterer struct {
	thresholds []float64
}

func NewThresholdClusterer(thresholds []float64) (*ThresholdClusterer, error) {
	if len(thresholds) == 0 {
		thresholds = DefaultThresholds
	}
	for i := 1; i < len(thresholds); i++ {
		if thresholds[i] <= thresholds[i-1] {
			return nil, fmt.Errorf("thresholds must be strictly ascending, got %v", thresholds)
		}
	}
	return &ThresholdClusterer{thresholds: thresholds}, nil
}

var _ Clusterer = (*ThresholdClusterer)(nil)

// BuildLayers returns one layer per threshold, coarse to fine. The layer
// entities are the input entities annotated with their community membership
// for that level; no synthetic entities or relations are produced. Community
// ids are deterministic, derived from the level and the lexicographically
// smallest member name.
func (t *ThresholdClusterer) BuildLayers(ctx context.Context, entities []Entity) ([]Layer, error) {
	if len(entities) == 0 {
		return nil, nil
	}

	ordered := append([]Entity(nil), entities...)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].EntityName < ordered[j].EntityName
	})

	layers := make([]Layer, 0, len(t.thresholds))
	for level, threshold := range t.thresholds {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		parent := make([]int, len(ordered))
		for i := range parent {
			parent[i] = i
		}
		var find func(int) int
		find = func(i int) int {
			if parent[i] != i {
				parent[i] = find(parent[i])
			}
			return parent[i]
		}
		union := func(a, b int) {
			ra, rb := find(a), find(b)
			if ra != rb {
				parent[rb] = ra
			}
		}

		for i := 0; i < len(ordered); i++ {
			for j := i + 1; j < len(ordered); j++ {
				if cosineSimilarity(ordered[i].Vector, ordered[j].Vector) >= threshold {
					union(i, j)
				}
			}
		}

		// Name each component after its smallest member; ordered is sorted
		// so the first index seen per root is that member.
		names := make(map[int]string)
		for i := range ordered {
			root := find(i)
			if _, ok := names[root]; !ok {
				names[root] = fmt.Sprintf("L%d-%s", level, ordered[i].EntityName)
			}
		}

		layer := Layer{Entities: make([]Entity, len(ordered))}
		for i, ent := range ordered {
			ent.Memberships = []Membership{{Cluster: names[find(i)], Level: level}}
			layer.Entities[i] = ent
		}
		layers = append(layers, layer)
	}
	return layers, nil
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
