// Package merge deduplicates detections of the same physical element seen by
// overlapping tiles.
//
// # Algorithm
//
//  1. Bucketing: per element type, every detection is registered in each cell
//     of a coarse grid (tile size / QuantizationDivisor) its box touches. Two
//     boxes that intersect always share a cell, so candidate pairs never need
//     a whole-set comparison.
//  2. Linking: same-type detections sharing a cell are linked when their IOU
//     exceeds IOUThreshold.
//  3. Grouping: linked detections are joined transitively with a union-find.
//  4. Aggregation: a group becomes one element whose box is the
//     confidence-weighted mean of its members' boxes.
//
// Aggregated boxes can overlap each other beyond the threshold even when no
// pair of their members did. Steps 1-4 are repeated over the aggregated
// boxes until nothing links, which makes Merge idempotent: merging its own
// output (via AsDetections) changes nothing.
//
// # Confidence
//
// A group of n supporting detections gets
//
//	min(1, max(best, mean + CorroborationBonus * ln(n)))
//
// so corroboration never lowers confidence below its strongest member. A
// single detection passes through unchanged.
//
// Merge is a pure function of the detection multiset: input order does not
// affect the result.
package merge

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/ironsheep/plan-tiler/internal/config"
	"github.com/ironsheep/plan-tiler/internal/plan"
)

// Merger groups global detections into merged elements.
type Merger struct {
	iouThreshold float64
	bonus        float64
	cellSize     float64
}

// New returns a Merger for grids of the given tile size.
func New(cfg config.Merge, tileSize int) *Merger {
	cell := 1.0
	if cfg.QuantizationDivisor > 0 && tileSize > 0 {
		cell = math.Max(1, float64(tileSize)/float64(cfg.QuantizationDivisor))
	}
	return &Merger{
		iouThreshold: cfg.IOUThreshold,
		bonus:        cfg.CorroborationBonus,
		cellSize:     cell,
	}
}

// cluster is a group of detections and their aggregate.
type cluster struct {
	members []plan.GlobalDetection
	agg     plan.GlobalDetection
}

type cellKey struct {
	x, y int
}

// Merge returns one element per physical element, ordered by type then
// top-left corner, with ids counting from 1 in that order. Every element has
// status pending.
func (m *Merger) Merge(detections []plan.GlobalDetection) []plan.MergedElement {
	members := make([]plan.GlobalDetection, len(detections))
	copy(members, detections)
	sort.SliceStable(members, func(i, j int) bool { return detectionLess(members[i], members[j]) })

	clusters := make([]cluster, len(members))
	for i, d := range members {
		clusters[i] = cluster{members: []plan.GlobalDetection{d}, agg: m.aggregate([]plan.GlobalDetection{d})}
	}

	for {
		next, linked := m.pass(clusters)
		clusters = next
		if !linked {
			break
		}
	}

	out := make([]plan.MergedElement, 0, len(clusters))
	for _, c := range clusters {
		out = append(out, plan.MergedElement{
			Type:          c.agg.Type,
			Bounds:        c.agg.Bounds,
			Confidence:    c.agg.Confidence,
			Corroboration: c.agg.Weight(),
			Tiles:         c.agg.Tiles,
			Properties:    c.agg.Properties,
			Status:        plan.StatusPending,
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return elementLess(out[i], out[j]) })
	for i := range out {
		out[i].ID = i + 1
	}
	return out
}

// pass links clusters whose aggregate boxes overlap and rebuilds the merged
// groups. It reports whether any two clusters were joined.
func (m *Merger) pass(clusters []cluster) ([]cluster, bool) {
	uf := newUnionFind(len(clusters))
	linked := false

	byType := make(map[string][]int)
	types := make([]string, 0)
	for i, c := range clusters {
		if _, ok := byType[c.agg.Type]; !ok {
			types = append(types, c.agg.Type)
		}
		byType[c.agg.Type] = append(byType[c.agg.Type], i)
	}
	sort.Strings(types)

	for _, typ := range types {
		index := make(map[cellKey][]int)
		for _, i := range byType[typ] {
			box := clusters[i].agg.Bounds
			checked := make(map[int]bool)
			for _, key := range m.cells(box) {
				for _, j := range index[key] {
					if checked[j] {
						continue
					}
					checked[j] = true
					if uf.find(i) == uf.find(j) {
						continue
					}
					if box.IOU(clusters[j].agg.Bounds) > m.iouThreshold {
						uf.union(i, j)
						linked = true
					}
				}
				index[key] = append(index[key], i)
			}
		}
	}

	if !linked {
		return clusters, false
	}

	order := make([]int, 0)
	groups := make(map[int][]plan.GlobalDetection)
	for i, c := range clusters {
		root := uf.find(i)
		if _, ok := groups[root]; !ok {
			order = append(order, root)
		}
		groups[root] = append(groups[root], c.members...)
	}

	next := make([]cluster, 0, len(order))
	for _, root := range order {
		members := groups[root]
		next = append(next, cluster{members: members, agg: m.aggregate(members)})
	}
	return next, true
}

// cells returns the bucket keys touched by a box.
func (m *Merger) cells(b plan.Bounds) []cellKey {
	x1 := int(math.Floor(b.X1 / m.cellSize))
	y1 := int(math.Floor(b.Y1 / m.cellSize))
	x2 := int(math.Floor(b.X2 / m.cellSize))
	y2 := int(math.Floor(b.Y2 / m.cellSize))
	keys := make([]cellKey, 0, (x2-x1+1)*(y2-y1+1))
	for y := y1; y <= y2; y++ {
		for x := x1; x <= x2; x++ {
			keys = append(keys, cellKey{x, y})
		}
	}
	return keys
}

// aggregate combines a group into one detection.
func (m *Merger) aggregate(members []plan.GlobalDetection) plan.GlobalDetection {
	if len(members) == 1 {
		d := members[0]
		d.Support = d.Weight()
		d.Tiles = distinctTiles(members)
		d.Properties = d.Properties.Clone()
		return d
	}

	n := len(members)
	x1s, y1s := make([]float64, n), make([]float64, n)
	x2s, y2s := make([]float64, n), make([]float64, n)
	confs := make([]float64, n)
	support := make([]float64, n)
	boxWeights := make([]float64, n)

	total := 0
	best := 0.0
	var sumBox float64
	for i, d := range members {
		x1s[i], y1s[i], x2s[i], y2s[i] = d.Bounds.X1, d.Bounds.Y1, d.Bounds.X2, d.Bounds.Y2
		confs[i] = d.Confidence
		support[i] = float64(d.Weight())
		boxWeights[i] = d.Confidence * support[i]
		sumBox += boxWeights[i]
		total += d.Weight()
		best = math.Max(best, d.Confidence)
	}
	if sumBox == 0 {
		boxWeights = support
	}

	mean := stat.Mean(confs, support)
	conf := math.Min(1, math.Max(best, mean+m.bonus*math.Log(float64(total))))

	return plan.GlobalDetection{
		Type: members[0].Type,
		Bounds: plan.Bounds{
			X1: stat.Mean(x1s, boxWeights),
			Y1: stat.Mean(y1s, boxWeights),
			X2: stat.Mean(x2s, boxWeights),
			Y2: stat.Mean(y2s, boxWeights),
		},
		Confidence: conf,
		Properties: mergeProperties(members),
		Tiles:      distinctTiles(members),
		Support:    total,
	}
}

// mergeProperties unions the members' bags; on conflicting keys the most
// confident member wins.
func mergeProperties(members []plan.GlobalDetection) plan.Properties {
	ordered := make([]plan.GlobalDetection, len(members))
	copy(ordered, members)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Confidence < ordered[j].Confidence })

	var out plan.Properties
	for _, d := range ordered {
		for k, v := range d.Properties {
			if out == nil {
				out = make(plan.Properties)
			}
			out[k] = v
		}
	}
	return out
}

func distinctTiles(members []plan.GlobalDetection) []int {
	seen := make(map[int]bool)
	tiles := make([]int, 0)
	for _, d := range members {
		for _, id := range d.Tiles {
			if !seen[id] {
				seen[id] = true
				tiles = append(tiles, id)
			}
		}
	}
	sort.Ints(tiles)
	return tiles
}

// AsDetections turns merged elements back into degenerate detections, each
// standing for its corroboration count.
func AsDetections(elements []plan.MergedElement) []plan.GlobalDetection {
	out := make([]plan.GlobalDetection, len(elements))
	for i, e := range elements {
		tiles := make([]int, len(e.Tiles))
		copy(tiles, e.Tiles)
		out[i] = plan.GlobalDetection{
			Type:       e.Type,
			Bounds:     e.Bounds,
			Confidence: e.Confidence,
			Properties: e.Properties.Clone(),
			Tiles:      tiles,
			Support:    e.Corroboration,
		}
	}
	return out
}

func detectionLess(a, b plan.GlobalDetection) bool {
	if a.Type != b.Type {
		return a.Type < b.Type
	}
	if c := compareBounds(a.Bounds, b.Bounds); c != 0 {
		return c < 0
	}
	if a.Confidence != b.Confidence {
		return a.Confidence > b.Confidence
	}
	return firstTile(a.Tiles) < firstTile(b.Tiles)
}

func elementLess(a, b plan.MergedElement) bool {
	if a.Type != b.Type {
		return a.Type < b.Type
	}
	if c := compareBounds(a.Bounds, b.Bounds); c != 0 {
		return c < 0
	}
	return a.Confidence > b.Confidence
}

// compareBounds orders boxes by top edge, then left edge, then extent.
func compareBounds(a, b plan.Bounds) int {
	for _, pair := range [][2]float64{{a.Y1, b.Y1}, {a.X1, b.X1}, {a.Y2, b.Y2}, {a.X2, b.X2}} {
		switch {
		case pair[0] < pair[1]:
			return -1
		case pair[0] > pair[1]:
			return 1
		}
	}
	return 0
}

func firstTile(tiles []int) int {
	if len(tiles) == 0 {
		return -1
	}
	return tiles[0]
}
