package editor

import "github.com/Peterrvisserr/WOOBARNEVELD/coords"

// maxTreeDepth stops subdivision when many boxes share one spot.
const maxTreeDepth = 10

// QuadTree implements a spatial index for rectangles.
type QuadTree struct {
	Bounds   coords.Rect
	Capacity int
	Points   []PointData
	Nodes    []*QuadTree

	depth int
}

type PointData struct {
	Rect  coords.Rect
	Index int
}

func NewQuadTree(bounds coords.Rect, capacity int) *QuadTree {
	return newQuadTree(bounds, capacity, 0)
}

func newQuadTree(bounds coords.Rect, capacity, depth int) *QuadTree {
	return &QuadTree{
		Bounds:   bounds,
		Capacity: capacity,
		Points:   make([]PointData, 0, capacity),
		depth:    depth,
	}
}

func (qt *QuadTree) Insert(rect coords.Rect, index int) bool {
	if !intersects(qt.Bounds, rect) {
		return false
	}

	if qt.Nodes != nil {
		for _, node := range qt.Nodes {
			if contains(node.Bounds, rect) && node.Insert(rect, index) {
				return true
			}
		}
		// Straddles a split line: keep it here.
		qt.Points = append(qt.Points, PointData{Rect: rect, Index: index})
		return true
	}

	if len(qt.Points) < qt.Capacity || qt.depth >= maxTreeDepth {
		qt.Points = append(qt.Points, PointData{Rect: rect, Index: index})
		return true
	}
	qt.subdivide()
	old := qt.Points
	qt.Points = make([]PointData, 0, qt.Capacity)
	for _, p := range old {
		qt.Insert(p.Rect, p.Index)
	}
	return qt.Insert(rect, index)
}

func (qt *QuadTree) subdivide() {
	xMid := (qt.Bounds.LLX + qt.Bounds.URX) / 2
	yMid := (qt.Bounds.LLY + qt.Bounds.URY) / 2
	d := qt.depth + 1

	qt.Nodes = []*QuadTree{
		newQuadTree(coords.Rect{LLX: qt.Bounds.LLX, LLY: yMid, URX: xMid, URY: qt.Bounds.URY}, qt.Capacity, d), // Top-Left
		newQuadTree(coords.Rect{LLX: xMid, LLY: yMid, URX: qt.Bounds.URX, URY: qt.Bounds.URY}, qt.Capacity, d), // Top-Right
		newQuadTree(coords.Rect{LLX: qt.Bounds.LLX, LLY: qt.Bounds.LLY, URX: xMid, URY: yMid}, qt.Capacity, d), // Bottom-Left
		newQuadTree(coords.Rect{LLX: xMid, LLY: qt.Bounds.LLY, URX: qt.Bounds.URX, URY: yMid}, qt.Capacity, d), // Bottom-Right
	}
}

func (qt *QuadTree) Query(rangeRect coords.Rect) []int {
	var found []int
	if !intersects(qt.Bounds, rangeRect) {
		return found
	}

	for _, p := range qt.Points {
		if intersects(p.Rect, rangeRect) {
			found = append(found, p.Index)
		}
	}

	for _, node := range qt.Nodes {
		found = append(found, node.Query(rangeRect)...)
	}
	return found
}

// intersects treats edges as inside so zero-width boxes are still found.
func intersects(r1, r2 coords.Rect) bool {
	return !(r2.LLX > r1.URX || r2.URX < r1.LLX || r2.LLY > r1.URY || r2.URY < r1.LLY)
}

func contains(outer, inner coords.Rect) bool {
	return inner.LLX >= outer.LLX && inner.URX <= outer.URX &&
		inner.LLY >= outer.LLY && inner.URY <= outer.URY
}
