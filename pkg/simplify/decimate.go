package simplify

import (
	"container/heap"

	"gonum.org/v1/gonum/spatial/r3"

	"labelmesh/pkg/mesh"
)

// boundaryWeight scales the constraint planes placed along open edges so
// collapses keep the boundary in place.
const boundaryWeight = 1000

// collapse is a candidate contraction of edge (a, b) onto pos.
type collapse struct {
	a, b   int
	cost   float64
	pos    r3.Vec
	va, vb int
}

type collapseHeap []collapse

func (h collapseHeap) Len() int { return len(h) }
func (h collapseHeap) Less(i, j int) bool {
	if h[i].cost != h[j].cost {
		return h[i].cost < h[j].cost
	}
	if h[i].a != h[j].a {
		return h[i].a < h[j].a
	}
	return h[i].b < h[j].b
}
func (h collapseHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *collapseHeap) Push(x any)   { *h = append(*h, x.(collapse)) }
func (h *collapseHeap) Pop() any {
	old := *h
	n := len(old)
	c := old[n-1]
	*h = old[:n-1]
	return c
}

type decimator struct {
	verts    []r3.Vec
	faces    [][3]int
	alive    []bool
	live     int
	vfaces   [][]int
	quadrics []quadric
	version  []int
	removed  []bool
	queue    collapseHeap
}

func newDecimator(m *mesh.Mesh) *decimator {
	d := &decimator{
		verts:    append([]r3.Vec(nil), m.Vertices...),
		faces:    append([][3]int(nil), m.Faces...),
		alive:    make([]bool, len(m.Faces)),
		live:     len(m.Faces),
		vfaces:   make([][]int, len(m.Vertices)),
		quadrics: make([]quadric, len(m.Vertices)),
		version:  make([]int, len(m.Vertices)),
		removed:  make([]bool, len(m.Vertices)),
	}
	for f, t := range d.faces {
		d.alive[f] = true
		for _, v := range t {
			d.vfaces[v] = append(d.vfaces[v], f)
		}
		n := m.FaceNormal(f)
		if n == (r3.Vec{}) {
			continue
		}
		q := planeQuadric(n, -r3.Dot(n, d.verts[t[0]]), m.FaceArea(f))
		for _, v := range t {
			d.quadrics[v].add(q)
		}
	}
	edgeFaces := m.EdgeFaces()
	for _, e := range mesh.SortedEdges(boundaryEdges(edgeFaces)) {
		fs := edgeFaces[e]
		a, b := d.verts[e.A], d.verts[e.B]
		dir := r3.Sub(b, a)
		perp := r3.Cross(dir, m.FaceNormal(fs[0]))
		if n := r3.Norm(perp); n > 0 {
			perp = r3.Scale(1/n, perp)
			q := planeQuadric(perp, -r3.Dot(perp, a), boundaryWeight*r3.Dot(dir, dir))
			d.quadrics[e.A].add(q)
			d.quadrics[e.B].add(q)
		}
	}
	return d
}

func boundaryEdges(edgeFaces map[mesh.Edge][]int) map[mesh.Edge]bool {
	open := make(map[mesh.Edge]bool)
	for e, fs := range edgeFaces {
		if len(fs) == 1 {
			open[e] = true
		}
	}
	return open
}

func (d *decimator) candidate(a, b int) collapse {
	if b < a {
		a, b = b, a
	}
	q := d.quadrics[a].plus(d.quadrics[b])
	mid := r3.Scale(0.5, r3.Add(d.verts[a], d.verts[b]))
	pos := q.minimize(mid)
	return collapse{a: a, b: b, cost: q.eval(pos), pos: pos, va: d.version[a], vb: d.version[b]}
}

func (d *decimator) neighbors(v int) map[int]bool {
	nb := make(map[int]bool)
	for _, f := range d.vfaces[v] {
		if !d.alive[f] {
			continue
		}
		for _, u := range d.faces[f] {
			if u != v {
				nb[u] = true
			}
		}
	}
	return nb
}

// linkOK is the link condition: the vertices adjacent to both ends must be
// exactly the apexes of the faces sharing the edge.
func (d *decimator) linkOK(a, b int) bool {
	na, nb := d.neighbors(a), d.neighbors(b)
	shared := 0
	for u := range na {
		if nb[u] {
			shared++
		}
	}
	apexes := 0
	for _, f := range d.vfaces[a] {
		if !d.alive[f] {
			continue
		}
		t := d.faces[f]
		if t[0] == b || t[1] == b || t[2] == b {
			apexes++
		}
	}
	return apexes > 0 && shared == apexes
}

// flips reports whether moving v to pos turns any surviving face of v
// upside down or makes it degenerate.
func (d *decimator) flips(v, other int, pos r3.Vec) bool {
	for _, f := range d.vfaces[v] {
		if !d.alive[f] {
			continue
		}
		t := d.faces[f]
		if t[0] == other || t[1] == other || t[2] == other {
			continue
		}
		var p, moved [3]r3.Vec
		for i, u := range t {
			p[i] = d.verts[u]
			moved[i] = p[i]
			if u == v {
				moved[i] = pos
			}
		}
		before := r3.Cross(r3.Sub(p[1], p[0]), r3.Sub(p[2], p[0]))
		after := r3.Cross(r3.Sub(moved[1], moved[0]), r3.Sub(moved[2], moved[0]))
		if r3.Norm(after) == 0 || r3.Dot(before, after) <= 0 {
			return true
		}
	}
	return false
}

func (d *decimator) apply(c collapse) {
	a, b := c.a, c.b
	for _, f := range d.vfaces[b] {
		if !d.alive[f] {
			continue
		}
		t := &d.faces[f]
		if t[0] == a || t[1] == a || t[2] == a {
			d.alive[f] = false
			d.live--
			continue
		}
		for i := range t {
			if t[i] == b {
				t[i] = a
			}
		}
		d.vfaces[a] = append(d.vfaces[a], f)
	}
	d.vfaces[b] = nil
	d.removed[b] = true
	d.verts[a] = c.pos
	d.quadrics[a].add(d.quadrics[b])
	d.version[a]++
	d.version[b]++

	live := d.vfaces[a][:0]
	for _, f := range d.vfaces[a] {
		if d.alive[f] {
			live = append(live, f)
		}
	}
	d.vfaces[a] = live
	for u := range d.neighbors(a) {
		heap.Push(&d.queue, d.candidate(a, u))
	}
}

func (d *decimator) run(target int) {
	seen := make(map[mesh.Edge]bool)
	for _, t := range d.faces {
		for i := 0; i < 3; i++ {
			e := mesh.NewEdge(t[i], t[(i+1)%3])
			if !seen[e] {
				seen[e] = true
				d.queue = append(d.queue, d.candidate(e.A, e.B))
			}
		}
	}
	heap.Init(&d.queue)

	for d.live > target && d.queue.Len() > 0 {
		c := heap.Pop(&d.queue).(collapse)
		if d.removed[c.a] || d.removed[c.b] || c.va != d.version[c.a] || c.vb != d.version[c.b] {
			continue
		}
		if !d.linkOK(c.a, c.b) || d.flips(c.a, c.b, c.pos) || d.flips(c.b, c.a, c.pos) {
			continue
		}
		d.apply(c)
	}
}

func (d *decimator) result() *mesh.Mesh {
	out := &mesh.Mesh{Vertices: d.verts}
	for f, t := range d.faces {
		if d.alive[f] {
			out.Faces = append(out.Faces, t)
		}
	}
	return out.Compact()
}

// Decimate removes about ratio of the triangles by quadric edge collapse.
// Collapses that would flip a face or pinch the surface are skipped, so the
// target may not be reached. ratio outside (0, 1) returns m unchanged.
func Decimate(m *mesh.Mesh, ratio float64) *mesh.Mesh {
	if m.Empty() || ratio <= 0 || ratio >= 1 {
		return m
	}
	target := int(float64(len(m.Faces)) * (1 - ratio))
	d := newDecimator(m)
	d.run(target)
	out := d.result()
	if len(m.Normals) > 0 && !out.Empty() {
		out = out.ComputeNormals()
	}
	return out
}
