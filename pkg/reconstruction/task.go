package reconstruction

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/spatial/r3"

	"labelmesh/internal/models"
	"labelmesh/pkg/bounds"
	"labelmesh/pkg/isosurface"
	"labelmesh/pkg/logging"
	"labelmesh/pkg/mesh"
	"labelmesh/pkg/meshcache"
	"labelmesh/pkg/simplify"
)

// State is the progress of one object task.
type State int

const (
	StatePending State = iota
	StateBounding
	StateExtracting
	StateSimplifying
	StateCached
	StateDone
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateBounding:
		return "bounding"
	case StateExtracting:
		return "extracting"
	case StateSimplifying:
		return "simplifying"
	case StateCached:
		return "cached"
	case StateDone:
		return "done"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// transitions lists the legal next states. Every path ends in StateDone.
var transitions = map[State][]State{
	StatePending:     {StateBounding, StateCached},
	StateBounding:    {StateExtracting, StateDone},
	StateExtracting:  {StateSimplifying, StateDone},
	StateSimplifying: {StateDone},
	StateCached:      {StateDone},
}

// Status is how an object ended up.
type Status int

const (
	// StatusMeshed objects were extracted and simplified in this run
	StatusMeshed Status = iota
	// StatusCached objects were loaded from the mesh cache, possibly as an
	// empty entry left by an earlier meshless outcome
	StatusCached
	// StatusEmpty objects produced no surface
	StatusEmpty
	// StatusDegenerate objects were refused because of the voxel spacing
	StatusDegenerate
	// StatusMissingLabel objects do not occur in the window
	StatusMissingLabel
	// StatusFailed objects hit an extraction error
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusMeshed:
		return "meshed"
	case StatusCached:
		return "cached"
	case StatusEmpty:
		return "empty"
	case StatusDegenerate:
		return "degenerate"
	case StatusMissingLabel:
		return "missing label"
	case StatusFailed:
		return "failed"
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// ObjectResult is the outcome of one object task. Mesh is never nil and is in
// the window frame: window voxel coordinates scaled by the voxel spacing.
type ObjectResult struct {
	Key    models.ObjectKey
	Mesh   *mesh.Mesh
	Status Status
	State  State
	Err    error

	// Recomputed is set when the task went past the cache check
	Recomputed bool

	Report simplify.Report
}

// HasMesh reports whether the object contributes to the merged buffer.
func (r *ObjectResult) HasMesh() bool {
	return r != nil && !r.Mesh.Empty()
}

// NeedsSave reports whether the outcome should be written to the cache.
// Meshless outcomes are saved as empty entries so they are not extracted
// again; failures are not saved.
func (r *ObjectResult) NeedsSave() bool {
	return r.Recomputed && r.Status != StatusFailed && r.Mesh != nil
}

// taskEnv is what every task of one run shares. Nothing in it is written
// by tasks.
type taskEnv struct {
	window     *models.VoxelWindow
	index      *bounds.Index
	spacing    models.Spacing
	extractor  *isosurface.Extractor
	simplifier *simplify.Simplifier
	cache      *meshcache.Cache
	updated    models.LabelSet
	pad        int
}

// Task meshes one object.
type Task struct {
	env    *taskEnv
	state  State
	result ObjectResult
}

func newTask(env *taskEnv, key models.ObjectKey) *Task {
	return &Task{env: env, state: StatePending, result: ObjectResult{Key: key}}
}

// State returns the current state.
func (t *Task) State() State { return t.state }

func (t *Task) to(next State) {
	for _, s := range transitions[t.state] {
		if s == next {
			t.state = next
			t.result.State = next
			return
		}
	}
	panic(fmt.Sprintf("object %s: illegal transition %s -> %s", t.result.Key, t.state, next))
}

func (t *Task) finish(m *mesh.Mesh, status Status, err error) ObjectResult {
	if m == nil {
		m = &mesh.Mesh{}
	}
	t.result.Mesh, t.result.Status, t.result.Err = m, status, err
	t.to(StateDone)
	return t.result
}

// Run drives the task to StateDone and returns its result. Per-object
// problems end up in the result, never as a panic or a retry.
func (t *Task) Run() ObjectResult {
	if t.state == StateDone {
		return t.result
	}
	env, key := t.env, t.result.Key

	if env.cache != nil && !meshcache.ShouldRecompute(env.updated, key.Label) {
		if m, ok := env.cache.Load(key); ok {
			t.to(StateCached)
			return t.finish(m, StatusCached, nil)
		}
		logging.Debugf("Object %s not in cache, recomputing", key)
	}
	t.result.Recomputed = true

	t.to(StateBounding)
	box, ok := env.index.Box(key.Label)
	if !ok {
		return t.finish(nil, StatusMissingLabel, nil)
	}

	t.to(StateExtracting)
	grid := env.window.Copy(box, env.pad)
	m, err := env.extractor.Extract(grid, key.Label)
	switch {
	case errors.Is(err, isosurface.ErrDegenerateSpacing):
		return t.finish(nil, StatusDegenerate, err)
	case err != nil:
		logging.Errorf("Object %s: %v", key, err)
		return t.finish(nil, StatusFailed, err)
	case m.Empty():
		return t.finish(nil, StatusEmpty, nil)
	}

	t.to(StateSimplifying)
	if env.simplifier != nil {
		m, t.result.Report = env.simplifier.Simplify(m, box.Size())
	}
	origin := r3.Vec{
		X: float64(grid.Origin[0]) * env.spacing.X,
		Y: float64(grid.Origin[1]) * env.spacing.Y,
		Z: float64(grid.Origin[2]) * env.spacing.Z,
	}
	return t.finish(m.Translate(origin), StatusMeshed, nil)
}
