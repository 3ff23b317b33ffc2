package reconstruction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/DmitriyVTitov/size"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"labelmesh/internal/models"
	"labelmesh/pkg/bounds"
	"labelmesh/pkg/isosurface"
	"labelmesh/pkg/logging"
	"labelmesh/pkg/meshcache"
	"labelmesh/pkg/simplify"
)

// ErrInvalidParallelism is returned before any work when MaxParallel < 1.
var ErrInvalidParallelism = errors.New("max parallel must be positive")

// DefaultPad is the background margin added around each object's box copy.
const DefaultPad = 1

// Stats counts what a scheduler run did.
type Stats struct {
	Objects   int
	Extracted int
	Reused    int
	Meshed    int
	Empty     int
	Failed    int
	Elapsed   time.Duration
}

// Result maps labels to their outcome. Order is the label enumeration order
// and fixes the merge order.
type Result struct {
	Time    int
	Channel int
	Order   []uint64
	Objects map[uint64]*ObjectResult
	Stats   Stats
}

// Lookup returns the outcome for label.
func (r *Result) Lookup(label uint64) (*ObjectResult, bool) {
	o, ok := r.Objects[label]
	return o, ok
}

// Meshless returns, in enumeration order, the labels that have no mesh.
func (r *Result) Meshless() []uint64 {
	var out []uint64
	for _, l := range r.Order {
		if !r.Objects[l].HasMesh() {
			out = append(out, l)
		}
	}
	return out
}

// Request describes one scheduler run over a window.
type Request struct {
	Window  *models.VoxelWindow
	Index   *bounds.Index
	Time    int
	Spacing models.Spacing

	// Labels overrides the enumeration; nil uses Index.Labels()
	Labels []uint64

	// Updated selects the labels to recompute; nil recomputes every label
	Updated models.LabelSet
}

// Scheduler meshes every object of a window with at most MaxParallel tasks
// in flight.
type Scheduler struct {
	MaxParallel int
	Extractor   *isosurface.Extractor
	Simplifier  *simplify.Simplifier

	// Cache may be nil, which disables reuse and saving
	Cache        *meshcache.Cache
	WriteObjects bool

	Pad int
}

// Run enumerates the labels of req and meshes them. Tasks are admitted in
// enumeration order; Run blocks while MaxParallel tasks are in flight. When
// ctx is cancelled no further task is admitted, running tasks finish, and
// Run returns ctx.Err() with the partial result.
func (s *Scheduler) Run(ctx context.Context, req Request) (*Result, error) {
	if s.MaxParallel < 1 {
		return nil, fmt.Errorf("%w, got %d", ErrInvalidParallelism, s.MaxParallel)
	}
	if req.Window == nil || req.Index == nil {
		return nil, errors.New("scheduler request needs a window and an index")
	}
	tlog := logging.NewTimeLog()

	labels := req.Labels
	if labels == nil {
		labels = req.Index.Labels()
	}
	extractor := s.Extractor
	if extractor == nil {
		extractor = isosurface.NewExtractor(req.Spacing)
	}
	env := &taskEnv{
		window:     req.Window,
		index:      req.Index,
		spacing:    req.Spacing,
		extractor:  extractor,
		simplifier: s.Simplifier,
		cache:      s.Cache,
		updated:    req.Updated,
		pad:        s.Pad,
	}

	outcomes := make([]*ObjectResult, len(labels))
	var g errgroup.Group
	g.SetLimit(s.MaxParallel)
	var admitErr error
	for i, label := range labels {
		if err := ctx.Err(); err != nil {
			admitErr = err
			logging.Warningf("Stopped admitting objects after %d of %d: %v", i, len(labels), err)
			break
		}
		key := models.ObjectKey{Time: req.Time, Label: label, Channel: req.Window.Channel()}
		g.Go(func() error {
			res := newTask(env, key).Run()
			if res.NeedsSave() && s.Cache != nil && s.WriteObjects {
				s.Cache.Save(key, res.Mesh)
			}
			outcomes[i] = &res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	result := &Result{
		Time:    req.Time,
		Channel: req.Window.Channel(),
		Objects: make(map[uint64]*ObjectResult, len(labels)),
	}
	for i, o := range outcomes {
		if o == nil {
			continue
		}
		result.Order = append(result.Order, labels[i])
		result.Objects[labels[i]] = o
		result.Stats.count(o)
	}
	result.Stats.Elapsed = tlog.Elapsed()

	if logging.Enabled(logging.InfoMode) {
		tlog.Infof("Meshed %d objects of time %d channel %d: %d extracted, %d reused, %d empty, %d failed, results ~%s",
			result.Stats.Objects, req.Time, result.Channel, result.Stats.Extracted, result.Stats.Reused,
			result.Stats.Empty, result.Stats.Failed, humanize.Bytes(uint64(size.Of(result))))
	}
	return result, admitErr
}

func (s *Stats) count(o *ObjectResult) {
	s.Objects++
	if o.Recomputed {
		s.Extracted++
	}
	switch o.Status {
	case StatusCached:
		s.Reused++
	case StatusMeshed:
		s.Meshed++
	case StatusFailed, StatusDegenerate:
		s.Failed++
	default:
		s.Empty++
	}
}
