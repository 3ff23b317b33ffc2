// Package reconstruction turns a label volume into one surface mesh per
// object and merges them into a single indexed buffer.
package reconstruction

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"labelmesh/internal/models"
	"labelmesh/pkg/bounds"
	"labelmesh/pkg/config"
	"labelmesh/pkg/isosurface"
	"labelmesh/pkg/logging"
	"labelmesh/pkg/mesh"
	"labelmesh/pkg/meshcache"
	"labelmesh/pkg/simplify"
	"labelmesh/pkg/stl"
	"labelmesh/pkg/visualization"
)

// ErrNilVolume is returned by Process when no volume is given.
var ErrNilVolume = errors.New("label volume is nil")

// Input is one conversion call: a single time point and channel.
type Input struct {
	Volume  *models.LabelVolume
	Time    int
	Channel int
	Spacing models.Spacing

	// BoundingBoxes is an optional label table in full-resolution voxels
	BoundingBoxes models.BoundingBoxes

	// Updated lists the labels to recompute. nil recomputes everything; an
	// empty set reuses every cached mesh.
	Updated models.LabelSet
}

// Output is what Process produced.
type Output struct {
	Result *Result
	Merged []byte

	// Paths of the files written, empty when not requested
	MergedPath string
	STLPath    string
	Previews   []string
}

// Reconstructor runs conversions with one configuration and shares the mesh
// cache between them.
type Reconstructor struct {
	cfg        *config.Config
	cache      *meshcache.Cache
	simplifier *simplify.Simplifier
}

// NewReconstructor creates a reconstructor. A nil cfg uses the defaults.
func NewReconstructor(cfg *config.Config) (*Reconstructor, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Quality.Validate(); err != nil {
		return nil, fmt.Errorf("invalid mesh quality: %w", err)
	}
	r := &Reconstructor{
		cfg:        cfg,
		simplifier: simplify.New(cfg.Quality),
	}
	if cfg.Cache.Dir != "" {
		r.cache = meshcache.New(cfg.Cache.Dir, cfg.Cache.MemoryMB<<20)
	}
	return r, nil
}

// Cache returns the mesh cache, nil when caching is off.
func (r *Reconstructor) Cache() *meshcache.Cache { return r.cache }

func (r *Reconstructor) validate(in Input) error {
	if in.Volume == nil {
		return ErrNilVolume
	}
	if err := in.Spacing.Validate(); err != nil {
		return err
	}
	if r.cfg.Processing.MaxParallel < 1 {
		return fmt.Errorf("%w, got %d", ErrInvalidParallelism, r.cfg.Processing.MaxParallel)
	}
	return nil
}

// Process meshes every object of one channel and merges the meshes. Only
// invalid input fails the call; per-object problems are reported in the
// result. If ctx is cancelled the partial output is returned with ctx.Err().
func (r *Reconstructor) Process(ctx context.Context, in Input) (*Output, error) {
	if err := r.validate(in); err != nil {
		return nil, err
	}
	proc := r.cfg.Processing
	tlog := logging.NewTimeLog()

	win, err := in.Volume.Window(in.Channel, proc.Downsample)
	if err != nil {
		return nil, err
	}
	dims := win.Dims()
	logging.Infof("Time %d channel %d: window %dx%dx%d, spacing %g x %g x %g",
		in.Time, in.Channel, dims[0], dims[1], dims[2], in.Spacing.X, in.Spacing.Y, in.Spacing.Z)

	sched := &Scheduler{
		MaxParallel:  proc.MaxParallel,
		Extractor:    isosurface.NewExtractor(in.Spacing),
		Simplifier:   r.simplifier,
		Cache:        r.cache,
		WriteObjects: r.cfg.Cache.WriteObjects,
		Pad:          DefaultPad,
	}
	res, runErr := sched.Run(ctx, Request{
		Window:  win,
		Index:   bounds.New(win, in.BoundingBoxes, proc.Border),
		Time:    in.Time,
		Spacing: in.Spacing,
		Updated: in.Updated,
	})
	if res == nil {
		return nil, runErr
	}

	transform := TransformFor(proc.Downsample, proc.Center, in.Spacing)
	out := &Output{Result: res, Merged: Merge(res, transform)}
	if runErr != nil {
		return out, runErr
	}

	if r.cache != nil && r.cfg.Cache.WriteMerged {
		if err := r.cache.Flush(); err != nil {
			logging.Warningf("Some object meshes were not cached: %v", err)
		}
		if err := r.cache.SaveMerged(in.Time, in.Channel, out.Merged); err != nil {
			return out, fmt.Errorf("failed to save merged mesh: %w", err)
		}
		out.MergedPath = filepath.Join(r.cache.Root(), fmt.Sprintf("%d-%d", in.Time, in.Channel), meshcache.MergedName)
	}

	if path := r.cfg.Output.STLFile; path != "" {
		out.STLPath = outputPath(path, in.Time, in.Channel, in.Volume.Channels())
		meshes := make([]*mesh.Mesh, 0, len(res.Order))
		for _, label := range res.Order {
			if o := res.Objects[label]; o.HasMesh() {
				meshes = append(meshes, transform.Apply(o.Mesh))
			}
		}
		if err := stl.SaveToSTL(out.STLPath, meshes...); err != nil {
			if !errors.Is(err, stl.ErrNoTriangles) {
				return out, err
			}
			logging.Infof("No surfaces for time %d channel %d, skipping STL export", in.Time, in.Channel)
			out.STLPath = ""
		}
	}

	if dir := r.cfg.Output.PreviewDir; dir != "" {
		viewer := visualization.NewViewer(win)
		sub := filepath.Join(dir, fmt.Sprintf("%d-%d", in.Time, in.Channel))
		out.Previews, err = viewer.SaveSliceSequence("z", sub, previewStep(dims[2]))
		if err != nil {
			logging.Warningf("Failed to write previews: %v", err)
		}
	}

	tlog.Infof("Time %d channel %d: %d objects, %d meshless, merged buffer %s",
		in.Time, in.Channel, res.Stats.Objects, len(res.Meshless()), humanize.Bytes(uint64(len(out.Merged))))
	return out, nil
}

// Close waits for pending cache writes.
func (r *Reconstructor) Close() error {
	if r.cache == nil {
		return nil
	}
	return r.cache.Flush()
}

// outputPath adds "-<time>-<channel>" before the extension unless the call
// is the only one a volume needs.
func outputPath(path string, time, channel, channels int) string {
	if time == 0 && channels == 1 {
		return path
	}
	ext := filepath.Ext(path)
	return fmt.Sprintf("%s-%d-%d%s", strings.TrimSuffix(path, ext), time, channel, ext)
}

// previewStep keeps previews to about 16 slices.
func previewStep(depth int) int {
	if step := depth / 16; step > 1 {
		return step
	}
	return 1
}
