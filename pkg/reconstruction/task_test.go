package reconstruction

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os"
	"testing"

	"labelmesh/internal/models"
	"labelmesh/pkg/bounds"
	"labelmesh/pkg/config"
	"labelmesh/pkg/isosurface"
	"labelmesh/pkg/logging"
	"labelmesh/pkg/meshcache"
	"labelmesh/pkg/simplify"
)

func testEnv(t *testing.T, vol *models.LabelVolume, cache *meshcache.Cache, updated models.LabelSet) *taskEnv {
	t.Helper()
	win, err := vol.Window(0, models.Downsample{})
	if err != nil {
		t.Fatal(err)
	}
	return &taskEnv{
		window:     win,
		index:      bounds.New(win, nil, bounds.DefaultBorder),
		spacing:    unitSpacing,
		extractor:  isosurface.NewExtractor(unitSpacing),
		simplifier: simplify.New(config.DefaultQuality()),
		cache:      cache,
		updated:    updated,
		pad:        DefaultPad,
	}
}

func TestTaskMeshes(t *testing.T) {
	env := testEnv(t, cubeVolume(t, 10, 4, map[uint64][3]int{1: {3, 3, 3}}), nil, nil)
	task := newTask(env, models.ObjectKey{Label: 1})
	if task.State() != StatePending {
		t.Fatalf("New task should be pending, got %s", task.State())
	}
	res := task.Run()
	if task.State() != StateDone || res.State != StateDone {
		t.Errorf("Task should be done, got %s", task.State())
	}
	if res.Status != StatusMeshed || !res.HasMesh() || !res.Recomputed {
		t.Errorf("Expected a recomputed mesh, got %s", res.Status)
	}
	if !res.NeedsSave() {
		t.Error("A recomputed mesh needs saving")
	}
	if len(res.Report.Stages) != 3 {
		t.Errorf("Expected three simplification stages, got %d", len(res.Report.Stages))
	}

	// running again returns the same result
	again := task.Run()
	if again.Mesh != res.Mesh {
		t.Error("A finished task must not run again")
	}
}

func TestTaskMissingLabel(t *testing.T) {
	env := testEnv(t, cubeVolume(t, 8, 2, map[uint64][3]int{1: {3, 3, 3}}), nil, nil)
	res := newTask(env, models.ObjectKey{Label: 7}).Run()
	if res.Status != StatusMissingLabel || res.HasMesh() || res.Mesh == nil {
		t.Errorf("Expected an empty, non-nil mesh for a missing label, got %+v", res)
	}
	if !res.NeedsSave() {
		t.Error("A meshless outcome is saved so it is not extracted again")
	}
}

func TestTaskUsesCache(t *testing.T) {
	vol := cubeVolume(t, 10, 4, map[uint64][3]int{1: {3, 3, 3}})
	cache := meshcache.New(t.TempDir(), 0)
	key := models.ObjectKey{Label: 1}

	first := newTask(testEnv(t, vol, cache, nil), key).Run()
	cache.Save(key, first.Mesh)
	if err := cache.Flush(); err != nil {
		t.Fatal(err)
	}

	task := newTask(testEnv(t, vol, cache, models.NewLabelSet()), key)
	res := task.Run()
	if res.Status != StatusCached || res.Recomputed || res.NeedsSave() {
		t.Errorf("Expected a cache hit, got %s (recomputed %v)", res.Status, res.Recomputed)
	}
	if res.Mesh.NumVertices() != first.Mesh.NumVertices() {
		t.Errorf("Cached mesh has %d vertices, want %d", res.Mesh.NumVertices(), first.Mesh.NumVertices())
	}

	// a miss falls through to extraction
	other := models.ObjectKey{Time: 5, Label: 1}
	res = newTask(testEnv(t, vol, cache, models.NewLabelSet()), other).Run()
	if res.Status != StatusMeshed || !res.Recomputed {
		t.Errorf("A cache miss must recompute, got %s", res.Status)
	}
}

func TestIllegalTransitionPanics(t *testing.T) {
	task := &Task{state: StateCached}
	defer func() {
		if recover() == nil {
			t.Error("Expected a panic for cached -> extracting")
		}
	}()
	task.to(StateExtracting)
}

func TestStatusStrings(t *testing.T) {
	if StatusMissingLabel.String() != "missing label" || StateSimplifying.String() != "simplifying" {
		t.Error("Unexpected names")
	}
	if Status(42).String() != "Status(42)" {
		t.Errorf("Unexpected fallback %q", Status(42).String())
	}
}

func TestSchedulerInvalidParallelism(t *testing.T) {
	env := testEnv(t, cubeVolume(t, 6, 2, map[uint64][3]int{1: {2, 2, 2}}), nil, nil)
	for _, n := range []int{0, -3} {
		s := &Scheduler{MaxParallel: n}
		_, err := s.Run(context.Background(), Request{Window: env.window, Index: env.index, Spacing: unitSpacing})
		if !errors.Is(err, ErrInvalidParallelism) {
			t.Errorf("MaxParallel %d: expected ErrInvalidParallelism, got %v", n, err)
		}
	}
}

func TestSchedulerCancelled(t *testing.T) {
	env := testEnv(t, cubeVolume(t, 10, 2, map[uint64][3]int{1: {1, 1, 1}, 2: {5, 5, 5}}), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := &Scheduler{MaxParallel: 2, Pad: DefaultPad}
	res, err := s.Run(ctx, Request{Window: env.window, Index: env.index, Spacing: unitSpacing})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if res == nil || res.Stats.Objects != 0 {
		t.Errorf("Nothing should be admitted after cancellation, got %+v", res)
	}
}

func TestSchedulerExplicitLabels(t *testing.T) {
	env := testEnv(t, cubeVolume(t, 10, 2, map[uint64][3]int{1: {1, 1, 1}, 2: {5, 5, 5}}), nil, nil)
	s := &Scheduler{MaxParallel: 1, Pad: DefaultPad}
	res, err := s.Run(context.Background(), Request{
		Window: env.window, Index: env.index, Spacing: unitSpacing, Labels: []uint64{2, 9},
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Order) != 2 || res.Order[0] != 2 || res.Order[1] != 9 {
		t.Errorf("Expected order [2 9], got %v", res.Order)
	}
	if o, _ := res.Lookup(9); o.Status != StatusMissingLabel {
		t.Errorf("Label 9 should be missing, got %s", o.Status)
	}
	if _, ok := res.Lookup(1); ok {
		t.Error("Label 1 was not requested")
	}
}

func TestSchedulerQuietBelowInfo(t *testing.T) {
	var buf bytes.Buffer
	log.SetOutput(&buf)
	logging.SetLogMode(logging.WarningMode)
	defer func() {
		log.SetOutput(os.Stderr)
		logging.SetLogMode(logging.InfoMode)
	}()

	env := testEnv(t, cubeVolume(t, 10, 2, map[uint64][3]int{1: {1, 1, 1}, 2: {5, 5, 5}}), nil, nil)
	s := &Scheduler{MaxParallel: 2, Pad: DefaultPad}
	res, err := s.Run(context.Background(), Request{Window: env.window, Index: env.index, Spacing: unitSpacing})
	if err != nil {
		t.Fatal(err)
	}
	if res.Stats.Objects != 2 || res.Stats.Extracted != 2 {
		t.Errorf("Expected two extracted objects, got %+v", res.Stats)
	}
	if buf.Len() != 0 {
		t.Errorf("Nothing should be logged below warning level, got %q", buf.String())
	}
}
