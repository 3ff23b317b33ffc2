package bounds

import (
	"testing"

	"labelmesh/internal/models"
)

// twoLabelWindow builds a 10^3 window with label 1 at [4,6)^3 and label 9 at (0,0,0)
func twoLabelWindow(t *testing.T, ds models.Downsample) *models.VoxelWindow {
	n := 10
	data := make([]uint64, n*n*n)
	for z := 4; z < 6; z++ {
		for y := 4; y < 6; y++ {
			for x := 4; x < 6; x++ {
				data[(z*n+y)*n+x] = 1
			}
		}
	}
	data[0] = 9
	vol, err := models.NewLabelVolume(data, n, n, n, 1, 0)
	if err != nil {
		t.Fatalf("Failed to create volume: %v", err)
	}
	win, err := vol.Window(0, ds)
	if err != nil {
		t.Fatalf("Failed to create window: %v", err)
	}
	return win
}

func TestScannedBoxWithBorder(t *testing.T) {
	idx := New(twoLabelWindow(t, models.Downsample{}), nil, DefaultBorder)
	box, ok := idx.Box(1)
	if !ok {
		t.Fatal("Label 1 should be found")
	}
	want := models.BoundingBox{Min: [3]int{2, 2, 2}, Max: [3]int{8, 8, 8}}
	if box != want {
		t.Errorf("Expected %v, got %v", want, box)
	}

	// border clamps at the volume edge
	box, ok = idx.Box(9)
	if !ok {
		t.Fatal("Label 9 should be found")
	}
	if box.Min != [3]int{0, 0, 0} || box.Max != [3]int{3, 3, 3} {
		t.Errorf("Unexpected clamped box %v", box)
	}
}

func TestMissingLabel(t *testing.T) {
	idx := New(twoLabelWindow(t, models.Downsample{}), nil, DefaultBorder)
	if _, ok := idx.Box(42); ok {
		t.Error("Label 42 should not be found")
	}
	table := New(twoLabelWindow(t, models.Downsample{}), models.BoundingBoxes{1: {Max: [3]int{1, 1, 1}}}, 0)
	if _, ok := table.Box(42); ok {
		t.Error("Label 42 should not be found in the table")
	}
}

func TestLabelsFromScanAndTable(t *testing.T) {
	idx := New(twoLabelWindow(t, models.Downsample{}), nil, DefaultBorder)
	labels := idx.Labels()
	if len(labels) != 2 || labels[0] != 1 || labels[1] != 9 {
		t.Errorf("Expected [1 9], got %v", labels)
	}

	table := models.BoundingBoxes{
		7: {Min: [3]int{4, 4, 4}, Max: [3]int{6, 6, 6}},
		0: {Max: [3]int{10, 10, 10}},
		3: {Min: [3]int{0, 0, 0}, Max: [3]int{1, 1, 1}},
	}
	tidx := New(twoLabelWindow(t, models.Downsample{}), table, DefaultBorder)
	if !tidx.HasTable() {
		t.Error("Expected a table-backed index")
	}
	labels = tidx.Labels()
	if len(labels) != 2 || labels[0] != 3 || labels[1] != 7 {
		t.Errorf("Expected [3 7] without background, got %v", labels)
	}
}

func TestTableBoxIsDownsampled(t *testing.T) {
	table := models.BoundingBoxes{1: {Min: [3]int{4, 4, 4}, Max: [3]int{6, 6, 6}}}
	idx := New(twoLabelWindow(t, models.Downsample{XY: 2, Z: 2}), table, 1)
	box, ok := idx.Box(1)
	if !ok {
		t.Fatal("Label 1 should be found")
	}
	want := models.BoundingBox{Min: [3]int{1, 1, 1}, Max: [3]int{4, 4, 4}}
	if box != want {
		t.Errorf("Expected %v, got %v", want, box)
	}
}

func TestScanAndTableAgree(t *testing.T) {
	win := twoLabelWindow(t, models.Downsample{})
	scan := New(win, nil, DefaultBorder)
	table := New(win, models.BoundingBoxes{1: {Min: [3]int{4, 4, 4}, Max: [3]int{6, 6, 6}}}, DefaultBorder)
	a, _ := scan.Box(1)
	b, _ := table.Box(1)
	if a != b {
		t.Errorf("Scan box %v differs from table box %v", a, b)
	}
}
