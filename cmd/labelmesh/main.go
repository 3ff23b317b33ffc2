package main

import (
	"bufio"
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"labelmesh/internal/models"
	"labelmesh/pkg/config"
	"labelmesh/pkg/logging"
	"labelmesh/pkg/reconstruction"
)

func main() {
	// Parse command line arguments
	inputFile := flag.String("input", "", "Raw little-endian label volume, x fastest")
	dimsFlag := flag.String("dims", "", "Volume dimensions X,Y,Z[,C]")
	dtype := flag.String("dtype", "uint16", "Voxel type: uint8, uint16, uint32 or uint64")
	configPath := flag.String("config", "", "YAML or TOML configuration file")
	timePoint := flag.Int("time", 0, "Time point of the volume")
	spacingFlag := flag.String("spacing", "1,1,1", "Voxel spacing x,y,z")
	updatedFlag := flag.String("updated", "", "Comma-separated labels to recompute; 'none' reuses every cached mesh")
	stlFile := flag.String("stl", "", "Write the merged meshes to this STL file")
	previewDir := flag.String("previews", "", "Write label slice previews under this directory")
	parallel := flag.Int("parallel", 0, "Objects meshed at once (default from config)")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	writeConfig := flag.String("write-config", "", "Write the default configuration to this file and exit")
	flag.Parse()

	if *writeConfig != "" {
		if err := config.CreateDefaultConfigFile(*writeConfig); err != nil {
			log.Fatalf("Failed to write config: %v", err)
		}
		fmt.Printf("Default configuration written to %s\n", *writeConfig)
		return
	}

	// Validate inputs
	if *inputFile == "" || *dimsFlag == "" {
		flag.Usage()
		os.Exit(1)
	}
	dims, err := parseInts(*dimsFlag)
	if err != nil || (len(dims) != 3 && len(dims) != 4) {
		log.Fatalf("Invalid -dims %q, expected X,Y,Z[,C]", *dimsFlag)
	}
	if len(dims) == 3 {
		dims = append(dims, 1)
	}
	spacing, err := parseSpacing(*spacingFlag)
	if err != nil {
		log.Fatalf("Invalid -spacing: %v", err)
	}
	updated, err := parseUpdated(*updatedFlag)
	if err != nil {
		log.Fatalf("Invalid -updated: %v", err)
	}

	cfg := config.DefaultConfig()
	if *configPath != "" {
		if cfg, err = config.LoadConfig(*configPath); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	if *stlFile != "" {
		cfg.Output.STLFile = *stlFile
	}
	if *previewDir != "" {
		cfg.Output.PreviewDir = *previewDir
	}
	if *parallel > 0 {
		cfg.Processing.MaxParallel = *parallel
	}
	if *verbose {
		cfg.Output.Verbose = true
	}

	cfg.Log.SetLogger()
	defer logging.Shutdown()
	if cfg.Output.Verbose {
		logging.SetLogMode(logging.DebugMode)
	}

	fmt.Println("================================")
	fmt.Println("LABEL VOLUME TO SURFACE MESH CONVERSION")
	fmt.Println("================================")

	data, err := readVolume(*inputFile, *dtype, dims[0]*dims[1]*dims[2]*dims[3])
	if err != nil {
		log.Fatalf("Failed to read volume: %v", err)
	}
	vol, err := models.NewLabelVolume(data, dims[0], dims[1], dims[2], dims[3], cfg.Processing.Background)
	if err != nil {
		log.Fatalf("Invalid volume: %v", err)
	}

	reconstructor, err := reconstruction.NewReconstructor(cfg)
	if err != nil {
		log.Fatalf("Failed to create reconstructor: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	startTime := time.Now()
	var outputs []*reconstruction.Output
	for c := 0; c < vol.Channels(); c++ {
		out, err := reconstructor.Process(ctx, reconstruction.Input{
			Volume:  vol,
			Time:    *timePoint,
			Channel: c,
			Spacing: spacing,
			Updated: updated,
		})
		if err != nil {
			reconstructor.Close()
			log.Fatalf("Conversion of channel %d failed: %v", c, err)
		}
		outputs = append(outputs, out)
	}
	if err := reconstructor.Close(); err != nil {
		logging.Warningf("Some object meshes were not cached: %v", err)
	}
	elapsed := time.Since(startTime)

	fmt.Printf("\nConversion completed in %.2f seconds using up to %d parallel objects\n",
		elapsed.Seconds(), cfg.Processing.MaxParallel)
	for c, out := range outputs {
		s := out.Result.Stats
		fmt.Printf("Channel %d: %d objects (%d extracted, %d reused, %d empty, %d failed), merged buffer %s\n",
			c, s.Objects, s.Extracted, s.Reused, s.Empty, s.Failed, humanize.Bytes(uint64(len(out.Merged))))
		if meshless := out.Result.Meshless(); len(meshless) > 0 {
			fmt.Printf("- Labels without a mesh: %v\n", meshless)
		}
		if out.MergedPath != "" {
			fmt.Printf("- Merged mesh saved to: %s\n", out.MergedPath)
		}
		if out.STLPath != "" {
			fmt.Printf("- STL saved to: %s\n", out.STLPath)
		}
		if len(out.Previews) > 0 {
			fmt.Printf("- %d previews written\n", len(out.Previews))
		}
	}
}

func parseInts(s string) ([]int, error) {
	var out []int
	for _, p := range strings.Split(s, ",") {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func parseSpacing(s string) (models.Spacing, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 3 {
		return models.Spacing{}, fmt.Errorf("expected x,y,z, got %q", s)
	}
	var v [3]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return models.Spacing{}, err
		}
		v[i] = f
	}
	sp := models.Spacing{X: v[0], Y: v[1], Z: v[2]}
	return sp, sp.Validate()
}

// parseUpdated returns nil for "", meaning recompute everything, and the
// empty set for "none".
func parseUpdated(s string) (models.LabelSet, error) {
	switch strings.TrimSpace(s) {
	case "":
		return nil, nil
	case "none":
		return models.NewLabelSet(), nil
	}
	var labels []uint64
	for _, p := range strings.Split(s, ",") {
		l, err := strconv.ParseUint(strings.TrimSpace(p), 10, 64)
		if err != nil {
			return nil, err
		}
		labels = append(labels, l)
	}
	return models.NewLabelSet(labels...), nil
}

// readVolume reads n little-endian voxels of the given type.
func readVolume(path, dtype string, n int) ([]uint64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	r := bufio.NewReader(f)

	out := make([]uint64, n)
	switch dtype {
	case "uint8":
		buf := make([]uint8, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		for i, v := range buf {
			out[i] = uint64(v)
		}
	case "uint16":
		buf := make([]uint16, n)
		if err := binary.Read(r, binary.LittleEndian, buf); err != nil {
			return nil, err
		}
		for i, v := range buf {
			out[i] = uint64(v)
		}
	case "uint32":
		buf := make([]uint32, n)
		if err := binary.Read(r, binary.LittleEndian, buf); err != nil {
			return nil, err
		}
		for i, v := range buf {
			out[i] = uint64(v)
		}
	case "uint64":
		if err := binary.Read(r, binary.LittleEndian, out); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("unknown voxel type %q", dtype)
	}
	logging.Infof("Read %s of %s voxels from %s", humanize.Comma(int64(n)), dtype, path)
	return out, nil
}
