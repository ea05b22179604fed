// Package tippecanoe implements tiler.Tiler by shelling out to the
// tippecanoe binary.
package tippecanoe

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-choropleth/internal/pmtiles"
	"github.com/joeblew999/plat-choropleth/internal/tiler"
)

// Binary is the executable looked up on PATH.
const Binary = "tippecanoe"

// Tippecanoe implements tiler.Tiler.
type Tippecanoe struct {
	bin string
	log zerolog.Logger
}

var _ tiler.Tiler = (*Tippecanoe)(nil)

// New returns a tiler using bin, or Binary when bin is empty.
func New(bin string, log zerolog.Logger) *Tippecanoe {
	if bin == "" {
		bin = Binary
	}
	return &Tippecanoe{bin: bin, log: log}
}

// Available reports whether the binary can be found.
func (t *Tippecanoe) Available() bool {
	_, err := exec.LookPath(t.bin)
	return err == nil
}

func (t *Tippecanoe) Name() string { return "tippecanoe" }

// Args builds the tippecanoe command line for one run.
func Args(input, output string, cfg tiler.Config) []string {
	layer := cfg.Layer
	if layer == "" {
		layer = "districts"
	}
	minZ, maxZ := cfg.MinZoom, cfg.MaxZoom
	if minZ == 0 && maxZ == 0 {
		maxZ = 14
	}
	return []string{
		"-o", output,
		"-l", layer,
		"-Z", strconv.Itoa(minZ),
		"-z", strconv.Itoa(maxZ),
		"--force",
		"--drop-densest-as-needed",
		"--quiet",
		input,
	}
}

// Tile writes fc to a scratch directory, runs tippecanoe over it and copies
// the resulting archive to w.
func (t *Tippecanoe) Tile(fc *geojson.FeatureCollection, w io.Writer, cfg tiler.Config) (tiler.Stats, error) {
	dir, err := os.MkdirTemp("", "choropleth-tippecanoe-")
	if err != nil {
		return tiler.Stats{}, err
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "input.geojson")
	output := filepath.Join(dir, "output.pmtiles")

	data, err := finite(fc).MarshalJSON()
	if err != nil {
		return tiler.Stats{}, fmt.Errorf("tippecanoe: encode input: %w", err)
	}
	if err := os.WriteFile(input, data, 0o644); err != nil {
		return tiler.Stats{}, err
	}

	cmd := exec.CommandContext(context.Background(), t.bin, Args(input, output, cfg)...)
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return tiler.Stats{}, fmt.Errorf("tippecanoe: stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		if strings.Contains(err.Error(), "executable file not found") {
			return tiler.Stats{}, fmt.Errorf("tippecanoe is not installed")
		}
		return tiler.Stats{}, fmt.Errorf("tippecanoe: start: %w", err)
	}

	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		t.log.Debug().Str("tiler", t.Name()).Msg(scanner.Text())
	}
	if err := cmd.Wait(); err != nil {
		return tiler.Stats{}, fmt.Errorf("tippecanoe: %w", err)
	}

	f, err := os.Open(output)
	if err != nil {
		return tiler.Stats{}, err
	}
	defer f.Close()

	h, err := pmtiles.ReadHeader(f)
	if err != nil {
		return tiler.Stats{}, fmt.Errorf("tippecanoe: read header: %w", err)
	}
	n, err := io.Copy(w, io.NewSectionReader(f, 0, math.MaxInt64))
	if err != nil {
		return tiler.Stats{}, err
	}
	return tiler.Stats{
		Tiles:   int(h.AddressedTilesCount),
		MinZoom: int(h.MinZoom),
		MaxZoom: int(h.MaxZoom),
		Bytes:   n,
	}, nil
}

// finite copies fc without non-finite numeric properties, which JSON
// cannot encode.
func finite(fc *geojson.FeatureCollection) *geojson.FeatureCollection {
	out := geojson.NewFeatureCollection()
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		nf := geojson.NewFeature(f.Geometry)
		for k, v := range f.Properties {
			if x, ok := v.(float64); ok && (math.IsNaN(x) || math.IsInf(x, 0)) {
				continue
			}
			nf.Properties[k] = v
		}
		out.Append(nf)
	}
	return out
}
