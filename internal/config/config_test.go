package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(origDir) })

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "mapbox://styles/mapbox/light-v10", cfg.Map.StyleURL)
	assert.Equal(t, []float64{-73.882646, 40.810616}, cfg.Map.Center)
	assert.InDelta(t, 9.3, cfg.Map.Zoom, 1e-9)
	assert.Equal(t, "nyc-cd", cfg.Layers.ChoroplethLayer)
	assert.Equal(t, "waterway-label", cfg.Layers.BeforeLayer)
	assert.Len(t, cfg.Ramp, 5)
	assert.Len(t, cfg.FlyTargets, 3)
	assert.Equal(t, "Click a district for more information", cfg.Sidebar.DefaultPrompt)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "districts-with-population.geojson", cfg.Dataset.Source)
}

func TestLoadFromYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "choropleth.yaml")
	yaml := `
map:
  access_token: pk.test
  zoom: 10
dataset:
  source: https://example.com/districts.geojson
fly_targets:
  - id: "105"
    center: [-73.98, 40.75]
    zoom: 14
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "pk.test", cfg.Map.AccessToken)
	assert.InDelta(t, 10.0, cfg.Map.Zoom, 1e-9)
	assert.Equal(t, "https://example.com/districts.geojson", cfg.Dataset.Source)
	require.Len(t, cfg.FlyTargets, 1)
	assert.Equal(t, "105", cfg.FlyTargets[0].ID)
	assert.Equal(t, []float64{-73.98, 40.75}, cfg.FlyTargets[0].Center)
	// untouched sections keep their defaults
	assert.Len(t, cfg.Ramp, 5)
	assert.Equal(t, "highlight-line", cfg.Layers.HighlightLayer)
}

func TestLoadListsReplaceDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "choropleth.yaml")
	yaml := `
fly_targets:
  - id: "105"
    zoom: 12
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	_, err := Load(path)
	assert.ErrorContains(t, err, `fly target "105" center`)

	yaml = `
buttons:
  - token: "105"
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	_, err = Load(path)
	assert.ErrorContains(t, err, `button "105" has no label`)

	yaml = `
buttons:
  - token: "105"
    label: Midtown
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []Button{{Token: "105", Label: "Midtown"}}, cfg.Buttons)
	assert.Len(t, cfg.FlyTargets, 3)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("CHOROPLETH_MAP_ACCESS_TOKEN", "pk.env")
	t.Setenv("CHOROPLETH_DATASET_TIMEOUT_SECS", "3")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "pk.env", cfg.Map.AccessToken)
	assert.Equal(t, 3, cfg.Dataset.TimeoutSecs)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	bad := Default()
	bad.Ramp[2].Value = bad.Ramp[1].Value
	assert.Error(t, bad.Validate())

	bad = Default()
	bad.FlyTargets = append(bad.FlyTargets, FlyTarget{ID: ResetToken, Center: []float64{0, 0}})
	assert.Error(t, bad.Validate())

	bad = Default()
	bad.FlyTargets = append(bad.FlyTargets, bad.FlyTargets[0])
	assert.Error(t, bad.Validate())

	bad = Default()
	bad.Layers.SourceType = "pmtiles"
	assert.Error(t, bad.Validate())

	bad = Default()
	bad.Map.Center = []float64{1}
	assert.Error(t, bad.Validate())
}
