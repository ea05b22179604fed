// Package service holds the shared, process-wide state behind the viewer:
// the district dataset and the generated tile archives.
package service

import "time"

// DistrictInfo is the REST view of one district.
// Population is nil when the source value could not be parsed.
type DistrictInfo struct {
	BoroCD        string     `json:"boroCD" doc:"Community district id" example:"306"`
	Name          string     `json:"name" doc:"District label" example:"Park Slope"`
	Population    *int64     `json:"population" doc:"2010 population, null when unknown" example:"104709"`
	PopulationFmt string     `json:"populationFormatted" doc:"Population with thousands separators" example:"104,709"`
	Color         string     `json:"color,omitempty" doc:"Choropleth fill color" example:"#74a9cf"`
	BBox          [4]float64 `json:"bbox" doc:"Bounding box [minLng, minLat, maxLng, maxLat]"`
	FlyTarget     bool       `json:"flyTarget" doc:"Whether a sidebar button flies to this district"`
}

// DatasetStatus describes the currently loaded dataset.
type DatasetStatus struct {
	Source   string    `json:"source" doc:"Path or URL the dataset was loaded from"`
	Loaded   bool      `json:"loaded" doc:"Whether a dataset is loaded"`
	Version  int       `json:"version" doc:"Increments on every successful load"`
	Features int       `json:"features" doc:"Number of district features"`
	Invalid  int       `json:"invalidPopulations" doc:"Features whose pop2010 could not be parsed"`
	LoadedAt time.Time `json:"loadedAt,omitempty" doc:"Time of the last successful load"`
	Error    string    `json:"error,omitempty" doc:"Last load error, if any"`
}

// TileFile is a PMTiles archive available under /tiles/.
type TileFile struct {
	Name    string `json:"name" doc:"PMTiles file name" example:"districts.pmtiles"`
	Size    string `json:"size" doc:"Human-readable file size" example:"1.2 MB"`
	MinZoom int    `json:"minZoom" doc:"Lowest zoom level in the archive"`
	MaxZoom int    `json:"maxZoom" doc:"Highest zoom level in the archive"`
	Tiles   uint64 `json:"tiles" doc:"Number of addressed tiles"`
}
