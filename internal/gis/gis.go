// Package gis derives storable metadata from raw GeoJSON values: geometry
// type, centroid, bounding extent, and coordinate count, computed by walking
// the nested coordinate arrays without binding to a geometry schema.
package gis

import (
	"encoding/base64"
	"time"

	"permitport/api/internal/store"
)

// Metadata is the derived summary of one geometry container.
type Metadata struct {
	GeometryType    string
	Centroid        []float64 // lon, lat
	Extent          []float64 // minX, minY, maxX, maxY
	CoordinateCount int
}

// Describe walks a decoded GeoJSON value (FeatureCollection, Feature, bare
// geometry, or GeometryCollection) and summarizes it. A value with no
// positions yields a zero Metadata.
func Describe(geojson any) Metadata {
	var positions [][2]float64
	types := map[string]bool{}
	collectGeometries(geojson, &positions, types)

	meta := Metadata{CoordinateCount: len(positions)}
	if len(positions) == 0 {
		return meta
	}

	switch len(types) {
	case 0:
	case 1:
		for t := range types {
			meta.GeometryType = t
		}
	default:
		meta.GeometryType = "GeometryCollection"
	}

	minX, minY := positions[0][0], positions[0][1]
	maxX, maxY := minX, minY
	var sumX, sumY float64
	for _, p := range positions {
		sumX += p[0]
		sumY += p[1]
		if p[0] < minX {
			minX = p[0]
		}
		if p[0] > maxX {
			maxX = p[0]
		}
		if p[1] < minY {
			minY = p[1]
		}
		if p[1] > maxY {
			maxY = p[1]
		}
	}
	n := float64(len(positions))
	meta.Centroid = []float64{sumX / n, sumY / n}
	meta.Extent = []float64{minX, minY, maxX, maxY}
	return meta
}

func collectGeometries(value any, positions *[][2]float64, types map[string]bool) {
	obj, ok := value.(map[string]any)
	if !ok {
		return
	}
	if features, ok := obj["features"].([]any); ok {
		for _, f := range features {
			collectGeometries(f, positions, types)
		}
		return
	}
	if geom, ok := obj["geometry"].(map[string]any); ok {
		collectGeometries(geom, positions, types)
		return
	}
	if geoms, ok := obj["geometries"].([]any); ok {
		for _, g := range geoms {
			collectGeometries(g, positions, types)
		}
		return
	}
	if coords, ok := obj["coordinates"]; ok {
		if t, ok := obj["type"].(string); ok && t != "" {
			types[t] = true
		}
		collectPositions(coords, positions)
	}
}

// collectPositions recurses through arbitrarily nested coordinate arrays. A
// slice whose first element is a number is one position.
func collectPositions(value any, positions *[][2]float64) {
	arr, ok := value.([]any)
	if !ok || len(arr) == 0 {
		return
	}
	if x, ok := toFloat(arr[0]); ok {
		if len(arr) >= 2 {
			if y, ok := toFloat(arr[1]); ok {
				*positions = append(*positions, [2]float64{x, y})
			}
		}
		return
	}
	for _, inner := range arr {
		collectPositions(inner, positions)
	}
}

func toFloat(v any) (float64, bool) {
	f, ok := v.(float64)
	return f, ok
}

// BuildUpload assembles the per-project geometry row: the container values,
// the base64-encoded original file, and the derived metadata.
func BuildUpload(projectID int64, geojson, arcgis any, original []byte, fileName string) store.GisUpload {
	upload := store.GisUpload{
		ProjectID: projectID,
		GeoJSON:   geojson,
		ArcGIS:    arcgis,
		FileName:  fileName,
		UpdatedAt: time.Now().UTC(),
	}
	if len(original) > 0 {
		upload.OriginalFile = base64.StdEncoding.EncodeToString(original)
	}
	meta := Describe(geojson)
	upload.GeometryType = meta.GeometryType
	upload.Centroid = meta.Centroid
	upload.Extent = meta.Extent
	upload.CoordinateCount = meta.CoordinateCount
	return upload
}

// HasGeometry reports whether the container holds anything worth storing.
// Saves with no geometry delete the row instead.
func HasGeometry(geojson, arcgis any, original []byte) bool {
	if len(original) > 0 {
		return true
	}
	if Describe(geojson).CoordinateCount > 0 {
		return true
	}
	if m, ok := arcgis.(map[string]any); ok && len(m) > 0 {
		return true
	}
	if a, ok := arcgis.([]any); ok && len(a) > 0 {
		return true
	}
	return false
}
