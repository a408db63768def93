// Package detector implements the ship-candidate stages that run on a single
// acquisition: water masking, intensity thresholding, morphological cleanup,
// speckle removal, vectorization and the length-proxy filter.
//
// Every stage is a plain function over fully materialized rasters and
// geometries. Per-pixel work is split into row bands; labeling merges labels
// across band boundaries before any component is sized or traced.
package detector
