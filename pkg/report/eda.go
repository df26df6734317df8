package report

import (
	"fmt"
	"path/filepath"

	"mhrisk/pkg/data"
	"mhrisk/pkg/pipeline"
)

// Exploratory figure names.
const (
	CorrelationPlotFile = "correlation_heatmap.png"
	DensityPlotFile     = "feature_densities_by_risklevel.png"
)

// EDA writes the correlation heatmap and per-class feature densities of train into dir.
func EDA(train *data.Frame, schema pipeline.Schema, dir string) ([]string, error) {
	features := schema.FeatureNames()
	X, err := train.Float64s(features...)
	if err != nil {
		return nil, err
	}
	labels, err := train.Column(schema.Label)
	if err != nil {
		return nil, err
	}
	if len(X) < 2 {
		return nil, fmt.Errorf("need at least 2 rows for exploratory plots, got %d", len(X))
	}

	corr := filepath.Join(dir, CorrelationPlotFile)
	if err := CorrelationHeatmap(corr, features, X); err != nil {
		return nil, fmt.Errorf("correlation heatmap: %w", err)
	}
	dens := filepath.Join(dir, DensityPlotFile)
	if err := FeatureDensities(dens, features, X, labels, schema.Classes()); err != nil {
		return nil, fmt.Errorf("feature densities: %w", err)
	}
	return []string{corr, dens}, nil
}
