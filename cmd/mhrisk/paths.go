package main

import (
	"path/filepath"

	"mhrisk/pkg/config"
)

// Stage artifact names.
const (
	validatedFile     = "validated_data.csv"
	validationLogFile = "validation.log"
	validationReport  = "validation_report.json"
	trainFile         = "maternal_health_risk_train.csv"
	testFile          = "maternal_health_risk_test.csv"
	scaledTrainFile   = "scaled_maternal_health_risk_train.csv"
	scaledTestFile    = "scaled_maternal_health_risk_test.csv"
	preprocessorFile  = "maternal_risk_preprocessor.gob"
	classifierFile    = "maternal_risk_classifier.gob"
	manifestFile      = "maternal_risk_classifier.yaml"
	cvResultsFile     = "cv_results.csv"
	tuningPlotFile    = "svc_hyperparameter_tuning.png"
)

type paths struct{ cfg *config.Config }

func (p paths) raw() string         { return filepath.Join(p.cfg.Data.RawDir, p.cfg.Data.RawFile) }
func (p paths) validated() string   { return filepath.Join(p.cfg.Data.ProcessedDir, validatedFile) }
func (p paths) train() string       { return filepath.Join(p.cfg.Data.ProcessedDir, trainFile) }
func (p paths) test() string        { return filepath.Join(p.cfg.Data.ProcessedDir, testFile) }
func (p paths) scaledTrain() string { return filepath.Join(p.cfg.Data.ProcessedDir, scaledTrainFile) }
func (p paths) scaledTest() string  { return filepath.Join(p.cfg.Data.ProcessedDir, scaledTestFile) }
func (p paths) preprocessor() string {
	return filepath.Join(p.cfg.Split.PreprocessorDir, preprocessorFile)
}
func (p paths) classifier() string { return filepath.Join(p.cfg.Fit.ModelDir, classifierFile) }
func (p paths) manifest() string   { return filepath.Join(p.cfg.Fit.ModelDir, manifestFile) }
func (p paths) cvResults() string  { return filepath.Join(p.cfg.Evaluate.ResultsDir, cvResultsFile) }
func (p paths) tuningPlot() string { return filepath.Join(p.cfg.FiguresDir, tuningPlotFile) }

// document sits next to the tables directory so its figure links stay relative.
func (p paths) document() string {
	return filepath.Join(filepath.Dir(p.cfg.Evaluate.ResultsDir), "report.md")
}
