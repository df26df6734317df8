package main

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mhrisk/pkg/pipeline"
	"mhrisk/pkg/runlog"
	"mhrisk/pkg/validate"
)

// workspace lays out a config file whose every directory lives under a temp dir.
func workspace(t *testing.T, extra string) (root, cfgPath string) {
	t.Helper()
	root = t.TempDir()
	cfgPath = filepath.Join(root, "mhrisk.yaml")
	cfg := fmt.Sprintf(`
data:
  raw_dir: %[1]s/data/raw
  raw_file: maternal.csv
  processed_dir: %[1]s/data/processed
validate:
  log_dir: %[1]s/results/logs
split:
  preprocessor_dir: %[1]s/results/models
fit:
  model_dir: %[1]s/results/models
  iterations: 3
  folds: 3
  workers: 2
evaluate:
  results_dir: %[1]s/results/tables
figures_dir: %[1]s/results/figures
runs_db: %[1]s/results/runs.db
log_level: warn
%[2]s`, root, extra)
	require.NoError(t, os.WriteFile(cfgPath, []byte(cfg), 0o600))

	return root, cfgPath
}

func rawCSV(n int, seed int64) string {
	rng := rand.New(rand.NewSource(seed))
	var b strings.Builder
	b.WriteString("Age,SystolicBP,DiastolicBP,BS,BodyTemp,HeartRate,RiskLevel\n")
	for c, class := range pipeline.MaternalHealthSchema.Classes() {
		for range n {
			fmt.Fprintf(&b, "%d,%d,%d,%.2f,%.1f,%d,%s\n",
				20+rng.Intn(15), 95+25*c+rng.Intn(8), 60+rng.Intn(20),
				6+3*float64(c)+rng.Float64(), 98+float64(rng.Intn(3)), 70+rng.Intn(10), class)
		}
	}

	return b.String()
}

func writeRaw(t *testing.T, root, body string) {
	t.Helper()
	dir := filepath.Join(root, "data", "raw")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "maternal.csv"), []byte(body), 0o600))
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()

	return out.String(), err
}

func TestRootCommands(t *testing.T) {
	t.Parallel()

	cmd := newRootCmd()
	var names []string
	for _, c := range cmd.Commands() {
		names = append(names, c.Name())
	}
	for _, want := range []string{"download", "validate", "split", "eda", "fit", "evaluate", "run", "runs"} {
		assert.Contains(t, names, want)
	}
	for _, flag := range []string{"config", "log-level", "runs-db"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(flag), flag)
	}

	run, _, err := cmd.Find([]string{"run"})
	require.NoError(t, err)
	assert.NotNil(t, run.Flags().Lookup("keep-duplicates"))
	assert.Contains(t, run.Long, "drop_duplicates")
	assert.Contains(t, run.Long, "1014")
}

func TestRun_EndToEnd(t *testing.T) {
	t.Parallel()

	root, cfg := workspace(t, "")
	writeRaw(t, root, rawCSV(30, 1))

	out, err := execute(t, "run", "--skip-download", "--config", cfg)
	require.NoError(t, err, out)
	assert.Contains(t, out, "evaluate: accuracy")

	for _, f := range []string{
		"data/processed/validated_data.csv",
		"data/processed/maternal_health_risk_train.csv",
		"data/processed/maternal_health_risk_test.csv",
		"data/processed/scaled_maternal_health_risk_train.csv",
		"data/processed/scaled_maternal_health_risk_test.csv",
		"results/logs/validation.log",
		"results/logs/validation_report.json",
		"results/models/maternal_risk_preprocessor.gob",
		"results/models/maternal_risk_classifier.gob",
		"results/models/maternal_risk_classifier.yaml",
		"results/tables/cv_results.csv",
		"results/tables/test_scores.csv",
		"results/tables/confusion_matrix.csv",
		"results/tables/auc_scores.csv",
		"results/figures/svc_hyperparameter_tuning.png",
		"results/figures/correlation_heatmap.png",
		"results/figures/feature_densities_by_risklevel.png",
		"results/figures/confusion_matrix.png",
		"results/figures/roc_curves.png",
		"results/report.md",
	} {
		assert.FileExists(t, filepath.Join(root, f))
	}

	pl, err := pipeline.Load(filepath.Join(root, "results/models/maternal_risk_classifier.gob"))
	require.NoError(t, err)
	assert.Equal(t, []string{"Age", "SystolicBP", "BS", "BodyTemp", "HeartRate"}, pl.Features)
	require.NotNil(t, pl.Search)
	assert.Equal(t, 3, pl.Search.Iterations)

	doc, err := os.ReadFile(filepath.Join(root, "results/report.md"))
	require.NoError(t, err)
	assert.Contains(t, string(doc), "figures/svc_hyperparameter_tuning.png")

	out, err = execute(t, "runs", "--config", cfg)
	require.NoError(t, err, out)
	for _, stage := range []string{"validate", "split", "eda", "fit", "evaluate"} {
		assert.Contains(t, out, stage)
	}
	assert.NotContains(t, out, "download")
	assert.NotContains(t, out, string(runlog.StatusFailed))

	s, err := runlog.NewStore(filepath.Join(root, "results/runs.db"))
	require.NoError(t, err)
	fitRun, err := s.LatestSucceeded("fit")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	out, err = execute(t, "runs", "--config", cfg, "--id", fitRun.ID)
	require.NoError(t, err, out)
	assert.Contains(t, out, "stage:    fit")
	assert.Contains(t, out, "iterations=3")
	assert.Contains(t, out, "support_vectors=")

	out, err = execute(t, "runs", "--config", cfg, "--stage", "fit", "--latest")
	require.NoError(t, err, out)
	assert.Contains(t, out, "run:      "+fitRun.ID)

	_, err = execute(t, "runs", "--config", cfg, "--latest")
	require.ErrorContains(t, err, "--latest needs --stage")
	_, err = execute(t, "runs", "--config", cfg, "--id", "no-such-run")
	require.ErrorIs(t, err, runlog.ErrNotFound)
}

func TestRun_KeepDuplicates(t *testing.T) {
	t.Parallel()

	root, cfg := workspace(t, "")
	body := rawCSV(20, 9)
	lines := strings.Split(strings.TrimSpace(body), "\n")
	writeRaw(t, root, body+strings.Join(lines[1:6], "\n")+"\n")
	n := len(lines) - 1 + 5

	out, err := execute(t, "run", "--skip-download", "--skip-eda", "--keep-duplicates", "--config", cfg)
	require.NoError(t, err, out)
	assert.Contains(t, out, fmt.Sprintf("validate: %d of %d rows kept", n, n))

	b, err := os.ReadFile(filepath.Join(root, "results/logs/validation_report.json"))
	require.NoError(t, err)
	var rep validate.Report
	require.NoError(t, json.Unmarshal(b, &rep))
	assert.GreaterOrEqual(t, rep.DuplicatesFound, 5)
	assert.Zero(t, rep.DuplicatesDropped)
}

func TestSplit_Deterministic(t *testing.T) {
	t.Parallel()

	root, cfg := workspace(t, "")
	writeRaw(t, root, rawCSV(20, 2))
	_, err := execute(t, "validate", "--config", cfg)
	require.NoError(t, err)

	train := filepath.Join(root, "data/processed/maternal_health_risk_train.csv")
	out, err := execute(t, "split", "--config", cfg, "--seed", "9", "--test-size", "0.25")
	require.NoError(t, err)
	assert.Contains(t, out, "15 test rows")
	first, err := os.ReadFile(train)
	require.NoError(t, err)

	_, err = execute(t, "split", "--config", cfg, "--seed", "9", "--test-size", "0.25")
	require.NoError(t, err)
	second, err := os.ReadFile(train)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestValidate_Failure(t *testing.T) {
	t.Parallel()

	root, cfg := workspace(t, "")
	body := strings.Replace(rawCSV(10, 3), "\n2", "\n-2", 1)
	writeRaw(t, root, body)

	_, err := execute(t, "validate", "--config", cfg)
	var verr *validate.Error
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Columns(), "Age")
	assert.NoFileExists(t, filepath.Join(root, "data/processed/validated_data.csv"))

	b, err := os.ReadFile(filepath.Join(root, "results/logs/validation_report.json"))
	require.NoError(t, err)
	var rep validate.Report
	require.NoError(t, json.Unmarshal(b, &rep))
	assert.False(t, rep.Passed)
	assert.NotEmpty(t, rep.Failures)

	s, err := runlog.NewStore(filepath.Join(root, "results/runs.db"))
	require.NoError(t, err)
	defer s.Close()
	runs, err := s.List("validate", 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, runlog.StatusFailed, runs[0].Status)
}

func TestFit_WithoutSearch(t *testing.T) {
	t.Parallel()

	root, cfg := workspace(t, "")
	writeRaw(t, root, rawCSV(20, 4))
	for _, stage := range []string{"validate", "split"} {
		_, err := execute(t, stage, "--config", cfg)
		require.NoError(t, err)
	}

	out, err := execute(t, "fit", "--config", cfg, "--search=false", "--features", "SystolicBP,BS", "--runs-db", "")
	require.NoError(t, err, out)
	assert.Contains(t, out, "support vectors")
	assert.NoFileExists(t, filepath.Join(root, "results/tables/cv_results.csv"))

	pl, err := pipeline.Load(filepath.Join(root, "results/models/maternal_risk_classifier.gob"))
	require.NoError(t, err)
	assert.Nil(t, pl.Search)
	assert.Equal(t, []string{"SystolicBP", "BS"}, pl.Scaler.Features)

	_, err = execute(t, "runs", "--config", cfg, "--runs-db", "")
	require.ErrorContains(t, err, "disabled")
}

func TestDownload(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	f, err := w.Create("maternal.csv")
	require.NoError(t, err)
	_, err = f.Write([]byte(rawCSV(2, 5)))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write(buf.Bytes())
	}))
	t.Cleanup(srv.Close)

	root, cfg := workspace(t, "")
	out, err := execute(t, "download", "--config", cfg, "--url", srv.URL+"/maternal.zip")
	require.NoError(t, err, out)
	assert.FileExists(t, filepath.Join(root, "data/raw/maternal.csv"))
	assert.Contains(t, out, "extracted")
}

func TestFormatting(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "accuracy=0.7705 test_rows=305", formatMetrics(map[string]float64{"test_rows": 305, "accuracy": 0.770492}))
	assert.Equal(t, "  a\n  b", examples("\n\t\ta\n\t\tb\n"))
	assert.Equal(t, "first\nsecond", longDesc("\n\t\tfirst\n\t\tsecond"))
}
