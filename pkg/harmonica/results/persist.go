package results

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cognicore/harmonica/pkg/harmonica/config"
)

// ManifestName is the manifest file written next to the series.
const ManifestName = "manifest.yaml"

// Manifest describes the artifacts of one run.
type Manifest struct {
	RunID     string        `yaml:"run_id"`
	CreatedAt time.Time     `yaml:"created_at"`
	Sentences int           `yaml:"sentences"`
	Skipped   int           `yaml:"skipped"`
	Config    config.Config `yaml:"config"`
	Files     []FilePair    `yaml:"files"`
}

// FilePair names the two artifacts of one radius.
type FilePair struct {
	Radius int    `yaml:"radius"`
	Lasso  string `yaml:"lasso"`
	Model  string `yaml:"model"`
}

// Persist writes every series of acc under root/naming.Dir() together with a
// manifest, and returns the directory. The manifest's Files and Sentences
// are filled in here and the model API key is never written.
func Persist(root string, naming Naming, acc *Accumulator, m Manifest) (string, error) {
	dir := filepath.Join(root, naming.Dir())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	m.Sentences = acc.Len()
	m.Config.Model.APIKey = ""
	m.Files = m.Files[:0]
	for _, r := range acc.Radii() {
		s, _ := acc.Series(r)
		pair := FilePair{
			Radius: r,
			Lasso:  naming.File(KindLasso, r),
			Model:  naming.File(KindModel, r),
		}
		if err := writeSeries(filepath.Join(dir, pair.Lasso), s.Predictions); err != nil {
			return "", err
		}
		if err := writeSeries(filepath.Join(dir, pair.Model), s.Truth); err != nil {
			return "", err
		}
		m.Files = append(m.Files, pair)
	}

	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("encode manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, manifestFile(naming)), data, 0o644); err != nil {
		return "", fmt.Errorf("write manifest: %w", err)
	}
	return dir, nil
}

// manifestFile keeps shard manifests apart in a shared directory.
func manifestFile(n Naming) string {
	if n.SplitStart != 0 || n.SplitEnd != 0 {
		return fmt.Sprintf("manifest_%d_%d.yaml", n.SplitStart, n.SplitEnd)
	}
	return ManifestName
}

func writeSeries(path string, rows [][]float64) error {
	if rows == nil {
		rows = [][]float64{}
	}
	data, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ReadSeries loads an artifact written by Persist.
func ReadSeries(path string) ([][]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rows [][]float64
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return rows, nil
}

// ReadManifest loads a manifest file.
func ReadManifest(path string) (Manifest, error) {
	var m Manifest
	data, err := os.ReadFile(path)
	if err != nil {
		return m, err
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("parse %s: %w", path, err)
	}
	return m, nil
}
