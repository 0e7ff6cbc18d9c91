package results

import (
	"fmt"
	"math"
	"path/filepath"
	"sort"

	"github.com/montanaflynn/stats"

	"github.com/cognicore/harmonica/pkg/harmonica/internalerr"
)

// RadiusStats summarises per-sentence errors at one radius.
type RadiusStats struct {
	Radius    int
	Sentences int
	Samples   int
	Mean      float64
	Median    float64
	P95       float64
}

// Summarize reads every manifest in dir (one per shard) and aggregates the
// per-sentence mean absolute errors by radius.
func Summarize(dir string) ([]RadiusStats, error) {
	manifests, err := filepath.Glob(filepath.Join(dir, "manifest*.yaml"))
	if err != nil {
		return nil, err
	}
	if len(manifests) == 0 {
		return nil, fmt.Errorf("no manifest in %s: %w", dir, internalerr.ErrNotFound)
	}
	sort.Strings(manifests)

	errs := make(map[int][]float64)
	samples := make(map[int]int)
	for _, path := range manifests {
		m, err := ReadManifest(path)
		if err != nil {
			return nil, err
		}
		for _, f := range m.Files {
			pred, err := ReadSeries(filepath.Join(dir, f.Lasso))
			if err != nil {
				return nil, err
			}
			truth, err := ReadSeries(filepath.Join(dir, f.Model))
			if err != nil {
				return nil, err
			}
			if len(pred) != len(truth) {
				return nil, fmt.Errorf("radius %d: %d surrogate rows, %d model rows: %w", f.Radius, len(pred), len(truth), internalerr.ErrInvalidInput)
			}
			for i := range pred {
				if len(pred[i]) != len(truth[i]) {
					return nil, fmt.Errorf("radius %d sentence %d: length mismatch: %w", f.Radius, i, internalerr.ErrInvalidInput)
				}
				var sum float64
				for j := range pred[i] {
					sum += math.Abs(pred[i][j] - truth[i][j])
				}
				samples[f.Radius] += len(pred[i])
				if len(pred[i]) > 0 {
					errs[f.Radius] = append(errs[f.Radius], sum/float64(len(pred[i])))
				}
			}
		}
	}

	radii := make([]int, 0, len(errs))
	for r := range errs {
		radii = append(radii, r)
	}
	sort.Ints(radii)

	out := make([]RadiusStats, 0, len(radii))
	for _, r := range radii {
		data := stats.Float64Data(errs[r])
		mean, _ := data.Mean()
		median, _ := data.Median()
		p95, _ := data.Percentile(95)
		out = append(out, RadiusStats{
			Radius:    r,
			Sentences: len(data),
			Samples:   samples[r],
			Mean:      mean,
			Median:    median,
			P95:       p95,
		})
	}
	return out, nil
}
