package results

import (
	"fmt"
	"strconv"

	"github.com/cognicore/harmonica/pkg/harmonica/config"
)

// Kind selects which quantity an artifact holds.
type Kind string

const (
	KindLasso Kind = "lasso" // surrogate predictions
	KindModel Kind = "model" // classifier scores
)

// Naming derives artifact paths from run parameters.
type Naming struct {
	SamplesMin      int
	Anchors         int
	ConsistencyLoss float64
	Seed            int64
	SplitStart      int
	SplitEnd        int
}

// NamingFor extracts the naming parameters of cfg.
func NamingFor(cfg config.Config) Naming {
	return Naming{
		SamplesMin:      cfg.SamplesMin,
		Anchors:         cfg.Anchors,
		ConsistencyLoss: cfg.ConsistencyLoss,
		Seed:            cfg.Seed,
		SplitStart:      cfg.SplitStart,
		SplitEnd:        cfg.SplitEnd,
	}
}

// Dir is the run's output directory name.
func (n Naming) Dir() string {
	return fmt.Sprintf("preciselasso_sample%d_anchor%d_consisloss%s",
		n.SamplesMin, n.Anchors, strconv.FormatFloat(n.ConsistencyLoss, 'f', -1, 64))
}

// File is the artifact name for one quantity at radius r. Sharded runs carry
// their index range so shards never collide.
func (n Naming) File(kind Kind, r int) string {
	name := fmt.Sprintf("final_%s_output_subspace%d_seed%d", kind, r, n.Seed)
	if n.SplitStart != 0 || n.SplitEnd != 0 {
		name += fmt.Sprintf("_%d_%d", n.SplitStart, n.SplitEnd)
	}
	return name + ".json"
}
