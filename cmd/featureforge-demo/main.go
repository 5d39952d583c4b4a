// Command featureforge-demo is a minimal experiment binary. Its
// "experiment" just sums the numeric values in the configuration, but it
// exercises the full claim protocol: run several copies of it against a
// shared store and each configuration is solved exactly once.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/machinalis/featureforge"
	"github.com/machinalis/featureforge/cli"
)

func sumExperiment(_ context.Context, cfg featureforge.Config) (featureforge.Results, error) {
	var sum float64
	for key, value := range cfg {
		switch v := value.(type) {
		case int:
			sum += float64(v)
		case float64:
			sum += v
		case json.Number:
			f, err := v.Float64()
			if err != nil {
				return nil, fmt.Errorf("field %q: %w", key, err)
			}
			sum += f
		}
	}
	return featureforge.Results{"sum": sum}, nil
}

func main() {
	os.Exit(cli.Main("featureforge-demo", sumExperiment))
}
