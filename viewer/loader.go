package viewer

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/hazyhaar/a11yview/results"
)

// LoadResults reads a scan-results file: a JSON array of element
// results as emitted by the scanner. Instances without a target cannot
// be drawn and are dropped here rather than at draw time.
func LoadResults(path string) ([]*results.Instance, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var instances []*results.Instance
	if err := json.Unmarshal(data, &instances); err != nil {
		return nil, fmt.Errorf("viewer: parse results %s: %w", path, err)
	}

	kept := instances[:0]
	for _, inst := range instances {
		if inst == nil || inst.Target == "" {
			continue
		}
		kept = append(kept, inst)
	}
	return kept, nil
}
