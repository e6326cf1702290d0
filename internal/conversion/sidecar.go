package conversion

import (
	"encoding/json"
	"os"

	"scanflow/internal/services"
)

// Sidecar is the arbitrary key/value metadata stored next to each converted
// output file.
type Sidecar map[string]any

// ReadSidecar loads a JSON sidecar. Missing or malformed sidecars are fatal
// for the run.
func ReadSidecar(path string) (Sidecar, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, services.Wrap(
			services.ErrConfig, "conversion", "read sidecar",
			"unable to read sidecar "+path, err)
	}
	var sidecar Sidecar
	if err := json.Unmarshal(raw, &sidecar); err != nil {
		return nil, services.Wrap(
			services.ErrConfig, "conversion", "read sidecar",
			"malformed sidecar "+path, err)
	}
	return sidecar, nil
}

// Description returns the series description recorded in the sidecar, empty
// when absent or not a string.
func (s Sidecar) Description() string {
	if value, ok := s["SeriesDescription"].(string); ok {
		return value
	}
	return ""
}
