package eventrouter

import (
	"encoding/json"
	"fmt"
	"os"
)

// LoadMappings reads a Mappings bundle from a JSON file, the Go counterpart
// to the original's bundled event-bridge rule tables that ship alongside the
// rule catalog. internal/app reads the file once at startup; it is not
// reloaded afterwards. An empty path returns an empty Mappings rather than an error, so a
// deployment with no CloudTrail/Maestro wiring configured still starts.
func LoadMappings(path string) (Mappings, error) {
	if path == "" {
		return Mappings{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Mappings{}, fmt.Errorf("eventrouter: read mappings file %s: %w", path, err)
	}
	var m Mappings
	if err := json.Unmarshal(data, &m); err != nil {
		return Mappings{}, fmt.Errorf("eventrouter: decode mappings file %s: %w", path, err)
	}
	return m, nil
}
