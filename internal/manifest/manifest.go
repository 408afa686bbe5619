package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/horizon-research/AriaDatasetProcessing/internal/utils"
)

// Load reads a manifest document into its generic decoded form. The document
// has no fixed schema; file entries are located later by traversal. Both JSON
// and YAML manifests are accepted, chosen by file extension.
func Load(path string) (any, error) {
	log := utils.GetLogger("manifest")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading manifest file: %v", err)
	}
	var doc any
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("error parsing YAML manifest: %v", err)
		}
	default:
		if err := json.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("error parsing JSON manifest: %v", err)
		}
	}
	log.Debug().Str("path", path).Int("bytes", len(data)).Msg("Manifest loaded")
	return doc, nil
}
