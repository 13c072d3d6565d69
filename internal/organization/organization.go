package organization

import (
	"encoding/json"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
)

// Organization is one scan-server organizational unit. DisplayName doubles as
// the ownership marker matched against project descriptions.
type Organization struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// Load reads an organization list file. Records missing id or displayName are
// skipped with a warning; an empty resulting set is an error.
func Load(path string) ([]Organization, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading organization file: %w", err)
	}

	var records []Organization
	if err := json.Unmarshal(b, &records); err != nil {
		return nil, fmt.Errorf("parsing organization file %s: %w", path, err)
	}

	valid := make([]Organization, 0, len(records))
	for i, org := range records {
		if org.ID == "" || org.DisplayName == "" {
			log.Warnf("skipping organization entry %d in %s: missing id or displayName", i, path)
			continue
		}
		valid = append(valid, org)
	}

	if len(valid) == 0 {
		return nil, fmt.Errorf("no valid organizations found in %s", path)
	}
	return valid, nil
}
