package storage

import (
	"fmt"
	"path"
	"regexp"
	"strings"
)

var pathComponentPattern = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9._-]{0,127}$`)

// DatasetKey returns the object key a named dataset is stored under, e.g.
// datasets/sales/sales.parquet.
func DatasetKey(name, format string) (string, error) {
	if err := validatePathComponent(name, "dataset name"); err != nil {
		return "", err
	}
	format = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), "."))
	if err := validatePathComponent(format, "dataset format"); err != nil {
		return "", err
	}
	return path.Join("datasets", name, name+"."+format), nil
}

func validatePathComponent(value, field string) error {
	if !pathComponentPattern.MatchString(value) {
		return fmt.Errorf("invalid %s: %q", field, value)
	}
	return nil
}
