package config

import (
	"fmt"
	"maps"
	"os"

	"github.com/couchcryptid/weather-station-etl/internal/domain"
	"gopkg.in/yaml.v3"
)

// sourceTablesFile is the on-disk shape of SOURCE_TABLES_FILE.
//
//	replace_defaults: false
//	sources:
//	  wu_ichtegem:
//	    source: weather_underground
//	    station_id: IICHTE19
//	    ...
type sourceTablesFile struct {
	ReplaceDefaults bool                          `yaml:"replace_defaults"`
	Sources         map[string]domain.SourceTable `yaml:"sources"`
}

// LoadSourceTables returns the built-in source tables, overlaid with the
// tables in path when path is set. A tag in the file replaces the built-in
// table of the same tag. The result is validated.
func LoadSourceTables(path string) (domain.SourceTables, error) {
	tables := domain.DefaultSourceTables()
	if path == "" {
		return tables, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read source tables: %w", err)
	}
	return parseSourceTables(data, tables)
}

func parseSourceTables(data []byte, defaults domain.SourceTables) (domain.SourceTables, error) {
	var file sourceTablesFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse source tables: %w", err)
	}

	tables := domain.SourceTables{}
	if !file.ReplaceDefaults {
		maps.Copy(tables, defaults)
	}
	maps.Copy(tables, file.Sources)

	if err := tables.Validate(); err != nil {
		return nil, fmt.Errorf("invalid source tables: %w", err)
	}
	return tables, nil
}
