package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
)

// MySQL json columns round-trip through these two helpers. GORM hands us
// []byte on read and expects a driver.Value on write.

func jsonColumnValue(v any) (driver.Value, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func jsonColumnScan(src any, dest any) error {
	if src == nil {
		return nil
	}
	switch data := src.(type) {
	case []byte:
		if len(data) == 0 {
			return nil
		}
		return json.Unmarshal(data, dest)
	case string:
		if data == "" {
			return nil
		}
		return json.Unmarshal([]byte(data), dest)
	default:
		return fmt.Errorf("unsupported json column source type %T", src)
	}
}

// JSONMap is a free-form json column (item metadata, audit state snapshots).
type JSONMap map[string]any

func (m JSONMap) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return jsonColumnValue(m)
}

func (m *JSONMap) Scan(src any) error {
	return jsonColumnScan(src, m)
}
