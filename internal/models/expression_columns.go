package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/chanarr/chanarr/internal/expression"
)

// ConditionList stores a structured condition list as a JSON column.
type ConditionList []expression.ConditionInput

// Value implements driver.Valuer.
func (l ConditionList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("marshaling conditions: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (l *ConditionList) Scan(value any) error {
	return scanJSONColumn(value, l, "conditions")
}

// GormDataType returns the GORM data type for ConditionList.
func (ConditionList) GormDataType() string {
	return "text"
}

// ActionList stores a structured action list as a JSON column.
type ActionList []expression.ActionInput

// Value implements driver.Valuer.
func (l ActionList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(l)
	if err != nil {
		return nil, fmt.Errorf("marshaling actions: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner.
func (l *ActionList) Scan(value any) error {
	return scanJSONColumn(value, l, "actions")
}

// GormDataType returns the GORM data type for ActionList.
func (ActionList) GormDataType() string {
	return "text"
}

func scanJSONColumn(value, dest any, what string) error {
	if value == nil {
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		return fmt.Errorf("unsupported type for %s: %T", what, value)
	}

	if len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("scanning %s: %w", what, err)
	}
	return nil
}
