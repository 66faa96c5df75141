package models

import (
	"database/sql/driver"
	"strconv"

	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"
)

// JSONValue is raw JSON stored as JSONB on PostgreSQL and as TEXT on SQLite.
// SQLite gives JSON-like column types NUMERIC affinity, so scalars written there
// by older schemas come back as integers, floats or booleans; Scan accepts them.
type JSONValue datatypes.JSON

// GormDataType implements schema.GormDataTypeInterface.
func (JSONValue) GormDataType() string { return "json" }

// GormDBDataType picks the column type for the connected dialect.
func (JSONValue) GormDBDataType(db *gorm.DB, _ *schema.Field) string {
	if db.Dialector.Name() == "postgres" {
		return "JSONB"
	}
	return "TEXT"
}

// Value implements driver.Valuer.
func (j JSONValue) Value() (driver.Value, error) {
	return datatypes.JSON(j).Value()
}

// Scan implements sql.Scanner.
func (j *JSONValue) Scan(value any) error {
	switch v := value.(type) {
	case nil:
		*j = nil
		return nil
	case int64:
		*j = JSONValue(strconv.FormatInt(v, 10))
		return nil
	case float64:
		*j = JSONValue(strconv.FormatFloat(v, 'f', -1, 64))
		return nil
	case bool:
		*j = JSONValue(strconv.FormatBool(v))
		return nil
	}
	return (*datatypes.JSON)(j).Scan(value)
}

// MarshalJSON emits the stored JSON verbatim.
func (j JSONValue) MarshalJSON() ([]byte, error) {
	return datatypes.JSON(j).MarshalJSON()
}

// UnmarshalJSON stores data verbatim.
func (j *JSONValue) UnmarshalJSON(data []byte) error {
	return (*datatypes.JSON)(j).UnmarshalJSON(data)
}
