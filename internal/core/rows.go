package core

// rows.go converts extract rows into typed, deduplicated staging batches.
//
// Conversion is strict: one bad cell fails the whole extract, so a refresh
// either merges every row or none. Duplicate natural keys keep the position
// of their first occurrence and the values of their last.

import (
	"fmt"
	"strings"
)

// BuildBatch converts an extract into a Batch for def.
func BuildBatch(def TableDefinition, ex Extract) (*Batch, error) {
	if len(ex.Header) == 0 && len(ex.Rows) == 0 {
		return &Batch{}, nil
	}

	idx, err := ValidateHeaders(ex.Header, def.FieldSpecs)
	if err != nil {
		return nil, err
	}

	type column struct {
		spec FieldSpec
		pos  int
	}
	var cols []column
	batch := &Batch{}
	for _, spec := range def.FieldSpecs {
		pos, ok := idx[strings.ToLower(spec.Name)]
		if !ok {
			continue
		}
		cols = append(cols, column{spec: spec, pos: pos})
		batch.Columns = append(batch.Columns, spec.Column())
	}

	keyPos, err := keyPositions(batch.Columns, def.Info.UniqueKey)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]int)
	for i, row := range ex.Rows {
		if isEmptyRow(row) {
			continue
		}
		batch.Processed++

		values := make([]any, len(cols))
		for j, c := range cols {
			raw := ""
			if c.pos < len(row) {
				raw = CleanCell(row[c.pos])
			}
			v, err := convertCell(c.spec, raw)
			if err != nil {
				return nil, fmt.Errorf("row %d: %w", i+1, err)
			}
			values[j] = v
		}

		keyVals := make([]any, len(keyPos))
		for j, p := range keyPos {
			keyVals[j] = values[p]
		}
		key := KeyString(keyVals)
		if at, dup := seen[key]; dup {
			batch.Rows[at] = values
			continue
		}
		seen[key] = len(batch.Rows)
		batch.Rows = append(batch.Rows, values)
	}

	return batch, nil
}

func keyPositions(columns, key []string) ([]int, error) {
	positions := make([]int, len(key))
	for i, k := range key {
		found := false
		for j, c := range columns {
			if c == k {
				positions[i] = j
				found = true
				break
			}
		}
		if !found {
			return nil, fmt.Errorf("missing required column %q", k)
		}
	}
	return positions, nil
}

// convertCell validates and converts one cleaned cell.
func convertCell(spec FieldSpec, raw string) (any, error) {
	if raw == "" {
		if spec.Required && !spec.AllowEmpty {
			return nil, fmt.Errorf("empty required field %q", spec.Name)
		}
		return nullOf(spec.Type), nil
	}

	if spec.Normalizer != nil {
		raw = spec.Normalizer(raw)
	}

	switch spec.Type {
	case FieldEnum:
		for _, ev := range spec.EnumValues {
			if strings.EqualFold(ev, raw) {
				return ToPgText(ev), nil
			}
		}
		return nil, fmt.Errorf("invalid %s for %q: %q (want one of %s)",
			fieldTypeName(spec.Type), spec.Name, raw, strings.Join(spec.EnumValues, ", "))
	case FieldDate:
		if d := ToPgDate(raw); d.Valid {
			return d, nil
		}
	case FieldBool:
		if b := ToPgBool(raw); b.Valid {
			return b, nil
		}
	case FieldInt:
		if n := ToPgInt8(raw); n.Valid {
			return n, nil
		}
	default:
		return ToPgText(raw), nil
	}
	return nil, fmt.Errorf("invalid %s for %q: %q", fieldTypeName(spec.Type), spec.Name, raw)
}

func nullOf(ft FieldType) any {
	switch ft {
	case FieldDate:
		return ToPgDate("")
	case FieldBool:
		return ToPgBool("")
	case FieldInt:
		return ToPgInt8("")
	default:
		return ToPgText("")
	}
}

// ValidateHeaders checks that all required columns exist in the header.
// Returns the header index, or an error listing missing columns.
func ValidateHeaders(headers []string, specs []FieldSpec) (HeaderIndex, error) {
	idx := MakeHeaderIndex(headers)
	var missing []string

	for _, spec := range specs {
		if spec.Required {
			if _, ok := idx[strings.ToLower(spec.Name)]; !ok {
				missing = append(missing, spec.Name)
			}
		}
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required column(s): %s", strings.Join(missing, ", "))
	}

	return idx, nil
}

func isEmptyRow(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// fieldTypeName returns a human-readable name for a field type.
func fieldTypeName(ft FieldType) string {
	switch ft {
	case FieldText:
		return "text"
	case FieldEnum:
		return "value"
	case FieldDate:
		return "date"
	case FieldBool:
		return "flag"
	case FieldInt:
		return "integer"
	default:
		return "value"
	}
}
