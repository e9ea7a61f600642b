package importer

import (
	"sort"
	"strings"
)

// SuggestMapping auto-maps headers against an alias table. Matching is
// case-insensitive and whitespace-normalized. Each target field is claimed
// by at most one column (first match in header order wins); everything else
// is suggested as custom.
func SuggestMapping(headers []string, aliases map[string][]string) FieldMapping {
	if aliases == nil {
		aliases = DefaultAliases
	}

	// Deterministic field order regardless of map iteration.
	fields := make([]string, 0, len(aliases))
	for f := range aliases {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	mapping := make(FieldMapping, len(headers))
	claimed := make(map[string]bool)

	for _, header := range headers {
		normalized := normalizeHeader(header)
		target := CustomTarget
		for _, field := range fields {
			if claimed[field] {
				continue
			}
			for _, alias := range aliases[field] {
				if normalized == normalizeHeader(alias) {
					target = field
					claimed[field] = true
					break
				}
			}
			if target != CustomTarget {
				break
			}
		}
		mapping[header] = target
	}

	return mapping
}

// ApplyMapping transforms raw rows into typed rows. It verifies up front,
// before any row is transformed, that every required target resolves to
// exactly one source column; otherwise the whole operation fails with
// MissingRequiredFieldError.
//
// Columns mapped to CustomTarget (or absent from the mapping) are carried
// into CustomData under their original header text, verbatim.
func ApplyMapping(parsed *ParseResult, mapping FieldMapping) ([]MappedRow, error) {
	// column index per target field; -1 means unmapped
	targetCol := map[string]int{
		FieldName:       -1,
		FieldEmail:      -1,
		FieldTicketType: -1,
		FieldPhone:      -1,
		FieldCompany:    -1,
	}
	ambiguous := make(map[string]bool)

	for i, header := range parsed.Headers {
		target, ok := mapping[header]
		if !ok || target == CustomTarget {
			continue
		}
		if _, known := targetCol[target]; !known {
			continue
		}
		if targetCol[target] >= 0 {
			ambiguous[target] = true
			continue
		}
		targetCol[target] = i
	}

	for _, field := range RequiredFields {
		if targetCol[field] < 0 || ambiguous[field] {
			return nil, &MissingRequiredFieldError{Field: field}
		}
	}

	mappedCols := make(map[int]bool)
	for _, idx := range targetCol {
		if idx >= 0 {
			mappedCols[idx] = true
		}
	}

	rows := make([]MappedRow, 0, len(parsed.Rows))
	for _, raw := range parsed.Rows {
		row := MappedRow{
			Number:        raw.Number,
			Name:          raw.Cells[targetCol[FieldName]],
			Email:         raw.Cells[targetCol[FieldEmail]],
			TicketTypeRef: raw.Cells[targetCol[FieldTicketType]],
		}
		if idx := targetCol[FieldPhone]; idx >= 0 {
			row.Phone = raw.Cells[idx]
		}
		if idx := targetCol[FieldCompany]; idx >= 0 {
			row.Company = raw.Cells[idx]
		}
		for i, header := range parsed.Headers {
			if mappedCols[i] {
				continue
			}
			row.Custom.Set(header, raw.Cells[i])
		}
		rows = append(rows, row)
	}

	return rows, nil
}

// normalizeHeader lowercases, trims and collapses separators so that
// "First Name", "first-name" and "FIRST_NAME" compare equal.
func normalizeHeader(header string) string {
	normalized := strings.ToLower(strings.TrimSpace(header))
	normalized = strings.ReplaceAll(normalized, " ", "_")
	normalized = strings.ReplaceAll(normalized, "-", "_")
	return normalized
}
