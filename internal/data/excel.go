// Package data reads data-driven test rows from spreadsheets.
package data

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

// DateLayout is how date cells are rendered.
const DateLayout = "2006-01-02"

// ReadSheet returns every data row of sheet in the workbook at path. The first
// row is a header and is skipped, as are rows whose cells are all blank. Rows
// are padded to the header's width. Cell values are normalized to strings.
func ReadSheet(path, sheet string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook %s: %w", path, err)
	}
	defer f.Close()

	idx, err := f.GetSheetIndex(sheet)
	if err != nil {
		return nil, fmt.Errorf("invalid sheet name %q: %w", sheet, err)
	}
	if idx == -1 {
		return nil, fmt.Errorf("sheet not found: %s", sheet)
	}

	grid, err := f.GetRows(sheet, excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read workbook %s sheet %s: %w", path, sheet, err)
	}

	r := &reader{f: f, sheet: sheet, date1904: date1904(f)}
	var rows [][]string
	for i := 1; i < len(grid); i++ {
		values := make([]string, max(len(grid[0]), len(grid[i])))
		blank := true
		for j := range values {
			v, err := r.cell(j+1, i+1)
			if err != nil {
				return nil, fmt.Errorf("failed to read workbook %s sheet %s: %w", path, sheet, err)
			}
			values[j] = v
			blank = blank && v == ""
		}
		if !blank {
			rows = append(rows, values)
		}
	}
	return rows, nil
}

type reader struct {
	f        *excelize.File
	sheet    string
	date1904 bool
}

func date1904(f *excelize.File) bool {
	props, err := f.GetWorkbookProps()
	return err == nil && props.Date1904 != nil && *props.Date1904
}

// cell normalizes the cell at 1-based col and row.
func (r *reader) cell(col, row int) (string, error) {
	ref, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return "", err
	}
	raw, err := r.f.GetCellValue(r.sheet, ref, excelize.Options{RawCellValue: true})
	if err != nil {
		return "", err
	}
	typ, err := r.f.GetCellType(r.sheet, ref)
	if err != nil {
		return "", err
	}

	if formula, _ := r.f.GetCellFormula(r.sheet, ref); formula != "" {
		return r.formula(ref, typ, raw)
	}

	switch typ {
	case excelize.CellTypeBool:
		return strconv.FormatBool(raw == "1" || strings.EqualFold(raw, "true")), nil
	case excelize.CellTypeError:
		return "", nil
	case excelize.CellTypeDate:
		return isoDate(raw), nil
	case excelize.CellTypeSharedString, excelize.CellTypeInlineString, excelize.CellTypeFormula:
		return strings.TrimSpace(raw), nil
	default:
		return r.number(ref, raw)
	}
}

// formula returns the cached result of a formula cell, evaluating it when the
// workbook carries none.
func (r *reader) formula(ref string, typ excelize.CellType, cached string) (string, error) {
	if cached == "" {
		v, err := r.f.CalcCellValue(r.sheet, ref, excelize.Options{RawCellValue: true})
		if err != nil {
			// Unevaluable formulas read as blank, like error cells.
			return "", nil
		}
		cached = v
	}
	switch typ {
	case excelize.CellTypeError:
		return "", nil
	case excelize.CellTypeBool:
		return strconv.FormatBool(cached == "1" || strings.EqualFold(cached, "true")), nil
	}
	if f, err := strconv.ParseFloat(cached, 64); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	}
	return strings.TrimSpace(cached), nil
}

// number renders a numeric cell as its shortest literal, or as a date when the
// cell carries a date format.
func (r *reader) number(ref, raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return raw, nil
	}
	if r.isDateFormatted(ref) {
		t, err := excelize.ExcelDateToTime(v, r.date1904)
		if err == nil {
			return t.Format(DateLayout), nil
		}
	}
	return strconv.FormatFloat(v, 'f', -1, 64), nil
}

func (r *reader) isDateFormatted(ref string) bool {
	styleID, err := r.f.GetCellStyle(r.sheet, ref)
	if err != nil || styleID == 0 {
		return false
	}
	style, err := r.f.GetStyle(styleID)
	if err != nil || style == nil {
		return false
	}
	if style.CustomNumFmt != nil {
		return isDateFormatCode(*style.CustomNumFmt)
	}
	return isBuiltInDateFormat(style.NumFmt)
}

// isBuiltInDateFormat reports whether id is one of the built-in date or time formats.
func isBuiltInDateFormat(id int) bool {
	switch {
	case id >= 14 && id <= 22, id >= 27 && id <= 36, id >= 45 && id <= 47, id >= 50 && id <= 58:
		return true
	}
	return false
}

// isDateFormatCode reports whether a custom format code renders a date. Quoted
// literals, escaped characters and bracketed sections are ignored.
func isDateFormatCode(code string) bool {
	var inQuote, inBracket, escaped bool
	for _, c := range strings.ToLower(code) {
		switch {
		case escaped:
			escaped = false
		case c == '\\':
			escaped = true
		case c == '"':
			inQuote = !inQuote
		case inQuote:
		case c == '[':
			inBracket = true
		case c == ']':
			inBracket = false
		case inBracket:
		case c == 'y', c == 'd', c == 'm', c == 'h', c == 's':
			return true
		}
	}
	return false
}

func isoDate(raw string) string {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", DateLayout} {
		if t, err := time.Parse(layout, strings.TrimSpace(raw)); err == nil {
			return t.Format(DateLayout)
		}
	}
	return strings.TrimSpace(raw)
}
