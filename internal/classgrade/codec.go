// ============================================================================
// internal/classgrade/codec.go
// Tabular import/export in csv and xlsx
// ============================================================================

package classgrade

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Dqvinh20/awp-go-be/internal/shared"
)

// ============================================================================
// File Types
// ============================================================================

// FileType is a supported spreadsheet format
type FileType string

const (
	FileTypeCSV  FileType = "csv"
	FileTypeXLSX FileType = "xlsx"
)

// ParseFileType validates a file_type query value. Empty defaults to csv.
func ParseFileType(s string) (FileType, error) {
	switch FileType(strings.ToLower(strings.TrimSpace(s))) {
	case "", FileTypeCSV:
		return FileTypeCSV, nil
	case FileTypeXLSX:
		return FileTypeXLSX, nil
	default:
		return "", ErrUnsupportedFileType
	}
}

// ContentType returns the MIME type for download responses
func (ft FileType) ContentType() string {
	if ft == FileTypeXLSX {
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	return "text/csv"
}

// ExportFile is an encoded sheet ready for download
type ExportFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// Header labels shared by exports and imports
const (
	headerStudentID = "Student ID"
	headerFullName  = "Full name"
	headerGrade     = "Grade"
	sheetName       = "Student List"

	maxStudentIDChars = 10
)

// formatDateExcel prefixes download filenames with the current date
func formatDateExcel() string {
	return time.Now().Format("2006_01_02")
}

// ============================================================================
// Sheet Model
// ============================================================================

// tableCell is one cell of an export sheet. Formula cells carry a spreadsheet
// formula instead of a literal value.
type tableCell struct {
	value   interface{}
	formula string
}

type gradeTable struct {
	rows [][]tableCell
}

func textCell(s string) tableCell { return tableCell{value: s} }
func numberCell(v float64) tableCell { return tableCell{value: v} }
func formulaCell(f string) tableCell { return tableCell{formula: f} }

func (t *gradeTable) addRow(cells ...tableCell) {
	t.rows = append(t.rows, cells)
}

func (t *gradeTable) encode(ft FileType) ([]byte, error) {
	if ft == FileTypeXLSX {
		return t.encodeXLSX()
	}
	return t.encodeCSV()
}

func (t *gradeTable) encodeCSV() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	for _, row := range t.rows {
		record := make([]string, len(row))
		for i, cell := range row {
			switch {
			case cell.formula != "":
				record[i] = "=" + cell.formula
			case cell.value == nil:
				record[i] = ""
			default:
				record[i] = fmt.Sprintf("%v", cell.value)
			}
		}
		if err := w.Write(record); err != nil {
			return nil, fmt.Errorf("failed to write csv row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, fmt.Errorf("failed to flush csv: %w", err)
	}
	return buf.Bytes(), nil
}

func (t *gradeTable) encodeXLSX() ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	for r, row := range t.rows {
		for c, cell := range row {
			axis, err := excelize.CoordinatesToCellName(c+1, r+1)
			if err != nil {
				return nil, fmt.Errorf("failed to compute cell name: %w", err)
			}
			if cell.formula != "" {
				if err := f.SetCellFormula(sheetName, axis, cell.formula); err != nil {
					return nil, fmt.Errorf("failed to set formula: %w", err)
				}
				continue
			}
			if cell.value == nil {
				continue
			}
			if err := f.SetCellValue(sheetName, axis, cell.value); err != nil {
				return nil, fmt.Errorf("failed to set cell value: %w", err)
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to encode xlsx: %w", err)
	}
	return buf.Bytes(), nil
}

// ============================================================================
// Exports
// ============================================================================

// buildGradeBoard lays out the full gradebook: a labeled header, one row per
// student with zero defaults for missing entries, and an Average footer whose
// formulas cover the data rows. Grade columns start at spreadsheet column C.
func buildGradeBoard(doc *shared.ClassGrade) *gradeTable {
	columns := sortedByOrdinal(doc.GradeColumns)
	table := &gradeTable{}

	header := []tableCell{textCell(headerStudentID), textCell(headerFullName)}
	for _, col := range columns {
		header = append(header, textCell(col.Name))
	}
	table.addRow(header...)

	for _, row := range doc.GradeRows {
		cells := []tableCell{textCell(row.StudentID), textCell(row.FullName)}
		for _, col := range columns {
			value, _ := row.GradeFor(col.ID)
			cells = append(cells, numberCell(value))
		}
		table.addRow(cells...)
	}

	if len(columns) > 0 {
		footer := []tableCell{textCell("Average"), textCell("")}
		lastDataRow := len(doc.GradeRows) + 1
		for i := range columns {
			letter, _ := excelize.ColumnNumberToName(3 + i)
			footer = append(footer, formulaCell(
				fmt.Sprintf("AVERAGE(%s2:%s%d)", letter, letter, lastDataRow),
			))
		}
		table.addRow(footer...)
	}

	return table
}

// ExportGradeBoard encodes the whole gradebook for download.
func (s *Service) ExportGradeBoard(ctx context.Context, classID primitive.ObjectID, className string, ft FileType) (*ExportFile, error) {
	doc, err := s.FindByClassID(ctx, classID)
	if err != nil {
		return nil, err
	}

	data, err := buildGradeBoard(doc).encode(ft)
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("%s_%s_grade_board.%s",
		formatDateExcel(), strings.ReplaceAll(className, " ", "_"), ft)
	return &ExportFile{Name: name, ContentType: ft.ContentType(), Data: data}, nil
}

// ExportStudentListTemplate encodes the all-columns import template: the full
// header plus current student identities, grade cells left blank.
func (s *Service) ExportStudentListTemplate(ctx context.Context, classID primitive.ObjectID, ft FileType) (*ExportFile, error) {
	doc, err := s.FindByClassID(ctx, classID)
	if err != nil {
		return nil, err
	}

	table := &gradeTable{}
	header := []tableCell{textCell(headerStudentID), textCell(headerFullName)}
	for _, col := range sortedByOrdinal(doc.GradeColumns) {
		header = append(header, textCell(col.Name))
	}
	table.addRow(header...)
	for _, row := range doc.GradeRows {
		table.addRow(textCell(row.StudentID), textCell(row.FullName))
	}

	data, err := table.encode(ft)
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("%s_import_grade_template.%s", formatDateExcel(), ft)
	return &ExportFile{Name: name, ContentType: ft.ContentType(), Data: data}, nil
}

// ExportOneColumnTemplate encodes the single-column import template with the
// column's current values prefilled.
func (s *Service) ExportOneColumnTemplate(ctx context.Context, classID, columnID primitive.ObjectID, ft FileType) (*ExportFile, error) {
	doc, err := s.FindByClassID(ctx, classID)
	if err != nil {
		return nil, err
	}
	if _, ok := doc.ColumnByID(columnID); !ok {
		return nil, ErrColumnNotFound
	}

	table := &gradeTable{}
	table.addRow(textCell(headerStudentID), textCell(headerGrade))
	for _, row := range doc.GradeRows {
		value, _ := row.GradeFor(columnID)
		table.addRow(textCell(row.StudentID), numberCell(value))
	}

	data, err := table.encode(ft)
	if err != nil {
		return nil, err
	}

	name := fmt.Sprintf("%s_import_one_column_template.%s", formatDateExcel(), ft)
	return &ExportFile{Name: name, ContentType: ft.ContentType(), Data: data}, nil
}

// ============================================================================
// Imports
// ============================================================================

// sheetRow keeps a parsed row together with its 1-based position in the
// original sheet, for error messages after blank rows are discarded.
type sheetRow struct {
	num   int
	cells []string
}

// parseGrid decodes an uploaded file into trimmed string cells, dropping rows
// whose cells are all empty.
func parseGrid(data []byte, ft FileType) ([]sheetRow, error) {
	var raw [][]string
	switch ft {
	case FileTypeCSV:
		r := csv.NewReader(bytes.NewReader(data))
		r.FieldsPerRecord = -1
		records, err := r.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("failed to parse csv: %w", err)
		}
		raw = records
	case FileTypeXLSX:
		f, err := excelize.OpenReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("failed to parse xlsx: %w", err)
		}
		defer f.Close()
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, ErrEmptyImport
		}
		rows, err := f.GetRows(sheets[0])
		if err != nil {
			return nil, fmt.Errorf("failed to read xlsx rows: %w", err)
		}
		raw = rows
	default:
		return nil, ErrUnsupportedFileType
	}

	out := make([]sheetRow, 0, len(raw))
	for i, record := range raw {
		cells := make([]string, len(record))
		blank := true
		for j, cell := range record {
			cells[j] = strings.TrimSpace(cell)
			if cells[j] != "" {
				blank = false
			}
		}
		if blank {
			continue
		}
		out = append(out, sheetRow{num: i + 1, cells: cells})
	}
	return out, nil
}

func cellAt(row sheetRow, idx int) string {
	if idx < len(row.cells) {
		return row.cells[idx]
	}
	return ""
}

// parseGradeCell enforces the integer 0..10 rule for one grade cell.
func parseGradeCell(raw string, rowNum int, column string) (float64, *CellError) {
	if raw == "" {
		return 0, &CellError{Rule: CellRuleRequired, Row: rowNum, Column: column}
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || value != math.Trunc(value) {
		return 0, &CellError{Rule: CellRuleInvalid, Row: rowNum, Column: column}
	}
	if value < shared.MinGradeValue || value > shared.MaxGradeValue {
		return 0, &CellError{Rule: CellRuleRange, Row: rowNum, Column: column}
	}
	return value, nil
}

// checkDuplicates lists every student id appearing more than once.
func checkDuplicates(ids []string) error {
	counts := make(map[string]int, len(ids))
	order := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if counts[id] == 1 {
			order = append(order, id)
		}
		counts[id]++
	}
	var dups []string
	for _, id := range order {
		if counts[id] > 1 {
			dups = append(dups, id)
		}
	}
	if len(dups) > 0 {
		sort.Strings(dups)
		return &DuplicateStudentError{IDs: dups}
	}
	return nil
}

// firstCellError picks the error to surface when a sheet has several bad
// cells, by rule precedence and then sheet order.
func firstCellError(errs []*CellError) *CellError {
	precedence := []string{CellRuleRange, CellRuleStudentID, CellRuleInvalid, CellRuleRequired}
	for _, rule := range precedence {
		for _, e := range errs {
			if e.Rule == rule {
				return e
			}
		}
	}
	return nil
}

// parseBoardSheet turns a parsed full-board sheet into row updates: header
// width check, header-name resolution, per-cell validation with duplicate
// student ids taking priority over cell errors.
func parseBoardSheet(grid []sheetRow, columns []shared.GradeColumn) ([]RowUpdate, error) {
	// 1. Header shape: two identity columns plus one cell per grade column
	header := grid[0]
	if len(header.cells)-2 != len(columns) {
		return nil, ErrColumnCountMismatch
	}

	// 2. Resolve header names to columns; unknown names fail as a set
	byName := make(map[string]shared.GradeColumn, len(columns))
	for _, col := range columns {
		byName[col.Name] = col
	}
	colNames := make([]string, 0, len(header.cells)-2)
	var unknown []string
	for _, name := range header.cells[2:] {
		if _, ok := byName[name]; !ok {
			unknown = append(unknown, name)
			continue
		}
		colNames = append(colNames, name)
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, &UnknownColumnError{Keys: unknown}
	}

	// The width check alone lets a duplicated header shadow another column;
	// every current column must appear exactly once
	seen := make(map[string]bool, len(colNames))
	for _, name := range colNames {
		seen[name] = true
	}
	if len(seen) != len(columns) {
		missingRow := header.num + 1
		if len(grid) > 1 {
			missingRow = grid[1].num
		}
		for _, col := range sortedByOrdinal(columns) {
			if !seen[col.Name] {
				return nil, &CellError{Rule: CellRuleRequired, Row: missingRow, Column: col.Name}
			}
		}
	}

	// 3. Validate every cell, collecting errors instead of failing fast
	var cellErrs []*CellError
	var studentIDs []string
	updates := make([]RowUpdate, 0, len(grid)-1)
	for _, row := range grid[1:] {
		studentID := cellAt(row, 0)
		fullName := cellAt(row, 1)
		// A re-uploaded grade board carries the Average footer; it is
		// presentation only, never data
		if studentID == "Average" && fullName == "" {
			continue
		}
		if studentID == "" {
			cellErrs = append(cellErrs, &CellError{Rule: CellRuleRequired, Row: row.num, Column: headerStudentID})
		}
		if fullName == "" {
			cellErrs = append(cellErrs, &CellError{Rule: CellRuleRequired, Row: row.num, Column: headerFullName})
		}
		studentIDs = append(studentIDs, studentID)

		grades := make(map[string]float64, len(colNames))
		for i, name := range colNames {
			value, cellErr := parseGradeCell(cellAt(row, 2+i), row.num, name)
			if cellErr != nil {
				cellErrs = append(cellErrs, cellErr)
				continue
			}
			grades[name] = value
		}
		updates = append(updates, RowUpdate{StudentID: studentID, FullName: fullName, Grades: grades})
	}

	// 4. Duplicates take priority over individual cell errors
	if err := checkDuplicates(studentIDs); err != nil {
		return nil, err
	}
	if cellErr := firstCellError(cellErrs); cellErr != nil {
		return nil, cellErr
	}
	return updates, nil
}

// ImportGradeTable applies a full grade sheet: header must carry exactly the
// current columns after Student ID and Full name, every cell must pass
// validation, and duplicate student ids abort the whole import. Nothing is
// written unless the entire sheet is valid.
func (s *Service) ImportGradeTable(ctx context.Context, classID primitive.ObjectID, data []byte, ft FileType) (*shared.ClassGrade, error) {
	doc, err := s.FindByClassID(ctx, classID)
	if err != nil {
		return nil, err
	}

	grid, err := parseGrid(data, ft)
	if err != nil {
		return nil, err
	}
	if len(grid) == 0 {
		return nil, ErrEmptyImport
	}

	updates, err := parseBoardSheet(grid, doc.GradeColumns)
	if err != nil {
		return nil, err
	}

	// Apply; validation already passed so a row failure is unexpected
	outcome, err := s.UpdateManyGrades(ctx, classID, updates)
	if err != nil {
		return nil, err
	}
	if !outcome.AllSucceeded() {
		return nil, fmt.Errorf("import applied %d/%d rows: %s",
			outcome.Succeeded, outcome.Total, outcome.Failures[0].Message)
	}

	return s.FindByClassID(ctx, classID)
}

// ImportOneColumn applies a Student ID / Grade sheet against a single column.
func (s *Service) ImportOneColumn(ctx context.Context, classID, columnID primitive.ObjectID, data []byte, ft FileType) (*shared.ClassGrade, error) {
	doc, err := s.FindByClassID(ctx, classID)
	if err != nil {
		return nil, err
	}
	column, ok := doc.ColumnByID(columnID)
	if !ok {
		return nil, ErrColumnNotFound
	}

	grid, err := parseGrid(data, ft)
	if err != nil {
		return nil, err
	}
	if len(grid) == 0 {
		return nil, ErrEmptyImport
	}

	var cellErrs []*CellError
	var studentIDs []string
	updates := make([]RowUpdate, 0, len(grid)-1)
	for _, row := range grid[1:] {
		studentID := cellAt(row, 0)
		switch {
		case studentID == "":
			cellErrs = append(cellErrs, &CellError{Rule: CellRuleRequired, Row: row.num, Column: headerStudentID})
		case len(studentID) > maxStudentIDChars:
			cellErrs = append(cellErrs, &CellError{Rule: CellRuleStudentID, Row: row.num, Column: headerStudentID})
		}
		studentIDs = append(studentIDs, studentID)

		value, cellErr := parseGradeCell(cellAt(row, 1), row.num, headerGrade)
		if cellErr != nil {
			cellErrs = append(cellErrs, cellErr)
			continue
		}
		updates = append(updates, RowUpdate{
			StudentID: studentID,
			Grades:    map[string]float64{column.Name: value},
		})
	}

	if err := checkDuplicates(studentIDs); err != nil {
		return nil, err
	}
	if cellErr := firstCellError(cellErrs); cellErr != nil {
		return nil, cellErr
	}
	if len(updates) == 0 {
		return nil, ErrEmptyImport
	}

	outcome, err := s.UpdateManyGrades(ctx, classID, updates)
	if err != nil {
		return nil, err
	}
	if !outcome.AllSucceeded() {
		return nil, fmt.Errorf("import applied %d/%d rows: %s",
			outcome.Succeeded, outcome.Total, outcome.Failures[0].Message)
	}

	return s.FindByClassID(ctx, classID)
}
