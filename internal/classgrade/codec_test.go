package classgrade

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/Dqvinh20/awp-go-be/internal/shared"
)

func testGradebook() *shared.ClassGrade {
	columns := testColumns()
	return &shared.ClassGrade{
		GradeColumns: columns,
		GradeRows: []shared.GradeRow{
			{
				ID:        primitive.NewObjectID(),
				StudentID: "20110001",
				FullName:  "An Nguyen",
				Grades: []shared.Grade{
					{Column: columns[0].ID, Value: 7},
					{Column: columns[1].ID, Value: 8.5},
				},
			},
			{
				ID:        primitive.NewObjectID(),
				StudentID: "20110002",
				FullName:  "Binh Tran",
				Grades:    []shared.Grade{{Column: columns[0].ID, Value: 6}},
			},
		},
	}
}

func TestParseFileType(t *testing.T) {
	t.Run("Defaults to csv", func(t *testing.T) {
		ft, err := ParseFileType("")
		if err != nil || ft != FileTypeCSV {
			t.Fatalf("Expected csv default, got %v %v", ft, err)
		}
	})

	t.Run("Accepts xlsx case-insensitively", func(t *testing.T) {
		ft, err := ParseFileType("XLSX")
		if err != nil || ft != FileTypeXLSX {
			t.Fatalf("Expected xlsx, got %v %v", ft, err)
		}
	})

	t.Run("Rejects anything else", func(t *testing.T) {
		if _, err := ParseFileType("pdf"); !errors.Is(err, ErrUnsupportedFileType) {
			t.Fatalf("Expected ErrUnsupportedFileType, got %v", err)
		}
	})
}

func TestBuildGradeBoard(t *testing.T) {
	doc := testGradebook()
	table := buildGradeBoard(doc)

	t.Run("Header carries identity labels then columns", func(t *testing.T) {
		header := table.rows[0]
		got := []string{
			header[0].value.(string), header[1].value.(string),
			header[2].value.(string), header[3].value.(string),
		}
		want := []string{"Student ID", "Full name", "Midterm", "Final"}
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("Expected header %v, got %v", want, got)
		}
	})

	t.Run("Missing grades default to zero", func(t *testing.T) {
		row := table.rows[2]
		if row[3].value.(float64) != 0 {
			t.Fatalf("Expected zero default, got %v", row[3].value)
		}
	})

	t.Run("Footer formulas cover the data rows from column C", func(t *testing.T) {
		footer := table.rows[len(table.rows)-1]
		if footer[0].value.(string) != "Average" {
			t.Fatalf("Expected Average label, got %v", footer[0].value)
		}
		if footer[2].formula != "AVERAGE(C2:C3)" {
			t.Fatalf("Expected AVERAGE(C2:C3), got %q", footer[2].formula)
		}
		if footer[3].formula != "AVERAGE(D2:D3)" {
			t.Fatalf("Expected AVERAGE(D2:D3), got %q", footer[3].formula)
		}
	})

	t.Run("Empty column set has no footer", func(t *testing.T) {
		empty := &shared.ClassGrade{GradeRows: doc.GradeRows}
		got := buildGradeBoard(empty)
		if len(got.rows) != 1+len(doc.GradeRows) {
			t.Fatalf("Expected header plus data rows only, got %d rows", len(got.rows))
		}
	})
}

func TestEncodeCSV(t *testing.T) {
	table := buildGradeBoard(testGradebook())
	data, err := table.encodeCSV()
	if err != nil {
		t.Fatalf("encodeCSV failed: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if lines[0] != "Student ID,Full name,Midterm,Final" {
		t.Fatalf("Unexpected header line: %q", lines[0])
	}
	if lines[1] != "20110001,An Nguyen,7,8.5" {
		t.Fatalf("Unexpected data line: %q", lines[1])
	}
	if !strings.Contains(lines[3], "=AVERAGE(C2:C3)") {
		t.Fatalf("Expected formula text in footer, got %q", lines[3])
	}
}

func TestParseGrid(t *testing.T) {
	t.Run("Drops blank rows but keeps sheet numbering", func(t *testing.T) {
		csvData := "Student ID,Grade\n,,\n20110001,7\n"
		grid, err := parseGrid([]byte(csvData), FileTypeCSV)
		if err != nil {
			t.Fatalf("parseGrid failed: %v", err)
		}
		if len(grid) != 2 {
			t.Fatalf("Expected 2 rows after blank filtering, got %d", len(grid))
		}
		if grid[1].num != 3 {
			t.Fatalf("Expected original row number 3, got %d", grid[1].num)
		}
	})

	t.Run("Trims cells", func(t *testing.T) {
		grid, err := parseGrid([]byte(" 20110001 , 7 \n"), FileTypeCSV)
		if err != nil {
			t.Fatalf("parseGrid failed: %v", err)
		}
		if grid[0].cells[0] != "20110001" || grid[0].cells[1] != "7" {
			t.Fatalf("Expected trimmed cells, got %v", grid[0].cells)
		}
	})
}

func TestXLSXRoundTrip(t *testing.T) {
	table := &gradeTable{}
	table.addRow(textCell("Student ID"), textCell("Grade"))
	table.addRow(textCell("20110001"), numberCell(7))
	table.addRow(textCell("20110002"), numberCell(9))

	data, err := table.encodeXLSX()
	if err != nil {
		t.Fatalf("encodeXLSX failed: %v", err)
	}

	grid, err := parseGrid(data, FileTypeXLSX)
	if err != nil {
		t.Fatalf("parseGrid failed: %v", err)
	}
	if len(grid) != 3 {
		t.Fatalf("Expected 3 rows, got %d", len(grid))
	}
	if grid[0].cells[0] != "Student ID" || grid[0].cells[1] != "Grade" {
		t.Fatalf("Unexpected header: %v", grid[0].cells)
	}
	if grid[1].cells[0] != "20110001" || grid[1].cells[1] != "7" {
		t.Fatalf("Unexpected data row: %v", grid[1].cells)
	}
}

func TestParseGradeCell(t *testing.T) {
	cases := []struct {
		name  string
		raw   string
		value float64
		rule  string
	}{
		{"Valid integer", "7", 7, ""},
		{"Zero is valid", "0", 0, ""},
		{"Ten is valid", "10", 10, ""},
		{"Empty is required", "", 0, CellRuleRequired},
		{"Text is invalid", "seven", 0, CellRuleInvalid},
		{"Fraction is invalid", "7.5", 0, CellRuleInvalid},
		{"Above range", "11", 0, CellRuleRange},
		{"Below range", "-1", 0, CellRuleRange},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			value, cellErr := parseGradeCell(tc.raw, 2, "Final")
			if tc.rule == "" {
				if cellErr != nil {
					t.Fatalf("Expected no error, got %v", cellErr)
				}
				if value != tc.value {
					t.Fatalf("Expected %g, got %g", tc.value, value)
				}
				return
			}
			if cellErr == nil || cellErr.Rule != tc.rule {
				t.Fatalf("Expected rule %q, got %v", tc.rule, cellErr)
			}
		})
	}
}

func TestParseBoardSheet(t *testing.T) {
	doc := testGradebook()

	t.Run("Exported board parses back to the same values", func(t *testing.T) {
		columns := testColumns()
		board := &shared.ClassGrade{
			GradeColumns: columns,
			GradeRows: []shared.GradeRow{
				{
					StudentID: "20110001",
					FullName:  "An Nguyen",
					Grades: []shared.Grade{
						{Column: columns[0].ID, Value: 7},
						{Column: columns[1].ID, Value: 9},
					},
				},
				{
					StudentID: "20110002",
					FullName:  "Binh Tran",
					Grades:    []shared.Grade{{Column: columns[0].ID, Value: 6}},
				},
			},
		}

		data, err := buildGradeBoard(board).encodeCSV()
		if err != nil {
			t.Fatalf("encodeCSV failed: %v", err)
		}
		grid, err := parseGrid(data, FileTypeCSV)
		if err != nil {
			t.Fatalf("parseGrid failed: %v", err)
		}

		updates, err := parseBoardSheet(grid, columns)
		if err != nil {
			t.Fatalf("parseBoardSheet failed: %v", err)
		}
		// The Average footer is presentation, not a student row
		if len(updates) != len(board.GradeRows) {
			t.Fatalf("Expected %d updates, got %d", len(board.GradeRows), len(updates))
		}
		first := updates[0]
		if first.StudentID != "20110001" || first.Grades["Midterm"] != 7 || first.Grades["Final"] != 9 {
			t.Fatalf("Unexpected first update: %+v", first)
		}
	})

	t.Run("Header width must match the column set", func(t *testing.T) {
		grid := []sheetRow{{num: 1, cells: []string{"Student ID", "Full name", "Midterm"}}}
		if _, err := parseBoardSheet(grid, doc.GradeColumns); !errors.Is(err, ErrColumnCountMismatch) {
			t.Fatalf("Expected ErrColumnCountMismatch, got %v", err)
		}
	})

	t.Run("Unknown header names reported as a set", func(t *testing.T) {
		grid := []sheetRow{{num: 1, cells: []string{"Student ID", "Full name", "Midterm", "Bonus"}}}
		var unknownErr *UnknownColumnError
		if _, err := parseBoardSheet(grid, doc.GradeColumns); !errors.As(err, &unknownErr) {
			t.Fatalf("Expected UnknownColumnError, got %v", err)
		}
		if !reflect.DeepEqual(unknownErr.Keys, []string{"Bonus"}) {
			t.Fatalf("Expected [Bonus], got %v", unknownErr.Keys)
		}
	})

	t.Run("Duplicated header name rejected as missing column", func(t *testing.T) {
		// Width and known-name checks both pass here, but Final would never
		// be written
		grid := []sheetRow{
			{num: 1, cells: []string{"Student ID", "Full name", "Midterm", "Midterm"}},
			{num: 2, cells: []string{"20110001", "An Nguyen", "7", "8"}},
		}
		var cellErr *CellError
		if _, err := parseBoardSheet(grid, doc.GradeColumns); !errors.As(err, &cellErr) {
			t.Fatalf("Expected CellError, got %v", err)
		}
		if cellErr.Rule != CellRuleRequired || cellErr.Column != "Final" || cellErr.Row != 2 {
			t.Fatalf("Expected required error for Final at row 2, got %+v", cellErr)
		}
	})

	t.Run("Duplicate ids outrank cell errors", func(t *testing.T) {
		grid := []sheetRow{
			{num: 1, cells: []string{"Student ID", "Full name", "Midterm", "Final"}},
			{num: 2, cells: []string{"20110001", "An Nguyen", "bad", "8"}},
			{num: 3, cells: []string{"20110001", "An Nguyen", "7", "8"}},
		}
		var dup *DuplicateStudentError
		if _, err := parseBoardSheet(grid, doc.GradeColumns); !errors.As(err, &dup) {
			t.Fatalf("Expected DuplicateStudentError, got %v", err)
		}
	})
}

func TestCheckDuplicates(t *testing.T) {
	t.Run("Unique ids pass", func(t *testing.T) {
		if err := checkDuplicates([]string{"a", "b", "c"}); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
	})

	t.Run("Every duplicate is listed", func(t *testing.T) {
		err := checkDuplicates([]string{"a", "b", "a", "c", "b"})
		var dup *DuplicateStudentError
		if !errors.As(err, &dup) {
			t.Fatalf("Expected DuplicateStudentError, got %v", err)
		}
		if !reflect.DeepEqual(dup.IDs, []string{"a", "b"}) {
			t.Fatalf("Expected [a b], got %v", dup.IDs)
		}
	})

	t.Run("Empty ids ignored", func(t *testing.T) {
		if err := checkDuplicates([]string{"", "", "a"}); err != nil {
			t.Fatalf("Expected no error for empty ids, got %v", err)
		}
	})
}

func TestFirstCellError(t *testing.T) {
	required := &CellError{Rule: CellRuleRequired, Row: 2, Column: "Full name"}
	invalid := &CellError{Rule: CellRuleInvalid, Row: 5, Column: "Final"}
	ranged := &CellError{Rule: CellRuleRange, Row: 9, Column: "Midterm"}

	t.Run("Range outranks invalid and required", func(t *testing.T) {
		if got := firstCellError([]*CellError{required, invalid, ranged}); got != ranged {
			t.Fatalf("Expected range error first, got %v", got)
		}
	})

	t.Run("Invalid outranks required", func(t *testing.T) {
		if got := firstCellError([]*CellError{required, invalid}); got != invalid {
			t.Fatalf("Expected invalid error first, got %v", got)
		}
	})

	t.Run("Nil when clean", func(t *testing.T) {
		if got := firstCellError(nil); got != nil {
			t.Fatalf("Expected nil, got %v", got)
		}
	})
}
