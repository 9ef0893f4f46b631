package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"tenantdesk/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

var sheetHeaders = []string{
	"ID", "Renter", "Email", "Phone", "Property", "Monthly Payment",
	"Move-In Date", "Status", "Check-Out Date",
}

// Writer renders customer projections into an Excel workbook, one sheet per
// list.
type Writer struct {
	path   string
	logger *zerolog.Logger
}

func NewWriter(path string, logger *zerolog.Logger) *Writer {
	return &Writer{path: path, logger: logger}
}

// WriteTo streams a workbook with both lists onto w.
func (e *Writer) WriteTo(w io.Writer, active, history []models.CustomerRecord) error {
	f, err := buildWorkbook(active, history)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.Write(w); err != nil {
		return fmt.Errorf("error writing workbook: %v", err)
	}
	return nil
}

// SaveToFile writes the workbook under the configured export directory and
// returns the file path.
func (e *Writer) SaveToFile(active, history []models.CustomerRecord) (string, error) {
	if err := os.MkdirAll(e.path, 0o755); err != nil {
		return "", fmt.Errorf("error creating export directory: %v", err)
	}

	f, err := buildWorkbook(active, history)
	if err != nil {
		return "", err
	}
	defer f.Close()

	fileName := fmt.Sprintf("customers_export_%s.xlsx", time.Now().Format("2006-01-02_15-04-05"))
	filePath := filepath.Join(e.path, fileName)
	if err := f.SaveAs(filePath); err != nil {
		return "", fmt.Errorf("error saving file: %v", err)
	}

	e.logger.Info().
		Str("file_path", filePath).
		Int("active", len(active)).
		Int("history", len(history)).
		Msg("Customers Excel file created")
	return filePath, nil
}

func buildWorkbook(active, history []models.CustomerRecord) (*excelize.File, error) {
	f := excelize.NewFile()

	if err := writeSheet(f, "Active Customers", active); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeSheet(f, "History", history); err != nil {
		f.Close()
		return nil, err
	}

	if index, err := f.GetSheetIndex("Active Customers"); err == nil {
		f.SetActiveSheet(index)
	}
	_ = f.DeleteSheet("Sheet1")
	return f, nil
}

func writeSheet(f *excelize.File, sheetName string, records []models.CustomerRecord) error {
	if _, err := f.NewSheet(sheetName); err != nil {
		return fmt.Errorf("error creating sheet: %v", err)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})

	for i, header := range sheetHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, header)
		_ = f.SetCellStyle(sheetName, cell, cell, headerStyle)
	}

	for i, r := range records {
		row := i + 2
		_ = f.SetCellValue(sheetName, fmt.Sprintf("A%d", row), r.ID)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("B%d", row), r.RenterName)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("C%d", row), r.Email)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("D%d", row), r.PhoneNumber)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("E%d", row), r.PropertyName)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("F%d", row), r.MonthlyPayment)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("G%d", row), r.MoveInDate)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("H%d", row), r.Status)
		_ = f.SetCellValue(sheetName, fmt.Sprintf("I%d", row), r.CheckOutDate)
	}

	_ = f.SetColWidth(sheetName, "A", "A", 8)
	_ = f.SetColWidth(sheetName, "B", "B", 22)
	_ = f.SetColWidth(sheetName, "C", "C", 26)
	_ = f.SetColWidth(sheetName, "D", "D", 18)
	_ = f.SetColWidth(sheetName, "E", "E", 24)
	_ = f.SetColWidth(sheetName, "F", "F", 16)
	_ = f.SetColWidth(sheetName, "G", "G", 14)
	_ = f.SetColWidth(sheetName, "H", "H", 14)
	_ = f.SetColWidth(sheetName, "I", "I", 16)

	return nil
}
