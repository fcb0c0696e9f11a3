package sink

import (
	"context"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/solterra-energy/quote-cli/internal/model"
)

const leadSheetName = "Leads"

var leadHeader = []string{
	"Lead ID", "Stage", "Email", "Phone", "Address",
	"Panels", "System kW", "Trench ft", "Trench USD", "Captured At", "Spam",
}

// XLSXSink appends leads to a local workbook, the spreadsheet flavor of the
// lead backend. Workbook I/O failures are retryable.
type XLSXSink struct {
	mu   sync.Mutex
	path string
}

// NewXLSX creates a sink writing to the workbook at path. The workbook and
// its header row are created on first delivery.
func NewXLSX(path string) *XLSXSink {
	return &XLSXSink{path: path}
}

func (s *XLSXSink) Name() string { return "xlsx" }

func (s *XLSXSink) Send(ctx context.Context, lead model.Lead) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, sheet, err := s.openSheet()
	if err != nil {
		return err
	}

	appendLeadRow(sheet, lead)
	if err := f.Save(s.path); err != nil {
		return eris.Wrapf(err, "sink: save workbook %s", s.path)
	}
	return nil
}

// WriteWorkbook writes a fresh workbook containing the given leads,
// replacing any existing file. Used by the export command.
func WriteWorkbook(path string, leads []model.Lead) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(leadSheetName)
	if err != nil {
		return eris.Wrap(err, "sink: add sheet")
	}
	writeHeader(sheet)
	for _, l := range leads {
		appendLeadRow(sheet, l)
	}
	return eris.Wrapf(f.Save(path), "sink: save workbook %s", path)
}

func (s *XLSXSink) openSheet() (*xlsx.File, *xlsx.Sheet, error) {
	if _, err := os.Stat(s.path); os.IsNotExist(err) {
		f := xlsx.NewFile()
		sheet, err := f.AddSheet(leadSheetName)
		if err != nil {
			return nil, nil, eris.Wrap(err, "sink: add sheet")
		}
		writeHeader(sheet)
		return f, sheet, nil
	}

	f, err := xlsx.OpenFile(s.path)
	if err != nil {
		return nil, nil, eris.Wrapf(err, "sink: open workbook %s", s.path)
	}
	sheet, ok := f.Sheet[leadSheetName]
	if !ok {
		sheet, err = f.AddSheet(leadSheetName)
		if err != nil {
			return nil, nil, eris.Wrap(err, "sink: add sheet")
		}
		writeHeader(sheet)
	}
	return f, sheet, nil
}

func writeHeader(sheet *xlsx.Sheet) {
	row := sheet.AddRow()
	for _, h := range leadHeader {
		row.AddCell().Value = h
	}
}

func appendLeadRow(sheet *xlsx.Sheet, lead model.Lead) {
	row := sheet.AddRow()
	row.AddCell().Value = lead.ID
	row.AddCell().Value = string(lead.Stage)
	row.AddCell().Value = lead.Email
	row.AddCell().Value = lead.Phone
	row.AddCell().Value = lead.Address

	if lead.Quote != nil {
		row.AddCell().SetInt(lead.Quote.Panels)
		row.AddCell().SetFloat(lead.Quote.SystemKW)
		row.AddCell().SetInt(lead.Quote.Trench.DistanceFeet)
		row.AddCell().SetInt(lead.Quote.Trench.CostUSD)
	} else {
		for i := 0; i < 4; i++ {
			row.AddCell()
		}
	}

	row.AddCell().Value = lead.CapturedAt().Format(time.RFC3339)
	row.AddCell().Value = strconv.FormatBool(lead.Spam)
}
