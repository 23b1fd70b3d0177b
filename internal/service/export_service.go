package service

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"coldwatch-data/internal/domain"
	"coldwatch-data/internal/repository"

	"go.uber.org/zap"
)

// telemetryExportHeader column order of the export sheet.
var telemetryExportHeader = []string{
	"Time (UTC)",
	"Temperature (C)",
	"Humidity (%)",
	"Battery (%)",
	"Event Type",
	"Event ID",
}

// ExportService produces Excel downloads of a device's telemetry history.
type ExportService interface {
	ExportTelemetry(ctx context.Context, req ExportTelemetryRequest) (*ExportFile, error)
}

// ExportTelemetryRequest window to export. A zero From/To means unbounded.
type ExportTelemetryRequest struct {
	DeviceID string
	From     *time.Time
	To       *time.Time
}

// ExportFile rendered workbook plus the filename to serve it under.
type ExportFile struct {
	Filename string
	Content  []byte
}

// exportPageSize rows fetched per repository page while streaming into the
// workbook.
const exportPageSize = 500

// exportMaxRows hard cap on one workbook.
const exportMaxRows = 50000

type exportService struct {
	telemetryRepo repository.TelemetryRepo
	devicesRepo   repository.DevicesRepo
	logger        *zap.Logger
}

func NewExportService(telemetryRepo repository.TelemetryRepo, devicesRepo repository.DevicesRepo, logger *zap.Logger) ExportService {
	return &exportService{
		telemetryRepo: telemetryRepo,
		devicesRepo:   devicesRepo,
		logger:        logger,
	}
}

func (s *exportService) ExportTelemetry(ctx context.Context, req ExportTelemetryRequest) (*ExportFile, error) {
	if req.DeviceID == "" {
		return nil, fmt.Errorf("device_id is required")
	}

	device, err := s.devicesRepo.GetDevice(ctx, req.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("failed to load device: %w", err)
	}

	f := excelize.NewFile()
	// WriteTo needs the file open; close only on error paths and at the end.

	sheetName := "Telemetry"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	if err := s.writeHeader(f, sheetName); err != nil {
		f.Close()
		return nil, err
	}

	row := 2
	for page := 1; row-2 < exportMaxRows; page++ {
		items, _, err := s.telemetryRepo.ListByDevice(ctx, req.DeviceID, req.From, req.To, page, exportPageSize)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to load telemetry page %d: %w", page, err)
		}
		if len(items) == 0 {
			break
		}
		for i := range items {
			if err := writeTelemetryRow(f, sheetName, row, &items[i]); err != nil {
				f.Close()
				return nil, err
			}
			row++
		}
		if len(items) < exportPageSize {
			break
		}
	}

	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		Split:       false,
		XSplit:      0,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close workbook: %w", err)
	}

	filename := fmt.Sprintf("telemetry_%s_%s.xlsx", sanitizeFilename(device.DeviceName),
		time.Now().UTC().Format("20060102_150405"))

	s.logger.Info("Telemetry export generated",
		zap.String("device_id", req.DeviceID),
		zap.Int("rows", row-2),
	)
	return &ExportFile{Filename: filename, Content: buf.Bytes()}, nil
}

func (s *exportService) writeHeader(f *excelize.File, sheetName string) error {
	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{
			Bold: true,
		},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	columnWidths := []float64{22, 16, 14, 12, 16, 28}
	for col, header := range telemetryExportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheetName, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("failed to set header style: %w", err)
		}
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(sheetName, name, name, columnWidths[col]); err != nil {
			return fmt.Errorf("failed to set column width: %w", err)
		}
	}
	return nil
}

func writeTelemetryRow(f *excelize.File, sheetName string, row int, t *domain.Telemetry) error {
	values := []any{
		time.UnixMilli(t.DataTimestamp).UTC().Format("2006-01-02 15:04:05"),
		nil, nil, nil,
		t.EventType,
		t.EventID,
	}
	if t.Temperature.Valid {
		values[1] = t.Temperature.Float64
	}
	if t.Humidity.Valid {
		values[2] = t.Humidity.Float64
	}
	if t.Battery.Valid {
		values[3] = t.Battery.Int64
	}

	for col, value := range values {
		if value == nil {
			continue
		}
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheetName, cell, value); err != nil {
			return fmt.Errorf("failed to set cell %s: %w", cell, err)
		}
	}
	return nil
}

func sanitizeFilename(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			out = append(out, r)
		case r == ' ':
			out = append(out, '_')
		}
	}
	if len(out) == 0 {
		return "device"
	}
	return string(out)
}
