package output

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"sync"

	"pkgcheck/config"
	"pkgcheck/logger"
	"pkgcheck/scanner"
	"pkgcheck/systeminfo"

	"github.com/gofrs/flock"
)

const SchemaVersion = "1.0"

type Metrics struct {
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	DurationMS  int64  `json:"duration_ms"`
	TotalFiles  int    `json:"total_files"`
	Shown       int    `json:"files_shown"`
	Hidden      int    `json:"files_hidden"`
	Highlighted int    `json:"files_highlighted"`
}

// Header identifies the scan a report belongs to.
type Header struct {
	Root    string `json:"root"`
	Mode    string `json:"mode"`
	Started string `json:"started"`
}

type Summary struct {
	Status  string  `json:"status"`
	Metrics Metrics `json:"metrics"`
}

// ErrReportLocked is returned when another process holds the report file.
var ErrReportLocked = errors.New("report file is locked by another process")

// Writer streams one report to a file and, when configured, to an OTLP logs
// endpoint. A Writer without an output file only exports.
type Writer struct {
	mu     sync.Mutex
	file   *os.File
	lock   *flock.Flock
	buf    *bufio.Writer
	csvw   *csv.Writer
	first  bool
	format string
	host   *systeminfo.HostInfo
	header Header
	otel   *otelLogger
	closed bool
}

func New(cfg *config.Config, host *systeminfo.HostInfo, header Header) (*Writer, error) {
	format := cfg.OutputFormat
	if format == "" {
		format = "json"
	}
	w := &Writer{first: true, format: format, host: host, header: header}

	otel, err := newOtelLogger(cfg)
	if err != nil {
		logger.Warnf("OTEL export disabled: %v", err)
	} else {
		w.otel = otel
	}

	if cfg.OutputFileName != "" {
		if err := w.openFile(cfg.OutputFileName); err != nil {
			w.otel.Shutdown()
			return nil, err
		}
	}
	w.emitInitialRecords()
	return w, nil
}

func (w *Writer) openFile(name string) error {
	lock := flock.New(name + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("could not lock report file: %w", err)
	}
	if !locked {
		return fmt.Errorf("%w: %s", ErrReportLocked, name)
	}
	w.lock = lock
	f, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		w.releaseFile()
		return err
	}
	w.file = f
	w.buf = bufio.NewWriterSize(f, 64*1024)

	if err := w.writeHeader(); err != nil {
		w.releaseFile()
		return fmt.Errorf("could not write report header: %w", err)
	}
	return nil
}

func (w *Writer) writeHeader() error {
	switch w.format {
	case "csv":
		w.csvw = csv.NewWriter(w.buf)
		if err := w.writeCSVHeader(); err != nil {
			return err
		}
	default:
		if err := w.writeJSONHeader(); err != nil {
			return err
		}
	}
	return w.buf.Flush()
}

// releaseFile closes the report file and drops the lock and its file.
func (w *Writer) releaseFile() error {
	var err error
	if w.file != nil {
		err = w.file.Close()
		w.file = nil
		w.buf = nil
		w.csvw = nil
	}
	if w.lock != nil {
		if unlockErr := w.lock.Unlock(); unlockErr != nil {
			logger.Debugf("Failed to unlock report: %v", unlockErr)
		}
		os.Remove(w.lock.Path())
		w.lock = nil
	}
	return err
}

func (w *Writer) writeJSONHeader() error {
	if _, err := w.buf.WriteString("{\n"); err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w.buf, "  \"schema_version\": %q,\n", SchemaVersion); err != nil {
		return err
	}
	if w.host != nil {
		if err := w.writeJSONField("host", w.host); err != nil {
			return err
		}
	}
	if err := w.writeJSONField("scan", w.header); err != nil {
		return err
	}
	_, err := w.buf.WriteString("  \"files\": [\n")
	return err
}

func (w *Writer) writeJSONField(name string, value any) error {
	data, err := json.MarshalIndent(value, "  ", "  ")
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w.buf, "  %q: ", name); err != nil {
		return err
	}
	if _, err := w.buf.Write(data); err != nil {
		return err
	}
	_, err = w.buf.WriteString(",\n")
	return err
}

// WriteRecord appends one visible record to the report.
func (w *Writer) WriteRecord(r scanner.FileRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return errors.New("report writer is closed")
	}

	w.otel.Emit("file", r)
	if w.buf == nil {
		return nil
	}
	switch w.format {
	case "csv":
		if err := w.writeCSVRow("file", &r, nil); err != nil {
			return err
		}
	default:
		if !w.first {
			if _, err := w.buf.WriteString(",\n"); err != nil {
				return err
			}
		}
		data, err := json.MarshalIndent(r, "    ", "  ")
		if err != nil {
			return err
		}
		if _, err := w.buf.WriteString("    "); err != nil {
			return err
		}
		if _, err := w.buf.Write(data); err != nil {
			return err
		}
		w.first = false
	}
	return w.buf.Flush()
}

// Close writes the summary, releases the report file and flushes the
// exporter.
func (w *Writer) Close(summary Summary) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true

	w.otel.Emit("summary", summary)
	defer w.otel.Shutdown()
	if w.file == nil {
		return nil
	}
	err := w.writeFooter(summary)
	if syncErr := w.file.Sync(); err == nil {
		err = syncErr
	}
	if closeErr := w.releaseFile(); err == nil {
		err = closeErr
	}
	return err
}

func (w *Writer) writeFooter(summary Summary) error {
	switch w.format {
	case "csv":
		if err := w.writeCSVRow("summary", nil, &summary); err != nil {
			return err
		}
	default:
		if !w.first {
			if _, err := w.buf.WriteString("\n"); err != nil {
				return err
			}
		}
		data, err := json.MarshalIndent(summary, "  ", "  ")
		if err != nil {
			return err
		}
		if _, err := w.buf.WriteString("  ],\n  \"summary\": "); err != nil {
			return err
		}
		if _, err := w.buf.Write(data); err != nil {
			return err
		}
		if _, err := w.buf.WriteString("\n}\n"); err != nil {
			return err
		}
	}
	return w.buf.Flush()
}

var csvColumns = []string{
	"record_type",
	"schema_version",
	"file_path",
	"file_version",
	"product_version",
	"signature",
	"highlighted",
	"hashes",
	"fuzzy_hash",
	"host",
	"scan",
	"summary",
}

func (w *Writer) writeCSVHeader() error {
	if err := w.csvw.Write(csvColumns); err != nil {
		return err
	}
	row := make([]string, len(csvColumns))
	row[0], row[1] = "scan", SchemaVersion
	row[9] = jsonString(w.host)
	row[10] = jsonString(w.header)
	if err := w.csvw.Write(row); err != nil {
		return err
	}
	w.csvw.Flush()
	return w.csvw.Error()
}

func (w *Writer) writeCSVRow(recordType string, r *scanner.FileRecord, summary *Summary) error {
	row := make([]string, len(csvColumns))
	row[0], row[1] = recordType, SchemaVersion
	if r != nil {
		row[2] = r.FilePath
		row[3] = r.FileVersion
		row[4] = r.ProductVersion
		row[5] = r.Signature
		row[6] = strconv.FormatBool(r.Highlighted)
		if len(r.Hashes) > 0 {
			row[7] = jsonString(r.Hashes)
		}
		row[8] = r.FuzzyHash
	}
	if summary != nil {
		row[11] = jsonString(summary)
	}
	if err := w.csvw.Write(row); err != nil {
		return err
	}
	w.csvw.Flush()
	return w.csvw.Error()
}

func (w *Writer) emitInitialRecords() {
	if w.host != nil {
		w.otel.Emit("host", w.host)
	}
	w.otel.Emit("scan", w.header)
}

func jsonString(value any) string {
	data, err := json.Marshal(value)
	if err != nil || string(data) == "null" {
		return ""
	}
	return string(data)
}
