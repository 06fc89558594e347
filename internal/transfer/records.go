// Package transfer decodes import files and encodes item exports.
package transfer

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

var (
	// ErrUnsupportedFormat is returned for unknown export formats.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrMalformed is returned when an import body cannot be decoded.
	ErrMalformed = errors.New("malformed import file")
)

// Record is one importable row. Only URL is required.
type Record struct {
	URL      string `json:"url"`
	Category string `json:"category"`
}

// ParseRecords decodes records from r. The file name's extension picks the
// decoder (.xlsx, .xls, .csv, .tsv, .txt); anything else is sniffed as JSON
// (array, single object or NDJSON) or, failing that, delimited text.
func ParseRecords(r io.Reader, name string) ([]Record, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	var rows [][]string
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx":
		rows, err = readXLSX(b)
	case ".xls":
		rows, err = readXLS(b)
	case ".csv", ".tsv", ".txt":
		rows, err = readCSV(b)
	default:
		trimmed := bytes.TrimSpace(b)
		if len(trimmed) > 0 && (trimmed[0] == '[' || trimmed[0] == '{') {
			return readJSON(trimmed)
		}
		rows, err = readCSV(b)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return rowsToRecords(rows), nil
}

// readJSON accepts a stream of JSON values, each an object or an array of
// objects, which covers plain arrays and NDJSON alike.
func readJSON(b []byte) ([]Record, error) {
	dec := json.NewDecoder(bytes.NewReader(b))
	var out []Record
	for {
		var raw json.RawMessage
		err := dec.Decode(&raw)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: decode json: %w", ErrMalformed, err)
		}
		raw = bytes.TrimSpace(raw)
		if len(raw) > 0 && raw[0] == '[' {
			var batch []Record
			if err := json.Unmarshal(raw, &batch); err != nil {
				return nil, fmt.Errorf("%w: decode json array: %w", ErrMalformed, err)
			}
			out = append(out, batch...)
			continue
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("%w: decode json object: %w", ErrMalformed, err)
		}
		out = append(out, rec)
	}
	return cleanRecords(out), nil
}

func cleanRecords(in []Record) []Record {
	out := in[:0]
	for _, r := range in {
		r.URL = strings.TrimSpace(r.URL)
		r.Category = strings.TrimSpace(r.Category)
		if r.URL == "" {
			continue
		}
		out = append(out, r)
	}
	return out
}

// rowsToRecords maps tabular rows. A first row naming a "url" column is a
// header; otherwise column 0 is the URL and column 1 the category.
func rowsToRecords(rows [][]string) []Record {
	urlCol, catCol, start := 0, 1, 0
	if len(rows) > 0 {
		if u, c, ok := headerColumns(rows[0]); ok {
			urlCol, catCol, start = u, c, 1
		}
	}
	out := make([]Record, 0, len(rows))
	for _, row := range rows[start:] {
		if len(row) <= urlCol {
			continue
		}
		rec := Record{URL: row[urlCol]}
		if catCol >= 0 && catCol < len(row) {
			rec.Category = row[catCol]
		}
		out = append(out, rec)
	}
	return cleanRecords(out)
}

func headerColumns(row []string) (urlCol, catCol int, ok bool) {
	urlCol, catCol = -1, -1
	for i, h := range row {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "url", "link", "href":
			if urlCol < 0 {
				urlCol = i
			}
		case "category":
			if catCol < 0 {
				catCol = i
			}
		}
	}
	return urlCol, catCol, urlCol >= 0
}

func readCSV(b []byte) ([][]string, error) {
	br := bufio.NewReader(bytes.NewReader(b))
	sample, _ := br.Peek(4096)
	cr := csv.NewReader(br)
	cr.Comma = detectDelimiter(sample)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	var out [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Fallback for very dirty inputs
			return readLinesFallback(b)
		}
		if len(rec) == 0 {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

func detectDelimiter(b []byte) rune {
	cComma := bytes.Count(b, []byte{','})
	cTab := bytes.Count(b, []byte{'\t'})
	cSemi := bytes.Count(b, []byte{';'})
	if cTab > cComma && cTab > cSemi {
		return '\t'
	}
	if cSemi > cComma {
		return ';'
	}
	return ','
}

func readLinesFallback(b []byte) ([][]string, error) {
	s := bufio.NewScanner(bytes.NewReader(b))
	var out [][]string
	for s.Scan() {
		if v := strings.TrimSpace(s.Text()); v != "" {
			out = append(out, []string{v})
		}
	}
	return out, s.Err()
}

func readXLSX(b []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()
	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, nil
	}
	rows, err := f.Rows(sheets[0])
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out [][]string
	for rows.Next() {
		cols, err := rows.Columns()
		if err != nil {
			return nil, err
		}
		if len(cols) == 0 {
			continue
		}
		out = append(out, cols)
	}
	return out, rows.Error()
}

func readXLS(b []byte) ([][]string, error) {
	wb, err := xls.OpenReader(bytes.NewReader(b), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("open xls: %w", err)
	}
	if wb.NumSheets() == 0 {
		return nil, nil
	}
	sh := wb.GetSheet(0)
	if sh == nil {
		return nil, nil
	}
	var out [][]string
	for i := 0; i <= int(sh.MaxRow); i++ {
		row := sh.Row(i)
		if row == nil {
			continue
		}
		cols := make([]string, 0, row.LastCol())
		for c := 0; c < row.LastCol(); c++ {
			cols = append(cols, row.Col(c))
		}
		out = append(out, cols)
	}
	return out, nil
}
