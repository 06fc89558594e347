package transfer

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/yourorg/lifedb/internal/models"
)

func TestParseRecordsJSONVariants(t *testing.T) {
	cases := map[string]struct {
		name string
		in   string
		want []Record
	}{
		"array": {
			name: "items.json",
			in:   `[{"url":" https://a.example/ ","category":"Reading"},{"url":""},{"url":"https://b.example/"}]`,
			want: []Record{{URL: "https://a.example/", Category: "Reading"}, {URL: "https://b.example/"}},
		},
		"single object": {
			name: "one.json",
			in:   `{"url":"https://a.example/"}`,
			want: []Record{{URL: "https://a.example/"}},
		},
		"ndjson": {
			name: "items.ndjson",
			in:   "{\"url\":\"https://a.example/\"}\n\n{\"url\":\"https://b.example/\",\"category\":\"x\"}\n",
			want: []Record{{URL: "https://a.example/"}, {URL: "https://b.example/", Category: "x"}},
		},
		"export round trip fields": {
			name: "export.json",
			in:   `[{"id":3,"url":"https://a.example/","url_norm":"https://a.example/","title":"T","category":"C"}]`,
			want: []Record{{URL: "https://a.example/", Category: "C"}},
		},
	}
	for name, c := range cases {
		got, err := ParseRecords(strings.NewReader(c.in), c.name)
		if err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if len(got) != len(c.want) {
			t.Fatalf("%s: got %+v want %+v", name, got, c.want)
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Fatalf("%s[%d]: got %+v want %+v", name, i, got[i], c.want[i])
			}
		}
	}
}

func TestParseRecordsBadJSON(t *testing.T) {
	if _, err := ParseRecords(strings.NewReader(`[{"url":`), "x.json"); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestParseRecordsCSV(t *testing.T) {
	withHeader := "id,url,category\n1,https://a.example/,Reading\n2,https://b.example/,\n"
	got, err := ParseRecords(strings.NewReader(withHeader), "items.csv")
	if err != nil {
		t.Fatalf("csv: %v", err)
	}
	if len(got) != 2 || got[0].URL != "https://a.example/" || got[0].Category != "Reading" || got[1].Category != "" {
		t.Fatalf("header csv: %+v", got)
	}

	bare := "https://a.example/;Later\nhttps://b.example/;Now\n"
	got, err = ParseRecords(strings.NewReader(bare), "items.txt")
	if err != nil {
		t.Fatalf("bare: %v", err)
	}
	if len(got) != 2 || got[1].URL != "https://b.example/" || got[1].Category != "Now" {
		t.Fatalf("bare csv: %+v", got)
	}

	// No extension and not JSON: treated as delimited text.
	got, err = ParseRecords(strings.NewReader("https://c.example/\n"), "upload")
	if err != nil || len(got) != 1 || got[0].URL != "https://c.example/" {
		t.Fatalf("sniffed text: %+v, %v", got, err)
	}
}

func TestParseRecordsXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	_ = f.SetCellValue(sheet, "A1", "URL")
	_ = f.SetCellValue(sheet, "B1", "Category")
	_ = f.SetCellValue(sheet, "A2", "https://a.example/")
	_ = f.SetCellValue(sheet, "B2", "Sheet")
	_ = f.SetCellValue(sheet, "A3", "https://b.example/")
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatalf("write xlsx: %v", err)
	}
	_ = f.Close()

	got, err := ParseRecords(&buf, "links.xlsx")
	if err != nil {
		t.Fatalf("xlsx: %v", err)
	}
	if len(got) != 2 || got[0].Category != "Sheet" || got[1].URL != "https://b.example/" {
		t.Fatalf("xlsx records: %+v", got)
	}
}

func testItems() []models.Item {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	return []models.Item{
		{ID: 2, URL: "https://b.example/", URLNorm: "https://b.example/", Title: `Say "hi", friend`, Domain: "b.example", CreatedAt: ts},
		{ID: 1, URL: "https://a.example/", URLNorm: "https://a.example/", Domain: "a.example", Category: "Reading", CreatedAt: ts},
	}
}

func TestWriteItemsCSV(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteItems(&buf, "csv", testItems()); err != nil {
		t.Fatalf("csv: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if lines[0] != "id,url,url_norm,title,description,domain,created_at,category" {
		t.Fatalf("header = %q", lines[0])
	}
	if lines[1] != `2,https://b.example/,https://b.example/,"Say ""hi"", friend",,b.example,2024-05-01T10:00:00Z,` {
		t.Fatalf("row = %q", lines[1])
	}
	// The export reads back as import records.
	recs, err := ParseRecords(strings.NewReader(buf.String()), "export.csv")
	if err != nil || len(recs) != 2 || recs[1].Category != "Reading" {
		t.Fatalf("re-import: %+v, %v", recs, err)
	}
}

func TestWriteItemsJSONAndNDJSON(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteItems(&buf, "", testItems()); err != nil {
		t.Fatalf("json: %v", err)
	}
	var arr []map[string]any
	if err := json.Unmarshal(buf.Bytes(), &arr); err != nil || len(arr) != 2 || arr[0]["url_norm"] != "https://b.example/" {
		t.Fatalf("json export: %s (%v)", buf.String(), err)
	}

	buf.Reset()
	if err := WriteItems(&buf, "json", nil); err != nil || strings.TrimSpace(buf.String()) != "[]" {
		t.Fatalf("empty json export: %q (%v)", buf.String(), err)
	}

	buf.Reset()
	if err := WriteItems(&buf, "ndjson", testItems()); err != nil {
		t.Fatalf("ndjson: %v", err)
	}
	if n := strings.Count(buf.String(), "\n"); n != 2 {
		t.Fatalf("expected 2 lines, got %d", n)
	}

	if err := WriteItems(&buf, "xml", nil); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected unsupported format, got %v", err)
	}
}
