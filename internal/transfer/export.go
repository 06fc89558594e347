package transfer

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/yourorg/lifedb/internal/models"
)

const (
	FormatJSON   = "json"
	FormatNDJSON = "ndjson"
	FormatCSV    = "csv"
)

var csvHeader = []string{"id", "url", "url_norm", "title", "description", "domain", "created_at", "category"}

// ContentType returns the media type for an export format.
func ContentType(format string) string {
	switch format {
	case FormatNDJSON:
		return "application/x-ndjson"
	case FormatCSV:
		return "text/csv"
	default:
		return "application/json"
	}
}

// NormalizeFormat maps an empty format to json and rejects unknown ones.
func NormalizeFormat(format string) (string, error) {
	switch f := strings.ToLower(strings.TrimSpace(format)); f {
	case "":
		return FormatJSON, nil
	case FormatJSON, FormatNDJSON, FormatCSV:
		return f, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// WriteItems encodes items in the given format.
func WriteItems(w io.Writer, format string, items []models.Item) error {
	format, err := NormalizeFormat(format)
	if err != nil {
		return err
	}
	switch format {
	case FormatNDJSON:
		enc := json.NewEncoder(w)
		for _, it := range items {
			if err := enc.Encode(it); err != nil {
				return err
			}
		}
		return nil
	case FormatCSV:
		cw := csv.NewWriter(w)
		if err := cw.Write(csvHeader); err != nil {
			return err
		}
		for _, it := range items {
			err := cw.Write([]string{
				strconv.FormatInt(it.ID, 10),
				it.URL,
				it.URLNorm,
				it.Title,
				it.Description,
				it.Domain,
				it.CreatedAt.UTC().Format(time.RFC3339),
				it.Category,
			})
			if err != nil {
				return err
			}
		}
		cw.Flush()
		return cw.Error()
	default:
		if items == nil {
			items = []models.Item{}
		}
		return json.NewEncoder(w).Encode(items)
	}
}
