package ingest

import (
	"strings"
	"time"

	"sms-relay-server/internal/models"
)

// Timestamp formats accepted in call-log rows, tried in order.
var rowTimeFormats = []string{
	"02/01/2006 15:04:05",
	"2006-01-02 15:04:05",
}

// parseRows extracts call records from one file's content. A row is valid
// only when it has at least two field separators and a parseable timestamp;
// malformed rows are dropped silently. Fields may be quote-wrapped.
func parseRows(content, delimiter, sourceFile string) []*models.CallRecord {
	var records []*models.CallRecord

	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(strings.TrimSuffix(line, "\r"))
		if line == "" {
			continue
		}

		fields := strings.Split(line, delimiter)
		if len(fields) < 3 {
			continue
		}
		for i := range fields {
			fields[i] = unquote(fields[i])
		}

		at, ok := parseRowTime(fields[0])
		if !ok {
			continue
		}

		records = append(records, &models.CallRecord{
			DateAndTime: at,
			PhoneNumber: fields[1],
			// A status containing the delimiter stays intact.
			StatusText: strings.Join(fields[2:], delimiter),
			SourceFile: sourceFile,
		})
	}

	return records
}

func parseRowTime(field string) (time.Time, bool) {
	for _, format := range rowTimeFormats {
		if at, err := time.Parse(format, field); err == nil {
			return at.UTC(), true
		}
	}
	return time.Time{}, false
}

func unquote(field string) string {
	field = strings.TrimSpace(field)
	if len(field) >= 2 && strings.HasPrefix(field, `"`) && strings.HasSuffix(field, `"`) {
		field = field[1 : len(field)-1]
	}
	return strings.TrimSpace(field)
}
