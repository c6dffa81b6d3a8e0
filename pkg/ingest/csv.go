package ingest

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"io"
	"strings"

	"github.com/sirupsen/logrus"

	"interaction-dashboard/pkg/errors"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// MalformedRow is a data record the CSV reader could not split into cells
type MalformedRow struct {
	Line   int
	Reason string
}

type recordReader interface {
	Read() ([]string, error)
}

// ParseCSV reads a header row followed by data rows. Short rows are padded,
// extra cells are ignored and rows with only blank cells are skipped. Stray
// quotes are read literally; a record that still cannot be split is skipped
// and reported in the malformed list.
func ParseCSV(r io.Reader) ([]Row, []MalformedRow, error) {
	br := bufio.NewReader(r)
	if prefix, err := br.Peek(len(utf8BOM)); err == nil && bytes.Equal(prefix, utf8BOM) {
		_, _ = br.Discard(len(utf8BOM))
	}

	reader := csv.NewReader(br)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	return readRows(reader)
}

func readRows(reader recordReader) ([]Row, []MalformedRow, error) {
	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil, errors.NewEmptyUpload()
	}
	if err != nil {
		return nil, nil, errors.NewMalformedCSV(err)
	}

	columns := make([]string, len(header))
	for i, h := range header {
		columns[i] = strings.TrimSpace(h)
	}
	if missing := missingColumns(columns); len(missing) > 0 {
		return nil, nil, errors.NewMissingColumns(missing)
	}

	var rows []Row
	var malformed []MalformedRow
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			malformed = append(malformed, MalformedRow{Line: parseErr.StartLine, Reason: parseErr.Err.Error()})
			continue
		}
		if err != nil {
			// the stream itself failed, e.g. the upload cap was hit
			return nil, nil, errors.NewMalformedCSV(err)
		}
		if blankRecord(record) {
			continue
		}

		row := make(Row, len(columns))
		for i, col := range columns {
			if col == "" {
				continue
			}
			if _, seen := row[col]; seen {
				continue
			}
			if i < len(record) {
				row[col] = record[i]
			} else {
				row[col] = ""
			}
		}
		rows = append(rows, row)
	}

	return rows, malformed, nil
}

// NormalizeCSV parses r and normalizes every row. A batch error means nothing
// usable was read. Malformed records count as dropped rows.
func (n *Normalizer) NormalizeCSV(r io.Reader) (*Result, error) {
	rows, malformed, err := ParseCSV(r)
	if err != nil {
		return nil, err
	}
	return n.normalizeParsed(rows, malformed), nil
}

func (n *Normalizer) normalizeParsed(rows []Row, malformed []MalformedRow) *Result {
	result := n.Normalize(rows)
	for _, m := range malformed {
		result.Rows++
		result.Dropped++
		n.logger.WithFields(logrus.Fields{
			"line":   m.Line,
			"reason": m.Reason,
		}).Warn("Dropping malformed CSV record")
	}
	return result
}

func missingColumns(header []string) []string {
	present := make(map[string]bool, len(header))
	for _, h := range header {
		present[h] = true
	}

	var missing []string
	for _, field := range RequiredFields {
		if !present[field] {
			missing = append(missing, field)
		}
	}
	return missing
}

func blankRecord(record []string) bool {
	for _, cell := range record {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}
