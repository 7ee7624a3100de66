// Package statement turns raw bank statement files into normalized
// transaction candidates.
package statement

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"bank-reconciliation-backend/internal/models"
)

var (
	ErrUnsupportedImportType = errors.New("unsupported import type")
	ErrMissingColumns        = errors.New("statement header is missing required columns")
	ErrEmptyFile             = errors.New("statement file is empty")
)

const ImportTypeCSV = "csv"

// Candidate is one parsed statement line. Amount is unsigned.
type Candidate struct {
	Row             int
	TransactionDate time.Time
	ValueDate       *time.Time
	Reference       string
	Description     string
	Amount          decimal.Decimal
	Type            models.TransactionType
	DateFallback    bool // date was unparseable and set to the parse day
}

type RowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// Result is the outcome of parsing one file. TotalRows counts data rows, not
// the header.
type Result struct {
	Candidates []Candidate
	TotalRows  int
	Skipped    int
	Failed     []RowError
}

type Parser struct {
	now func() time.Time
}

func NewParser() *Parser {
	return &Parser{now: time.Now}
}

// WithClock sets the clock used for the date fallback.
func (p *Parser) WithClock(now func() time.Time) *Parser {
	p.now = now
	return p
}

// Parse reads content according to importType. Only csv is implemented.
func (p *Parser) Parse(content []byte, importType string) (*Result, error) {
	switch strings.ToLower(strings.TrimSpace(importType)) {
	case ImportTypeCSV, "":
		return p.parseCSV(content)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedImportType, importType)
	}
}

func (p *Parser) parseCSV(content []byte) (*Result, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, ErrEmptyFile
	}

	reader := csv.NewReader(bytes.NewReader(content))
	reader.Comma = detectDelimiter(content)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read statement header: %w", err)
	}
	cols, err := mapColumns(header)
	if err != nil {
		return nil, err
	}

	result := &Result{}
	row := 1
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		row++
		if err != nil {
			result.TotalRows++
			result.Failed = append(result.Failed, RowError{Row: row, Reason: err.Error()})
			continue
		}
		if isBlank(record) {
			continue
		}
		result.TotalRows++

		c, skip, err := p.parseRow(cols, record)
		switch {
		case err != nil:
			result.Failed = append(result.Failed, RowError{Row: row, Reason: err.Error()})
		case skip:
			result.Skipped++
		default:
			c.Row = row
			result.Candidates = append(result.Candidates, c)
		}
	}
	return result, nil
}

func (p *Parser) parseRow(cols columnMap, record []string) (Candidate, bool, error) {
	rawDate := cols.get(record, colDate)
	reference := cols.get(record, colReference)
	if rawDate == "" || reference == "" {
		return Candidate{}, true, nil
	}

	amount, present, err := cols.amount(record)
	if err != nil {
		return Candidate{}, false, err
	}
	if !present {
		return Candidate{}, true, nil
	}

	c := Candidate{
		Reference:   reference,
		Description: cols.get(record, colDescription),
		Amount:      amount.Abs(),
		Type:        models.TransactionTypeCredit,
	}
	if amount.IsNegative() {
		c.Type = models.TransactionTypeDebit
	}

	if d, ok := ParseDate(rawDate); ok {
		c.TransactionDate = d
	} else {
		c.TransactionDate = models.DateOnly(p.now())
		c.DateFallback = true
	}
	if cols.hasValueDate() {
		if d, ok := ParseDate(cols.get(record, colValueDate)); ok {
			c.ValueDate = &d
		}
	}
	return c, false, nil
}

func isBlank(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

// detectDelimiter picks comma, tab or semicolon from the header line.
func detectDelimiter(content []byte) rune {
	line := content
	if i := bytes.IndexByte(content, '\n'); i >= 0 {
		line = content[:i]
	}
	best, bestCount := ',', bytes.Count(line, []byte{','})
	for _, d := range []rune{'\t', ';'} {
		if n := bytes.Count(line, []byte(string(d))); n > bestCount {
			best, bestCount = d, n
		}
	}
	return best
}
