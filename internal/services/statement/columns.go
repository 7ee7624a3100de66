package statement

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	colDate = iota
	colValueDate
	colReference
	colDescription
	colAmount
	colDebit
	colCredit
	colCount
)

// synonyms lists accepted header names per column, in preference order.
var synonyms = [colCount][]string{
	colDate:        {"date", "transaction_date", "trans_date", "txn_date", "posting_date", "value_date"},
	colValueDate:   {"value_date"},
	colReference:   {"reference", "ref", "reference_number", "ref_no", "transaction_id", "txn_id"},
	colDescription: {"description", "details", "narration", "memo", "particulars"},
	colAmount:      {"amount", "transaction_amount", "amt", "value"},
	colDebit:       {"debit", "withdrawal", "withdrawals", "debit_amount"},
	colCredit:      {"credit", "deposit", "deposits", "credit_amount"},
}

// columnMap holds the record index of each known column, or -1.
type columnMap [colCount]int

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(h))
	h = strings.NewReplacer(" ", "_", "-", "_").Replace(h)
	return strings.Trim(h, "_")
}

func mapColumns(header []string) (columnMap, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		name := normalizeHeader(h)
		if _, seen := index[name]; !seen {
			index[name] = i
		}
	}

	var cols columnMap
	for c := range cols {
		cols[c] = -1
		for _, name := range synonyms[c] {
			if i, ok := index[name]; ok {
				cols[c] = i
				break
			}
		}
	}

	var missing []string
	if cols[colDate] < 0 {
		missing = append(missing, "date")
	}
	if cols[colReference] < 0 {
		missing = append(missing, "reference")
	}
	if cols[colAmount] < 0 && cols[colDebit] < 0 && cols[colCredit] < 0 {
		missing = append(missing, "amount")
	}
	if len(missing) > 0 {
		return cols, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	return cols, nil
}

func (m columnMap) get(record []string, c int) string {
	i := m[c]
	if i < 0 || i >= len(record) {
		return ""
	}
	return strings.TrimSpace(record[i])
}

// hasValueDate reports whether value_date is a separate column from the
// transaction date.
func (m columnMap) hasValueDate() bool {
	return m[colValueDate] >= 0 && m[colValueDate] != m[colDate]
}

// amount returns the signed amount of a record. present is false when the
// record carries no amount at all. Split debit/credit columns are used only
// when no amount column exists.
func (m columnMap) amount(record []string) (decimal.Decimal, bool, error) {
	if m[colAmount] >= 0 {
		raw := m.get(record, colAmount)
		if raw == "" {
			return decimal.Zero, false, nil
		}
		d, err := ParseAmount(raw)
		return d, err == nil, err
	}

	rawDebit, rawCredit := m.get(record, colDebit), m.get(record, colCredit)
	if rawDebit == "" && rawCredit == "" {
		return decimal.Zero, false, nil
	}
	total := decimal.Zero
	if rawCredit != "" {
		credit, err := ParseAmount(rawCredit)
		if err != nil {
			return decimal.Zero, false, err
		}
		total = total.Add(credit.Abs())
	}
	if rawDebit != "" {
		debit, err := ParseAmount(rawDebit)
		if err != nil {
			return decimal.Zero, false, err
		}
		total = total.Sub(debit.Abs())
	}
	return total, true, nil
}
