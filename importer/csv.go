/*
Package importer reads monthly payroll exports into engine.ImportRow values.

PURPOSE:
  Payroll software and spreadsheets export the month's figures as CSV with
  French or English headers, a ';' or ',' delimiter and locale-formatted
  numbers ("1 234,56 €"). ParseCSV normalizes all of that so the payroll
  service only ever sees clean rows with exact Money values.

HEADERS:
  Matching ignores case, accents and punctuation, so "Prénom",
  "PRENOM" and "first_name" are the same column. See columnAliases.

  Required: net salary, charges, and either an employee ref column or both
  name columns. Everything else is optional.

CELLS:
  Blank amount cells read as 0.00. Blank revenue and tax percentage cells
  are "absent", which lets a re-import keep the values already stored.
  A cell that cannot be parsed rejects the row, not the file.

SEE ALSO:
  - money/locale.go: ParseLocale
  - payroll/import.go: what happens to the rows next
*/
package importer

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/salonops/finance-engine/engine"
	"github.com/salonops/finance-engine/money"
)

// ErrMissingColumn is returned when a required column is absent.
var ErrMissingColumn = errors.New("missing required column")

type column string

const (
	colEmployeeRef column = "employee_ref"
	colLastName    column = "last_name"
	colFirstName   column = "first_name"
	colNetSalary   column = "net_salary"
	colGrossSalary column = "gross_salary"
	colTotalCost   column = "total_cost"
	colCharges     column = "charges"
	colRevenue     column = "revenue"
	colTax         column = "tax_percentage"
)

// columnAliases maps folded header text to a column.
var columnAliases = map[string]column{
	"employee_ref": colEmployeeRef, "employee_id": colEmployeeRef, "matricule": colEmployeeRef, "ref": colEmployeeRef,

	"last_name": colLastName, "lastname": colLastName, "surname": colLastName, "nom": colLastName,

	"first_name": colFirstName, "firstname": colFirstName, "prenom": colFirstName,

	"net_salary": colNetSalary, "net": colNetSalary, "salaire_net": colNetSalary, "net_a_payer": colNetSalary,

	"gross_salary": colGrossSalary, "gross": colGrossSalary, "salaire_brut": colGrossSalary, "brut": colGrossSalary,

	"total_cost": colTotalCost, "cout_total": colTotalCost, "cout_employeur": colTotalCost,

	"charges": colCharges, "charges_sociales": colCharges, "cotisations": colCharges,

	"revenue": colRevenue, "generated_revenue": colRevenue, "ca": colRevenue, "chiffre_d_affaires": colRevenue,

	"tax_percentage": colTax, "tax": colTax, "taux": colTax, "taux_prise_en_charge": colTax,
}

// Options tunes parsing.
type Options struct {
	// Delimiter is detected from the header line when zero.
	Delimiter rune
}

// Result holds parsed rows and the rows that could not be parsed.
type Result struct {
	Rows   []engine.ImportRow
	Errors []*engine.RowError
}

// ParseCSV reads a payroll export. Line numbers in rows and errors are
// 1-based file lines, the header being line 1.
func ParseCSV(r io.Reader, opts Options) (Result, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Result{}, fmt.Errorf("read csv: %w", err)
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))

	reader := csv.NewReader(bytes.NewReader(data))
	reader.Comma = opts.Delimiter
	if reader.Comma == 0 {
		reader.Comma = detectDelimiter(data)
	}
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if err != nil {
		return Result{}, fmt.Errorf("read csv header: %w", err)
	}
	index := map[column]int{}
	for i, h := range headers {
		if col, ok := columnAliases[foldHeader(h)]; ok {
			if _, dup := index[col]; !dup {
				index[col] = i
			}
		}
	}
	if err := checkColumns(index); err != nil {
		return Result{}, err
	}

	var res Result
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return res, fmt.Errorf("read csv: %w", err)
		}
		line, _ := reader.FieldPos(0)
		if blank(record) {
			continue
		}

		row, err := parseRow(index, record)
		if err != nil {
			res.Errors = append(res.Errors, &engine.RowError{Line: line, Err: err})
			continue
		}
		row.Line = line
		res.Rows = append(res.Rows, row)
	}
	return res, nil
}

func checkColumns(index map[column]int) error {
	_, hasRef := index[colEmployeeRef]
	_, hasLast := index[colLastName]
	_, hasFirst := index[colFirstName]
	if !hasRef && !(hasLast && hasFirst) {
		return fmt.Errorf("%w: employee_ref or last_name + first_name", ErrMissingColumn)
	}
	for _, c := range []column{colNetSalary, colCharges} {
		if _, ok := index[c]; !ok {
			return fmt.Errorf("%w: %s", ErrMissingColumn, c)
		}
	}
	return nil
}

func parseRow(index map[column]int, record []string) (engine.ImportRow, error) {
	get := func(c column) string {
		if i, ok := index[c]; ok && i < len(record) {
			return strings.TrimSpace(record[i])
		}
		return ""
	}

	row := engine.ImportRow{
		EmployeeRef: engine.EmployeeID(get(colEmployeeRef)),
		LastName:    get(colLastName),
		FirstName:   get(colFirstName),
	}

	for _, f := range []struct {
		col column
		dst *money.Money
	}{
		{colNetSalary, &row.NetSalary},
		{colGrossSalary, &row.GrossSalary},
		{colTotalCost, &row.TotalCost},
		{colCharges, &row.Charges},
	} {
		m, err := parseAmount(get(f.col))
		if err != nil {
			return row, fmt.Errorf("%s: %w", f.col, err)
		}
		*f.dst = m
	}

	if s := get(colRevenue); s != "" {
		m, err := parseAmount(s)
		if err != nil {
			return row, fmt.Errorf("%s: %w", colRevenue, err)
		}
		row.GeneratedRevenue = &m
	}
	if s := get(colTax); s != "" {
		p, err := parsePercentage(s)
		if err != nil {
			return row, fmt.Errorf("%s: %w", colTax, err)
		}
		row.TaxPercentage = &p
	}
	return row, nil
}

func parseAmount(s string) (money.Money, error) {
	if s == "" {
		return money.Zero, nil
	}
	m, err := money.ParseLocale(s)
	if err != nil {
		return money.Zero, fmt.Errorf("%w: %v", engine.ErrInvalidAmount, err)
	}
	return m, nil
}

// parsePercentage accepts "50", "50 %", "12,5".
func parsePercentage(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "%"))
	s = strings.ReplaceAll(s, ",", ".")
	p, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", engine.ErrInvalidTaxPercentage, s)
	}
	return p, nil
}

// detectDelimiter picks the most frequent of ';', ',' and tab on the
// header line.
func detectDelimiter(data []byte) rune {
	first := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		first = data[:i]
	}
	best, bestCount := ',', 0
	for _, c := range []rune{';', ',', '\t'} {
		if n := bytes.Count(first, []byte(string(c))); n > bestCount {
			best, bestCount = c, n
		}
	}
	return best
}

// foldHeader turns "Chiffre d'Affaires" into "chiffre_d_affaires".
func foldHeader(h string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, strings.ToLower(strings.TrimSpace(h)))
	if err != nil {
		folded = strings.ToLower(h)
	}
	var b strings.Builder
	underscore := false
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			underscore = false
		} else if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	return strings.TrimSuffix(b.String(), "_")
}

func blank(record []string) bool {
	for _, c := range record {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
