// Package bank parses fixed-schema bank statement exports into candidate
// incoming payments.
package bank

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Header is the exact column list a statement must start with.
var Header = []string{
	"Transaction Date", "Transaction Type", "Sort Code", "Account Number",
	"Transaction Description", "Debit Amount", "Credit Amount", "Balance", "",
}

// incomingTypes are the transaction types that can carry a ticket payment:
// transfers, faster payments in, deposits. Everything else is skipped.
var incomingTypes = map[string]bool{"TFR": true, "FPI": true, "DEP": true}

var referenceRe = regexp.MustCompile(`^[A-Za-z0-9]{3,}/[0-9]{4,}$`)

// ErrUninteresting marks a statement line that is valid but not an incoming
// payment. Such lines are recorded, not treated as failures.
var ErrUninteresting = errors.New("uninteresting statement line")

// RejectError explains why a statement line cannot be processed. Rejected
// lines are written to the rejects stream; they never abort the batch.
type RejectError struct {
	What     string
	Actual   string
	Expected string
}

func (e *RejectError) Error() string {
	s := fmt.Sprintf("bad %s: %q", e.What, e.Actual)
	if e.Expected != "" {
		s += fmt.Sprintf("; expected %q", e.Expected)
	}
	return s
}

func Reject(what, actual, expected string) *RejectError {
	return &RejectError{What: what, Actual: actual, Expected: expected}
}

// Payment is one parsed incoming statement line.
type Payment struct {
	Date        time.Time
	Type        string
	Description string
	Reference   string
	AmountPence int
}

// Reader parses statement lines one at a time.
type Reader struct {
	csv           *csv.Reader
	sortCode      string
	accountNumber string
}

// NewReader checks the header row and returns a line reader. A header
// mismatch rejects the whole statement.
func NewReader(src io.Reader, sortCode, accountNumber string) (*Reader, error) {
	cr := csv.NewReader(src)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read statement header: %w", err)
	}
	if !equalRow(header, Header) {
		return nil, fmt.Errorf("unexpected statement header %q", header)
	}

	return &Reader{csv: cr, sortCode: sortCode, accountNumber: accountNumber}, nil
}

// Read returns the next parsed payment along with the raw row (for the
// rejects stream). It returns io.EOF at the end of the statement; a
// *RejectError or ErrUninteresting applies to this row only.
func (r *Reader) Read() (Payment, []string, error) {
	row, err := r.csv.Read()
	if err != nil {
		return Payment{}, nil, err
	}

	raw := row
	// Exports end each row with a trailing empty column matching the
	// header's empty heading.
	if len(row) == len(Header) && row[len(row)-1] == "" {
		row = row[:len(row)-1]
	}
	if len(row) != len(Header)-1 {
		return Payment{}, raw, Reject("column count", fmt.Sprintf("%d", len(raw)), fmt.Sprintf("%d", len(Header)))
	}

	date, txType, sortCode, accountNumber := row[0], row[1], row[2], row[3]
	description, debit, credit := row[4], row[5], row[6]

	if sortCode != r.sortCode || accountNumber != r.accountNumber {
		return Payment{}, raw, Reject("account",
			sortCode+" "+accountNumber, r.sortCode+" "+r.accountNumber)
	}

	if !incomingTypes[txType] {
		return Payment{}, raw, ErrUninteresting
	}

	if debit != "" {
		return Payment{}, raw, Reject("debit amount", debit, "")
	}
	if credit == "" {
		return Payment{}, raw, Reject("credit amount", credit, "")
	}

	when, err := time.Parse("02/01/2006", date)
	if err != nil {
		return Payment{}, raw, Reject("transaction date", date, "DD/MM/YYYY")
	}

	reference := ""
	for _, word := range strings.Fields(description) {
		if referenceRe.MatchString(word) {
			reference = word
			break
		}
	}
	if reference == "" {
		return Payment{}, raw, Reject("description", description, "")
	}

	amount, err := decimal.NewFromString(credit)
	if err != nil {
		return Payment{}, raw, Reject("credit amount", credit, "")
	}
	pence := amount.Shift(2)
	if !pence.IsInteger() {
		return Payment{}, raw, Reject("credit amount", credit, "whole pence")
	}

	return Payment{
		Date:        when,
		Type:        txType,
		Description: description,
		Reference:   reference,
		AmountPence: int(pence.IntPart()),
	}, raw, nil
}

func equalRow(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// RejectsWriter copies rejected rows, preserving their original columns and
// appending the rejection reason.
type RejectsWriter struct {
	csv *csv.Writer
}

func NewRejectsWriter(w io.Writer) (*RejectsWriter, error) {
	cw := csv.NewWriter(w)
	header := append(append([]string{}, Header[:len(Header)-1]...), "error")
	if err := cw.Write(header); err != nil {
		return nil, fmt.Errorf("write rejects header: %w", err)
	}
	return &RejectsWriter{csv: cw}, nil
}

func (w *RejectsWriter) Write(row []string, reason string) error {
	out := append(append([]string{}, row...), reason)
	if err := w.csv.Write(out); err != nil {
		return fmt.Errorf("write reject row: %w", err)
	}
	return nil
}

func (w *RejectsWriter) Flush() error {
	w.csv.Flush()
	return w.csv.Error()
}
