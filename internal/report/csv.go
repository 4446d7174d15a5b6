// Package report renders a user's records and summary as a flat CSV document.
package report

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"

	"cuzdan/internal/core"
)

const (
	dateLayout  = "2006-01-02"
	noFixedDate = "No fixed date"
	notApplic   = "N/A"
)

// Header is the first row of every export.
var Header = []string{"Type", "Title", "Amount", "Status", "Date", "Notes"}

// Filename is the download name for an export produced at now.
func Filename(now time.Time) string {
	return "financial-report-" + now.Format(dateLayout) + ".csv"
}

// Rows returns every record row followed by the summary block. Records keep
// their input order; the rate used for the "~ USD" hints is s.Rate.
func Rows(records core.Records, s core.Summary) [][]string {
	rate := s.Rate
	if !core.ValidRate(rate) {
		rate = core.DefaultRate
	}

	rows := make([][]string, 0, 1+len(records.Incomes)+len(records.Expenses)+len(records.Debts)+len(records.Assets)+12)
	rows = append(rows, Header)

	for _, in := range records.Incomes {
		rows = append(rows, []string{
			"Income", in.Title, nativeAmount(in.Amount, in.Currency, rate),
			string(in.Status), in.Date.Format(dateLayout), string(in.Category),
		})
	}
	for _, ex := range records.Expenses {
		note := ex.Category
		if note == "" {
			note = notApplic
		}
		rows = append(rows, []string{
			"Expense", ex.Title, nativeAmount(ex.Amount, ex.Currency, rate),
			string(ex.Type), ex.Date.Format(dateLayout), note,
		})
	}
	for _, d := range records.Debts {
		rows = append(rows, []string{
			"Debt", d.Title, nativeAmount(d.Amount, d.Currency, rate),
			debtStatus(d), deadline(d.Deadline), "Creditor: " + d.Creditor,
		})
	}
	for _, a := range records.Assets {
		value := core.RoundUnits(a.Amount * a.CurrentPrice)
		rows = append(rows, []string{
			"Asset", a.Title, plain(a.Amount) + " " + a.Unit,
			"Current Value: $" + plain(value), notApplic, "Type: " + a.Type,
		})
	}

	return append(rows, summaryBlock(s, rate)...)
}

// Write streams rows as CSV to w.
func Write(w io.Writer, rows [][]string) error {
	cw := csv.NewWriter(w)
	cw.UseCRLF = false
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write csv: %w", err)
	}
	return nil
}

// ExportCSV renders records and summary into one CSV document. Identical
// input produces byte-identical output.
func ExportCSV(records core.Records, s core.Summary) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, Rows(records, s)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func summaryBlock(s core.Summary, rate float64) [][]string {
	p := message.NewPrinter(language.English)
	sym := core.NormalizeCurrency(s.DisplayCurrency).Symbol()
	money := func(v float64) string {
		return sym + p.Sprint(number.Decimal(v, number.MaxFractionDigits(2)))
	}
	signed := func(label string, v float64) []string {
		word := "Positive"
		if v < 0 {
			word = "Negative"
		}
		abs := v
		if abs < 0 {
			abs = -abs
		}
		return []string{label, money(abs), word}
	}

	return [][]string{
		{},
		{},
		{"FINANCIAL SUMMARY"},
		signed("Available Balance", s.AvailableBalance),
		signed("Net Worth", s.NetWorth),
		{"Upcoming Income", money(s.UpcomingIncome)},
		{"Monthly Expenses", money(s.MonthlyExpenses)},
		{"Short-Term Debt", money(s.ShortTermDebt)},
		{"Long-Term Debt", money(s.LongTermDebt)},
		{"Assets Value", money(s.SavingsValue)},
		{"Exchange Rate", "1 USD = " + plain(rate) + " TRY"},
	}
}

func nativeAmount(amount float64, c core.Currency, rate float64) string {
	if core.NormalizeCurrency(c) == core.TRY {
		return fmt.Sprintf("%s TRY (~ %s USD)", plain(amount), plain(core.RoundUnits(amount/rate)))
	}
	return plain(amount) + " USD"
}

func debtStatus(d core.Debt) string {
	status := "Short-Term"
	if d.IsLongTerm {
		status = "Long-Term"
	}
	if d.Status == core.DebtPaid {
		status += " (Paid)"
	}
	return status
}

func deadline(t time.Time) string {
	if core.IsNoFixedDeadline(t) {
		return noFixedDate
	}
	return t.Format(dateLayout)
}

// plain formats v in its shortest exact decimal form, without grouping.
func plain(v float64) string {
	return decimal.NewFromFloat(v).String()
}
