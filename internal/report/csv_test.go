package report

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cuzdan/internal/core"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sample() (core.Records, core.Summary) {
	records := core.Records{
		Incomes: []core.Income{
			{Title: "Logo design", Amount: 750, Currency: core.USD, Category: core.IncomeFreelance, Date: day(2025, 5, 2), Status: core.IncomeReceived},
			{Title: "Flat rent", Amount: 15000, Currency: core.TRY, Category: core.IncomeRent, Date: day(2025, 6, 1), Status: core.IncomeExpected},
		},
		Expenses: []core.Expense{
			{Title: "Groceries", Amount: 1234.5, Currency: core.TRY, Date: day(2025, 5, 3), Type: core.ExpenseOneTime},
			{Title: "Phone", Amount: 20, Currency: core.USD, Date: day(2025, 5, 4), Type: core.ExpenseRecurring, Category: "Utilities"},
		},
		Debts: []core.Debt{
			{Title: "Card", Amount: 3000, Currency: core.TRY, Creditor: "Akbank", Deadline: day(2025, 5, 20), Status: core.DebtPending},
			{Title: "Family loan", Amount: 2000, Currency: core.USD, Creditor: "Mom", Deadline: core.NoFixedDeadline, IsLongTerm: true, Status: core.DebtPending},
			{Title: "Old loan", Amount: 100, Currency: core.USD, Creditor: "Ali", Deadline: day(2025, 1, 1), Status: core.DebtPaid},
		},
		Assets: []core.Asset{
			{Title: "Gold", Type: "gold", Amount: 1.5, Unit: "oz", CurrentPrice: 2333.33},
		},
	}
	summary := core.Summary{
		DisplayCurrency:  core.USD,
		Rate:             30,
		AvailableBalance: -12500,
		NetWorth:         250,
		UpcomingIncome:   500,
		MonthlyExpenses:  20,
		ShortTermDebt:    100,
		LongTermDebt:     2000,
		SavingsValue:     3500,
	}
	return records, summary
}

func TestExportCSV(t *testing.T) {
	records, summary := sample()

	out, err := ExportCSV(records, summary)
	require.NoError(t, err)

	want := strings.Join([]string{
		"Type,Title,Amount,Status,Date,Notes",
		"Income,Logo design,750 USD,received,2025-05-02,freelance",
		"Income,Flat rent,15000 TRY (~ 500 USD),expected,2025-06-01,rent",
		"Expense,Groceries,1234.5 TRY (~ 41 USD),one-time,2025-05-03,N/A",
		"Expense,Phone,20 USD,recurring,2025-05-04,Utilities",
		"Debt,Card,3000 TRY (~ 100 USD),Short-Term,2025-05-20,Creditor: Akbank",
		"Debt,Family loan,2000 USD,Long-Term,No fixed date,Creditor: Mom",
		"Debt,Old loan,100 USD,Short-Term (Paid),2025-01-01,Creditor: Ali",
		"Asset,Gold,1.5 oz,Current Value: $3500,N/A,Type: gold",
		"",
		"",
		"FINANCIAL SUMMARY",
		`Available Balance,"$12,500",Negative`,
		"Net Worth,$250,Positive",
		"Upcoming Income,$500",
		"Monthly Expenses,$20",
		"Short-Term Debt,$100",
		"Long-Term Debt,\"$2,000\"",
		"Assets Value,\"$3,500\"",
		"Exchange Rate,1 USD = 30 TRY",
		"",
	}, "\n")
	assert.Equal(t, want, string(out))
}

func TestExportCSVDeterministic(t *testing.T) {
	records, summary := sample()

	a, err := ExportCSV(records, summary)
	require.NoError(t, err)
	b, err := ExportCSV(records, summary)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestExportCSVEmpty(t *testing.T) {
	out, err := ExportCSV(core.Records{}, core.Summary{DisplayCurrency: core.TRY, Rate: 38.76})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(string(out), "\n"), "\n")
	assert.Equal(t, "Type,Title,Amount,Status,Date,Notes", lines[0])
	assert.Contains(t, lines, "Net Worth,₺0,Positive")
	assert.Equal(t, "Exchange Rate,1 USD = 38.76 TRY", lines[len(lines)-1])
}

func TestExportCSVQuotesCommas(t *testing.T) {
	records := core.Records{Debts: []core.Debt{
		{Title: "Loan, part 2", Amount: 5, Currency: core.USD, Creditor: "Bank", Deadline: day(2025, 2, 1), Status: core.DebtPending},
	}}
	out, err := ExportCSV(records, core.Summary{Rate: 30})
	require.NoError(t, err)
	assert.Contains(t, string(out), `Debt,"Loan, part 2",5 USD,Short-Term,2025-02-01,Creditor: Bank`)
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "financial-report-2025-03-07.csv", Filename(time.Date(2025, 3, 7, 23, 0, 0, 0, time.UTC)))
}
