// Package summary derives dashboard figures from a snapshot of records.
// Summarize does no I/O and never modifies its input.
package summary

import (
	"fmt"
	"math"
	"sort"
	"time"

	"cuzdan/internal/core"
)

const (
	UpcomingIncomeWindow = 60 * 24 * time.Hour
	UrgentDebtWindow     = 7 * 24 * time.Hour
)

// Converter is the part of currency.Converter the engine needs.
type Converter interface {
	Convert(amount float64, from, to core.Currency) (float64, error)
	Rate() float64
}

type Options struct {
	DisplayCurrency     core.Currency
	IncludeLongTermDebt bool
	Now                 time.Time
}

// Summarize computes every dashboard figure in opts.DisplayCurrency. Each
// record is converted from its own currency before it is added to a total.
// The only error is core.ErrInvalidCurrency for a malformed currency code.
func Summarize(records core.Records, conv Converter, opts Options) (core.Summary, error) {
	display := core.NormalizeCurrency(opts.DisplayCurrency)
	if !display.Valid() {
		return core.Summary{}, fmt.Errorf("%w: display currency %q", core.ErrInvalidCurrency, opts.DisplayCurrency)
	}
	now := opts.Now

	s := core.Summary{
		DisplayCurrency:     display,
		Rate:                conv.Rate(),
		IncludeLongTermDebt: opts.IncludeLongTermDebt,
		UrgentDebts:         []core.UrgentDebt{},
		GeneratedAt:         now,
	}
	in := func(amount float64, from core.Currency) (float64, error) {
		return conv.Convert(amount, core.NormalizeCurrency(from), display)
	}

	upcomingLimit := now.Add(UpcomingIncomeWindow)
	for _, inc := range records.Incomes {
		v, err := in(inc.Amount, inc.Currency)
		if err != nil {
			return core.Summary{}, fmt.Errorf("income %s: %w", inc.ID, err)
		}
		switch inc.Status {
		case core.IncomeReceived:
			s.ReceivedIncomeTotal += v
		case core.IncomeExpected:
			if !inc.Date.After(upcomingLimit) {
				s.UpcomingIncome += v
			}
		}
	}

	for _, exp := range records.Expenses {
		v, err := in(exp.Amount, exp.Currency)
		if err != nil {
			return core.Summary{}, fmt.Errorf("expense %s: %w", exp.ID, err)
		}
		s.TotalExpenses += v
		if exp.Type == core.ExpenseRecurring {
			s.MonthlyExpenses += v
		}
	}

	urgentLimit := now.Add(UrgentDebtWindow)
	for _, d := range records.Debts {
		if d.Status != core.DebtPending {
			continue
		}
		v, err := in(d.Amount, d.Currency)
		if err != nil {
			return core.Summary{}, fmt.Errorf("debt %s: %w", d.ID, err)
		}
		if d.IsLongTerm {
			s.LongTermDebt += v
			continue
		}
		s.ShortTermDebt += v
		if isUrgent(d.Deadline, now, urgentLimit) {
			s.UrgentDebts = append(s.UrgentDebts, core.UrgentDebt{
				Debt:            d,
				ConvertedAmount: v,
				DaysLeft:        daysLeft(d.Deadline, now),
			})
		}
	}
	sort.SliceStable(s.UrgentDebts, func(i, j int) bool {
		return s.UrgentDebts[i].Deadline.Before(s.UrgentDebts[j].Deadline)
	})

	for _, a := range records.Assets {
		v, err := conv.Convert(a.Amount*a.CurrentPrice, core.USD, display)
		if err != nil {
			return core.Summary{}, fmt.Errorf("asset %s: %w", a.ID, err)
		}
		s.SavingsValue += v
	}

	s.CurrentCash = s.ReceivedIncomeTotal - s.TotalExpenses
	s.AvailableBalance = s.CurrentCash + s.UpcomingIncome - s.ShortTermDebt - s.MonthlyExpenses
	s.NetWorth = s.AvailableBalance
	if opts.IncludeLongTermDebt {
		s.NetWorth -= s.LongTermDebt
	}
	return s, nil
}

// isUrgent reports whether deadline is within [now, limit]. Debts without a
// fixed date are never urgent.
func isUrgent(deadline, now, limit time.Time) bool {
	if core.IsNoFixedDeadline(deadline) {
		return false
	}
	return !deadline.Before(now) && !deadline.After(limit)
}

func daysLeft(deadline, now time.Time) int {
	return int(math.Ceil(deadline.Sub(now).Hours() / 24))
}
