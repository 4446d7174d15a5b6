package core

import "time"

// Summary is the derived view of one user's records in a display currency.
type Summary struct {
	DisplayCurrency     Currency `json:"display_currency"`
	Rate                float64  `json:"rate"`
	IncludeLongTermDebt bool     `json:"include_long_term_debt"`

	ReceivedIncomeTotal float64 `json:"received_income_total"`
	TotalExpenses       float64 `json:"total_expenses"`
	CurrentCash         float64 `json:"current_cash"`
	UpcomingIncome      float64 `json:"upcoming_income"`
	ShortTermDebt       float64 `json:"short_term_debt"`
	LongTermDebt        float64 `json:"long_term_debt"`
	MonthlyExpenses     float64 `json:"monthly_expenses"`
	SavingsValue        float64 `json:"savings_value"`
	AvailableBalance    float64 `json:"available_balance"`
	NetWorth            float64 `json:"net_worth"`

	UrgentDebts []UrgentDebt `json:"urgent_debts"`
	GeneratedAt time.Time    `json:"generated_at"`
}

// UrgentDebt is a pending short-term debt due within the alert window.
type UrgentDebt struct {
	Debt
	ConvertedAmount float64 `json:"converted_amount"`
	DaysLeft        int     `json:"days_left"`
}

// ExchangeRate is the singleton rate for a currency pair.
type ExchangeRate struct {
	From      Currency  `json:"from"`
	To        Currency  `json:"to"`
	Rate      float64   `json:"rate"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Settings are the durable per-user display preferences.
type Settings struct {
	UserID               string    `json:"-"`
	DisplayCurrency      Currency  `json:"default_currency"`
	IncludeLongTermDebt  bool      `json:"include_long_term_debt"`
	NotificationsEnabled bool      `json:"notifications_enabled"`
	RateValue            float64   `json:"exchange_rate_value,omitempty"`
	RateUpdatedAt        time.Time `json:"exchange_rate_last_updated,omitempty"`
}

// DefaultSettings is what a user without a settings row gets.
func DefaultSettings(userID string) Settings {
	return Settings{UserID: userID, DisplayCurrency: USD}
}

type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}
