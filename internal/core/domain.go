package core

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	USD Currency = "USD"
	TRY Currency = "TRY"
)

const (
	IncomeReceived IncomeStatus = "received"
	IncomeExpected IncomeStatus = "expected"
)

const (
	IncomeFreelance   IncomeCategory = "freelance"
	IncomeStudent     IncomeCategory = "student"
	IncomeRent        IncomeCategory = "rent"
	IncomeVideography IncomeCategory = "videography"
	IncomeOther       IncomeCategory = "other"
)

const (
	ExpenseRecurring ExpenseType = "recurring"
	ExpenseOneTime   ExpenseType = "one-time"
)

const (
	DebtPending DebtStatus = "pending"
	DebtPaid    DebtStatus = "paid"
)

const (
	KindIncome  Kind = "income"
	KindExpense Kind = "expense"
	KindDebt    Kind = "debt"
	KindAsset   Kind = "asset"
)

type (
	Currency       string
	IncomeStatus   string
	IncomeCategory string
	ExpenseType    string
	DebtStatus     string

	// Kind discriminates the four record collections.
	Kind string

	Income struct {
		ID       string         `json:"id"`
		Title    string         `json:"title" validate:"required,max=200"`
		Amount   float64        `json:"amount" validate:"gte=0"`
		Currency Currency       `json:"currency" validate:"oneof=USD TRY"`
		Category IncomeCategory `json:"category" validate:"oneof=freelance student rent videography other"`
		Date     time.Time      `json:"date"`
		Status   IncomeStatus   `json:"status" validate:"oneof=received expected"`
	}

	Expense struct {
		ID       string      `json:"id"`
		Title    string      `json:"title" validate:"required,max=200"`
		Amount   float64     `json:"amount" validate:"gte=0"`
		Currency Currency    `json:"currency" validate:"oneof=USD TRY"`
		Date     time.Time   `json:"date"`
		Type     ExpenseType `json:"type" validate:"oneof=recurring one-time"`
		Category string      `json:"category,omitempty" validate:"max=100"`
	}

	Debt struct {
		ID         string     `json:"id"`
		Title      string     `json:"title" validate:"required,max=200"`
		Amount     float64    `json:"amount" validate:"gte=0"`
		Currency   Currency   `json:"currency" validate:"oneof=USD TRY"`
		Creditor   string     `json:"creditor" validate:"max=200"`
		Deadline   time.Time  `json:"deadline"`
		IsLongTerm bool       `json:"is_long_term"`
		Status     DebtStatus `json:"status" validate:"oneof=pending paid"`
	}

	// Asset prices are always quoted in USD.
	Asset struct {
		ID           string  `json:"id"`
		Title        string  `json:"title" validate:"required,max=200"`
		Type         string  `json:"type" validate:"required,max=100"`
		Amount       float64 `json:"amount" validate:"gte=0"`
		Unit         string  `json:"unit" validate:"required,max=50"`
		CurrentPrice float64 `json:"current_price" validate:"gte=0"`
	}

	// Records is a read-only snapshot of one user's data.
	Records struct {
		Incomes  []Income  `json:"incomes"`
		Expenses []Expense `json:"expenses"`
		Debts    []Debt    `json:"debts"`
		Assets   []Asset   `json:"assets"`
	}
)

var (
	ErrValidation      = errors.New("validation failed")
	ErrInvalidCurrency = errors.New("invalid currency")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrEmptyTitle      = errors.New("empty title")
	ErrInvalidDate     = errors.New("invalid date")
	ErrInvalidStatus   = errors.New("invalid status")
	ErrInvalidCategory = errors.New("invalid category")
	ErrInvalidType     = errors.New("invalid type")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// NoFixedDeadline marks a debt without a due date.
var NoFixedDeadline = time.Date(2099, time.January, 1, 0, 0, 0, 0, time.UTC)

// IsNoFixedDeadline matches the sentinel by calendar date only.
func IsNoFixedDeadline(t time.Time) bool {
	y, m, d := t.Date()
	return y == NoFixedDeadline.Year() && m == NoFixedDeadline.Month() && d == NoFixedDeadline.Day()
}

// ParseCurrency accepts USD and TRY in any case. An empty string is USD.
func ParseCurrency(s string) (Currency, error) {
	switch c := Currency(strings.ToUpper(strings.TrimSpace(s))); c {
	case "":
		return USD, nil
	case USD, TRY:
		return c, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, s)
	}
}

// NormalizeCurrency maps the legacy empty value to USD.
func NormalizeCurrency(c Currency) Currency {
	if strings.TrimSpace(string(c)) == "" {
		return USD
	}
	return Currency(strings.ToUpper(strings.TrimSpace(string(c))))
}

func (c Currency) Valid() bool {
	return c == USD || c == TRY
}

func (c Currency) Symbol() string {
	if c == TRY {
		return "₺"
	}
	return "$"
}

func (c Currency) String() string { return string(c) }

func (i Income) RecordID() string  { return i.ID }
func (e Expense) RecordID() string { return e.ID }
func (d Debt) RecordID() string    { return d.ID }
func (a Asset) RecordID() string   { return a.ID }

func (i Income) WithID(id string) Income   { i.ID = id; return i }
func (e Expense) WithID(id string) Expense { e.ID = id; return e }
func (d Debt) WithID(id string) Debt       { d.ID = id; return d }
func (a Asset) WithID(id string) Asset     { a.ID = id; return a }

func (i Income) Normalize() Income {
	i.Title = strings.TrimSpace(i.Title)
	i.Currency = NormalizeCurrency(i.Currency)
	return i
}

func (e Expense) Normalize() Expense {
	e.Title = strings.TrimSpace(e.Title)
	e.Category = strings.TrimSpace(e.Category)
	e.Currency = NormalizeCurrency(e.Currency)
	return e
}

func (d Debt) Normalize() Debt {
	d.Title = strings.TrimSpace(d.Title)
	d.Creditor = strings.TrimSpace(d.Creditor)
	d.Currency = NormalizeCurrency(d.Currency)
	return d
}

func (a Asset) Normalize() Asset {
	a.Title = strings.TrimSpace(a.Title)
	a.Type = strings.TrimSpace(a.Type)
	a.Unit = strings.TrimSpace(a.Unit)
	return a
}

func (i Income) Validate() error {
	if err := validateAmount(i.Amount); err != nil {
		return err
	}
	if i.Date.IsZero() {
		return invalid(ErrInvalidDate)
	}
	return validateStruct(i)
}

func (e Expense) Validate() error {
	if err := validateAmount(e.Amount); err != nil {
		return err
	}
	if e.Date.IsZero() {
		return invalid(ErrInvalidDate)
	}
	return validateStruct(e)
}

func (d Debt) Validate() error {
	if err := validateAmount(d.Amount); err != nil {
		return err
	}
	if d.Deadline.IsZero() {
		return invalid(ErrInvalidDate)
	}
	return validateStruct(d)
}

func (a Asset) Validate() error {
	if err := validateAmount(a.Amount); err != nil {
		return err
	}
	if err := validateAmount(a.CurrentPrice); err != nil {
		return err
	}
	return validateStruct(a)
}

// IsEmpty reports whether the snapshot has no records at all.
func (r Records) IsEmpty() bool {
	return len(r.Incomes) == 0 && len(r.Expenses) == 0 && len(r.Debts) == 0 && len(r.Assets) == 0
}

func validateAmount(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return invalid(ErrInvalidAmount)
	}
	return nil
}

func invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrValidation, err)
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return invalid(err)
	}
	fe := verrs[0]
	switch fe.Field() {
	case "Title":
		if fe.Tag() == "required" {
			return invalid(ErrEmptyTitle)
		}
		return invalid(errors.New("title too long (max 200 characters)"))
	case "Amount", "CurrentPrice":
		return invalid(ErrInvalidAmount)
	case "Currency":
		return invalid(ErrInvalidCurrency)
	case "Status":
		return invalid(ErrInvalidStatus)
	case "Category":
		return invalid(ErrInvalidCategory)
	case "Type":
		return invalid(ErrInvalidType)
	default:
		return invalid(fmt.Errorf("%s failed %q", strings.ToLower(fe.Field()), fe.Tag()))
	}
}
