package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cuzdan/internal/core"
	"cuzdan/internal/log"
	"cuzdan/internal/store/memory"
)

type alertFixture struct {
	store    *memory.Store
	settings *SettingsService
	mailer   *recordingMailer
	svc      *AlertService
}

func newAlertFixture(t *testing.T) alertFixture {
	t.Helper()
	ctx := context.Background()
	st := memory.New()
	settings := NewSettingsService(st, nil, log.Discard())
	dashboard := NewDashboardService(st, settings, liveRate(30), log.Discard(), WithDashboardClock(fixedNow))
	mailer := &recordingMailer{}

	recs := NewRecordServices(st, log.Discard())
	for _, email := range []string{"alice@example.com", "bob@example.com", "carol@example.com"} {
		u, err := st.CreateUser(ctx, core.User{ID: strings.Split(email, "@")[0], Email: email})
		require.NoError(t, err)
		_, err = recs.Debts.Create(ctx, u.ID, core.Debt{Title: "Card", Amount: 300, Currency: core.TRY, Creditor: "Bank", Deadline: day(3), Status: core.DebtPending})
		require.NoError(t, err)
	}
	// carol opted in but has nothing urgent
	_, err := recs.Debts.Update(ctx, "carol", mustFirstDebt(t, st, "carol"), core.Debt{Title: "Card", Amount: 300, Deadline: day(30), Status: core.DebtPending})
	require.NoError(t, err)

	for _, id := range []string{"alice", "carol"} {
		_, err := settings.Update(ctx, id, SettingsUpdate{NotificationsEnabled: ptr(true)})
		require.NoError(t, err)
	}

	return alertFixture{
		store:    st,
		settings: settings,
		mailer:   mailer,
		svc:      NewAlertService(st, settings, dashboard, mailer, log.Discard()),
	}
}

func mustFirstDebt(t *testing.T, st *memory.Store, userID string) string {
	t.Helper()
	debts, err := st.Debts().List(context.Background(), userID)
	require.NoError(t, err)
	require.NotEmpty(t, debts)
	return debts[0].ID
}

func TestAlertServiceNotifiesOptedInUsersWithUrgentDebts(t *testing.T) {
	f := newAlertFixture(t)

	rep, err := f.svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, AlertReport{Checked: 3, Notified: 1, Failed: 0}, rep)

	require.Len(t, f.mailer.sent, 1)
	email := f.mailer.sent[0]
	assert.Equal(t, "alice@example.com", email.To)
	assert.Equal(t, "1 debt due this week", email.Subject)
	assert.Contains(t, email.Text, "- Card (Bank): $10 due 2025-03-13, 3 days left")
	assert.Contains(t, email.Text, "1 USD = 30.00 TRY")
}

func TestAlertServiceCountsMailFailures(t *testing.T) {
	f := newAlertFixture(t)
	f.mailer.err = errors.New("mail provider down")

	rep, err := f.svc.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Failed)
	assert.Equal(t, 0, rep.Notified)
	assert.Equal(t, 3, rep.Checked)
}

func TestUrgentDebtEmailPlural(t *testing.T) {
	s := core.Summary{
		DisplayCurrency: core.TRY,
		Rate:            38.76,
		UrgentDebts: []core.UrgentDebt{
			{Debt: core.Debt{Title: "Rent", Deadline: day(0)}, ConvertedAmount: 15000, DaysLeft: 0},
			{Debt: core.Debt{Title: "Phone", Deadline: day(1)}, ConvertedAmount: 800, DaysLeft: 1},
		},
	}
	email := UrgentDebtEmail("x@example.com", s)
	assert.Equal(t, "2 debts due this week", email.Subject)
	assert.Contains(t, email.Text, "- Rent: ₺15000 due 2025-03-10, due today")
	assert.Contains(t, email.Text, "- Phone: ₺800 due 2025-03-11, 1 day left")
	assert.NoError(t, email.Validate())
}
