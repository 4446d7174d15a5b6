package services

import (
	"context"
	"fmt"
	"strings"

	"cuzdan/internal/core"
	"cuzdan/internal/log"
	"cuzdan/internal/notify"
	"cuzdan/internal/store"
)

// AlertReport summarizes one alert run.
type AlertReport struct {
	Checked  int
	Notified int
	Failed   int
}

// AlertService emails users who opted in about debts due within a week.
type AlertService struct {
	users     store.UserRepository
	settings  *SettingsService
	dashboard *DashboardService
	mailer    notify.Mailer
	logger    *log.Logger
}

func NewAlertService(users store.UserRepository, settings *SettingsService, dashboard *DashboardService, mailer notify.Mailer, logger *log.Logger) *AlertService {
	if logger == nil {
		logger = log.Discard()
	}
	return &AlertService{
		users:     users,
		settings:  settings,
		dashboard: dashboard,
		mailer:    mailer,
		logger:    logger.WithComponent(log.ComponentAlerts),
	}
}

// Run checks every user once. A failure for one user does not stop the run;
// only a failure to list users is returned.
func (s *AlertService) Run(ctx context.Context) (AlertReport, error) {
	var rep AlertReport
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return rep, fmt.Errorf("list users: %w", err)
	}

	for _, u := range users {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		sent, err := s.notifyUser(ctx, u)
		switch {
		case err != nil:
			rep.Failed++
			s.logger.ErrorContext(ctx, "Urgent debt alert failed",
				log.NewFields().WithOperation(log.OpNotify).WithUser(u.ID).WithError(err).ToSlice()...)
		case sent:
			rep.Notified++
		}
		rep.Checked++
	}

	s.logger.InfoContext(ctx, "Urgent debt alert run finished",
		"checked", rep.Checked, "notified", rep.Notified, "failed", rep.Failed)
	return rep, nil
}

func (s *AlertService) notifyUser(ctx context.Context, u core.User) (bool, error) {
	st, err := s.settings.Get(ctx, u.ID)
	if err != nil {
		return false, err
	}
	if !st.NotificationsEnabled {
		return false, nil
	}
	d, err := s.dashboard.Build(ctx, DashboardRequest{UserID: u.ID})
	if err != nil {
		return false, err
	}
	if len(d.Summary.UrgentDebts) == 0 {
		return false, nil
	}
	if err := s.mailer.Send(ctx, UrgentDebtEmail(u.Email, d.Summary)); err != nil {
		return false, fmt.Errorf("send alert: %w", err)
	}
	return true, nil
}

// UrgentDebtEmail renders the alert for the urgent debts in s.
func UrgentDebtEmail(to string, s core.Summary) notify.Email {
	var b strings.Builder
	fmt.Fprintf(&b, "You have %d debt(s) due within the next 7 days:\n\n", len(s.UrgentDebts))
	for _, d := range s.UrgentDebts {
		fmt.Fprintf(&b, "- %s", d.Title)
		if d.Creditor != "" {
			fmt.Fprintf(&b, " (%s)", d.Creditor)
		}
		fmt.Fprintf(&b, ": %s%.0f due %s, %s\n",
			s.DisplayCurrency.Symbol(), d.ConvertedAmount, d.Deadline.Format("2006-01-02"), daysLeft(d.DaysLeft))
	}
	fmt.Fprintf(&b, "\nAmounts are in %s at 1 USD = %.2f TRY.\n", s.DisplayCurrency, s.Rate)

	subject := "1 debt due this week"
	if n := len(s.UrgentDebts); n != 1 {
		subject = fmt.Sprintf("%d debts due this week", n)
	}
	return notify.Email{To: to, Subject: subject, Text: b.String()}
}

func daysLeft(n int) string {
	switch n {
	case 0:
		return "due today"
	case 1:
		return "1 day left"
	default:
		return fmt.Sprintf("%d days left", n)
	}
}
