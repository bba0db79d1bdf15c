package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/weathermail/weathermail/weather"
)

// EmailProvider is the adapter interface for outbound email transports.
// Implement this to add new transports beyond SendGrid.
type EmailProvider interface {
	Send(ctx context.Context, recipient, subject, htmlBody string) error
}

// Sender is what the sign-up flow and the digest pipeline depend on: render a
// message of the given kind and dispatch it exactly once. Transport failures
// surface to the caller; retry policy, if any, belongs there.
type Sender interface {
	SendWelcomeEmail(ctx context.Context, recipient, city string) error
	SendDailyWeatherEmail(ctx context.Context, recipient string, report weather.Report) error
}

// Mailer renders email templates and dispatches them through a provider.
type Mailer struct {
	provider        EmailProvider
	unsubscribeLink string
	logoURL         string
}

func NewMailer(provider EmailProvider, unsubscribeLink, logoURL string) *Mailer {
	return &Mailer{
		provider:        provider,
		unsubscribeLink: unsubscribeLink,
		logoURL:         logoURL,
	}
}

func (m *Mailer) SendWelcomeEmail(ctx context.Context, recipient, city string) error {
	html, err := renderTemplate(TemplateWelcome, WelcomeData{
		City:            city,
		Year:            fmt.Sprint(time.Now().Year()),
		UnsubscribeLink: m.unsubscribeLink,
		LogoURL:         m.logoURL,
	})
	if err != nil {
		return err
	}

	subject := "🎉 You're subscribed! Daily weather updates start tomorrow"
	return m.provider.Send(ctx, recipient, subject, html)
}

func (m *Mailer) SendDailyWeatherEmail(ctx context.Context, recipient string, report weather.Report) error {
	html, err := renderTemplate(TemplateDailyWeather, DailyWeatherData{
		Report:          report,
		UnsubscribeLink: m.unsubscribeLink,
		Year:            fmt.Sprint(time.Now().Year()),
	})
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("☀️ Today's Weather for %s | %s", report.City, report.Date)
	return m.provider.Send(ctx, recipient, subject, html)
}
