package delivery

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"time"

	"github.com/Masterminds/sprig/v3"
	"github.com/weathermail/weathermail/weather"
)

//go:embed templates/*.html
var templateFS embed.FS

// ErrUnknownTemplate is returned when a caller asks for a template name that
// does not exist.
var ErrUnknownTemplate = errors.New("unknown email template")

const (
	TemplateDailyWeather = "daily-weather"
	TemplateWelcome      = "welcome"
)

var emailTemplates = template.Must(
	template.New("emails").Funcs(sprig.HtmlFuncMap()).ParseFS(templateFS, "templates/*.html"),
)

// DailyWeatherData is the render context for the daily digest template.
type DailyWeatherData struct {
	weather.Report
	UnsubscribeLink string
	Year            string
}

// WelcomeData is the render context for the welcome template.
type WelcomeData struct {
	City            string
	Year            string
	UnsubscribeLink string
	LogoURL         string
}

func renderTemplate(name string, data any) (string, error) {
	tmpl := emailTemplates.Lookup(name + ".html")
	if tmpl == nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("failed to render template %q: %w", name, err)
	}
	return buf.String(), nil
}

// RenderSample renders the named template with fixed sample data. Used by the
// email preview endpoint.
func RenderSample(name, unsubscribeLink, logoURL string) (string, error) {
	switch name {
	case TemplateDailyWeather:
		return renderTemplate(name, SampleWeatherData(unsubscribeLink))
	case TemplateWelcome:
		return renderTemplate(name, SampleWelcomeData(unsubscribeLink, logoURL))
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
	}
}

// SampleWeatherData mirrors the synthetic weather bundle for previews.
func SampleWeatherData(unsubscribeLink string) DailyWeatherData {
	return DailyWeatherData{
		Report:          weather.FallbackReport("Bhubaneswar"),
		UnsubscribeLink: unsubscribeLink,
		Year:            fmt.Sprint(time.Now().Year()),
	}
}

// SampleWelcomeData provides preview data for the welcome template.
func SampleWelcomeData(unsubscribeLink, logoURL string) WelcomeData {
	return WelcomeData{
		City:            "Bhubaneswar",
		Year:            fmt.Sprint(time.Now().Year()),
		UnsubscribeLink: unsubscribeLink,
		LogoURL:         logoURL,
	}
}
