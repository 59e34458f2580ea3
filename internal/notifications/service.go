package notifications

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/gomail.v2"

	"github.com/socialguard/mentions-monitor/internal/config"
	"github.com/socialguard/mentions-monitor/internal/models"
)

// Service handles sending alerts via Teams and email
type Service struct {
	config   *config.Config
	client   *resty.Client
	sendMail func(m *gomail.Message) error
}

// Ensure Service implements Notifier
var _ Notifier = (*Service)(nil)

// TeamsMessage represents a Microsoft Teams message card
type TeamsMessage struct {
	Type       string         `json:"@type"`
	Context    string         `json:"@context"`
	ThemeColor string         `json:"themeColor,omitempty"`
	Title      string         `json:"title"`
	Text       string         `json:"text"`
	Sections   []TeamsSection `json:"sections,omitempty"`
}

type TeamsSection struct {
	ActivityTitle    string      `json:"activityTitle,omitempty"`
	ActivitySubtitle string      `json:"activitySubtitle,omitempty"`
	ActivityText     string      `json:"activityText,omitempty"`
	Facts            []TeamsFact `json:"facts,omitempty"`
	Markdown         bool        `json:"markdown,omitempty"`
}

type TeamsFact struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// NewService creates a new notification service
func NewService(cfg *config.Config) *Service {
	s := &Service{
		config: cfg,
		client: resty.New().SetTimeout(30 * time.Second),
	}
	s.sendMail = s.dialAndSend
	return s
}

// Enabled reports whether at least one delivery channel is configured
func (s *Service) Enabled() bool {
	return s.config.TeamsWebhookURL != "" || s.config.NotificationEmail != ""
}

// SendAlerts sends the alerts of one case via every configured channel
func (s *Service) SendAlerts(ctx context.Context, caseID string, alerts []models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	var errors []string

	if s.config.TeamsWebhookURL != "" {
		if err := s.sendToTeams(ctx, caseID, alerts); err != nil {
			logrus.Errorf("Failed to send Teams notification: %v", err)
			errors = append(errors, fmt.Sprintf("Teams: %v", err))
		} else {
			logrus.WithFields(logrus.Fields{"case_id": caseID, "alerts": len(alerts)}).Info("Sent alerts to Teams")
		}
	}

	if s.config.NotificationEmail != "" {
		if err := s.sendEmail(caseID, alerts); err != nil {
			logrus.Errorf("Failed to send email notification: %v", err)
			errors = append(errors, fmt.Sprintf("Email: %v", err))
		} else {
			logrus.WithFields(logrus.Fields{"case_id": caseID, "alerts": len(alerts)}).Info("Sent alerts via email")
		}
	}

	if len(errors) > 0 {
		return fmt.Errorf("notification errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

func (s *Service) sendToTeams(ctx context.Context, caseID string, alerts []models.Alert) error {
	message := buildTeamsMessage(caseID, alerts)

	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(message).
		Post(s.config.TeamsWebhookURL)

	if err != nil {
		return fmt.Errorf("failed to send Teams message: %w", err)
	}

	if resp.StatusCode() != 200 {
		return fmt.Errorf("Teams webhook returned status %d: %s", resp.StatusCode(), string(resp.Body()))
	}

	return nil
}

func buildTeamsMessage(caseID string, alerts []models.Alert) *TeamsMessage {
	critical := countSeverity(alerts, "critical")

	message := &TeamsMessage{
		Type:       "MessageCard",
		Context:    "https://schema.org/extensions",
		ThemeColor: "d13438",
		Title:      fmt.Sprintf("Mention alerts for case %s", caseID),
		Text:       fmt.Sprintf("%d new alert(s), %d critical", len(alerts), critical),
	}

	limit := 5
	if len(alerts) < limit {
		limit = len(alerts)
	}

	for _, alert := range alerts[:limit] {
		section := TeamsSection{
			ActivityTitle:    alert.Title,
			ActivitySubtitle: fmt.Sprintf("%s | %s", strings.ToUpper(alert.Severity), alert.Type),
			ActivityText:     alert.Description,
			Markdown:         true,
		}
		if m := alert.Mention; m != nil {
			section.Facts = []TeamsFact{
				{Name: "Platform", Value: m.Platform},
				{Name: "Urgency", Value: fmt.Sprintf("%d/10", m.UrgencyScore)},
				{Name: "Sentiment", Value: fmt.Sprintf("%d", m.SentimentScore)},
			}
			if m.URL != "" {
				section.Facts = append(section.Facts, TeamsFact{Name: "Link", Value: m.URL})
			}
		}
		message.Sections = append(message.Sections, section)
	}

	if rest := len(alerts) - limit; rest > 0 {
		message.Sections = append(message.Sections, TeamsSection{
			ActivityText: fmt.Sprintf("... and %d more", rest),
		})
	}

	return message
}

func (s *Service) sendEmail(caseID string, alerts []models.Alert) error {
	subject := fmt.Sprintf("[Mentions] %d alert(s) for case %s", len(alerts), caseID)

	htmlBody, err := buildEmailHTML(caseID, alerts)
	if err != nil {
		return fmt.Errorf("failed to build email HTML: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", s.config.SMTPUsername)
	m.SetHeader("To", s.config.NotificationEmail)
	m.SetHeader("Subject", subject)
	m.SetBody("text/plain", buildEmailText(caseID, alerts))
	m.AddAlternative("text/html", htmlBody)

	return s.sendMail(m)
}

func (s *Service) dialAndSend(m *gomail.Message) error {
	d := gomail.NewDialer(s.config.SMTPHost, s.config.SMTPPort, s.config.SMTPUsername, s.config.SMTPPassword)
	if err := d.DialAndSend(m); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}

var emailTemplate = template.Must(template.New("email").Funcs(template.FuncMap{
	"upper": strings.ToUpper,
	"truncate": func(length int, s string) string {
		r := []rune(s)
		if len(r) <= length {
			return s
		}
		return string(r[:length]) + "..."
	},
}).Parse(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>Mention alerts</title>
    <style>
        body { font-family: Arial, sans-serif; margin: 20px; }
        .header { background-color: #d13438; color: white; padding: 20px; border-radius: 5px; }
        .alert { border-left: 4px solid #ff8c00; padding: 10px; margin: 10px 0; background-color: #fafafa; }
        .critical { border-left-color: #d13438; }
        .meta { color: #666; font-size: 0.9em; }
    </style>
</head>
<body>
    <div class="header">
        <h1>{{len .Alerts}} alert(s) for case {{.CaseID}}</h1>
    </div>
    {{range .Alerts}}
    <div class="alert {{.Severity}}">
        <strong>{{.Severity | upper}}</strong> {{.Title}}
        <div class="meta">{{.Type}}{{with .Mention}} | {{.Platform}} | urgency {{.UrgencyScore}}/10{{if .URL}} | <a href="{{.URL}}">open</a>{{end}}{{end}}</div>
        {{with .Mention}}<p>{{truncate 200 .Content}}</p>{{end}}
    </div>
    {{end}}
</body>
</html>
`))

func buildEmailHTML(caseID string, alerts []models.Alert) (string, error) {
	var buf bytes.Buffer
	err := emailTemplate.Execute(&buf, struct {
		CaseID string
		Alerts []models.Alert
	}{caseID, alerts})
	if err != nil {
		return "", err
	}
	return buf.String(), nil
}

func buildEmailText(caseID string, alerts []models.Alert) string {
	var text strings.Builder

	text.WriteString(fmt.Sprintf("%d alert(s) for case %s\n", len(alerts), caseID))
	text.WriteString("==========\n")

	for i, alert := range alerts {
		text.WriteString(fmt.Sprintf("\n%d. [%s] %s\n", i+1, strings.ToUpper(alert.Severity), alert.Title))
		text.WriteString(fmt.Sprintf("   %s\n", alert.Description))
		if m := alert.Mention; m != nil && m.URL != "" {
			text.WriteString(fmt.Sprintf("   URL: %s\n", m.URL))
		}
	}

	return text.String()
}

func countSeverity(alerts []models.Alert, severity string) int {
	n := 0
	for _, a := range alerts {
		if a.Severity == severity {
			n++
		}
	}
	return n
}
