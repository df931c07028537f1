package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// Render executes a named template into an HTML body.
func Render(templateName string, data map[string]any) (string, error) {
	var body bytes.Buffer
	if err := templates.ExecuteTemplate(&body, templateName+".html", data); err != nil {
		return "", fmt.Errorf("render %s: %w", templateName, err)
	}
	return body.String(), nil
}

// Subject picks the subject line: an explicit "subject" key wins, then the
// template default.
func Subject(templateName string, data map[string]any) (string, bool) {
	if subj, ok := data["subject"].(string); ok && subj != "" {
		return subj, true
	}
	switch templateName {
	case TemplateInviteMember:
		if orgName, ok := data["org_name"].(string); ok && orgName != "" {
			return fmt.Sprintf("You're invited to join %s", orgName), true
		}
		return "You're invited to join a team", true
	case TemplateVerifyEmail:
		return "Confirm your email address", true
	default:
		return "Notification from Launchpad", false
	}
}
