package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
)

//go:embed templates/*.html
var templateFS embed.FS

type replyEmailData struct {
	LeadName string
	Message  string
	FromName string
}

func renderReplyTemplate(data replyEmailData) (string, error) {
	tmpl, err := template.New("reply.html").ParseFS(templateFS, "templates/reply.html")
	if err != nil {
		return "", fmt.Errorf("parse reply template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "reply.html", data); err != nil {
		return "", fmt.Errorf("execute reply template: %w", err)
	}
	return buf.String(), nil
}
