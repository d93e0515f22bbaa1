package notifications

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	texttemplate "text/template"

	"blackhub/internal/types"
)

//go:embed templates/*.html templates/*.txt
var templateFS embed.FS

// RenderedEmail is the pre-rendered content handed to the email provider.
type RenderedEmail struct {
	Subject  string
	BodyHTML string
	BodyText string
}

// TemplateData is the value every email template executes against.
type TemplateData struct {
	Subject  string
	Name     string
	Plan     string
	DaysLeft int
	AppURL   string
	Year     int
}

var subjects = map[types.TemplateType]string{
	types.TemplateWelcome:                     "Welcome to BlackHub",
	types.TemplateTrialReminderDay5:           "Your BlackHub trial ends in 2 days",
	types.TemplateTrialReminderDay6:           "Your BlackHub trial ends tomorrow",
	types.TemplateSubscriptionConfirmation:    "BlackHub subscription confirmed",
	types.TemplateSubscriptionRenewalReminder: "BlackHub subscription renewal reminder",
}

// Renderer renders the embedded lifecycle templates.
type Renderer struct {
	html map[types.TemplateType]*template.Template
	text map[types.TemplateType]*texttemplate.Template
}

// NewRenderer parses every embedded template and fails if one is missing.
func NewRenderer() (*Renderer, error) {
	base, err := templateFS.ReadFile("templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("renderer: failed to read base.html: %w", err)
	}

	r := &Renderer{
		html: make(map[types.TemplateType]*template.Template, len(subjects)),
		text: make(map[types.TemplateType]*texttemplate.Template, len(subjects)),
	}
	for tt := range subjects {
		name := string(tt)

		content, err := templateFS.ReadFile("templates/" + name + ".html")
		if err != nil {
			return nil, fmt.Errorf("renderer: failed to read %s.html: %w", name, err)
		}
		h, err := template.New("base").Parse(string(base))
		if err != nil {
			return nil, fmt.Errorf("renderer: failed to parse base.html: %w", err)
		}
		if _, err := h.Parse(string(content)); err != nil {
			return nil, fmt.Errorf("renderer: failed to parse %s.html: %w", name, err)
		}
		r.html[tt] = h

		txt, err := templateFS.ReadFile("templates/" + name + ".txt")
		if err != nil {
			return nil, fmt.Errorf("renderer: failed to read %s.txt: %w", name, err)
		}
		t, err := texttemplate.New(name).Parse(string(txt))
		if err != nil {
			return nil, fmt.Errorf("renderer: failed to parse %s.txt: %w", name, err)
		}
		r.text[tt] = t
	}
	return r, nil
}

// Render produces the subject and both bodies for a template.
func (r *Renderer) Render(tt types.TemplateType, data TemplateData) (*RenderedEmail, error) {
	h, ok := r.html[tt]
	if !ok {
		return nil, fmt.Errorf("renderer: unknown template %q", tt)
	}
	data.Subject = subjects[tt]

	var htmlBuf, textBuf bytes.Buffer
	if err := h.Execute(&htmlBuf, data); err != nil {
		return nil, fmt.Errorf("renderer: failed to render %s.html: %w", tt, err)
	}
	if err := r.text[tt].Execute(&textBuf, data); err != nil {
		return nil, fmt.Errorf("renderer: failed to render %s.txt: %w", tt, err)
	}
	return &RenderedEmail{
		Subject:  data.Subject,
		BodyHTML: htmlBuf.String(),
		BodyText: textBuf.String(),
	}, nil
}
