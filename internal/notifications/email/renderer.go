// Package email renders the digest newsletter into transmissible HTML and
// plaintext bodies using embedded Go templates.
package email

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	texttemplate "text/template"
	"time"

	"linkdigest/internal/types"
)

//go:embed templates/*.html templates/*.txt
var templateFS embed.FS

// RenderedEmail holds the pre-rendered email content ready for transmission.
type RenderedEmail struct {
	Subject  string
	BodyHTML string
	BodyText string
}

// templateData is the struct passed into Go templates for rendering.
type templateData struct {
	Subject       string
	FormattedDate string
	ItemCount     int
	Items         []itemData
	FormURL       string
}

// itemData is a single entry as presented in the digest body.
type itemData struct {
	Title        string
	URL          string
	Description  string
	ImageURL     string
	EventDate    string
	DaysUntil    int
	PastEvent    bool
	HasImage     bool
}

// Renderer performs email template rendering using Go's html/template with
// embedded template files. The plaintext body is rendered alongside the HTML
// body so clients that strip HTML still receive a usable digest.
type Renderer struct {
	htmlTmpl *template.Template
	textTmpl *texttemplate.Template
	formURL  string
}

// RendererConfig holds the parameters needed to construct a Renderer.
type RendererConfig struct {
	// FormURL is the public submission form linked in the digest footer.
	FormURL string
}

// NewRenderer parses the embedded templates and returns a Renderer.
// Returns an error if any template fails to parse.
func NewRenderer(cfg RendererConfig) (*Renderer, error) {
	htmlContent, err := templateFS.ReadFile("templates/digest.html")
	if err != nil {
		return nil, fmt.Errorf("renderer: failed to read digest.html: %w", err)
	}
	htmlTmpl, err := template.New("digest").Parse(string(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("renderer: failed to parse digest.html: %w", err)
	}

	txtContent, err := templateFS.ReadFile("templates/digest.txt")
	if err != nil {
		return nil, fmt.Errorf("renderer: failed to read digest.txt: %w", err)
	}
	txtTmpl, err := texttemplate.New("digest").Parse(string(txtContent))
	if err != nil {
		return nil, fmt.Errorf("renderer: failed to parse digest.txt: %w", err)
	}

	return &Renderer{
		htmlTmpl: htmlTmpl,
		textTmpl: txtTmpl,
		formURL:  cfg.FormURL,
	}, nil
}

// RenderDigest renders the enriched backlog into a RenderedEmail. The entries
// are rendered in the order given; the caller is responsible for ordering
// (ascending event date, ties by ID). generatedAt is the cycle's injected
// clock so subject lines are reproducible in tests.
func (r *Renderer) RenderDigest(entries []types.EnrichedEntry, generatedAt time.Time) (*RenderedEmail, error) {
	if len(entries) == 0 {
		return nil, fmt.Errorf("renderer: no entries to render")
	}

	data := r.buildTemplateData(entries, generatedAt)

	var htmlBuf bytes.Buffer
	if err := r.htmlTmpl.Execute(&htmlBuf, data); err != nil {
		return nil, fmt.Errorf("renderer: failed to render HTML body: %w", err)
	}

	var txtBuf bytes.Buffer
	if err := r.textTmpl.Execute(&txtBuf, data); err != nil {
		return nil, fmt.Errorf("renderer: failed to render text body: %w", err)
	}

	return &RenderedEmail{
		Subject:  data.Subject,
		BodyHTML: htmlBuf.String(),
		BodyText: txtBuf.String(),
	}, nil
}

// buildTemplateData maps the enriched entries into the flat struct consumed
// by the templates.
func (r *Renderer) buildTemplateData(entries []types.EnrichedEntry, generatedAt time.Time) templateData {
	today := types.DateOnly(generatedAt)

	items := make([]itemData, 0, len(entries))
	for _, e := range entries {
		days := int(e.Entry.EventDate.Sub(today).Hours() / 24)
		items = append(items, itemData{
			Title:       e.Preview.Title,
			URL:         e.Entry.URL,
			Description: e.Preview.Description,
			ImageURL:    e.Preview.ImageURL,
			EventDate:   e.Entry.EventDate.Format("Mon, Jan 2 2006"),
			DaysUntil:   days,
			PastEvent:   days < 0,
			HasImage:    e.Preview.ImageURL != "",
		})
	}

	noun := "links"
	if len(items) == 1 {
		noun = "link"
	}

	return templateData{
		Subject:       fmt.Sprintf("Your digest: %d %s worth a look", len(items), noun),
		FormattedDate: generatedAt.UTC().Format("Monday, January 2, 2006"),
		ItemCount:     len(items),
		Items:         items,
		FormURL:       r.formURL,
	}
}
