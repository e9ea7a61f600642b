// Package notify sends attendee confirmation emails through AWS SES v2,
// with subject and body rendered from Liquid templates.
package notify

import (
	"fmt"
	"sync"

	"github.com/osteele/liquid"

	"github.com/ignite/attendee-import/internal/importer"
)

// Default templates used when none are configured.
const (
	DefaultSubjectTemplate = `Your ticket for {{ event_name }}`
	DefaultBodyTemplate    = `Hi {{ attendee_name | default: "there" }},

You're confirmed for {{ event_name }}.

Your attendee code is {{ attendee_code }}. Keep it handy: it's how we
find your registration at the door.

See you there!`
)

// TemplateRenderer renders confirmation subjects and bodies with a shared
// Liquid engine and a parse cache keyed by template source.
type TemplateRenderer struct {
	engine *liquid.Engine
	cache  sync.Map // map[string]*liquid.Template
}

// NewTemplateRenderer creates a renderer with the custom filters registered.
func NewTemplateRenderer() *TemplateRenderer {
	engine := liquid.NewEngine()

	// Default value filter: {{ attendee_name | default: "there" }}
	engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		strVal := fmt.Sprintf("%v", value)
		if strVal == "" || strVal == "<nil>" {
			return defaultVal
		}
		return value
	})

	return &TemplateRenderer{engine: engine}
}

// Render parses (or reuses) the template and renders it with the standard
// confirmation bindings.
func (r *TemplateRenderer) Render(source string, a *importer.Attendee, ev *importer.Event) (string, error) {
	tmpl, err := r.parse(source)
	if err != nil {
		return "", fmt.Errorf("parsing template: %w", err)
	}

	bindings := map[string]interface{}{
		"attendee_name":  a.Name,
		"attendee_email": a.Email,
		"attendee_code":  a.Code,
		"event_name":     ev.Name,
	}
	for k, v := range a.Custom {
		if _, taken := bindings[k]; !taken {
			bindings[k] = v
		}
	}

	out, err := tmpl.Render(bindings)
	if err != nil {
		return "", fmt.Errorf("rendering template: %w", err)
	}
	return string(out), nil
}

func (r *TemplateRenderer) parse(source string) (*liquid.Template, error) {
	if cached, ok := r.cache.Load(source); ok {
		return cached.(*liquid.Template), nil
	}
	tmpl, err := r.engine.ParseString(source)
	if err != nil {
		return nil, err
	}
	r.cache.Store(source, tmpl)
	return tmpl, nil
}
