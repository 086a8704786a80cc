package email

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/osteele/liquid"
)

// templateDef pairs a subject line with liquid HTML and text bodies.
type templateDef struct {
	Subject string
	HTML    string
	Text    string
}

// Renderer resolves a template id and renders it with liquid. Parsed
// templates are cached after first use.
type Renderer struct {
	engine    *liquid.Engine
	templates map[string]templateDef
	cache     sync.Map // map[string]*liquid.Template
	appName   string
}

// NewRenderer creates a renderer over the built-in template set.
func NewRenderer(appName string) *Renderer {
	engine := liquid.NewEngine()
	engine.RegisterFilter("default", func(value interface{}, defaultVal string) interface{} {
		if value == nil {
			return defaultVal
		}
		if s := fmt.Sprintf("%v", value); s == "" || s == "<nil>" {
			return defaultVal
		}
		return value
	})
	return &Renderer{
		engine:    engine,
		templates: builtinTemplates,
		appName:   appName,
	}
}

// Render produces a sendable message from a template id and per-message
// bindings. Common fields (app_name, current_year) are merged in under any
// caller-provided values.
func (r *Renderer) Render(templateID string, data map[string]any) (subject, html, text string, err error) {
	def, ok := r.templates[templateID]
	if !ok {
		return "", "", "", fmt.Errorf("unknown email template %q", templateID)
	}

	bindings := map[string]any{
		"app_name":     r.appName,
		"current_year": time.Now().Year(),
	}
	for k, v := range data {
		bindings[k] = v
	}

	subject, err = r.render(templateID+"#subject", def.Subject, bindings)
	if err != nil {
		return "", "", "", err
	}
	html, err = r.render(templateID+"#html", def.HTML, bindings)
	if err != nil {
		return "", "", "", err
	}
	if def.Text != "" {
		text, err = r.render(templateID+"#text", def.Text, bindings)
		if err != nil {
			return "", "", "", err
		}
	}
	return subject, html, text, nil
}

// Has reports whether a template id is known.
func (r *Renderer) Has(templateID string) bool {
	_, ok := r.templates[templateID]
	return ok
}

func (r *Renderer) render(cacheKey, source string, bindings map[string]any) (string, error) {
	var tpl *liquid.Template
	if cached, ok := r.cache.Load(cacheKey); ok {
		tpl = cached.(*liquid.Template)
	} else {
		parsed, err := r.engine.ParseString(source)
		if err != nil {
			return "", fmt.Errorf("parse template %s: %w", cacheKey, err)
		}
		r.cache.Store(cacheKey, parsed)
		tpl = parsed
	}

	out, err := tpl.Render(bindings)
	if err != nil {
		return "", fmt.Errorf("render template %s: %w", cacheKey, err)
	}
	return strings.TrimSpace(string(out)), nil
}

// builtinTemplates holds the drip and event email bodies, keyed by the
// template id carried on the queue item payload.
var builtinTemplates = map[string]templateDef{
	"welcome": {
		Subject: "Welcome to {{ app_name }}",
		HTML: `<h1>Welcome{{ first_name | default: "" }}!</h1>
<p>{{ app_name }} keeps your trips, packing lists, and gear in one place.</p>
<p>Start by planning your first trip.</p>
<p>Happy trails,<br>The {{ app_name }} team &middot; {{ current_year }}</p>`,
		Text: `Welcome! {{ app_name }} keeps your trips, packing lists, and gear in one place. Start by planning your first trip.`,
	},
	"getting_started": {
		Subject: "Your first trip, three steps",
		HTML: `<h1>Ready when you are</h1>
<p>Create a trip, pick your dates, and {{ app_name }} builds the checklist.</p>`,
		Text: `Create a trip, pick your dates, and {{ app_name }} builds the checklist.`,
	},
	"packing_tips": {
		Subject: "Pack once, forget nothing",
		HTML: `<h1>Packing lists that remember for you</h1>
<p>Start from a template or build your own. Either way, nothing stays in the garage.</p>`,
		Text: `Start a packing list from a template or build your own.`,
	},
	"gear_guide": {
		Subject: "Your gear closet, organized",
		HTML: `<h1>Add your gear once</h1>
<p>Track weight, condition, and which trips each item joined.</p>`,
		Text: `Add your gear once. Track weight, condition, and trips.`,
	},
	"trip_ideas": {
		Subject: "Where to next?",
		HTML: `<h1>Trip ideas for your next free weekend</h1>
<p>Browse routes and campgrounds other {{ app_name }} campers loved.</p>`,
		Text: `Browse routes and campgrounds other campers loved.`,
	},
	"community": {
		Subject: "You're not camping alone",
		HTML: `<h1>Invite your crew</h1>
<p>Shared trips mean shared packing lists. Invite friends and split the load.</p>`,
		Text: `Shared trips mean shared packing lists. Invite friends and split the load.`,
	},
	"drip_wrap": {
		Subject: "Three weeks with {{ app_name }}",
		HTML: `<h1>You're all set</h1>
<p>That's the end of our getting-started series. The trail is yours.</p>`,
		Text: `That's the end of our getting-started series. The trail is yours.`,
	},
	"inactive_comeback": {
		Subject: "The trail misses you",
		HTML: `<h1>Still out there?</h1>
<p>Your gear closet and trip plans are right where you left them.</p>`,
		Text: `Your gear closet and trip plans are right where you left them.`,
	},
	"trip_invitation": {
		Subject: "{{ inviter_name | default: \"A friend\" }} invited you on a trip",
		HTML: `<h1>You're invited</h1>
<p>{{ inviter_name | default: "A friend" }} added you to <strong>{{ trip_name }}</strong> on {{ app_name }}.</p>
<p>Create an account with this address and the trip joins automatically.</p>`,
		Text: `You're invited to {{ trip_name }} on {{ app_name }}. Create an account with this address and the trip joins automatically.`,
	},
}
