package registry

import (
	"fmt"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/fiddle/internal/workspace"
)

// Template is an immutable named preset for the three buffers. Loading
// one replaces all buffers together; templates themselves are never
// edited after registration.
type Template struct {
	Name        string
	DisplayName string
	Description string
	Content     workspace.Triple
}

// DefaultName is the template every new session starts from.
const DefaultName = "starter"

// maxNameLength bounds template names; longer names are always a
// mistake or an attack on the URL and filesystem paths they end up in.
const maxNameLength = 64

var namePattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

// ValidateName reports whether name is usable as a registry key:
// lowercase slug form, safe to embed in URLs and file names.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("template name cannot be empty")
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("template name too long (max %d characters)", maxNameLength)
	}
	if !namePattern.MatchString(name) {
		return fmt.Errorf("invalid template name %q: use lowercase letters, digits, and hyphens", name)
	}
	return nil
}

var titleCaser = cases.Title(language.English)

// displayNameFor derives a human-readable name from a slug when the
// template does not declare one: "neon-clock" becomes "Neon Clock".
func displayNameFor(name string) string {
	return titleCaser.String(strings.ReplaceAll(name, "-", " "))
}

// templateFile is the on-disk YAML shape for user-provided templates.
type templateFile struct {
	Name        string `yaml:"name"`
	DisplayName string `yaml:"display_name"`
	Description string `yaml:"description"`
	Markup      string `yaml:"markup"`
	Style       string `yaml:"style"`
	Script      string `yaml:"script"`
}

// ParseTemplate decodes one YAML template definition and validates it.
func ParseTemplate(data []byte) (Template, error) {
	var file templateFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return Template{}, fmt.Errorf("parsing template: %w", err)
	}
	if err := ValidateName(file.Name); err != nil {
		return Template{}, err
	}

	t := Template{
		Name:        file.Name,
		DisplayName: file.DisplayName,
		Description: file.Description,
		Content: workspace.Triple{
			Markup: file.Markup,
			Style:  file.Style,
			Script: file.Script,
		},
	}
	if t.DisplayName == "" {
		t.DisplayName = displayNameFor(t.Name)
	}
	return t, nil
}

// MarshalDefinition renders t in the on-disk YAML shape ParseTemplate
// reads back.
func MarshalDefinition(t Template) ([]byte, error) {
	if err := ValidateName(t.Name); err != nil {
		return nil, err
	}
	file := templateFile{
		Name:        t.Name,
		DisplayName: t.DisplayName,
		Description: t.Description,
		Markup:      t.Content.Markup,
		Style:       t.Content.Style,
		Script:      t.Content.Script,
	}
	return yaml.Marshal(file)
}

// builtinTemplates seed every registry. The starter entry doubles as
// the default buffer content for sessions opened without a share link.
var builtinTemplates = []Template{
	{
		Name:        DefaultName,
		DisplayName: "Starter",
		Description: "A friendly hello with a little styling.",
		Content: workspace.Triple{
			Markup: `<h1>Hello, fiddle!</h1>
<p>Edit any pane and the preview follows along.</p>
`,
			Style: `body {
  font-family: system-ui, sans-serif;
  margin: 2rem;
  color: #1f2933;
}

h1 {
  color: #326ce5;
}
`,
			Script: `console.log("fiddle ready");
`,
		},
	},
	{
		Name:        "blank",
		DisplayName: "Blank",
		Description: "Three empty panes.",
		Content:     workspace.Triple{},
	},
	{
		Name:        "counter",
		DisplayName: "Counter",
		Description: "A button that counts its own clicks.",
		Content: workspace.Triple{
			Markup: `<button id="bump">Count</button>
<output id="total">0</output>
`,
			Style: `button {
  font-size: 1.25rem;
  padding: 0.5rem 1.5rem;
}

output {
  margin-left: 1rem;
  font-size: 1.5rem;
  font-variant-numeric: tabular-nums;
}
`,
			Script: `let total = 0;
const out = document.getElementById("total");
document.getElementById("bump").addEventListener("click", () => {
  total += 1;
  out.textContent = String(total);
});
`,
		},
	},
	{
		Name:        "card",
		DisplayName: "Card",
		Description: "A content card with a toggleable details section.",
		Content: workspace.Triple{
			Markup: `<article class="card">
  <h2>Weekend ride</h2>
  <p>68 km along the coast road, two cafe stops.</p>
  <p class="details">Left at 07:10, back before the wind picked up.</p>
  <button>Details</button>
</article>
`,
			Style: `.card {
  max-width: 22rem;
  padding: 1.25rem;
  border: 1px solid #d4d9e2;
  border-radius: 0.75rem;
  font-family: system-ui, sans-serif;
}

.card .details {
  display: none;
  color: #52606d;
}

.card.open .details {
  display: block;
}
`,
			Script: `document.querySelector(".card button").addEventListener("click", (e) => {
  e.target.closest(".card").classList.toggle("open");
});
`,
		},
	},
}

// Builtins returns a copy of the built-in template set.
func Builtins() []Template {
	out := make([]Template, len(builtinTemplates))
	copy(out, builtinTemplates)
	return out
}

// IsBuiltin reports whether name belongs to a built-in template.
func IsBuiltin(name string) bool {
	for _, t := range builtinTemplates {
		if t.Name == name {
			return true
		}
	}
	return false
}
