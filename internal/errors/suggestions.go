package errors

import (
	"fmt"
	"strings"

	"github.com/conneroisu/fiddle/internal/registry"
)

// ErrorSuggestion represents a suggestion for fixing an error
type ErrorSuggestion struct {
	Title       string
	Description string
	Command     string
	Example     string
}

// SuggestionContext provides context for generating suggestions
type SuggestionContext struct {
	Registry   *registry.TemplateRegistry
	ConfigPath string
}

// TemplateNotFoundError generates suggestions for unknown template names
func TemplateNotFoundError(templateName string, ctx *SuggestionContext) []ErrorSuggestion {
	suggestions := []ErrorSuggestion{
		{
			Title:       "List all available templates",
			Description: "See what templates fiddle knows about",
			Command:     "fiddle templates",
		},
		{
			Title:       "Check template directory configuration",
			Description: "Verify your .fiddle.yml templates.dir points at your template definitions",
			Command:     "cat " + ctx.ConfigPath,
			Example:     "templates:\n  dir: \"./templates\"",
		},
	}

	if ctx.Registry != nil {
		names := ctx.Registry.Names()
		if len(names) > 0 {
			suggestions = append(suggestions, ErrorSuggestion{
				Title:       "Available templates",
				Description: "These templates are currently available: " + strings.Join(names, ", "),
			})

			// Suggest similar template names
			for _, name := range names {
				if strings.Contains(strings.ToLower(name), strings.ToLower(templateName)) ||
					strings.Contains(strings.ToLower(templateName), strings.ToLower(name)) {
					suggestions = append(suggestions, ErrorSuggestion{
						Title:       "Did you mean '" + name + "'?",
						Description: "Similar template found",
						Command:     "fiddle serve --template " + name,
					})
					break
				}
			}
		}
	}

	return suggestions
}

// DecodeFailureError generates suggestions for share-link decode failures
func DecodeFailureError(err error, ctx *SuggestionContext) []ErrorSuggestion {
	suggestions := []ErrorSuggestion{
		{
			Title:       "Check the link was copied completely",
			Description: "Chat apps and mail clients often truncate long URLs; every parameter must arrive intact",
		},
		{
			Title:       "Quote the link in your shell",
			Description: "Unquoted & characters split the URL into separate shell commands",
			Command:     "fiddle decode 'http://localhost:8080/?html=...&css=...&js=...'",
		},
	}

	errStr := strings.ToLower(err.Error())

	if strings.Contains(errStr, "base64") || strings.Contains(errStr, "malformed") {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Regenerate the share link",
			Description: "The payload is corrupt; ask the sender to share the snippet again",
			Command:     "fiddle share --html index.html --css style.css --js app.js",
		})
	}

	if strings.Contains(errStr, "unsupported compact share format") {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Update fiddle",
			Description: "This link uses a newer compact format than this build understands",
		})
	}

	return suggestions
}

// ServerStartError generates suggestions for server startup failures
func ServerStartError(err error, port int, ctx *SuggestionContext) []ErrorSuggestion {
	suggestions := []ErrorSuggestion{}

	errStr := err.Error()

	if strings.Contains(errStr, "address already in use") || strings.Contains(errStr, "bind") {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Port already in use",
			Description: fmt.Sprintf("Port %d is already being used by another process", port),
			Command:     fmt.Sprintf("lsof -i :%d", port),
		})

		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Use a different port",
			Description: "Start the server on a different port",
			Command:     fmt.Sprintf("fiddle serve --port %d", port+1000),
		})
	}

	if strings.Contains(errStr, "permission denied") {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Permission denied",
			Description: "You don't have permission to bind to this port",
		})

		if port < 1024 {
			suggestions = append(suggestions, ErrorSuggestion{
				Title:       "Use unprivileged port",
				Description: "Ports below 1024 require root privileges",
				Command:     "fiddle serve --port 8080",
			})
		}
	}

	return suggestions
}

// ConfigurationError generates suggestions for configuration issues
func ConfigurationError(configError string, configPath string, ctx *SuggestionContext) []ErrorSuggestion {
	suggestions := []ErrorSuggestion{
		{
			Title:       "Check configuration file",
			Description: "Verify your .fiddle.yml file exists and has valid syntax",
			Command:     "cat " + configPath,
		},
		{
			Title:       "Run the diagnostics",
			Description: "The doctor command checks configuration, templates, and ports in one pass",
			Command:     "fiddle doctor",
		},
	}

	if strings.Contains(configError, "yaml") || strings.Contains(configError, "unmarshal") {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Fix YAML syntax",
			Description: "There's a syntax error in your YAML configuration",
			Example:     "Use proper indentation and avoid tabs",
		})
	}

	if strings.Contains(configError, "path") || strings.Contains(configError, "directory") {
		suggestions = append(suggestions, ErrorSuggestion{
			Title:       "Check directory paths",
			Description: "Verify all paths in your configuration exist",
			Command:     "ls -la",
		})
	}

	return suggestions
}

// FormatSuggestions formats suggestions into a user-friendly string
func FormatSuggestions(title string, suggestions []ErrorSuggestion) string {
	if len(suggestions) == 0 {
		return title
	}

	var output strings.Builder
	output.WriteString(title + "\n\n")
	output.WriteString("Suggestions:\n")

	for i, suggestion := range suggestions {
		output.WriteString(fmt.Sprintf("  %d. %s\n", i+1, suggestion.Title))
		if suggestion.Description != "" {
			output.WriteString(fmt.Sprintf("     %s\n", suggestion.Description))
		}
		if suggestion.Command != "" {
			output.WriteString(fmt.Sprintf("     Run: %s\n", suggestion.Command))
		}
		if suggestion.Example != "" {
			output.WriteString(fmt.Sprintf("     Example: %s\n", suggestion.Example))
		}
		output.WriteString("\n")
	}

	return output.String()
}

// EnhancedError wraps an error with suggestions
type EnhancedError struct {
	OriginalError error
	Title         string
	Suggestions   []ErrorSuggestion
}

// Error implements the error interface
func (e *EnhancedError) Error() string {
	return FormatSuggestions(e.Title, e.Suggestions)
}

// Unwrap returns the original error
func (e *EnhancedError) Unwrap() error {
	return e.OriginalError
}

// NewEnhancedError creates a new enhanced error with suggestions
func NewEnhancedError(title string, originalError error, suggestions []ErrorSuggestion) *EnhancedError {
	return &EnhancedError{
		OriginalError: originalError,
		Title:         title,
		Suggestions:   suggestions,
	}
}
