package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/conneroisu/fiddle/internal/config"
	"github.com/conneroisu/fiddle/internal/registry"
)

var templatesCmd = &cobra.Command{
	Use:     "templates",
	Aliases: []string{"t"},
	Short:   "List available starter templates",
	Long: `List the starter templates the playground offers: the built-in set
plus anything loaded from the configured template directory.

Examples:
  fiddle templates                 # List templates in table format
  fiddle templates -f json         # Output as JSON
  fiddle templates --format yaml   # Output as YAML`,
	RunE: runTemplates,
}

var templatesNewCmd = &cobra.Command{
	Use:   "new <name>",
	Short: "Scaffold a template definition file",
	Long: `Write a new template definition into the template directory, seeded
from an existing template's content. Edit the generated YAML, and the
server picks it up on the next change.

Examples:
  fiddle templates new neon-clock
  fiddle templates new landing --from card --description "Product landing page"`,
	Args: cobra.ExactArgs(1),
	RunE: runTemplatesNew,
}

var (
	templatesFormat         string
	templatesNewFrom        string
	templatesNewDir         string
	templatesNewDisplayName string
	templatesNewDescription string
)

func init() {
	rootCmd.AddCommand(templatesCmd)
	templatesCmd.AddCommand(templatesNewCmd)

	templatesCmd.Flags().StringVarP(&templatesFormat, "format", "f", "table", "Output format (table|json|yaml)")

	templatesNewCmd.Flags().StringVar(&templatesNewFrom, "from", registry.DefaultName, "Template to seed the content from")
	templatesNewCmd.Flags().StringVar(&templatesNewDir, "dir", "", "Directory to write into (default from configuration)")
	templatesNewCmd.Flags().StringVar(&templatesNewDisplayName, "display-name", "", "Human-readable name (derived from the slug when omitted)")
	templatesNewCmd.Flags().StringVar(&templatesNewDescription, "description", "", "One-line description shown in the picker")

	AddFlagValidation(templatesCmd, "format", func(format string) error {
		return ValidateFormatWithSuggestion(format, []string{"table", "json", "yaml"})
	})
}

func runTemplates(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	reg := registry.NewTemplateRegistry()
	if cfg.Templates.Dir != "" {
		if _, err := reg.LoadDir(cfg.Templates.Dir); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	templates := reg.All()

	switch strings.ToLower(templatesFormat) {
	case "json":
		return outputTemplatesJSON(templates, cfg.Templates.Default)
	case "yaml":
		return outputTemplatesYAML(templates, cfg.Templates.Default)
	case "table":
		return outputTemplatesTable(templates, cfg.Templates.Default)
	default:
		return fmt.Errorf("unsupported format: %s", templatesFormat)
	}
}

func runTemplatesNew(cmd *cobra.Command, args []string) error {
	name := args[0]
	if err := registry.ValidateName(name); err != nil {
		return err
	}
	if registry.IsBuiltin(name) {
		return fmt.Errorf("%q is a built-in template name; definitions that shadow built-ins are skipped at load time", name)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	dir := templatesNewDir
	if dir == "" {
		dir = cfg.Templates.Dir
	}
	if dir == "" {
		dir = "./templates"
	}

	reg := registry.NewTemplateRegistry()
	if cfg.Templates.Dir != "" {
		reg.LoadDir(cfg.Templates.Dir)
	}

	seed, ok := reg.Get(templatesNewFrom)
	if !ok {
		return fmt.Errorf("unknown seed template %q, pick one of: %s", templatesNewFrom, strings.Join(reg.Names(), ", "))
	}

	t := registry.Template{
		Name:        name,
		DisplayName: templatesNewDisplayName,
		Description: templatesNewDescription,
		Content:     seed.Content,
	}
	data, err := registry.MarshalDefinition(t)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create template directory: %w", err)
	}

	path := filepath.Join(dir, name+".yml")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write template definition: %w", err)
	}

	fmt.Printf("Created %s (seeded from %q)\n", path, templatesNewFrom)
	return nil
}

func templateRows(templates []registry.Template) []map[string]interface{} {
	rows := make([]map[string]interface{}, len(templates))
	for i, t := range templates {
		rows[i] = map[string]interface{}{
			"name":         t.Name,
			"display_name": t.DisplayName,
			"description":  t.Description,
			"builtin":      registry.IsBuiltin(t.Name),
		}
	}
	return rows
}

func outputTemplatesJSON(templates []registry.Template, defaultName string) error {
	output := map[string]interface{}{
		"templates": templateRows(templates),
		"default":   defaultName,
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(output)
}

func outputTemplatesYAML(templates []registry.Template, defaultName string) error {
	output := map[string]interface{}{
		"templates": templateRows(templates),
		"default":   defaultName,
	}

	encoder := yaml.NewEncoder(os.Stdout)
	defer encoder.Close()
	return encoder.Encode(output)
}

func outputTemplatesTable(templates []registry.Template, defaultName string) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	defer w.Flush()

	fmt.Fprintln(w, "NAME\tDISPLAY NAME\tSOURCE\tDESCRIPTION")
	fmt.Fprintln(w, "----\t------------\t------\t-----------")

	for _, t := range templates {
		source := "directory"
		if registry.IsBuiltin(t.Name) {
			source = "built-in"
		}

		name := t.Name
		if t.Name == defaultName {
			name += " (default)"
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", name, t.DisplayName, source, t.Description)
	}

	fmt.Fprintf(w, "\nTotal: %d templates\n", len(templates))

	return nil
}
