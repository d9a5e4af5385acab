package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v2"

	"github.com/conneroisu/fiddle/internal/config"
	"github.com/conneroisu/fiddle/internal/errors"
	"github.com/conneroisu/fiddle/internal/registry"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Diagnose playground configuration and environment",
	Long: `Diagnose your fiddle setup and check for configuration issues.

The doctor command analyzes the configuration file, template directory,
and local environment, and reports anything that would keep the
playground from serving. It checks for:

- Configuration file syntax and validation errors
- Template definitions that fail to parse
- Port conflicts and binding problems
- Share link origin issues
- File system permissions

Examples:
  fiddle doctor                    # Full environment diagnosis
  fiddle doctor --verbose          # Detailed diagnostic output
  fiddle doctor --format json      # Output as JSON for tooling`,
	RunE: runDoctor,
}

var (
	doctorVerbose bool
	doctorFormat  string
)

// DiagnosticResult represents the result of a diagnostic check
type DiagnosticResult struct {
	Name       string                 `json:"name" yaml:"name"`
	Category   string                 `json:"category" yaml:"category"`
	Status     string                 `json:"status" yaml:"status"` // "ok", "warning", "error", "info"
	Message    string                 `json:"message" yaml:"message"`
	Suggestion string                 `json:"suggestion,omitempty" yaml:"suggestion,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty" yaml:"details,omitempty"`
}

// DoctorReport represents the complete diagnostic report
type DoctorReport struct {
	Timestamp   time.Time          `json:"timestamp" yaml:"timestamp"`
	Environment map[string]string  `json:"environment" yaml:"environment"`
	Results     []DiagnosticResult `json:"results" yaml:"results"`
	Summary     ReportSummary      `json:"summary" yaml:"summary"`
}

// ReportSummary provides an overview of diagnostic results
type ReportSummary struct {
	Total    int `json:"total" yaml:"total"`
	OK       int `json:"ok" yaml:"ok"`
	Warnings int `json:"warnings" yaml:"warnings"`
	Errors   int `json:"errors" yaml:"errors"`
	Info     int `json:"info" yaml:"info"`
}

func init() {
	rootCmd.AddCommand(doctorCmd)

	doctorCmd.Flags().BoolVarP(&doctorVerbose, "verbose", "v", false, "Show verbose diagnostic information")
	doctorCmd.Flags().StringVarP(&doctorFormat, "format", "f", "table", "Output format (table|json|yaml)")

	AddFlagValidation(doctorCmd, "format", func(format string) error {
		return ValidateFormatWithSuggestion(format, []string{"table", "json", "yaml"})
	})
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	fmt.Println("🔍 Fiddle Environment Doctor")
	fmt.Println("============================")
	fmt.Println()

	report := &DoctorReport{
		Timestamp:   time.Now(),
		Environment: gatherEnvironmentInfo(),
		Results:     []DiagnosticResult{},
	}

	checks := []func(context.Context, *DoctorReport) DiagnosticResult{
		checkFiddleConfiguration,
		checkTemplateDirectory,
		checkDefaultTemplate,
		checkShareOrigin,
		checkStaticAssets,
		checkPortAvailability,
		checkNetworkConfiguration,
		checkFileSystemPermissions,
	}

	for _, check := range checks {
		result := check(ctx, report)
		report.Results = append(report.Results, result)

		if !doctorVerbose && result.Status == "info" {
			continue
		}

		displayResult(result)
	}

	report.Summary = calculateSummary(report.Results)

	fmt.Println("\n📊 Summary")
	fmt.Println("==========")
	displaySummary(report.Summary)

	if doctorFormat != "table" {
		fmt.Println("\n📋 Detailed Report")
		fmt.Println("==================")
		if err := outputReport(report, doctorFormat); err != nil {
			return fmt.Errorf("failed to output report: %w", err)
		}
	}

	provideFinalRecommendations(report)

	return nil
}

func gatherEnvironmentInfo() map[string]string {
	env := map[string]string{
		"os":          runtime.GOOS,
		"arch":        runtime.GOARCH,
		"go_version":  runtime.Version(),
		"user":        os.Getenv("USER"),
		"shell":       os.Getenv("SHELL"),
		"config_file": doctorConfigPath(),
	}

	if wd, err := os.Getwd(); err == nil {
		env["working_dir"] = wd
	}

	return env
}

// doctorConfigPath reports the configuration file the root command
// resolved, falling back to the default name when none was found.
func doctorConfigPath() string {
	if used := viper.ConfigFileUsed(); used != "" {
		return used
	}
	return ".fiddle.yml"
}

// doctorLoadConfig is the shared config loader for checks that need one.
// Checks degrade to defaults when loading fails; the configuration check
// itself reports the failure.
func doctorLoadConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		return nil
	}
	return cfg
}

func checkFiddleConfiguration(ctx context.Context, report *DoctorReport) DiagnosticResult {
	result := DiagnosticResult{
		Name:     "Fiddle Configuration",
		Category: "Configuration",
		Status:   "ok",
	}

	configPath := doctorConfigPath()
	data, err := os.ReadFile(configPath)
	if os.IsNotExist(err) {
		result.Status = "info"
		result.Message = "No configuration file found, running on defaults"
		result.Suggestion = "Create .fiddle.yml to pin ports, template directories, or share origins"
		return result
	}
	if err != nil {
		result.Status = "error"
		result.Message = fmt.Sprintf("Cannot read %s: %v", configPath, err)
		result.Suggestion = "Check file permissions on the configuration file"
		return result
	}

	// Syntax first: a lenient parse separates malformed YAML from
	// values that fail validation.
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		result.Status = "error"
		result.Message = fmt.Sprintf("%s is not valid YAML: %v", configPath, err)
		result.Suggestion = "Fix the YAML syntax error before adjusting values"
		return result
	}

	cfg, err := config.Load()
	if err != nil {
		result.Status = "error"
		result.Message = fmt.Sprintf("Configuration file parses but fails validation: %v", err)
		result.Suggestion = "Correct the rejected value in " + configPath
		return result
	}

	result.Message = "Configuration file is valid"
	result.Details = map[string]interface{}{
		"config_file":      configPath,
		"server_port":      cfg.Server.Port,
		"server_host":      cfg.Server.Host,
		"templates_dir":    cfg.Templates.Dir,
		"default_template": cfg.Templates.Default,
		"hot_reload":       cfg.Development.HotReload,
		"compact_links":    cfg.Share.Compact,
	}

	return result
}

func checkTemplateDirectory(ctx context.Context, report *DoctorReport) DiagnosticResult {
	result := DiagnosticResult{
		Name:     "Template Directory",
		Category: "Templates",
		Status:   "ok",
	}

	cfg := doctorLoadConfig()
	if cfg == nil {
		result.Status = "info"
		result.Message = "Skipped, configuration failed to load"
		return result
	}

	dir := cfg.Templates.Dir
	if dir == "" {
		result.Status = "info"
		result.Message = "No template directory configured, built-in templates only"
		return result
	}

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		result.Status = "info"
		result.Message = fmt.Sprintf("Template directory %s does not exist, built-in templates only", dir)
		result.Suggestion = "Create the directory and drop .yml template definitions into it"
		return result
	}
	if err != nil {
		result.Status = "error"
		result.Message = fmt.Sprintf("Cannot read template directory %s: %v", dir, err)
		result.Suggestion = "Check directory permissions"
		return result
	}

	// Parse every definition the server would load, collecting failures
	// instead of stopping at the first.
	collector := errors.NewErrorCollector()
	parsed := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".yml" && ext != ".yaml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			collector.AddError(fmt.Errorf("%s: %w", path, err))
			continue
		}
		if _, err := registry.ParseTemplate(data); err != nil {
			collector.AddError(fmt.Errorf("%s: %w", path, err))
			continue
		}
		parsed++
	}

	result.Details = map[string]interface{}{
		"directory": dir,
		"parsed":    parsed,
		"failed":    collector.Count(),
	}

	if collector.HasErrors() {
		problems := make([]string, 0, collector.Count())
		for _, err := range collector.GetAllErrors() {
			problems = append(problems, err.Error())
		}
		result.Status = "warning"
		result.Message = fmt.Sprintf("%d of %d template definitions fail to parse", collector.Count(), parsed+collector.Count())
		result.Suggestion = "The server skips broken definitions. Problems:\n   " + strings.Join(problems, "\n   ")
		return result
	}

	if parsed == 0 {
		result.Status = "info"
		result.Message = fmt.Sprintf("Template directory %s holds no definitions yet", dir)
		return result
	}

	result.Message = fmt.Sprintf("Loaded %d template definitions from %s", parsed, dir)
	return result
}

func checkDefaultTemplate(ctx context.Context, report *DoctorReport) DiagnosticResult {
	result := DiagnosticResult{
		Name:     "Default Template",
		Category: "Templates",
		Status:   "ok",
	}

	cfg := doctorLoadConfig()
	if cfg == nil {
		result.Status = "info"
		result.Message = "Skipped, configuration failed to load"
		return result
	}

	reg := registry.NewTemplateRegistry()
	if cfg.Templates.Dir != "" {
		reg.LoadDir(cfg.Templates.Dir)
	}

	name := cfg.Templates.Default
	if name == "" {
		name = registry.DefaultName
	}

	if _, ok := reg.Get(name); !ok {
		result.Status = "error"
		result.Message = fmt.Sprintf("Default template %q is not registered", name)
		result.Suggestion = fmt.Sprintf("Pick one of: %s, or add a matching definition to the template directory", strings.Join(reg.Names(), ", "))
		return result
	}

	result.Message = fmt.Sprintf("New sessions start from template %q", name)
	result.Details = map[string]interface{}{
		"default":   name,
		"available": reg.Names(),
	}

	return result
}

func checkShareOrigin(ctx context.Context, report *DoctorReport) DiagnosticResult {
	result := DiagnosticResult{
		Name:     "Share Origin",
		Category: "Sharing",
		Status:   "ok",
	}

	cfg := doctorLoadConfig()
	if cfg == nil {
		result.Status = "info"
		result.Message = "Skipped, configuration failed to load"
		return result
	}

	origin := cfg.ShareOrigin()
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		result.Status = "error"
		result.Message = fmt.Sprintf("Share links would use unusable origin %q", origin)
		result.Suggestion = "Set share.origin to a full URL like https://fiddle.example.com"
		return result
	}

	result.Message = fmt.Sprintf("Share links use origin %s", origin)
	result.Details = map[string]interface{}{
		"origin":     origin,
		"configured": cfg.Share.Origin != "",
		"compact":    cfg.Share.Compact,
	}

	if cfg.Share.Origin == "" && cfg.Server.Host == "localhost" {
		result.Status = "info"
		result.Message = fmt.Sprintf("Share links use %s and only resolve on this machine", origin)
		result.Suggestion = "Set share.origin when links should work for other people"
	}

	return result
}

func checkStaticAssets(ctx context.Context, report *DoctorReport) DiagnosticResult {
	result := DiagnosticResult{
		Name:     "Static Assets",
		Category: "Server",
		Status:   "ok",
	}

	cfg := doctorLoadConfig()
	if cfg == nil {
		result.Status = "info"
		result.Message = "Skipped, configuration failed to load"
		return result
	}

	dir := cfg.Server.StaticDir
	if dir == "" {
		result.Status = "info"
		result.Message = "No static directory configured, /static/ route disabled"
		return result
	}

	info, err := os.Stat(dir)
	if os.IsNotExist(err) {
		result.Status = "error"
		result.Message = fmt.Sprintf("Static directory %s does not exist", dir)
		result.Suggestion = "Create the directory or remove server.static_dir from the configuration"
		return result
	}
	if err != nil {
		result.Status = "error"
		result.Message = fmt.Sprintf("Cannot stat static directory %s: %v", dir, err)
		return result
	}
	if !info.IsDir() {
		result.Status = "error"
		result.Message = fmt.Sprintf("Static path %s is not a directory", dir)
		result.Suggestion = "Point server.static_dir at a directory of assets"
		return result
	}

	result.Message = fmt.Sprintf("Serving /static/ from %s", dir)
	result.Details = map[string]interface{}{
		"directory": dir,
	}

	return result
}

func checkPortAvailability(ctx context.Context, report *DoctorReport) DiagnosticResult {
	result := DiagnosticResult{
		Name:     "Port Availability",
		Category: "Network",
		Status:   "ok",
	}

	configuredPort := 8080
	if cfg := doctorLoadConfig(); cfg != nil && cfg.Server.Port != 0 {
		configuredPort = cfg.Server.Port
	}

	portsToCheck := []int{configuredPort, 8081, 3000, 3001, 5173}
	availablePorts := []int{}
	conflictPorts := []int{}

	for _, port := range portsToCheck {
		if isPortAvailable(port) {
			availablePorts = append(availablePorts, port)
		} else {
			conflictPorts = append(conflictPorts, port)
			if port == configuredPort {
				result.Status = "warning"
			}
		}
	}

	if len(conflictPorts) == 0 {
		result.Message = "All common development ports are available"
	} else {
		result.Message = fmt.Sprintf("Port conflicts detected: %v", conflictPorts)
		result.Suggestion = "Stop the conflicting services or use alternative ports"

		if containsPort(conflictPorts, configuredPort) && len(availablePorts) > 0 {
			result.Suggestion += fmt.Sprintf("\nFor fiddle, use: fiddle serve --port %d", availablePorts[0])
		}
	}

	result.Details = map[string]interface{}{
		"configured_port": configuredPort,
		"available_ports": availablePorts,
		"conflict_ports":  conflictPorts,
	}

	return result
}

func checkNetworkConfiguration(ctx context.Context, report *DoctorReport) DiagnosticResult {
	result := DiagnosticResult{
		Name:     "Network Configuration",
		Category: "Network",
		Status:   "ok",
	}

	listener, err := net.Listen("tcp", "localhost:0")
	if err != nil {
		result.Status = "error"
		result.Message = "Cannot bind to localhost"
		result.Suggestion = "Check network configuration and firewall settings"
		return result
	}

	port := listener.Addr().(*net.TCPAddr).Port
	listener.Close()

	result.Message = "Network configuration is working"
	result.Details = map[string]interface{}{
		"test_port":            port,
		"localhost_accessible": true,
	}

	return result
}

func checkFileSystemPermissions(ctx context.Context, report *DoctorReport) DiagnosticResult {
	result := DiagnosticResult{
		Name:     "File System Permissions",
		Category: "System",
		Status:   "ok",
	}

	// Decode writes recovered buffers into the working directory.
	testFile := ".fiddle-permission-test"
	if err := os.WriteFile(testFile, []byte("test"), 0644); err != nil {
		result.Status = "warning"
		result.Message = "Cannot write to current directory"
		result.Suggestion = "fiddle decode needs a writable output directory; use --output elsewhere"
		return result
	}
	os.Remove(testFile)

	result.Message = "File system permissions are adequate"
	return result
}

// Helper functions

func isPortAvailable(port int) bool {
	listener, err := net.Listen("tcp", fmt.Sprintf("localhost:%d", port))
	if err != nil {
		return false
	}
	listener.Close()
	return true
}

func containsPort(ports []int, port int) bool {
	for _, p := range ports {
		if p == port {
			return true
		}
	}
	return false
}

func displayResult(result DiagnosticResult) {
	var icon string
	switch result.Status {
	case "ok":
		icon = "✅"
	case "warning":
		icon = "⚠️"
	case "error":
		icon = "❌"
	case "info":
		icon = "ℹ️"
	default:
		icon = "•"
	}

	fmt.Printf("%s [%s] %s: %s\n", icon, strings.ToUpper(result.Category), result.Name, result.Message)

	if result.Suggestion != "" {
		fmt.Printf("   💡 %s\n", result.Suggestion)
	}

	if doctorVerbose && len(result.Details) > 0 {
		fmt.Printf("   📋 Details: %+v\n", result.Details)
	}

	fmt.Println()
}

func calculateSummary(results []DiagnosticResult) ReportSummary {
	summary := ReportSummary{
		Total: len(results),
	}

	for _, result := range results {
		switch result.Status {
		case "ok":
			summary.OK++
		case "warning":
			summary.Warnings++
		case "error":
			summary.Errors++
		case "info":
			summary.Info++
		}
	}

	return summary
}

func displaySummary(summary ReportSummary) {
	fmt.Printf("Total Checks: %d\n", summary.Total)
	fmt.Printf("✅ OK: %d\n", summary.OK)
	fmt.Printf("⚠️  Warnings: %d\n", summary.Warnings)
	fmt.Printf("❌ Errors: %d\n", summary.Errors)
	fmt.Printf("ℹ️  Info: %d\n", summary.Info)

	healthScore := float64(summary.OK) / float64(summary.Total) * 100
	fmt.Printf("\n🎯 Environment Health Score: %.0f%%\n", healthScore)
}

func outputReport(report *DoctorReport, format string) error {
	switch format {
	case "json":
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		return encoder.Encode(report)
	case "yaml":
		encoder := yaml.NewEncoder(os.Stdout)
		return encoder.Encode(report)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func provideFinalRecommendations(report *DoctorReport) {
	fmt.Println("\n🚀 Final Recommendations")
	fmt.Println("========================")

	hasErrors := report.Summary.Errors > 0
	hasWarnings := report.Summary.Warnings > 0

	if hasErrors {
		fmt.Println("❌ Critical Issues Detected:")
		fmt.Println("   Address the errors above before starting the server")
		fmt.Println()
	}

	if hasWarnings {
		fmt.Println("⚠️  Optimization Opportunities:")
		fmt.Println("   Review warnings above to improve your setup")
		fmt.Println()
	}

	if !hasErrors && !hasWarnings {
		fmt.Println("🎉 Your environment looks great!")
		fmt.Println("   Run 'fiddle serve' to start the playground")
		fmt.Println()
	}
}
