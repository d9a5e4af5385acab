package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// AddFlagValidation adds validation for a specific flag
func AddFlagValidation(cmd *cobra.Command, flagName string, validator func(string) error) {
	flag := cmd.Flags().Lookup(flagName)
	if flag == nil {
		return
	}

	// Store original value setter
	originalSet := flag.Value.Set

	// Create wrapper that validates
	flag.Value = &validatingValue{
		Value:       flag.Value,
		validator:   validator,
		originalSet: originalSet,
	}
}

type validatingValue struct {
	pflag.Value
	validator   func(string) error
	originalSet func(string) error
}

func (v *validatingValue) Set(val string) error {
	if v.validator != nil {
		if err := v.validator(val); err != nil {
			return err
		}
	}
	return v.originalSet(val)
}

// ValidateFormatWithSuggestion checks an output-format flag value against
// the formats a command supports, suggesting the closest match on a miss.
func ValidateFormatWithSuggestion(format string, valid []string) error {
	lowered := strings.ToLower(format)
	for _, v := range valid {
		if lowered == v {
			return nil
		}
	}

	msg := fmt.Sprintf("invalid format %q, must be one of: %s", format, strings.Join(valid, ", "))
	for _, v := range valid {
		if strings.HasPrefix(v, lowered) || strings.HasPrefix(lowered, v) {
			return fmt.Errorf("%s (did you mean %q?)", msg, v)
		}
	}
	return fmt.Errorf("%s", msg)
}

// Port validation helper
func ValidatePort(portStr string) error {
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return fmt.Errorf("invalid port number: %s", portStr)
	}

	if port < 1 || port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", port)
	}

	return nil
}

// File existence validation helper
func ValidateFileExists(filename string) error {
	if filename == "" {
		return nil // Empty is valid for optional files
	}

	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return fmt.Errorf("file does not exist: %s", filename)
	}

	return nil
}
