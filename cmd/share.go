package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/conneroisu/fiddle/internal/config"
	"github.com/conneroisu/fiddle/internal/sharelink"
	"github.com/conneroisu/fiddle/internal/workspace"
)

var shareCmd = &cobra.Command{
	Use:     "share",
	Aliases: []string{"enc"},
	Short:   "Encode source files into a share link",
	Long: `Encode HTML, CSS, and JavaScript files into a share link without
running a server. Omitted inputs encode as empty buffers. Pass "-" as a
file name to read that buffer from stdin.

Examples:
  fiddle share --html index.html --css style.css --js app.js
  fiddle share --html index.html --compact
  cat snippet.html | fiddle share --html -
  fiddle share --html index.html --origin https://fiddle.example.com`,
	RunE: runShare,
}

var (
	shareHTMLFile string
	shareCSSFile  string
	shareJSFile   string
	shareCompact  bool
	shareOrigin   string
)

func init() {
	rootCmd.AddCommand(shareCmd)

	shareCmd.Flags().StringVar(&shareHTMLFile, "html", "", "HTML source file (- for stdin)")
	shareCmd.Flags().StringVar(&shareCSSFile, "css", "", "CSS source file (- for stdin)")
	shareCmd.Flags().StringVar(&shareJSFile, "js", "", "JavaScript source file (- for stdin)")
	shareCmd.Flags().BoolVar(&shareCompact, "compact", false, "Generate the compact single-parameter link")
	shareCmd.Flags().StringVar(&shareOrigin, "origin", "", "Link origin (default from configuration)")

	for _, name := range []string{"html", "css", "js"} {
		AddFlagValidation(shareCmd, name, validateShareInput)
	}
}

// validateShareInput accepts empty and stdin markers, otherwise requires
// the file to exist so typos fail before anything is encoded.
func validateShareInput(path string) error {
	if path == "-" {
		return nil
	}
	return ValidateFileExists(path)
}

func runShare(cmd *cobra.Command, args []string) error {
	if shareHTMLFile == "" && shareCSSFile == "" && shareJSFile == "" {
		return fmt.Errorf("nothing to share: pass at least one of --html, --css, --js")
	}

	stdinUsed := false
	readBuffer := func(path string) (string, error) {
		if path == "" {
			return "", nil
		}
		if path == "-" {
			if stdinUsed {
				return "", fmt.Errorf("stdin can only feed one buffer")
			}
			stdinUsed = true
			data, err := io.ReadAll(os.Stdin)
			if err != nil {
				return "", fmt.Errorf("reading stdin: %w", err)
			}
			return string(data), nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("reading %s: %w", path, err)
		}
		return string(data), nil
	}

	var triple workspace.Triple
	var err error
	if triple.Markup, err = readBuffer(shareHTMLFile); err != nil {
		return err
	}
	if triple.Style, err = readBuffer(shareCSSFile); err != nil {
		return err
	}
	if triple.Script, err = readBuffer(shareJSFile); err != nil {
		return err
	}

	origin := shareOrigin
	compact := shareCompact
	if origin == "" || !cmd.Flags().Changed("compact") {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		if origin == "" {
			origin = cfg.ShareOrigin()
		}
		if !cmd.Flags().Changed("compact") {
			compact = cfg.Share.Compact
		}
	}

	var link string
	if compact {
		link, err = sharelink.EncodeCompact(origin, triple)
	} else {
		link, err = sharelink.Encode(origin, triple)
	}
	if err != nil {
		return fmt.Errorf("failed to encode share link: %w", err)
	}

	fmt.Println(link)
	return nil
}
