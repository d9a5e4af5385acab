package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"

	"github.com/conneroisu/fiddle/internal/errors"
	"github.com/conneroisu/fiddle/internal/sharelink"
)

var decodeCmd = &cobra.Command{
	Use:     "decode <url-or-query>",
	Aliases: []string{"dec"},
	Short:   "Recover source files from a share link",
	Long: `Decode a share link back into its HTML, CSS, and JavaScript sources
and write them as files. Accepts a full URL or just the query string, in
either the classic or the compact format. Only buffers the link actually
carries are written.

Existing files are not overwritten without confirmation; use --force to
skip the prompt.

Examples:
  fiddle decode "http://localhost:8080/?html=PGgxPmhpPC9oMT4="
  fiddle decode "http://localhost:8080/?s=AbCd..." --output snippets/
  fiddle decode "html=PGgxPmhpPC9oMT4=&css=&js=" --force`,
	Args: cobra.ExactArgs(1),
	RunE: runDecode,
}

var (
	decodeOutputDir string
	decodeForce     bool
)

func init() {
	rootCmd.AddCommand(decodeCmd)

	decodeCmd.Flags().StringVarP(&decodeOutputDir, "output", "o", ".", "Directory to write the recovered files into")
	decodeCmd.Flags().BoolVar(&decodeForce, "force", false, "Overwrite existing files without asking")
}

func runDecode(cmd *cobra.Command, args []string) error {
	overlay, err := sharelink.DecodeURL(args[0])
	if err != nil {
		suggestions := errors.DecodeFailureError(err, &errors.SuggestionContext{})
		return errors.NewEnhancedError(
			"Failed to decode share link",
			err,
			suggestions,
		)
	}

	if overlay.Empty() {
		return fmt.Errorf("the link carries no share parameters")
	}

	if err := os.MkdirAll(decodeOutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	outputs := []struct {
		name    string
		content *string
	}{
		{"snippet.html", overlay.Markup},
		{"snippet.css", overlay.Style},
		{"snippet.js", overlay.Script},
	}

	var written []string
	for _, out := range outputs {
		if out.content == nil {
			continue
		}

		path := filepath.Join(decodeOutputDir, out.name)

		if !decodeForce {
			if _, err := os.Stat(path); err == nil {
				if !confirmOverwrite(path) {
					fmt.Printf("Skipped %s\n", path)
					continue
				}
			}
		}

		if err := os.WriteFile(path, []byte(*out.content), 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		written = append(written, path)
	}

	if len(written) == 0 {
		fmt.Println("Nothing written.")
		return nil
	}

	fmt.Printf("Recovered %d file(s): %s\n", len(written), strings.Join(written, ", "))
	return nil
}

// confirmOverwrite asks before clobbering an existing file. A declined
// prompt or a non-interactive terminal both count as "no".
func confirmOverwrite(path string) bool {
	prompt := promptui.Prompt{
		Label:     fmt.Sprintf("%s exists, overwrite", path),
		IsConfirm: true,
	}
	_, err := prompt.Run()
	return err == nil
}
