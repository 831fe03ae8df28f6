package cli

import (
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// output writes v as JSON or YAML when asked to, and calls human otherwise.
func output(cmd *cobra.Command, opts *globalOptions, v any, human func(w io.Writer)) error {
	if opts.jsonOutput || opts.yamlOutput {
		return printStructured(cmd.OutOrStdout(), opts, v)
	}
	human(cmd.OutOrStdout())
	return nil
}

func printStructured(w io.Writer, opts *globalOptions, v any) error {
	if opts.yamlOutput {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to format YAML output: %w", err)
		}
		return enc.Close()
	}
	b, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to format JSON output: %w", err)
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func fprintf(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format, args...)
}
