package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/archive-resolver/internal/archive"
)

func newResolveCmd() *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "resolve <url>",
		Short: "Find an existing archive or create one",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			res := appInstance.Engine().Resolve(cmd.Context(), args[0])
			return printResult(cmd.OutOrStdout(), res, strict)
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when the result carries an error")
	return cmd
}

func newRenderCmd() *cobra.Command {
	var strict bool
	cmd := &cobra.Command{
		Use:   "render <url>",
		Short: "Submit through the browser flow, solving challenges as needed",
		Long: `render skips lookups and drives the archive.today submission form in a
headless browser. It needs a solver api key (challenge.api_key or SOLVECAPTCHA_API_KEY).`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			res := appInstance.Engine().Render(cmd.Context(), args[0])
			return printResult(cmd.OutOrStdout(), res, strict)
		},
	}
	cmd.Flags().BoolVar(&strict, "strict", false, "exit non-zero when the result carries an error")
	return cmd
}

func newLinksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "links <url>",
		Short: "Print the manual search and create links",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			return writeJSON(cmd.OutOrStdout(), appInstance.Engine().Links(args[0]))
		},
	}
}

func printResult(w io.Writer, res archive.Result, strict bool) error {
	if err := writeJSON(w, res); err != nil {
		return err
	}
	if strict && res.Error != "" {
		return fmt.Errorf("resolution failed: %s", res.Error)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}
