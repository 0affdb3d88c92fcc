package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/easeaico/marketing-analyst/internal/service"
)

func newAnalyzeCmd() *cobra.Command {
	var (
		req    service.Request
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Run one analysis and print the result",
		Example: `  analyst analyze --client 42 --platform instagram --type descriptive
  analyst analyze --client 42 --platform facebook --query "Qual dia teve mais impressões?" --start 2024-01-01`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, _, _, err := setup(cmd.Context())
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.analyst.RunAnalysis(cmd.Context(), req)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(out, res.Result)
				fmt.Fprintf(out, "\n(%s, %.2fs)\n", res.Status, res.ExecutionTime)
			}
			if res.Status != service.StatusSuccess {
				return fmt.Errorf("%w: %s", errAnalysisFailed, res.Error)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&req.ClientID, "client", "", "client id (required)")
	f.StringVar(&req.Platform, "platform", "", "google_analytics, facebook or instagram (required)")
	f.StringVar(&req.AnalysisType, "type", "", "descriptive, diagnostic, predictive or prescriptive")
	f.StringVar(&req.CustomQuery, "query", "", "free-form question; overrides --type")
	f.StringVar(&req.StartDate, "start", "", "first day of the period (YYYY-MM-DD)")
	f.StringVar(&req.EndDate, "end", "", "last day of the period (YYYY-MM-DD)")
	f.StringVar(&req.OutputFormat, "format", service.DefaultOutputFormat, "answer format")
	f.BoolVar(&req.ForceNew, "force-new", false, "rebuild the analyst from the tabular store")
	f.BoolVar(&asJSON, "json", false, "print the full result as JSON")
	_ = cmd.MarkFlagRequired("client")
	_ = cmd.MarkFlagRequired("platform")
	return cmd
}
