package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"woof-guard/internal/config"
)

var policiesJSON bool

var policiesCmd = &cobra.Command{
	Use:   "policies",
	Short: "Print the effective rate limit policies and routes",
	RunE: func(cmd *cobra.Command, args []string) error {
		configLoader := config.NewConfigLoader()
		if _, err := configLoader.LoadConfig(); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		policies := configLoader.Policies().All()
		out := cmd.OutOrStdout()

		if policiesJSON {
			encoder := json.NewEncoder(out)
			encoder.SetIndent("", "  ")
			return encoder.Encode(map[string]interface{}{
				"policies": policies,
				"routes":   configLoader.Routes(),
			})
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "POLICY\tMAX\tWINDOW\tSKIP SUCCESS\tCODE")
		for _, p := range policies {
			fmt.Fprintf(w, "%s\t%d\t%s\t%t\t%s\n", p.Name, p.MaxRequests, p.Window, p.SkipSuccessfulRequests, p.ErrorCode)
		}
		fmt.Fprintln(w)
		fmt.Fprintln(w, "METHOD\tPATH\tPOLICY")
		routes := configLoader.Routes()
		for _, r := range routes.Routes {
			fmt.Fprintf(w, "%s\t%s\t%s\n", r.Method, r.Path, r.Policy)
		}
		fmt.Fprintf(w, "*\t*\t%s\n", routes.Global)
		return w.Flush()
	},
}

func init() {
	policiesCmd.Flags().BoolVar(&policiesJSON, "json", false, "Print as JSON")
}
