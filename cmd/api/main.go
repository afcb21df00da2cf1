package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:   "woof-guard",
	Short: "Security gate for the Woof Meetup API",
	Long: `woof-guard protege a API com políticas de rate limiting por endpoint,
monitora eventos de segurança e envia alertas quando um endpoint passa do limiar.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	// Sem subcomando o gate sobe o servidor
	RunE: runServe,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "woof-guard %s\n", version)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(policiesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
