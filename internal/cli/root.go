package cli

import (
	"io"

	"github.com/spf13/cobra"
)

// DefaultAPIURL — адрес API хоста по умолчанию.
const DefaultAPIURL = "http://localhost:8090"

// NewRootCmd собирает корневую команду CLI. Данные пишутся в stdout,
// сообщения — в stderr.
func NewRootCmd(version string, stdout, stderr io.Writer) *cobra.Command {
	var apiURL string
	var jsonOutput bool

	rootCmd := &cobra.Command{
		Use:           "stratvisor",
		Short:         "stratvisor CLI — inspect the strategy worker fleet",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", DefaultAPIURL, "Host API URL")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")

	clientFn := func() *Client { return NewClient(apiURL) }
	outputFn := func() *Output { return NewOutputTo(jsonOutput, stdout, stderr) }

	rootCmd.AddCommand(
		NewWorkersCmd(clientFn, outputFn),
		NewSupervisorCmd(clientFn, outputFn),
		NewBrokerCmd(clientFn, outputFn),
	)

	return rootCmd
}
