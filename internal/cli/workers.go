package cli

import "github.com/spf13/cobra"

// NewWorkersCmd создаёт группу команд для просмотра воркеров.
func NewWorkersCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "Inspect workers",
	}

	cmd.AddCommand(
		newWorkersListCmd(clientFn, outputFn),
		newWorkersShowCmd(clientFn, outputFn),
		newWorkersHealthCmd(clientFn, outputFn),
	)

	return cmd
}

func newWorkersListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var state string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			workers, err := client.ListWorkers(state)
			if err != nil {
				return err
			}

			out.Workers(workers)
			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "Filter by state (RUNNING, PAUSED, ERROR, ...)")

	return cmd
}

func newWorkersShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show WORKER_ID",
		Short: "Show worker details",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			w, err := client.GetWorker(args[0])
			if err != nil {
				return err
			}

			out.Worker(*w)
			return nil
		},
	}
}

func newWorkersHealthCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "health WORKER_ID",
		Short: "Show worker health report",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			r, err := client.GetWorkerHealth(args[0])
			if err != nil {
				return err
			}

			out.Health(*r)
			return nil
		},
	}
}
