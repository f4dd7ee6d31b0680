package cli

import "github.com/spf13/cobra"

// NewSupervisorCmd создаёт группу команд supervisor.
func NewSupervisorCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "supervisor",
		Short: "Inspect the worker supervisor",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show supervisor statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			s, err := client.SupervisorStats()
			if err != nil {
				return err
			}

			out.SupervisorStats(*s)
			return nil
		},
	})

	return cmd
}

// NewBrokerCmd создаёт группу команд broker.
func NewBrokerCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "broker",
		Short: "Inspect the data broker",
	}

	cmd.AddCommand(
		newBrokerStatsCmd(clientFn, outputFn),
		newBrokerTopicsCmd(clientFn, outputFn),
		newBrokerSubscribersCmd(clientFn, outputFn),
	)

	return cmd
}

func newBrokerStatsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show broker statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			s, err := client.BrokerStats()
			if err != nil {
				return err
			}

			out.BrokerStats(*s)
			return nil
		},
	}
}

func newBrokerTopicsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "topics",
		Short: "List topics with subscriber counts",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			topics, err := client.BrokerTopics()
			if err != nil {
				return err
			}

			out.Topics(topics)
			return nil
		},
	}
}

func newBrokerSubscribersCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var dataType string

	cmd := &cobra.Command{
		Use:   "subscribers SYMBOL",
		Short: "List workers subscribed to a symbol",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			subs, err := client.BrokerSubscribers(args[0], dataType)
			if err != nil {
				return err
			}

			out.Subscribers(*subs)
			return nil
		},
	}

	cmd.Flags().StringVar(&dataType, "data-type", "", "Data type (default kline)")

	return cmd
}
