package cli

import (
	"github.com/spf13/cobra"
)

// NewStatusCmd создаёт команду status.
func NewStatusCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show worker status",
		RunE: func(cmd *cobra.Command, args []string) error {
			status, err := clientFn().GetStatus()
			if err != nil {
				return err
			}

			outputFn().Status(status)
			return nil
		},
	}
}

// NewRegistrationsCmd создаёт команду registrations.
func NewRegistrationsCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "registrations",
		Short: "List registered task handlers",
		RunE: func(cmd *cobra.Command, args []string) error {
			registrations, err := clientFn().ListRegistrations()
			if err != nil {
				return err
			}

			outputFn().Registrations(registrations)
			return nil
		},
	}
}
