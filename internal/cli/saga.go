package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewSagaCmd создаёт группу команд для работы с сагами.
func NewSagaCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "saga",
		Short: "Inspect and compensate sagas",
	}

	cmd.AddCommand(
		newSagaShowCmd(clientFn, outputFn),
		newSagaCompensateCmd(clientFn, outputFn),
	)

	return cmd
}

func newSagaShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show SAGA_ID",
		Short: "Show the compensation record of a saga",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			record, err := client.GetSagaRecord(args[0])
			if err != nil {
				return err
			}

			out.SagaRecord(record)
			return nil
		},
	}
}

func newSagaCompensateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "compensate SAGA_ID",
		Short: "Run compensation for a saga",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			result, err := client.CompensateSaga(args[0])
			if err != nil {
				return err
			}

			switch {
			case result.NoOp:
				out.Success(fmt.Sprintf("Saga %s: nothing to compensate", result.SagaID))
			case result.Compensated:
				out.Success(fmt.Sprintf("Saga %s compensated: %d artifacts, %d resources, %d cache keys",
					result.SagaID, result.ArtifactsDeleted, result.ResourcesReleased, result.KeysInvalidated))
			}

			out.Compensation(result)
			return nil
		},
	}
}
