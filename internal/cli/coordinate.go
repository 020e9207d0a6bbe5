package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// NewCoordinateCmd создаёт команду coordinate.
func NewCoordinateCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var source string
	var resourceID string
	var payload []string

	cmd := &cobra.Command{
		Use:   "coordinate TYPE TARGET_WORKFLOW_ID",
		Short: "Run a cross-workflow operation",
		Long: `Run a cross-workflow operation against the worker API.

TYPE is one of: state_sync, event_propagation, resource_handoff, completion_signal.`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req := CoordinateRequest{SourceWorkflowID: source}
			req.Request.Type = args[0]
			req.Request.TargetWorkflowID = args[1]
			req.Request.ResourceID = resourceID

			if len(payload) > 0 {
				req.Request.Payload = make(map[string]any)
				for _, kv := range payload {
					parts := strings.SplitN(kv, "=", 2)
					if len(parts) != 2 {
						return fmt.Errorf("invalid payload format %q, expected KEY=VALUE", kv)
					}
					req.Request.Payload[parts[0]] = parts[1]
				}
			}

			result, err := client.Coordinate(req)
			if err != nil {
				return err
			}

			out.Coordination(result)
			return nil
		},
	}

	cmd.Flags().StringVar(&source, "source", "operator", "Source workflow ID")
	cmd.Flags().StringVar(&resourceID, "resource-id", "", "Resource ID (resource_handoff)")
	cmd.Flags().StringSliceVar(&payload, "payload", nil, "Payload values as KEY=VALUE (repeatable)")

	return cmd
}
