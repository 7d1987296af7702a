package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"carepilot/pkg/actionclient"
)

func newExecCmd(opts *rootOptions) *cobra.Command {
	var params string
	cmd := &cobra.Command{
		Use:   "exec <action>",
		Short: "Execute one action",
		Example: `  assistctl exec create_appointment --params '{"client_name":"Jane Doe","start_time":"2025-03-18T14:00"}'
  assistctl exec list_appointments`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p := actionclient.Payload{Action: args[0], Params: map[string]any{}, Timezone: opts.timezone}
			if params != "" {
				if err := json.Unmarshal([]byte(params), &p.Params); err != nil {
					return fmt.Errorf("--params must be a JSON object: %w", err)
				}
			}

			c, err := opts.client()
			if err != nil {
				return err
			}
			res, err := c.Execute(cmd.Context(), p)
			if err != nil {
				return fmt.Errorf("%s", actionclient.FriendlyMessage(err))
			}
			return printResult(cmd, res)
		},
	}
	cmd.Flags().StringVar(&params, "params", "", "action parameters as a JSON object")
	return cmd
}

func printResult(cmd *cobra.Command, res *actionclient.Result) error {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, res.Message)
	if res.EntityID != "" {
		fmt.Fprintf(out, "id: %s\n", res.EntityID)
	}
	if len(res.Data) > 0 {
		var pretty any
		if err := json.Unmarshal(res.Data, &pretty); err == nil {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(pretty)
		}
	}
	return nil
}
