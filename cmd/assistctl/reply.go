package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"carepilot/pkg/actionclient"
)

func newReplyCmd(opts *rootOptions) *cobra.Command {
	var dryRun bool
	cmd := &cobra.Command{
		Use:   "reply [text]",
		Short: "Extract and execute the action embedded in an assistant reply",
		Long:  "Reads an assistant reply from the argument or stdin, prints the reply without the embedded action and executes the action, if any.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text, err := replyText(cmd, args)
			if err != nil {
				return err
			}

			if dryRun {
				ex, ok := actionclient.Extract(text)
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "no action found")
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "action: %s (%s)\nparams: %v\n", ex.Payload.Action, ex.Method, ex.Payload.Params)
				return nil
			}

			c, err := opts.client()
			if err != nil {
				return err
			}
			out := actionclient.NewSession(c, opts.timezone).HandleReply(cmd.Context(), text)
			fmt.Fprintln(cmd.OutOrStdout(), out.Text)
			if out.Err != nil {
				return errors.New(out.Err.Message)
			}
			if out.Executed && out.Text != out.Result.Message {
				fmt.Fprintf(cmd.OutOrStdout(), "(%s)\n", out.Result.Message)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "only show the extracted action")
	return cmd
}

func replyText(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 {
		return args[0], nil
	}
	b, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return "", fmt.Errorf("read reply: %w", err)
	}
	if strings.TrimSpace(string(b)) == "" {
		return "", errors.New("no reply given: pass it as an argument or on stdin")
	}
	return string(b), nil
}
