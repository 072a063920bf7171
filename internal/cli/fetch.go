package cli

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newFetchCmd(a *app) *cobra.Command {
	var (
		service string
		compact bool
	)

	cmd := &cobra.Command{
		Use:   "fetch <url>",
		Short: "Fetch an API URL through the data cache and print the JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client, err := a.client(cmd)
			if err != nil {
				return err
			}
			if service == "" {
				service = a.cfg.Auth.Service
			}

			raw, err := client.GetRaw(cmd.Context(), args[0], service)
			if err != nil {
				return err
			}

			out := raw
			if !compact {
				var buf bytes.Buffer
				if err = json.Indent(&buf, raw, "", "  "); err != nil {
					return fmt.Errorf("failed to format response: %w", err)
				}
				out = buf.Bytes()
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return err
		},
	}

	cmd.Flags().StringVar(&service, "service", "", "credentials identifier (default from config)")
	cmd.Flags().BoolVar(&compact, "compact", false, "print the JSON as stored")
	return cmd
}
