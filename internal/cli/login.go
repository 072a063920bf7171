package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newLoginCmd(a *app) *cobra.Command {
	var (
		force   bool
		service string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and cache the credentials",
		Long: `Run the OAuth login flow unless valid credentials are already cached.
--force discards cached credentials and logs in again.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			provider, err := a.credentials(cmd)
			if err != nil {
				return err
			}
			if service == "" {
				service = a.cfg.Auth.Service
			}

			if force {
				_, err = provider.Login(cmd.Context(), service)
			} else {
				_, err = provider.Credentials(cmd.Context(), service)
			}
			if err != nil {
				return err
			}

			_, err = fmt.Fprintf(cmd.OutOrStdout(), "credentials for %s cached for %d days\n",
				service, a.cfg.Cache.CredentialsTTLDays)
			return err
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "log in even when credentials are cached")
	cmd.Flags().StringVar(&service, "service", "", "credentials identifier (default from config)")
	return cmd
}
