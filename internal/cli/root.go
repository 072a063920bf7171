// Package cli implements the tumblrapi command line.
package cli

import (
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/guarzo/tumblrapi/common"
	"github.com/guarzo/tumblrapi/modules/auth"
)

// Options carries the process-level dependencies of the CLI. Zero values
// select the real implementations.
type Options struct {
	Version string

	Clock clockwork.Clock

	// Prompter drives interactive logins, a terminal prompter when nil.
	Prompter auth.Prompter

	// HTTPClientFactory builds the retrying client around a signed client.
	HTTPClientFactory func(userAgent string, signed *http.Client, logger zerolog.Logger) common.HttpClient
}

// NewRootCmd creates the root command for the tumblrapi CLI.
func NewRootCmd(version string) *cobra.Command {
	return NewRootCmdWithOptions(Options{Version: version})
}

// NewRootCmdWithOptions creates the root command with explicit dependencies
// for tests.
func NewRootCmdWithOptions(opts Options) *cobra.Command {
	a := &app{opts: opts}
	if a.opts.Clock == nil {
		a.opts.Clock = clockwork.NewRealClock()
	}

	cmd := &cobra.Command{
		Use:           "tumblrapi",
		Short:         "Fetch Tumblr blogs through a persistent expiring cache",
		Version:       opts.Version,
		Example:       rootCmdExample,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
	}

	cmd.PersistentFlags().StringVar(&a.flags.configPath, "config", "", "config file (default ~/.tumblrapi/config.yaml)")
	cmd.PersistentFlags().BoolVar(&a.flags.debug, "debug", false, "enable debug logging")
	cmd.PersistentFlags().StringVar(&a.flags.cacheDir, "cache-dir", "", "directory holding the cache files")
	cmd.PersistentFlags().StringVar(&a.flags.scheme, "auth-scheme", "", "oauth1 or oauth2")

	cmd.AddCommand(
		newFetchCmd(a),
		newBlogsCmd(a),
		newLoginCmd(a),
		newCacheCmd(a),
	)
	return cmd
}

const rootCmdExample = `  # Log in once, credentials are cached for a week
  tumblrapi login

  # Fetch two blogs and write blogs.csv plus one posts file per blog
  tumblrapi blogs www.humansofnewyork.com nprontheroad.tumblr.com --out ./reports

  # Fetch any API URL through the data cache
  tumblrapi fetch "https://api.tumblr.com/v2/blog/staff.tumblr.com/info"

  # Inspect and maintain the caches
  tumblrapi cache list --namespace data
  tumblrapi cache prune`
