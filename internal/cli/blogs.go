package cli

import (
	"github.com/spf13/cobra"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/guarzo/tumblrapi/modules/report"
)

func newBlogsCmd(a *app) *cobra.Command {
	var outDir string

	cmd := &cobra.Command{
		Use:   "blogs <host>...",
		Short: "Fetch blogs and their latest posts",
		Long: `Fetch each blog's latest posts and print one summary line per blog.
With --out, write blogs.csv and a <name>_posts.csv file per blog.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.service(cmd)
			if err != nil {
				return err
			}

			reports, err := svc.GetBlogs(cmd.Context(), args)
			if err != nil {
				return err
			}

			p := message.NewPrinter(language.English)
			w := cmd.OutOrStdout()
			for _, r := range reports {
				if _, err = p.Fprintf(w, "%s: %d posts in %s\n", r.Host, r.Blog.NumPosts, r.Blog.Title); err != nil {
					return err
				}
			}

			if outDir == "" {
				return nil
			}
			paths, err := report.WriteFiles(outDir, reports)
			if err != nil {
				return err
			}
			for _, path := range paths {
				p.Fprintf(w, "wrote %s\n", path)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&outDir, "out", "o", "", "directory for CSV reports")
	return cmd
}
