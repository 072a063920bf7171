package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/guarzo/tumblrapi/modules/cache"
)

func newCacheCmd(a *app) *cobra.Command {
	var namespace string

	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and maintain the data and credentials caches",
	}
	cmd.PersistentFlags().StringVarP(&namespace, "namespace", "n", "", "data or credentials (default both)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List cached entries with their age and status",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				namespaces, err := a.selectNamespaces(namespace)
				if err != nil {
					return err
				}
				return renderEntries(cmd.OutOrStdout(), namespaces)
			},
		},
		&cobra.Command{
			Use:   "prune",
			Short: "Remove expired entries and rewrite the cache files",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				namespaces, err := a.selectNamespaces(namespace)
				if err != nil {
					return err
				}
				p := message.NewPrinter(language.English)
				for _, ns := range namespaces {
					removed, err := ns.Prune(cmd.Context())
					if err != nil {
						return err
					}
					p.Fprintf(cmd.OutOrStdout(), "%s: removed %d expired entries\n", ns.Name(), removed)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Remove every entry",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				namespaces, err := a.selectNamespaces(namespace)
				if err != nil {
					return err
				}
				for _, ns := range namespaces {
					if err = ns.Clear(cmd.Context()); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "%s: cleared\n", ns.Name())
				}
				return nil
			},
		},
	)
	return cmd
}

func (a *app) selectNamespaces(name string) ([]*cache.Namespace, error) {
	caches, err := a.openCaches()
	if err != nil {
		return nil, err
	}
	if name == "" {
		return []*cache.Namespace{caches.Data, caches.Credentials}, nil
	}
	ns, err := caches.Namespace(cache.NamespaceName(name))
	if err != nil {
		return nil, err
	}
	return []*cache.Namespace{ns}, nil
}

type listStyles struct {
	header  lipgloss.Style
	valid   lipgloss.Style
	expired lipgloss.Style
	muted   lipgloss.Style
}

func newListStyles(w io.Writer) listStyles {
	s := listStyles{
		header:  lipgloss.NewStyle(),
		valid:   lipgloss.NewStyle(),
		expired: lipgloss.NewStyle(),
		muted:   lipgloss.NewStyle(),
	}
	if !isTerminal(w) {
		return s
	}
	s.header = s.header.Bold(true).Foreground(lipgloss.Color("12"))
	s.valid = s.valid.Foreground(lipgloss.Color("10"))
	s.expired = s.expired.Foreground(lipgloss.Color("9"))
	s.muted = s.muted.Foreground(lipgloss.Color("8"))
	return s
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

var columnWidths = []int{13, 9, 28, 5, 10}

// cell pads text to column i.
func cell(style lipgloss.Style, i int, text string) string {
	return style.Width(columnWidths[i]).Render(text)
}

// renderEntries prints one line per entry. Listing never evicts.
func renderEntries(w io.Writer, namespaces []*cache.Namespace) error {
	styles := newListStyles(w)
	plain := lipgloss.NewStyle()
	p := message.NewPrinter(language.English)

	header := cell(styles.header, 0, "NAMESPACE") +
		cell(styles.header, 1, "STATUS") +
		cell(styles.header, 2, "CREATED") +
		cell(styles.header, 3, "TTL") +
		cell(styles.header, 4, "SIZE") +
		styles.header.Render("IDENTIFIER")
	if _, err := fmt.Fprintln(w, header); err != nil {
		return err
	}

	total, expired := 0, 0
	for _, ns := range namespaces {
		for _, info := range ns.Entries() {
			total++
			status, style := "valid", styles.valid
			if info.Expired {
				status, style = "expired", styles.expired
				expired++
			}
			line := cell(plain, 0, ns.Name()) +
				cell(style, 1, status) +
				cell(styles.muted, 2, info.Entry.CreatedAt.Format(cache.TimestampLayout)) +
				cell(plain, 3, strconv.Itoa(info.Entry.ExpireInDays)+"d") +
				cell(plain, 4, p.Sprintf("%d B", len(info.Entry.Values))) +
				info.Identifier
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
	}

	_, err := p.Fprintf(w, "%d entries, %d expired\n", total, expired)
	return err
}
