// Package report writes fetched blogs and posts as CSV.
package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/guarzo/tumblrapi/common/model"
)

var (
	blogHeader = []string{"Blog Title", "Number of posts", "URL", "Description"}
	postHeader = []string{"Post Summary", "URL", "Tags", "Type"}
)

// BlogsFile is the file name used by WriteFiles for the blog summary.
const BlogsFile = "blogs.csv"

// WriteBlogs writes one row per blog. The second column is the blog's summary
// line ("<n> posts in <title>") and a missing description is left empty.
func WriteBlogs(w io.Writer, blogs []model.Blog) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(blogHeader); err != nil {
		return err
	}
	for _, b := range blogs {
		desc := ""
		if b.Description != nil {
			desc = *b.Description
		}
		if err := cw.Write([]string{b.Title, b.String(), b.URL, desc}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WritePosts writes one row per post.
func WritePosts(w io.Writer, posts []model.Post) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(postHeader); err != nil {
		return err
	}
	for _, p := range posts {
		if err := cw.Write([]string{p.Summary, p.URL, p.FormattedTags(), p.Type}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// PostsFileName is "<blog name>_posts.csv". Without a name the first label of
// the host is used, so "nprontheroad.tumblr.com" gives "nprontheroad_posts.csv".
// Path separators become underscores so the file stays in its directory.
func PostsFileName(report model.BlogReport) string {
	name := report.Blog.Name
	if name == "" {
		name = strings.SplitN(report.Host, ".", 2)[0]
	}
	if name == "" || name == "www" {
		name = strings.ReplaceAll(report.Host, ".", "_")
	}
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == filepath.Separator {
			return '_'
		}
		return r
	}, name) + "_posts.csv"
}

// WriteFiles writes blogs.csv and one posts file per report into dir and
// returns the paths written.
func WriteFiles(dir string, reports []model.BlogReport) ([]string, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create report directory: %w", err)
	}

	blogs := make([]model.Blog, 0, len(reports))
	for _, r := range reports {
		blogs = append(blogs, r.Blog)
	}

	paths := []string{filepath.Join(dir, BlogsFile)}
	if err := writeFile(paths[0], func(w io.Writer) error { return WriteBlogs(w, blogs) }); err != nil {
		return nil, err
	}

	seen := map[string]int{}
	for _, r := range reports {
		name := PostsFileName(r)
		if n := seen[name]; n > 0 {
			name = strings.TrimSuffix(name, ".csv") + "_" + strconv.Itoa(n+1) + ".csv"
		}
		seen[PostsFileName(r)]++

		path := filepath.Join(dir, name)
		posts := r.Posts
		if err := writeFile(path, func(w io.Writer) error { return WritePosts(w, posts) }); err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	if err = write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}
