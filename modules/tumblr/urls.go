package tumblr

import (
	"net/url"
	"strings"
)

// DefaultBaseURL is the Tumblr API v2 root.
const DefaultBaseURL = "https://api.tumblr.com/v2"

// URLBuilder builds API URLs under BaseURL.
type URLBuilder struct {
	BaseURL string
}

func (b URLBuilder) base() string {
	if b.BaseURL == "" {
		return DefaultBaseURL
	}
	return strings.TrimRight(b.BaseURL, "/")
}

func (b URLBuilder) blogURL(host, resource, apiKey string) string {
	u := b.base() + "/blog/" + url.PathEscape(host) + "/" + resource
	if apiKey != "" {
		u += "?" + url.Values{"api_key": []string{apiKey}}.Encode()
	}
	return u
}

// BlogPosts returns the posts URL for the blog at host.
func (b URLBuilder) BlogPosts(host, apiKey string) string {
	return b.blogURL(host, "posts", apiKey)
}

// BlogInfo returns the info URL for the blog at host.
func (b URLBuilder) BlogInfo(host, apiKey string) string {
	return b.blogURL(host, "info", apiKey)
}

// BlogPostsURL is https://api.tumblr.com/v2/blog/{host}/posts?api_key={apiKey}.
func BlogPostsURL(host, apiKey string) string {
	return URLBuilder{}.BlogPosts(host, apiKey)
}

// BlogInfoURL is https://api.tumblr.com/v2/blog/{host}/info?api_key={apiKey}.
func BlogInfoURL(host, apiKey string) string {
	return URLBuilder{}.BlogInfo(host, apiKey)
}
