package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"golang.org/x/oauth2"
)

// UnmarshalJSON is the central place for decoding API payloads.
func UnmarshalJSON(data []byte, out interface{}) error {
	return json.Unmarshal(data, out)
}

// Credentials is what a login flow produces and what the credentials cache stores.
//
// OAuth1 services fill the five string fields. OAuth2 services carry Token and
// the client pair only.
type Credentials struct {
	ClientKey           string
	ClientSecret        string
	ResourceOwnerKey    string
	ResourceOwnerSecret string
	Verifier            string

	Token *oauth2.Token
}

// IsOAuth2 reports whether the credentials hold an OAuth2 token.
func (c Credentials) IsOAuth2() bool {
	return c.Token != nil
}

// oauth2Credentials is the persisted form for OAuth2 services.
type oauth2Credentials struct {
	ClientKey    string        `json:"client_key"`
	ClientSecret string        `json:"client_secret"`
	Token        *oauth2.Token `json:"token"`
}

// MarshalJSON writes OAuth1 credentials as the five element array
// [client_key, client_secret, resource_owner_key, resource_owner_secret, verifier]
// so existing creds.json files stay readable. OAuth2 credentials are an object.
func (c Credentials) MarshalJSON() ([]byte, error) {
	if c.IsOAuth2() {
		return json.Marshal(oauth2Credentials{
			ClientKey:    c.ClientKey,
			ClientSecret: c.ClientSecret,
			Token:        c.Token,
		})
	}
	return json.Marshal([]string{
		c.ClientKey,
		c.ClientSecret,
		c.ResourceOwnerKey,
		c.ResourceOwnerSecret,
		c.Verifier,
	})
}

// UnmarshalJSON accepts either persisted form.
func (c *Credentials) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return fmt.Errorf("empty credentials")
	}

	if trimmed[0] == '[' {
		var tuple []string
		if err := json.Unmarshal(trimmed, &tuple); err != nil {
			return fmt.Errorf("invalid oauth1 credentials: %w", err)
		}
		if len(tuple) != 5 {
			return fmt.Errorf("invalid oauth1 credentials: expected 5 values, got %d", len(tuple))
		}
		*c = Credentials{
			ClientKey:           tuple[0],
			ClientSecret:        tuple[1],
			ResourceOwnerKey:    tuple[2],
			ResourceOwnerSecret: tuple[3],
			Verifier:            tuple[4],
		}
		return nil
	}

	var o oauth2Credentials
	if err := json.Unmarshal(trimmed, &o); err != nil {
		return fmt.Errorf("invalid oauth2 credentials: %w", err)
	}
	if o.Token == nil {
		return fmt.Errorf("invalid oauth2 credentials: missing token")
	}
	*c = Credentials{
		ClientKey:    o.ClientKey,
		ClientSecret: o.ClientSecret,
		Token:        o.Token,
	}
	return nil
}

// ----------------------------------------------------------------------
// Tumblr API v2 payloads
// ----------------------------------------------------------------------

// Meta is the status block present on every API v2 response.
type Meta struct {
	Status int    `json:"status"`
	Msg    string `json:"msg"`
}

// PostsResponse is the body of /v2/blog/{blog-identifier}/posts.
type PostsResponse struct {
	Meta     Meta `json:"meta"`
	Response struct {
		Blog       BlogInfo  `json:"blog"`
		Posts      []RawPost `json:"posts"`
		TotalPosts int       `json:"total_posts"`
	} `json:"response"`
}

// InfoResponse is the body of /v2/blog/{blog-identifier}/info.
type InfoResponse struct {
	Meta     Meta `json:"meta"`
	Response struct {
		Blog BlogInfo `json:"blog"`
	} `json:"response"`
}

// BlogInfo is the blog object embedded in API responses.
type BlogInfo struct {
	Title       string `json:"title"`
	Name        string `json:"name"`
	TotalPosts  int    `json:"total_posts"`
	URL         string `json:"url"`
	Description string `json:"description"`
}

// RawPost holds the post fields we read. Captions only exist on some post types.
type RawPost struct {
	Type     string   `json:"type"`
	ShortURL string   `json:"short_url"`
	Summary  string   `json:"summary"`
	Caption  string   `json:"caption"`
	Tags     []string `json:"tags"`
}

// Blog is the domain view of a blog.
type Blog struct {
	Title    string
	Name     string
	NumPosts int
	URL      string
	// Description is nil when the blog has none.
	Description *string
}

// NewBlog maps an API blog object. An empty description becomes nil.
func NewBlog(info BlogInfo) Blog {
	b := Blog{
		Title:    info.Title,
		Name:     info.Name,
		NumPosts: info.TotalPosts,
		URL:      info.URL,
	}
	if info.Description != "" {
		desc := info.Description
		b.Description = &desc
	}
	return b
}

// String renders "<n> posts in <title>".
func (b Blog) String() string {
	return fmt.Sprintf("%d posts in %s", b.NumPosts, b.Title)
}

// Post is the domain view of a post.
type Post struct {
	Type    string
	URL     string
	Summary string
	Caption string
	Tags    []string
}

// NewPost maps an API post object.
func NewPost(raw RawPost) Post {
	return Post{
		Type:    raw.Type,
		URL:     raw.ShortURL,
		Summary: raw.Summary,
		Caption: raw.Caption,
		Tags:    raw.Tags,
	}
}

// FormattedTags joins the tags with ", ".
func (p Post) FormattedTags() string {
	return strings.Join(p.Tags, ", ")
}

// BlogReport pairs a blog with its fetched posts.
type BlogReport struct {
	Host  string
	Blog  Blog
	Posts []Post
}
