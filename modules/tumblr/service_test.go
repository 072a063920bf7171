package tumblr_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/guarzo/tumblrapi/common/model"
	"github.com/guarzo/tumblrapi/modules/auth"
	"github.com/guarzo/tumblrapi/modules/cache"
	"github.com/guarzo/tumblrapi/modules/tumblr"
)

type mockClient struct {
	mu       sync.Mutex
	urls     []string
	services []string
	getFunc  func(url string) (string, error)
}

func (m *mockClient) GetJSON(_ context.Context, url, service string, out interface{}) error {
	raw, err := m.GetRaw(context.Background(), url, service)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, out)
}

func (m *mockClient) GetRaw(_ context.Context, url, service string) (json.RawMessage, error) {
	m.mu.Lock()
	m.urls = append(m.urls, url)
	m.services = append(m.services, service)
	m.mu.Unlock()
	body, err := m.getFunc(url)
	if err != nil {
		return nil, err
	}
	return json.RawMessage(body), nil
}

const postsBody = `{
  "meta": {"status": 200, "msg": "OK"},
  "response": {
    "blog": {"title": "Astrophysics Daily", "name": "astrophysics-daily", "total_posts": 1234,
             "url": "https://astrophysics-daily.tumblr.com/", "description": ""},
    "posts": [
      {"type": "photo", "short_url": "https://tmblr.co/a", "summary": "Nebula", "caption": "<p>Nebula</p>", "tags": ["space", "nebula"]},
      {"type": "text", "short_url": "https://tmblr.co/b", "summary": "Notes", "tags": []}
    ],
    "total_posts": 1234
  }
}`

func TestURLs(t *testing.T) {
	assert.Equal(t,
		"https://api.tumblr.com/v2/blog/nprontheroad.tumblr.com/posts?api_key=ck",
		tumblr.BlogPostsURL("nprontheroad.tumblr.com", "ck"))
	assert.Equal(t,
		"https://api.tumblr.com/v2/blog/www.humansofnewyork.com/info?api_key=a%26b",
		tumblr.BlogInfoURL("www.humansofnewyork.com", "a&b"))
	assert.Equal(t,
		"http://localhost:1/v2/blog/x/posts",
		tumblr.URLBuilder{BaseURL: "http://localhost:1/v2/"}.BlogPosts("x", ""))
}

func TestService_GetBlog(t *testing.T) {
	client := &mockClient{getFunc: func(string) (string, error) { return postsBody, nil }}
	svc := tumblr.NewService(client, tumblr.ServiceConfig{APIKey: "ck", Logger: zerolog.Nop()})

	report, err := svc.GetBlog(context.Background(), "astrophysics-daily.tumblr.com")
	require.NoError(t, err)

	assert.Equal(t, "astrophysics-daily.tumblr.com", report.Host)
	assert.Equal(t, "Astrophysics Daily", report.Blog.Title)
	assert.Equal(t, "astrophysics-daily", report.Blog.Name)
	assert.Equal(t, 1234, report.Blog.NumPosts)
	assert.Nil(t, report.Blog.Description)
	assert.Equal(t, "1234 posts in Astrophysics Daily", report.Blog.String())

	require.Len(t, report.Posts, 2)
	assert.Equal(t, "photo", report.Posts[0].Type)
	assert.Equal(t, "https://tmblr.co/a", report.Posts[0].URL)
	assert.Equal(t, "space, nebula", report.Posts[0].FormattedTags())
	assert.Equal(t, "", report.Posts[1].Caption)
	assert.Equal(t, "", report.Posts[1].FormattedTags())

	assert.Equal(t, []string{tumblr.BlogPostsURL("astrophysics-daily.tumblr.com", "ck")}, client.urls)
	assert.Equal(t, []string{tumblr.DefaultService}, client.services)
}

func TestService_GetBlogInfo(t *testing.T) {
	client := &mockClient{getFunc: func(string) (string, error) {
		return `{"meta":{"status":200},"response":{"blog":{"title":"NPR","total_posts":7,"description":"On the road"}}}`, nil
	}}
	svc := tumblr.NewService(client, tumblr.ServiceConfig{Service: "tumblr"})

	blog, err := svc.GetBlogInfo(context.Background(), "nprontheroad.tumblr.com")
	require.NoError(t, err)
	require.NotNil(t, blog.Description)
	assert.Equal(t, "On the road", *blog.Description)
	assert.Equal(t, []string{"tumblr"}, client.services)
	assert.True(t, strings.HasSuffix(client.urls[0], "/info"))
}

func TestService_GetBlogs(t *testing.T) {
	client := &mockClient{getFunc: func(url string) (string, error) {
		switch {
		case strings.Contains(url, "/blog/a/"):
			return `{"response":{"blog":{"title":"A","total_posts":1}}}`, nil
		case strings.Contains(url, "/blog/b/"):
			return `{"response":{"blog":{"title":"B","total_posts":2}}}`, nil
		}
		return "", errors.New("unexpected url " + url)
	}}
	svc := tumblr.NewService(client, tumblr.ServiceConfig{Parallelism: 2})

	reports, err := svc.GetBlogs(context.Background(), []string{"b", "a"})
	require.NoError(t, err)
	require.Len(t, reports, 2)
	assert.Equal(t, "B", reports[0].Blog.Title)
	assert.Equal(t, "A", reports[1].Blog.Title)

	_, err = svc.GetBlogs(context.Background(), []string{"a", "missing"})
	assert.ErrorContains(t, err, "missing")
}

// oauth1Login hands out fixed credentials and counts logins.
type oauth1Login struct {
	mockAuthenticator
	logins atomic.Int32
}

func (o *oauth1Login) Login(context.Context) (model.Credentials, error) {
	o.logins.Add(1)
	return oauth1Creds, nil
}

func TestService_EndToEndWithFileCaches(t *testing.T) {
	var hits atomic.Int32
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.Header.Get("Authorization") != "OAuth rk" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, postsBody)
	}))
	defer ts.Close()

	dir := t.TempDir()
	clock := clockwork.NewFakeClock()
	open := func() *cache.Caches {
		caches, err := cache.OpenCaches(cache.CachesConfig{Storage: cache.NewFileStorage(dir), Clock: clock})
		require.NoError(t, err)
		return caches
	}

	authn := &oauth1Login{}
	run := func(caches *cache.Caches) model.BlogReport {
		provider := auth.NewProvider(caches.Credentials, authn, auth.DefaultCredentialsTTLDays, zerolog.Nop())
		client := tumblr.NewClient(tumblr.ClientConfig{
			Data:          caches.Data,
			Credentials:   provider,
			TTLDays:       tumblr.DefaultTTLDays,
			NewHTTPClient: noSleepHTTP,
		})
		svc := tumblr.NewService(client, tumblr.ServiceConfig{
			APIKey:      "ck",
			URLs:        tumblr.URLBuilder{BaseURL: ts.URL + "/v2"},
			Parallelism: 4,
		})
		reports, err := svc.GetBlogs(context.Background(), []string{"x.tumblr.com", "y.tumblr.com", "X.TUMBLR.COM"})
		require.NoError(t, err)
		require.Len(t, reports, 3)
		return reports[0]
	}

	report := run(open())
	assert.Equal(t, "Astrophysics Daily", report.Blog.Title)
	assert.Equal(t, int32(1), authn.logins.Load())
	assert.LessOrEqual(t, hits.Load(), int32(3))

	blob, err := os.ReadFile(filepath.Join(dir, cache.DefaultDataLocation))
	require.NoError(t, err)
	assert.Contains(t, string(blob), strings.ToUpper(ts.URL+"/v2/blog/x.tumblr.com/posts?api_key=ck"))

	// restart: everything is served from disk
	before := hits.Load()
	run(open())
	assert.Equal(t, before, hits.Load())
	assert.Equal(t, int32(1), authn.logins.Load())
}
