package tumblr

import (
	"context"
	"fmt"
	"runtime"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/guarzo/tumblrapi/common/model"
)

// DefaultService is the credentials identifier used for Tumblr.
const DefaultService = "TUMBLR"

// Service maps Tumblr responses to blogs and posts.
type Service interface {
	GetBlog(ctx context.Context, host string) (model.BlogReport, error)
	GetBlogs(ctx context.Context, hosts []string) ([]model.BlogReport, error)
	GetBlogInfo(ctx context.Context, host string) (model.Blog, error)
}

// ServiceConfig configures NewService.
type ServiceConfig struct {
	// APIKey is sent as api_key, normally the OAuth client key.
	APIKey string

	// Service is the credentials identifier, DefaultService when empty.
	Service string

	URLs URLBuilder

	// Parallelism bounds GetBlogs, runtime.NumCPU() when zero.
	Parallelism int

	Logger zerolog.Logger
}

type service struct {
	client      Client
	apiKey      string
	service     string
	urls        URLBuilder
	parallelism int
	log         zerolog.Logger
}

// NewService constructs a Service on top of client.
func NewService(client Client, cfg ServiceConfig) Service {
	s := &service{
		client:      client,
		apiKey:      cfg.APIKey,
		service:     cfg.Service,
		urls:        cfg.URLs,
		parallelism: cfg.Parallelism,
		log:         cfg.Logger,
	}
	if s.service == "" {
		s.service = DefaultService
	}
	if s.parallelism <= 0 {
		s.parallelism = runtime.NumCPU()
	}
	return s
}

// GetBlog fetches the first page of posts for host along with its blog.
func (s *service) GetBlog(ctx context.Context, host string) (model.BlogReport, error) {
	var resp model.PostsResponse
	if err := s.client.GetJSON(ctx, s.urls.BlogPosts(host, s.apiKey), s.service, &resp); err != nil {
		return model.BlogReport{}, fmt.Errorf("failed to fetch posts for %s: %w", host, err)
	}

	posts := make([]model.Post, 0, len(resp.Response.Posts))
	for _, raw := range resp.Response.Posts {
		posts = append(posts, model.NewPost(raw))
	}

	report := model.BlogReport{
		Host:  host,
		Blog:  model.NewBlog(resp.Response.Blog),
		Posts: posts,
	}
	s.log.Debug().Str("host", host).Int("posts", len(posts)).Msg("blog fetched")
	return report, nil
}

// GetBlogs fetches every host concurrently and returns reports in input order.
// The first failure cancels the rest.
func (s *service) GetBlogs(ctx context.Context, hosts []string) ([]model.BlogReport, error) {
	reports := make([]model.BlogReport, len(hosts))

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.parallelism)

	for i, host := range hosts {
		g.Go(func() error {
			report, err := s.GetBlog(gCtx, host)
			if err != nil {
				return err
			}
			reports[i] = report
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

// GetBlogInfo fetches blog metadata only.
func (s *service) GetBlogInfo(ctx context.Context, host string) (model.Blog, error) {
	var resp model.InfoResponse
	if err := s.client.GetJSON(ctx, s.urls.BlogInfo(host, s.apiKey), s.service, &resp); err != nil {
		return model.Blog{}, fmt.Errorf("failed to fetch info for %s: %w", host, err)
	}
	return model.NewBlog(resp.Response.Blog), nil
}
