package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"golang.org/x/sync/errgroup"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/forkfleet/forkfleet-backend/pkg/config"
	"github.com/forkfleet/forkfleet-backend/pkg/logger"
)

// resourceCheck reports whether a fully qualified topic or subscription exists.
type resourceCheck func(ctx context.Context, fullName string) error

// Client hands out publishers and subscribers for the configured project.
// Publishers are cached per topic so their batching goroutines are shared
// and stopped once on Close.
type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig

	topicExists resourceCheck
	subExists   resourceCheck

	mu         sync.Mutex
	publishers map[string]*pubsub.Publisher
}

// NewClient dials Pub/Sub and fails unless every configured topic and
// subscription already exists. Resources are provisioned by infra, not here.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errors.New("gcp project id is required")
	}
	var opts []option.ClientOption
	if gcp.CredentialsJSON != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(gcp.CredentialsJSON)))
	}

	ps, err := pubsub.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("pubsub client: %w", err)
	}
	c := newClient(ps, projectID, cfg)
	c.topicExists = func(ctx context.Context, name string) error {
		_, err := ps.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: name})
		return err
	}
	c.subExists = func(ctx context.Context, name string) error {
		_, err := ps.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: name})
		return err
	}

	if err := c.Ping(ctx); err != nil {
		_ = ps.Close()
		return nil, err
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "project_id", projectID), "pubsub client initialized")
	}
	return c, nil
}

func newClient(ps *pubsub.Client, projectID string, cfg config.PubSubConfig) *Client {
	return &Client{
		client:     ps,
		projectID:  projectID,
		cfg:        cfg,
		publishers: map[string]*pubsub.Publisher{},
	}
}

// Ping checks all configured resources concurrently.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.topicExists == nil || c.subExists == nil {
		return errors.New("pubsub client not initialized")
	}
	g, gctx := errgroup.WithContext(ctx)
	for _, topic := range nonEmpty(c.cfg.OrdersTopic, c.cfg.PaymentsTopic, c.cfg.NotificationTopic) {
		g.Go(func() error { return c.check(gctx, "topic", c.resource("topics", topic), c.topicExists) })
	}
	for _, sub := range nonEmpty(c.cfg.AnalyticsSubscription) {
		g.Go(func() error { return c.check(gctx, "subscription", c.resource("subscriptions", sub), c.subExists) })
	}
	return g.Wait()
}

func (c *Client) check(ctx context.Context, kind, fullName string, exists resourceCheck) error {
	err := exists(ctx, fullName)
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%s %s does not exist", kind, fullName)
	default:
		return fmt.Errorf("checking %s %s: %w", kind, fullName, err)
	}
}

// Subscriber returns a handle for a subscription id or full resource name.
func (c *Client) Subscriber(name string) *pubsub.Subscriber {
	fullName := c.resource("subscriptions", name)
	if fullName == "" || c.client == nil {
		return nil
	}
	return c.client.Subscriber(fullName)
}

func (c *Client) AnalyticsSubscription() *pubsub.Subscriber {
	return c.Subscriber(c.cfg.AnalyticsSubscription)
}

// OrderedPublisher returns the shared publisher for topic with message
// ordering on. Ordering only holds if the subscription enables it too. The
// first caller for a topic fixes its ordering mode.
func (c *Client) OrderedPublisher(topic string) *pubsub.Publisher {
	return c.publisher(topic, true)
}

// NotificationPublisher is unordered; notifications are independent.
func (c *Client) NotificationPublisher() *pubsub.Publisher {
	return c.publisher(c.cfg.NotificationTopic, false)
}

func (c *Client) publisher(topic string, ordered bool) *pubsub.Publisher {
	fullName := c.resource("topics", topic)
	if fullName == "" || c.client == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.publishers[fullName]; ok {
		return p
	}
	p := c.client.Publisher(fullName)
	p.EnableMessageOrdering = ordered
	c.publishers[fullName] = p
	return p
}

// Close flushes every cached publisher before closing the connection.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	c.mu.Lock()
	for name, p := range c.publishers {
		p.Stop()
		delete(c.publishers, name)
	}
	c.mu.Unlock()
	return c.client.Close()
}

// resource qualifies a short id as projects/<project>/<collection>/<id>.
// Names that are already qualified pass through.
func (c *Client) resource(collection, name string) string {
	name = strings.TrimSpace(name)
	if c == nil || name == "" {
		return ""
	}
	if strings.HasPrefix(name, "projects/") && strings.Contains(name, "/"+collection+"/") {
		return name
	}
	if c.projectID == "" {
		return ""
	}
	return "projects/" + c.projectID + "/" + collection + "/" + name
}

func nonEmpty(values ...string) []string {
	var out []string
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
