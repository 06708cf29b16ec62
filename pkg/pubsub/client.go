package pubsub

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/durationpb"

	"github.com/angelmondragon/sareehub-backend/pkg/config"
	"github.com/angelmondragon/sareehub-backend/pkg/gcp"
	"github.com/angelmondragon/sareehub-backend/pkg/instance"
	"github.com/angelmondragon/sareehub-backend/pkg/logger"
)

const ackDeadlineSeconds = 30

// Need names a subscription a process reads from.
type Need struct {
	// Subscription is an ID or full resource path; {instance} is expanded.
	Subscription string
	// Topic, when set, lets the client create the subscription if missing.
	Topic string
	// IdleExpiry drops a created subscription after this long without
	// activity. Zero keeps it forever.
	IdleExpiry time.Duration
}

// PerTopic derives one Need per topic from a base name: base-<topic>.
func PerTopic(base string, idleExpiry time.Duration, topics ...string) []Need {
	base = strings.TrimSpace(base)
	if base == "" {
		return nil
	}
	needs := make([]Need, 0, len(topics))
	for _, topic := range topics {
		id := path.Base(strings.TrimSpace(topic))
		needs = append(needs, Need{Subscription: base + "-" + id, Topic: topic, IdleExpiry: idleExpiry})
	}
	return needs
}

type Client struct {
	ps      *pubsub.Client
	project string
	needs   []Need
}

var errProjectIDRequired = errors.New("gcp project id is required")

// NewClient opens a Pub/Sub client and makes sure every Need exists,
// creating the ones that name a topic. Publisher-only processes pass none.
func NewClient(ctx context.Context, gcpCfg config.GCPConfig, logg *logger.Logger, needs ...Need) (*Client, error) {
	project := strings.TrimSpace(gcpCfg.ProjectID)
	if project == "" {
		return nil, errProjectIDRequired
	}
	ps, err := pubsub.NewClient(ctx, project, gcp.ClientOptions(gcpCfg)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	c := &Client{ps: ps, project: project, needs: expandNeeds(needs)}
	for _, n := range c.needs {
		if err := c.provision(ctx, n); err != nil {
			_ = ps.Close()
			return nil, err
		}
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "subscriptions", c.subscriptionIDs()), "pubsub client initialized")
	}
	return c, nil
}

func expandNeeds(needs []Need) []Need {
	out := make([]Need, 0, len(needs))
	for _, n := range needs {
		n.Subscription = strings.TrimSpace(instance.Expand(n.Subscription))
		if n.Subscription != "" {
			out = append(out, n)
		}
	}
	return out
}

func (c *Client) subscriptionIDs() []string {
	ids := make([]string, len(c.needs))
	for i, n := range c.needs {
		ids[i] = n.Subscription
	}
	return ids
}

func (c *Client) provision(ctx context.Context, n Need) error {
	err := c.lookup(ctx, n.Subscription)
	if err == nil || status.Code(err) != codes.NotFound {
		return err
	}
	if n.Topic == "" {
		return fmt.Errorf("subscription %q does not exist", n.Subscription)
	}

	sub := &pubsubpb.Subscription{
		Name:               resourceName(c.project, "subscriptions", n.Subscription),
		Topic:              resourceName(c.project, "topics", n.Topic),
		AckDeadlineSeconds: ackDeadlineSeconds,
	}
	if n.IdleExpiry > 0 {
		sub.ExpirationPolicy = &pubsubpb.ExpirationPolicy{Ttl: durationpb.New(n.IdleExpiry)}
	}
	_, err = c.ps.SubscriptionAdminClient.CreateSubscription(ctx, sub)
	if err != nil && status.Code(err) != codes.AlreadyExists {
		return fmt.Errorf("creating subscription %q on %q: %w", n.Subscription, n.Topic, err)
	}
	return nil
}

func (c *Client) lookup(ctx context.Context, subscription string) error {
	name := resourceName(c.project, "subscriptions", subscription)
	if name == "" {
		return fmt.Errorf("subscription %q not configured", subscription)
	}
	_, err := c.ps.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: name})
	if err != nil && status.Code(err) != codes.NotFound {
		return fmt.Errorf("checking subscription %q: %w", subscription, err)
	}
	return err
}

// Subscribers returns a handle for every Need, in order.
func (c *Client) Subscribers() []*pubsub.Subscriber {
	if c == nil || c.ps == nil {
		return nil
	}
	subs := make([]*pubsub.Subscriber, 0, len(c.needs))
	for _, n := range c.needs {
		subs = append(subs, c.ps.Subscriber(resourceName(c.project, "subscriptions", n.Subscription)))
	}
	return subs
}

// Publisher returns a publisher for a topic ID or resource path.
func (c *Client) Publisher(topic string) *pubsub.Publisher {
	if c == nil || c.ps == nil {
		return nil
	}
	name := resourceName(c.project, "topics", topic)
	if name == "" {
		return nil
	}
	return c.ps.Publisher(name)
}

// Ping checks that every needed subscription still exists.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil || c.ps == nil {
		return errors.New("pubsub client not initialized")
	}
	for _, n := range c.needs {
		if err := c.lookup(ctx, n.Subscription); err != nil {
			return err
		}
	}
	return nil
}

func (c *Client) Close() error {
	if c == nil || c.ps == nil {
		return nil
	}
	return c.ps.Close()
}

// resourceName qualifies an ID as projects/<project>/<kind>/<id>. Full paths
// pass through unchanged.
func resourceName(project, kind, id string) string {
	id = strings.TrimSpace(id)
	switch {
	case id == "":
		return ""
	case strings.HasPrefix(id, "projects/") && strings.Contains(id, "/"+kind+"/"):
		return id
	case project == "":
		return ""
	}
	return "projects/" + project + "/" + kind + "/" + id
}
