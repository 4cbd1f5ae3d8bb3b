package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"

	pubsub "cloud.google.com/go/pubsub/v2"
	"cloud.google.com/go/pubsub/v2/apiv1/pubsubpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/sportedge/sportedge-backend/pkg/config"
	"github.com/sportedge/sportedge-backend/pkg/logger"
)

var (
	errProjectIDRequired = errors.New("gcp project id is required")
	errNotInitialized    = errors.New("pubsub client not initialized")
)

// Client wraps the Pub/Sub v2 client with the order event topic and the
// analytics subscription this service uses.
type Client struct {
	client    *pubsub.Client
	projectID string
	cfg       config.PubSubConfig
	logg      *logger.Logger
}

// NewClient connects to Pub/Sub, or to the emulator when
// PUBSUB_EMULATOR_HOST is set. Each binary then checks only the resources it
// uses through EnsureTopic or EnsureSubscription.
func NewClient(ctx context.Context, gcp config.GCPConfig, cfg config.PubSubConfig, logg *logger.Logger) (*Client, error) {
	projectID := strings.TrimSpace(gcp.ProjectID)
	if projectID == "" {
		return nil, errProjectIDRequired
	}

	psClient, err := pubsub.NewClient(ctx, projectID, ClientOptions(gcp)...)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	if logg != nil {
		logg.Info(logg.WithField(ctx, "project_id", projectID), "pubsub.connected")
	}
	return &Client{client: psClient, projectID: projectID, cfg: cfg, logg: logg}, nil
}

// ClientOptions maps configured credentials onto Google API client options.
// Inline JSON wins over a credentials file; neither means ADC.
func ClientOptions(gcp config.GCPConfig) []option.ClientOption {
	switch {
	case strings.TrimSpace(gcp.CredentialsJSON) != "":
		return []option.ClientOption{option.WithCredentialsJSON([]byte(gcp.CredentialsJSON))}
	case strings.TrimSpace(gcp.ApplicationCredentials) != "":
		return []option.ClientOption{option.WithCredentialsFile(gcp.ApplicationCredentials)}
	}
	return nil
}

// EnsureTopic fails when the topic does not exist. With CreateResources set
// a missing topic is created instead.
func (c *Client) EnsureTopic(ctx context.Context, name string) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	topic := TopicName(c.projectID, name)
	if topic == "" {
		return fmt.Errorf("topic %q not configured", name)
	}
	return c.ensure(ctx, "topic "+name, func() error {
		_, err := c.client.TopicAdminClient.GetTopic(ctx, &pubsubpb.GetTopicRequest{Topic: topic})
		return err
	}, func() error {
		_, err := c.client.TopicAdminClient.CreateTopic(ctx, &pubsubpb.Topic{Name: topic})
		return err
	})
}

// EnsureSubscription is EnsureTopic for a subscription on the orders topic.
func (c *Client) EnsureSubscription(ctx context.Context, name string) error {
	if c == nil || c.client == nil {
		return errNotInitialized
	}
	sub := SubscriptionName(c.projectID, name)
	if sub == "" {
		return fmt.Errorf("subscription %q not configured", name)
	}
	return c.ensure(ctx, "subscription "+name, func() error {
		_, err := c.client.SubscriptionAdminClient.GetSubscription(ctx, &pubsubpb.GetSubscriptionRequest{Subscription: sub})
		return err
	}, func() error {
		if err := c.EnsureTopic(ctx, c.cfg.OrdersTopic); err != nil {
			return err
		}
		_, err := c.client.SubscriptionAdminClient.CreateSubscription(ctx, &pubsubpb.Subscription{
			Name:               sub,
			Topic:              TopicName(c.projectID, c.cfg.OrdersTopic),
			AckDeadlineSeconds: int32(c.cfg.AckDeadline),
		})
		return err
	})
}

func (c *Client) ensure(ctx context.Context, what string, get, create func() error) error {
	err := get()
	if status.Code(err) == codes.NotFound && c.cfg.CreateResources {
		err = create()
		if status.Code(err) == codes.AlreadyExists {
			err = nil
		}
		if err == nil {
			c.logCreated(ctx, what)
			return nil
		}
	}
	switch {
	case err == nil:
		return nil
	case status.Code(err) == codes.NotFound:
		return fmt.Errorf("%s does not exist", what)
	default:
		return fmt.Errorf("check %s: %w", what, err)
	}
}

func (c *Client) logCreated(ctx context.Context, what string) {
	if c.logg != nil {
		c.logg.Info(c.logg.WithField(ctx, "resource", what), "pubsub.created")
	}
}

// Publisher returns a publisher handle for a topic ID or resource name.
func (c *Client) Publisher(name string) *pubsub.Publisher {
	if c == nil || c.client == nil {
		return nil
	}
	fullName := TopicName(c.projectID, name)
	if fullName == "" {
		return nil
	}
	return c.client.Publisher(fullName)
}

// Subscriber returns a subscriber handle for a subscription ID or resource name.
func (c *Client) Subscriber(name string) *pubsub.Subscriber {
	if c == nil || c.client == nil {
		return nil
	}
	fullName := SubscriptionName(c.projectID, name)
	if fullName == "" {
		return nil
	}
	return c.client.Subscriber(fullName)
}

// AnalyticsSubscription returns the subscriber the analytics worker reads from.
func (c *Client) AnalyticsSubscription() *pubsub.Subscriber {
	if c == nil {
		return nil
	}
	return c.Subscriber(c.cfg.AnalyticsSubscription)
}

// Ping checks that the orders topic is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return errNotInitialized
	}
	return c.EnsureTopic(ctx, c.cfg.OrdersTopic)
}

// Close releases the Pub/Sub client resources.
func (c *Client) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}

// TopicName expands a topic ID to projects/<p>/topics/<id>; full resource
// names pass through.
func TopicName(projectID, name string) string {
	return resourceName(projectID, "topics", name)
}

// SubscriptionName expands a subscription ID the same way as TopicName.
func SubscriptionName(projectID, name string) string {
	return resourceName(projectID, "subscriptions", name)
}

func resourceName(projectID, kind, name string) string {
	n := strings.TrimSpace(name)
	if n == "" {
		return ""
	}
	if strings.HasPrefix(n, "projects/") && strings.Contains(n, "/"+kind+"/") {
		return n
	}
	p := strings.TrimSpace(projectID)
	if p == "" {
		return ""
	}
	return fmt.Sprintf("projects/%s/%s/%s", p, kind, n)
}
