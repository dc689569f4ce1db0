package publisher

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/jgoulah/usagereports/internal/aggregate"
	"github.com/jgoulah/usagereports/internal/config"
	"github.com/jgoulah/usagereports/internal/database"
	"github.com/jgoulah/usagereports/pkg/models"
)

const publishTimeout = 10 * time.Second

// Publisher sends consortium summary rows to an MQTT broker as retained messages
type Publisher struct {
	client      mqtt.Client
	topicPrefix string
	log         *zap.Logger
	send        func(topic string, payload []byte) error
	now         func() time.Time
}

// New connects to the broker described by cfg
func New(cfg config.MQTTConfig, topicPrefix string, log *zap.Logger) (*Publisher, error) {
	if cfg.Broker == "" {
		return nil, fmt.Errorf("MQTT broker address is required when enabled")
	}
	if log == nil {
		log = zap.NewNop()
	}

	broker := cfg.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}

	// Configure MQTT client options
	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(fmt.Sprintf("usagereports-%d", time.Now().UnixNano()))
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	opts.SetConnectTimeout(10 * time.Second)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	// Create and connect client
	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to MQTT broker: %w", token.Error())
	}
	log.Info("connected to MQTT broker", zap.String("broker", broker))

	p := newPublisher(topicPrefix, log, nil)
	p.client = client
	p.send = func(topic string, payload []byte) error {
		token := client.Publish(topic, 1, true, payload)
		if !token.WaitTimeout(publishTimeout) {
			return fmt.Errorf("publishing to %s: timed out", topic)
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("publishing to %s: %w", topic, err)
		}
		return nil
	}
	return p, nil
}

func newPublisher(topicPrefix string, log *zap.Logger, send func(topic string, payload []byte) error) *Publisher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Publisher{
		topicPrefix: strings.TrimRight(topicPrefix, "/"),
		log:         log,
		send:        send,
		now:         time.Now,
	}
}

// SummaryMessage is the JSON payload of one summary row
type SummaryMessage struct {
	Dataset      string `json:"dataset"`
	DatasetName  string `json:"dataset_name"`
	Period       string `json:"period"`
	Organization string `json:"organization,omitempty"`
	Library      string `json:"library"`
	PlatformName string `json:"platform_name"`
	models.OverviewCounters
	PublishedAt string `json:"published_at"`
}

// SummaryTopic is <prefix>/<dataset>/summary/<organization>, with "total"
// standing in for the TOTAL row
func SummaryTopic(prefix, dataset, organization string) string {
	if organization == "" {
		organization = "total"
	}
	return fmt.Sprintf("%s/%s/summary/%s", prefix, dataset, organization)
}

func (p *Publisher) publish(msg SummaryMessage) error {
	msg.PublishedAt = p.now().UTC().Format(time.RFC3339)
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}
	topic := SummaryTopic(p.topicPrefix, msg.Dataset, msg.Organization)
	if err := p.send(topic, payload); err != nil {
		return err
	}
	p.log.Debug("published summary", zap.String("topic", topic))
	return nil
}

// Emit publishes every summary row of the report, TOTAL last
func (p *Publisher) Emit(ctx context.Context, rep *aggregate.DatasetReport) error {
	rows := append(append([]aggregate.SummaryRow(nil), rep.Summary.Rows...), rep.Summary.Total)
	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := p.publish(SummaryMessage{
			Dataset:          rep.Dataset.Abbrev,
			DatasetName:      rep.Dataset.Name,
			Period:           rep.Period.Label,
			Organization:     row.Organization,
			Library:          row.Library,
			PlatformName:     row.PlatformName,
			OverviewCounters: row.OverviewCounters,
		})
		if err != nil {
			return err
		}
	}
	p.log.Info("published consortium summary", zap.String("dataset", rep.Dataset.Name), zap.Int("messages", len(rows)))
	return nil
}

// Store is the part of the sqlite sink the publisher reads from
type Store interface {
	ListUnpublishedSummary(ctx context.Context) ([]database.SummaryRecord, error)
	MarkPublished(ctx context.Context, id int) error
}

// PublishStored publishes every stored summary row not yet published and
// marks each one after it is sent. It returns the number published.
func (p *Publisher) PublishStored(ctx context.Context, store Store) (int, error) {
	pending, err := store.ListUnpublishedSummary(ctx)
	if err != nil {
		return 0, err
	}

	published := 0
	for _, r := range pending {
		if err := ctx.Err(); err != nil {
			return published, err
		}
		err := p.publish(SummaryMessage{
			Dataset:          r.Dataset,
			Period:           r.PeriodLabel,
			Organization:     r.Organization,
			Library:          r.Library,
			PlatformName:     r.PlatformName,
			OverviewCounters: r.OverviewCounters,
		})
		if err != nil {
			return published, err
		}
		if err := store.MarkPublished(ctx, r.ID); err != nil {
			return published, err
		}
		published++
	}
	return published, nil
}

// Close disconnects from the MQTT broker
func (p *Publisher) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}
