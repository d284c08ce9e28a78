package publisher

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/gridtools/usagescraper/internal/config"
	"github.com/gridtools/usagescraper/pkg/models"
)

// Publisher pushes stored usage records to an MQTT broker, one retained
// message per record on a per-unit topic.
type Publisher struct {
	client      mqtt.Client
	topicPrefix string
}

// New connects to the configured MQTT broker
func New(cfg config.MQTTConfig) (*Publisher, error) {
	if !cfg.Enabled {
		return nil, fmt.Errorf("MQTT publishing is not enabled in config")
	}
	if cfg.Broker == "" {
		return nil, fmt.Errorf("MQTT broker address is required when enabled")
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("tcp://%s", cfg.Broker))
	opts.SetClientID("usagescraper")
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectTimeout(10 * time.Second)

	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
	}
	if cfg.Password != "" {
		opts.SetPassword(cfg.Password)
	}

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("connecting to MQTT broker: %w", token.Error())
	}

	return &Publisher{
		client:      client,
		topicPrefix: cfg.GetTopicPrefix(),
	}, nil
}

// payload is the wire format for a published usage record
type payload struct {
	UnitName  string `json:"unit_name"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Usage     string `json:"usage"`
	Charge    string `json:"charge"`
	AvgTemp   string `json:"avg_temp"`
}

// Publish sends one usage record to the broker
func (p *Publisher) Publish(rec models.UsageRecord) error {
	body, err := json.Marshal(payload{
		UnitName:  rec.UnitName,
		StartDate: rec.StartDate.Format("2006-01-02"),
		EndDate:   rec.EndDate.Format("2006-01-02"),
		Usage:     rec.Usage,
		Charge:    rec.Charge,
		AvgTemp:   rec.AvgTemp,
	})
	if err != nil {
		return fmt.Errorf("encoding payload: %w", err)
	}

	topic := fmt.Sprintf("%s/%s", p.topicPrefix, topicSegment(rec.UnitName))
	token := p.client.Publish(topic, 1, true, body)
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}
	return nil
}

// Close disconnects from the MQTT broker
func (p *Publisher) Close() {
	if p.client != nil && p.client.IsConnected() {
		p.client.Disconnect(250)
	}
}

// topicSegment makes a unit name safe to embed in an MQTT topic
func topicSegment(unit string) string {
	return strings.NewReplacer("/", "_", "+", "_", "#", "_").Replace(unit)
}
