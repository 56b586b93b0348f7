package alarm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/tartampluch/go-wakeup/internal/config"
	"github.com/tartampluch/go-wakeup/internal/engine"
)

// Publisher sends MQTT messages.
type Publisher interface {
	// Publish sends payload to topic. Retained messages replace the broker's
	// stored value; an empty retained payload clears it.
	Publish(topic string, retained bool, payload []byte) error

	// Close disconnects from the broker.
	Close() error
}

// PahoPublisher publishes to an actual MQTT broker.
type PahoPublisher struct {
	client paho.Client
}

// NewPahoPublisher connects to the broker named in the settings.
func NewPahoPublisher(s config.MQTTSettings) (*PahoPublisher, error) {
	clientID := s.ClientID
	if clientID == "" {
		clientID = config.DefaultMQTTClientID
	}
	opts := paho.NewClientOptions().
		AddBroker(s.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(config.MQTTRetryInterval)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(config.MQTTConnectTimeout) {
		return nil, fmt.Errorf("%s: %s", config.ErrMQTTConnect, config.ErrMQTTTimeout)
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrMQTTConnect, err)
	}

	slog.Info(config.MsgMQTTConnected,
		config.LogKeyComponent, config.CompMQTT,
		config.LogKeyURL, s.Broker)

	return &PahoPublisher{client: client}, nil
}

// Publish sends payload with QoS 1.
func (p *PahoPublisher) Publish(topic string, retained bool, payload []byte) error {
	token := p.client.Publish(topic, config.MQTTQoS, retained, payload)
	if !token.WaitTimeout(config.MQTTPublishTimeout) {
		return fmt.Errorf("%s: %s", config.ErrMQTTPublish, config.ErrMQTTTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%s: %w", config.ErrMQTTPublish, err)
	}
	return nil
}

// Close disconnects from the broker.
func (p *PahoPublisher) Close() error {
	p.client.Disconnect(config.MQTTDisconnectMillis)
	return nil
}

// Payload is the JSON body published for a scheduled or fired alarm.
type Payload struct {
	DayID       int32  `json:"day_id"`
	Date        string `json:"date"`
	TriggerAt   string `json:"trigger_at"`
	Label       string `json:"label"`
	EventTitle  string `json:"event_title"`
	EventStart  string `json:"event_start"`
	Location    string `json:"location,omitempty"`
	SnoozeCount int    `json:"snooze_count,omitempty"`
}

// FormatPayload renders the alarm as JSON. Instants are RFC 3339 UTC.
func FormatPayload(a engine.Alarm, snoozeCount int) ([]byte, error) {
	p := Payload{
		DayID:       a.DayID,
		Date:        engine.DayFromID(a.DayID).Format(time.DateOnly),
		TriggerAt:   a.TriggerAt.UTC().Format(time.RFC3339),
		Label:       a.Label,
		EventTitle:  a.Event.Title,
		EventStart:  a.Event.Start.UTC().Format(time.RFC3339),
		Location:    a.Event.Location,
		SnoozeCount: snoozeCount,
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", config.ErrMQTTPayload, err)
	}
	return b, nil
}

// Topic joins the prefix and the given parts with "/".
func Topic(prefix string, parts ...string) string {
	if prefix == "" {
		prefix = config.DefaultMQTTTopicPrefix
	}
	return strings.Join(append([]string{strings.TrimSuffix(prefix, config.MQTTTopicSeparator)}, parts...), config.MQTTTopicSeparator)
}

// MQTTSink mirrors scheduled alarms as retained messages on <prefix>/<dayID>,
// so a bedside device subscribing to <prefix>/+ always sees the current alarm.
type MQTTSink struct {
	Publisher Publisher
	Prefix    string
}

// Schedule publishes the alarm as the retained value of its day topic.
func (m *MQTTSink) Schedule(_ context.Context, a engine.Alarm) error {
	if m.Publisher == nil {
		return errors.New(config.ErrPublisherMissing)
	}
	payload, err := FormatPayload(a, 0)
	if err != nil {
		return err
	}
	topic := m.topic(a.DayID)
	if err := m.Publisher.Publish(topic, true, payload); err != nil {
		return err
	}

	slog.Debug(config.MsgAlarmPublished,
		config.LogKeyComponent, config.CompMQTT,
		config.LogKeyTopic, topic,
		config.LogKeySizeBytes, len(payload))
	return nil
}

// Cancel clears the retained message for dayID.
func (m *MQTTSink) Cancel(_ context.Context, dayID int32) error {
	if m.Publisher == nil {
		return errors.New(config.ErrPublisherMissing)
	}
	return m.Publisher.Publish(m.topic(dayID), true, nil)
}

// CanScheduleExact is false: firing depends on the subscriber's own clock.
func (m *MQTTSink) CanScheduleExact() bool { return false }

func (m *MQTTSink) topic(dayID int32) string {
	return Topic(m.Prefix, strconv.Itoa(int(dayID)))
}
