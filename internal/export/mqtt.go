package export

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sirupsen/logrus"

	"vnsensor/internal/measurement"
)

type MQTTOptions struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	Topic          string
	Qos            byte
	Retain         bool
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

func (o *MQTTOptions) defaults() {
	if o.ClientID == "" {
		o.ClientID = "vnsensor"
	}
	if o.Topic == "" {
		o.Topic = "vnsensor"
	}
	if o.KeepAlive <= 0 {
		o.KeepAlive = 30 * time.Second
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 5 * time.Second
	}
	if o.PublishTimeout <= 0 {
		o.PublishTimeout = 2 * time.Second
	}
}

// MQTT publishes each measurement as JSON to <topic>/<tag>, where tag is
// the ASCII tag or "binary".
type MQTT struct {
	*pump
	client paho.Client
	opts   MQTTOptions
}

// NewMQTT connects to the broker and starts publishing.
func NewMQTT(opts MQTTOptions, capacity int, log logrus.FieldLogger) (*MQTT, error) {
	opts.defaults()
	po := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetKeepAlive(opts.KeepAlive).
		SetCleanSession(true).
		SetAutoReconnect(true)
	if opts.Username != "" {
		po.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		po.SetPassword(opts.Password)
	}
	client := paho.NewClient(po)
	tok := client.Connect()
	if !tok.WaitTimeout(opts.ConnectTimeout) {
		return nil, fmt.Errorf("mqtt connect %s: timeout after %s", opts.Broker, opts.ConnectTimeout)
	}
	if err := tok.Error(); err != nil {
		return nil, fmt.Errorf("mqtt connect %s: %w", opts.Broker, err)
	}
	return newMQTT(client, opts, capacity, log), nil
}

func newMQTT(client paho.Client, opts MQTTOptions, capacity int, log logrus.FieldLogger) *MQTT {
	opts.defaults()
	m := &MQTT{client: client, opts: opts}
	m.pump = newPump("mqtt", capacity, log, m.publish)
	return m
}

func (m *MQTT) topic(c measurement.CompositeData) string {
	sub := "binary"
	if !c.IsBinary() {
		sub = strings.TrimPrefix(c.Tag, "VN")
	}
	return strings.TrimSuffix(m.opts.Topic, "/") + "/" + sub
}

func (m *MQTT) publish(c measurement.CompositeData) error {
	b, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal measurement: %w", err)
	}
	tok := m.client.Publish(m.topic(c), m.opts.Qos, m.opts.Retain, b)
	if !tok.WaitTimeout(m.opts.PublishTimeout) {
		return fmt.Errorf("mqtt publish: timeout after %s", m.opts.PublishTimeout)
	}
	return tok.Error()
}

// Close drains the queue and disconnects from the broker.
func (m *MQTT) Close() error {
	m.pump.close()
	m.client.Disconnect(250)
	return nil
}
