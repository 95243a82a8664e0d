// If you are AI: This file implements the MQTT broker adapter.
// Subjects use NATS syntax on the bridge side and are mapped to MQTT topics on the wire.

package broker

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"portbridge/internal/config"
)

// MQTT publishes and subscribes through an MQTT broker.
// Active patterns are re-subscribed on each (re)connect since sessions are clean.
type MQTT struct {
	cfg  config.PubSubConfig
	sink Sink
	log  zerolog.Logger

	subjects subjectSet

	mu     sync.Mutex
	client mqtt.Client
	wire   map[string]struct{} // patterns subscribed on the current session
}

// NewMQTT creates an unconnected MQTT adapter.
func NewMQTT(cfg config.PubSubConfig, sink Sink, logger zerolog.Logger) *MQTT {
	m := &MQTT{
		cfg:  cfg,
		sink: sink,
		log:  logger.With().Str("component", "mqtt").Logger(),
		wire: make(map[string]struct{}),
	}
	for _, s := range cfg.Subjects {
		m.subjects.add(s)
	}
	return m
}

// Connect starts the client. It waits up to the connect timeout for the first
// connection; after that the client keeps retrying in the background.
func (m *MQTT) Connect(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(m.cfg.URL)
	opts.SetClientID(fmt.Sprintf("%s-%d", m.cfg.ClientID, time.Now().Unix()))
	opts.SetKeepAlive(60 * time.Second)
	opts.SetPingTimeout(10 * time.Second)
	opts.SetConnectTimeout(m.cfg.ConnectTimeout)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetMaxReconnectInterval(time.Minute)
	opts.SetCleanSession(true)
	opts.SetOnConnectHandler(m.onConnect)
	opts.SetConnectionLostHandler(m.onConnectionLost)

	client := mqtt.NewClient(opts)
	m.mu.Lock()
	m.client = client
	m.mu.Unlock()

	token := client.Connect()
	if !token.WaitTimeout(m.cfg.ConnectTimeout) {
		m.log.Info().Str("url", m.cfg.URL).Msg("broker unavailable, retrying in background")
		return nil
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("connect to mqtt %s: %w", m.cfg.URL, err)
	}
	return nil
}

// onConnect subscribes the active patterns on the fresh session and reports the connection.
func (m *MQTT) onConnect(client mqtt.Client) {
	m.log.Info().Str("url", m.cfg.URL).Msg("connected")
	m.mu.Lock()
	m.wire = make(map[string]struct{})
	m.mu.Unlock()
	m.sync(client)
	m.sink.OnBrokerState(true)
}

func (m *MQTT) onConnectionLost(_ mqtt.Client, err error) {
	m.log.Warn().Err(err).Msg("connection lost, will reconnect")
	m.sink.OnBrokerState(false)
}

// sync brings the session's subscriptions in line with the active pattern set.
// New patterns are subscribed before the ones they cover are dropped.
func (m *MQTT) sync(client mqtt.Client) {
	m.mu.Lock()
	var add, drop []string
	want := make(map[string]struct{})
	for _, s := range m.subjects.active() {
		want[s] = struct{}{}
		if _, ok := m.wire[s]; !ok {
			add = append(add, s)
			m.wire[s] = struct{}{}
		}
	}
	for s := range m.wire {
		if _, ok := want[s]; !ok {
			drop = append(drop, TopicFromSubject(s))
			delete(m.wire, s)
		}
	}
	m.mu.Unlock()

	for _, s := range add {
		if !m.subscribe(client, s) {
			m.mu.Lock()
			delete(m.wire, s)
			m.mu.Unlock()
		}
	}
	if len(drop) > 0 {
		token := client.Unsubscribe(drop...)
		if token.WaitTimeout(m.cfg.ConnectTimeout) && token.Error() != nil {
			m.log.Warn().Err(token.Error()).Strs("topics", drop).Msg("unsubscribe failed")
			return
		}
		m.log.Debug().Strs("topics", drop).Msg("unsubscribed")
	}
}

func (m *MQTT) subscribe(client mqtt.Client, subject string) bool {
	topic := TopicFromSubject(subject)
	token := client.Subscribe(topic, 0, m.handle)
	if token.WaitTimeout(m.cfg.ConnectTimeout) && token.Error() != nil {
		m.log.Warn().Err(token.Error()).Str("topic", topic).Msg("subscribe failed")
		return false
	}
	m.log.Debug().Str("topic", topic).Msg("subscribed")
	return true
}

// handle forwards one inbound message to the sink.
func (m *MQTT) handle(_ mqtt.Client, msg mqtt.Message) {
	m.sink.OnTopicMessage(SubjectFromTopic(msg.Topic()), string(msg.Payload()))
}

// Publish sends payload on subject at QoS 0.
func (m *MQTT) Publish(subject string, payload []byte) error {
	client := m.current()
	if client == nil || !client.IsConnectionOpen() {
		return ErrNotConnected
	}
	token := client.Publish(TopicFromSubject(subject), 0, false, payload)
	if token.WaitTimeout(m.cfg.ConnectTimeout) && token.Error() != nil {
		return fmt.Errorf("publish %s: %w", subject, token.Error())
	}
	return nil
}

// Subscribe takes a reference on subject. Patterns covered by another subscribed pattern
// share its subscription.
func (m *MQTT) Subscribe(subject string) error {
	if !m.subjects.add(subject) {
		return nil
	}
	if client := m.current(); client != nil && client.IsConnectionOpen() {
		m.sync(client)
	}
	return nil
}

// Unsubscribe drops a reference on subject. The broker subscription goes with the last one.
func (m *MQTT) Unsubscribe(subject string) error {
	if !m.subjects.remove(subject) {
		return nil
	}
	if client := m.current(); client != nil && client.IsConnectionOpen() {
		m.sync(client)
	}
	return nil
}

// Connected reports whether the broker connection is up.
func (m *MQTT) Connected() bool {
	client := m.current()
	return client != nil && client.IsConnectionOpen()
}

// Subjects returns the subscribed subjects.
func (m *MQTT) Subjects() []string {
	return m.subjects.list()
}

// Close unsubscribes and disconnects, waiting up to 250ms for a clean disconnect.
func (m *MQTT) Close() error {
	m.mu.Lock()
	client := m.client
	m.client = nil
	m.mu.Unlock()

	if client == nil {
		return nil
	}
	m.mu.Lock()
	topics := make([]string, 0, len(m.wire))
	for s := range m.wire {
		topics = append(topics, TopicFromSubject(s))
	}
	m.wire = make(map[string]struct{})
	m.mu.Unlock()
	if client.IsConnected() && len(topics) > 0 {
		client.Unsubscribe(topics...)
	}
	client.Disconnect(250)
	return nil
}

func (m *MQTT) current() mqtt.Client {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.client
}

// TopicFromSubject maps a NATS-style subject to an MQTT topic filter:
// '.' separates levels, '*' becomes '+' and a trailing '>' becomes '#'.
func TopicFromSubject(subject string) string {
	toks := strings.Split(subject, ".")
	for i, tok := range toks {
		switch tok {
		case "*":
			toks[i] = "+"
		case ">":
			toks[i] = "#"
		}
	}
	return strings.Join(toks, "/")
}

// SubjectFromTopic maps a concrete MQTT topic back to a subject.
func SubjectFromTopic(topic string) string {
	return strings.ReplaceAll(topic, "/", ".")
}
