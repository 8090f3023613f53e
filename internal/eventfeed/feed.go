// Package eventfeed publishes call lifecycle events to an MQTT broker
// so dashboards and CRM integrations can follow live calls. The feed is
// optional: a nil *Feed is safe to publish to and does nothing.
package eventfeed

import (
	"encoding/json"
	"sync/atomic"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

const topicPrefix = "dc-engine/calls/"

// Event is one call lifecycle notification.
type Event struct {
	CallID    string    `json:"call_id"`
	CallSID   string    `json:"call_sid,omitempty"`
	ClientID  string    `json:"client_id,omitempty"`
	Kind      string    `json:"kind"` // initiated, answered, turn, completed, failed
	Stage     string    `json:"stage,omitempty"`
	Intent    string    `json:"intent,omitempty"`
	Text      string    `json:"text,omitempty"`
	EndReason string    `json:"end_reason,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type Options struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	Log       zerolog.Logger
}

// Feed is a fire-and-forget MQTT publisher.
type Feed struct {
	conn      mqtt.Client
	connected atomic.Bool
	log       zerolog.Logger
}

// Connect dials the broker. Returns an error only when the initial
// connection fails outright; later drops auto-reconnect.
func Connect(opts Options) (*Feed, error) {
	f := &Feed{log: opts.Log.With().Str("component", "eventfeed").Logger()}

	clientOpts := mqtt.NewClientOptions().
		AddBroker(opts.BrokerURL).
		SetClientID(opts.ClientID).
		SetAutoReconnect(true).
		SetConnectRetryInterval(5 * time.Second).
		SetOrderMatters(false).
		SetOnConnectHandler(func(mqtt.Client) {
			f.connected.Store(true)
			f.log.Info().Msg("mqtt connected")
		}).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			f.connected.Store(false)
			f.log.Warn().Err(err).Msg("mqtt connection lost, will auto-reconnect")
		})

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
	}
	if opts.Password != "" {
		clientOpts.SetPassword(opts.Password)
	}

	f.conn = mqtt.NewClient(clientOpts)
	token := f.conn.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, err
	}
	return f, nil
}

// Connected reports broker connectivity. False for a nil feed.
func (f *Feed) Connected() bool {
	return f != nil && f.connected.Load()
}

// Publish sends one event to dc-engine/calls/{kind}. Publish failures
// are logged and dropped; the feed never blocks call handling.
func (f *Feed) Publish(ev Event) {
	if f == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		f.log.Error().Err(err).Msg("event marshal failed")
		return
	}

	token := f.conn.Publish(topicPrefix+ev.Kind, 0, false, payload)
	go func() {
		token.Wait()
		if err := token.Error(); err != nil {
			f.log.Warn().Err(err).Str("kind", ev.Kind).Msg("event publish failed")
		}
	}()
}

// Close disconnects from the broker, allowing in-flight publishes a
// moment to drain.
func (f *Feed) Close() {
	if f == nil {
		return
	}
	f.conn.Disconnect(250)
}
