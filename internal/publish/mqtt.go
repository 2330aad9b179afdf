// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package publish

import (
	"context"
	"fmt"
	"strings"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Thermoquad/gecostat/internal/config"
)

const mqttPublishTimeout = 5 * time.Second

// publisher is the part of mqtt.Client the sink uses
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
	Disconnect(quiesce uint)
}

// subscriber is the part of mqtt.Client used for the command topic
type subscriber interface {
	Subscribe(topic string, qos byte, callback mqtt.MessageHandler) mqtt.Token
}

// MQTT publishes every reading to <topic>/<name> and turns messages on
// <topic>/<name>/set into write commands.
type MQTT struct {
	client   publisher
	topic    string
	retain   bool
	log      *zap.Logger
	commands chan Command
}

// NewMQTT connects to the broker. The initial connection may fail; the
// client keeps retrying in the background.
func NewMQTT(cfg config.MQTTConfig, log *zap.Logger) *MQTT {
	m := &MQTT{
		topic:    strings.TrimSuffix(cfg.Topic, "/"),
		retain:   cfg.Retain,
		log:      log.Named("mqtt"),
		commands: make(chan Command, 16),
	}

	clientID := cfg.ClientID
	if clientID == "" {
		clientID = "gecostat-" + uuid.NewString()[:8]
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.Broker)
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	opts.SetClientID(clientID)
	opts.SetAutoReconnect(true)
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		m.log.Info("connected to broker", zap.String("broker", cfg.Broker))
		if err := m.subscribe(c); err != nil {
			m.log.Error("register writes over MQTT unavailable", zap.Error(err))
		}
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		m.log.Warn("connection lost", zap.Error(err))
	})

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		m.log.Warn("could not connect, retrying in background", zap.Error(token.Error()))
	}
	m.client = client
	return m
}

// subscribe listens on <topic>/+/set and waits for the broker to confirm.
// paho runs the connect handler on its own goroutine, so waiting is safe.
func (m *MQTT) subscribe(c subscriber) error {
	topic := m.topic + "/+/set"
	token := c.Subscribe(topic, 0, func(_ mqtt.Client, msg mqtt.Message) {
		m.HandleMessage(msg.Topic(), msg.Payload())
	})
	if !token.WaitTimeout(mqttPublishTimeout) {
		return fmt.Errorf("subscribe %s: timed out", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("subscribe %s: %w", topic, err)
	}
	return nil
}

// Commands delivers write requests received from the broker
func (m *MQTT) Commands() <-chan Command {
	return m.commands
}

// HandleMessage parses a <topic>/<name>/set message. Commands are dropped
// when the bridge is not keeping up.
func (m *MQTT) HandleMessage(topic string, payload []byte) {
	name := strings.TrimSuffix(strings.TrimPrefix(topic, m.topic+"/"), "/set")
	if name == "" || strings.Contains(name, "/") {
		m.log.Warn("ignoring command on unexpected topic", zap.String("topic", topic))
		return
	}
	cmd := Command{Name: name, Value: strings.TrimSpace(string(payload))}
	select {
	case m.commands <- cmd:
		m.log.Info("command received", zap.String("register", cmd.Name), zap.String("value", cmd.Value))
	default:
		m.log.Warn("command queue full, dropping", zap.String("register", cmd.Name))
	}
}

// Publish implements Sink
func (m *MQTT) Publish(ctx context.Context, snap Snapshot) error {
	for _, r := range snap.Readings {
		if err := ctx.Err(); err != nil {
			return err
		}
		topic := m.topic + "/" + r.Name
		token := m.client.Publish(topic, 0, m.retain, r.Value.String())
		if !token.WaitTimeout(mqttPublishTimeout) {
			return fmt.Errorf("mqtt publish %s: timeout", topic)
		}
		if err := token.Error(); err != nil {
			return fmt.Errorf("mqtt publish %s: %w", topic, err)
		}
	}
	return nil
}

// Close implements Sink
func (m *MQTT) Close() error {
	m.client.Disconnect(250)
	return nil
}
