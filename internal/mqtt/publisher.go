// Package mqtt publishes snapshot state to an MQTT broker with optional Home
// Assistant auto-discovery.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/HerbHall/drivewatch/internal/drive"
	"github.com/HerbHall/drivewatch/internal/event"
	"github.com/HerbHall/drivewatch/internal/poller"
)

// Publisher mirrors published snapshots onto MQTT topics. It subscribes to
// the event bus and pushes per-metric state topics plus the full snapshot,
// so Home Assistant and other integrations follow the appliance without
// polling the HTTP API.
type Publisher struct {
	cfg    Config
	logger *zap.Logger

	mu           sync.RWMutex
	client       pahomqtt.Client
	discovered   bool
	discoveryKey string
}

// New creates a publisher and subscribes it to snapshot events.
func New(cfg Config, bus *event.Bus, logger *zap.Logger) *Publisher {
	p := &Publisher{
		cfg:    cfg,
		logger: logger,
	}

	bus.Subscribe(event.TopicSnapshotPublished, func(_ context.Context, e event.Event) {
		if snap, ok := e.Payload.(poller.Snapshot); ok {
			p.publishSnapshot(snap)
		}
	})
	bus.Subscribe(event.TopicReauthRequired, func(_ context.Context, _ event.Event) {
		p.publish(p.cfg.TopicPrefix+"/reauth_required", []byte("ON"), false)
	})

	return p
}

// Start connects to the broker. Without a broker URL the publisher stays a
// no-op so the daemon runs fine with MQTT unconfigured. Connection failures
// are logged, not fatal: paho reconnects in the background.
func (p *Publisher) Start(_ context.Context) error {
	if p.cfg.BrokerURL == "" {
		p.logger.Info("mqtt publisher disabled (no broker configured)")
		return nil
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(p.cfg.BrokerURL).
		SetClientID(p.cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectTimeout(p.cfg.Timeout).
		SetWill(p.cfg.TopicPrefix+"/availability", "offline", p.cfg.QoS, true)

	if p.cfg.Username != "" {
		opts.SetUsername(p.cfg.Username)
		opts.SetPassword(p.cfg.Password)
	}

	client := pahomqtt.NewClient(opts)
	token := client.Connect()

	switch {
	case !token.WaitTimeout(p.cfg.Timeout):
		p.logger.Warn("mqtt connection timed out; will reconnect in background")
	case token.Error() != nil:
		p.logger.Warn("mqtt connection failed; will reconnect in background",
			zap.Error(token.Error()),
		)
	default:
		p.logger.Info("mqtt connected to broker",
			zap.String("broker_url", p.cfg.BrokerURL),
		)
	}

	p.mu.Lock()
	p.client = client
	p.mu.Unlock()
	return nil
}

// Stop marks the appliance offline and disconnects from the broker.
func (p *Publisher) Stop(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.client != nil && p.client.IsConnected() {
		p.publishLocked(p.cfg.TopicPrefix+"/availability", []byte("offline"), true)
		p.client.Disconnect(250)
		p.logger.Info("mqtt disconnected")
	}
	return nil
}

// publishSnapshot maps one snapshot onto the topic tree.
func (p *Publisher) publishSnapshot(snap poller.Snapshot) {
	availability := "online"
	if snap.Status == poller.StatusUnavailable {
		availability = "offline"
	}
	p.publish(p.cfg.TopicPrefix+"/availability", []byte(availability), true)

	if full, err := json.Marshal(snap); err == nil {
		p.publish(p.cfg.TopicPrefix+"/snapshot", full, p.cfg.Retain)
	}

	problem := "OFF"
	if snap.Status != poller.StatusOk {
		problem = "ON"
	}
	p.state("problem", problem)
	p.state("status", string(snap.Status))

	reauth := "OFF"
	if snap.AuthRequired {
		reauth = "ON"
	}
	p.publish(p.cfg.TopicPrefix+"/reauth_required", []byte(reauth), false)

	info, _ := snap.Payloads[drive.ResourceDevice].(*drive.DeviceInfo)
	storage, _ := snap.Payloads[drive.ResourceStorage].(*drive.StorageRoot)

	if info != nil {
		p.state("cpu_load", formatFloat(normalizeLoad(info.CPU.CurrentLoad)))
		p.state("cpu_temperature", formatFloat(info.CPU.Temperature))
		if info.Memory.Total > 0 {
			used := float64(info.Memory.Total-info.Memory.Available) / float64(info.Memory.Total) * 100
			p.state("memory_used_pct", formatFloat(used))
		}
	}

	if storage != nil {
		if storage.Total > 0 {
			p.state("storage_used_pct", formatFloat(float64(storage.Used)/float64(storage.Total)*100))
		}
		p.state("storage_free", strconv.FormatInt(storage.Free, 10))
		for _, disk := range storage.Disks {
			p.state("disk_"+SafeObjectID(diskKey(disk))+"_temperature", formatFloat(disk.Temperature))
		}
	}

	if p.cfg.HADiscovery && info != nil {
		p.publishDiscovery(info, storage)
	}
}

// publishDiscovery pushes retained HA discovery configs. Configs are
// republished when the disk set changes so new disks get sensors.
func (p *Publisher) publishDiscovery(info *drive.DeviceInfo, storage *drive.StorageRoot) {
	key := discoveryKey(storage)

	p.mu.RLock()
	done := p.discovered && p.discoveryKey == key
	p.mu.RUnlock()
	if done {
		return
	}

	configs := BuildDiscoveryConfigs(info, storage, p.cfg.ApplianceHost, p.cfg.TopicPrefix, p.cfg.HADiscoveryPrefix)
	for _, cfg := range configs {
		p.publish(cfg.Topic, cfg.Payload, cfg.Retain)
	}

	p.mu.Lock()
	p.discovered = true
	p.discoveryKey = key
	p.mu.Unlock()

	p.logger.Info("mqtt discovery configs published", zap.Int("count", len(configs)))
}

func discoveryKey(storage *drive.StorageRoot) string {
	if storage == nil {
		return ""
	}
	key := ""
	for _, d := range storage.Disks {
		key += diskKey(d) + "|"
	}
	return key
}

func (p *Publisher) state(key, value string) {
	p.publish(p.cfg.TopicPrefix+"/state/"+key, []byte(value), p.cfg.Retain)
}

func (p *Publisher) publish(topic string, payload []byte, retain bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	p.publishLocked(topic, payload, retain)
}

func (p *Publisher) publishLocked(topic string, payload []byte, retain bool) {
	if p.client == nil || !p.client.IsConnected() {
		return
	}

	token := p.client.Publish(topic, p.cfg.QoS, retain, payload)
	if !token.WaitTimeout(p.cfg.Timeout) {
		p.logger.Warn("mqtt publish timed out", zap.String("topic", topic))
		return
	}
	if token.Error() != nil {
		p.logger.Warn("mqtt publish failed",
			zap.String("topic", topic),
			zap.Error(token.Error()),
		)
	}
}

// normalizeLoad maps CPU load to a 0..100 percentage. Current firmware
// reports a 0..1 fraction, older releases already report a percentage.
func normalizeLoad(load float64) float64 {
	if load <= 1 {
		return load * 100
	}
	return load
}

func formatFloat(f float64) string {
	return fmt.Sprintf("%.1f", f)
}
