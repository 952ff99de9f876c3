package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dmcgarry/tanklog-core/internal/history"
	"github.com/dmcgarry/tanklog-core/internal/infrastructure/mqtt"
	"github.com/dmcgarry/tanklog-core/internal/tank"
)

// ErrMalformedTopic is returned when a readings topic does not match the
// tanklog/readings/{deviceType}/{deviceID} scheme.
var ErrMalformedTopic = errors.New("ingest: malformed readings topic")

// defaultQoS is the QoS level for subscriptions and result publishes.
const defaultQoS = 1

// Transport is the subset of the MQTT client the bridge needs.
// Satisfied by *mqtt.Client.
type Transport interface {
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Syncer ingests a reading batch. Satisfied by *history.SyncEngine.
type Syncer interface {
	Sync(ctx context.Context, deviceID, deviceType string, readings []history.RawReading, geom *tank.Geometry) history.SyncResult
}

// Bridge connects the MQTT ingestion transport to the sync engine.
//
// Collectors publish JSON arrays of raw readings to
// tanklog/readings/{deviceType}/{deviceID}; the bridge syncs each batch
// into history and publishes the outcome to the device's result topic so
// collectors can confirm delivery and prune their local buffers.
type Bridge struct {
	transport Transport
	syncer    Syncer
	tanks     tank.Repository
	logger    history.Logger

	topics mqtt.Topics
}

// NewBridge creates an ingestion bridge. tanks supplies geometry for
// tank devices; logger is optional.
func NewBridge(transport Transport, syncer Syncer, tanks tank.Repository, logger history.Logger) *Bridge {
	return &Bridge{
		transport: transport,
		syncer:    syncer,
		tanks:     tanks,
		logger:    logger,
	}
}

// Start subscribes to reading batches from every device.
func (b *Bridge) Start() error {
	if err := b.transport.Subscribe(b.topics.AllReadings(), defaultQoS, b.handleReadings); err != nil {
		return fmt.Errorf("subscribing to readings: %w", err)
	}
	return nil
}

// Stop unsubscribes from the readings pattern.
func (b *Bridge) Stop() error {
	return b.transport.Unsubscribe(b.topics.AllReadings())
}

// handleReadings processes one published batch.
//
// Per-batch problems never propagate an error back to the MQTT layer:
// the outcome, including failure, is reported on the result topic.
func (b *Bridge) handleReadings(topic string, payload []byte) error {
	deviceType, deviceID, err := parseReadingsTopic(topic)
	if err != nil {
		if b.logger != nil {
			b.logger.Warn("dropping batch from malformed topic", "topic", topic)
		}
		return err
	}

	var readings []history.RawReading
	if err := json.Unmarshal(payload, &readings); err != nil {
		b.publishResult(deviceType, deviceID, history.SyncResult{
			Error: fmt.Sprintf("decoding readings: %v", err),
		})
		return nil
	}

	result := b.syncer.Sync(context.Background(), deviceID, deviceType, readings, b.geometryFor(deviceType, deviceID))

	if b.logger != nil {
		b.logger.Info("synced reading batch",
			"device_type", deviceType,
			"device_id", deviceID,
			"synced", result.Synced,
			"skipped", result.Skipped,
			"failed", result.Failed,
		)
	}

	b.publishResult(deviceType, deviceID, result)
	return nil
}

// geometryFor looks up tank geometry when the device is a tank.
// Missing geometry is not an error: entries sync without derived metrics.
func (b *Bridge) geometryFor(deviceType, deviceID string) *tank.Geometry {
	if deviceType != "tanks" || b.tanks == nil {
		return nil
	}

	record, err := b.tanks.GetByDeviceID(context.Background(), deviceID)
	if err != nil {
		if !errors.Is(err, tank.ErrNotFound) && b.logger != nil {
			b.logger.Warn("tank geometry lookup failed", "device_id", deviceID, "error", err)
		}
		return nil
	}
	return &record.Geometry
}

// publishResult reports a batch outcome on the device's result topic.
func (b *Bridge) publishResult(deviceType, deviceID string, result history.SyncResult) {
	payload, err := json.Marshal(result)
	if err != nil {
		return
	}

	if err := b.transport.Publish(b.topics.SyncResult(deviceType, deviceID), payload, defaultQoS, false); err != nil {
		if b.logger != nil {
			b.logger.Warn("publishing sync result failed",
				"device_type", deviceType,
				"device_id", deviceID,
				"error", err,
			)
		}
	}
}

// parseReadingsTopic extracts device type and ID from a readings topic.
func parseReadingsTopic(topic string) (deviceType, deviceID string, err error) {
	parts := strings.Split(topic, "/")
	if len(parts) != 4 || parts[0]+"/"+parts[1] != mqtt.TopicPrefixReadings || parts[2] == "" || parts[3] == "" {
		return "", "", fmt.Errorf("%w: %q", ErrMalformedTopic, topic)
	}
	return parts[2], parts[3], nil
}
