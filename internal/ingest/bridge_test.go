package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/dmcgarry/tanklog-core/internal/history"
	"github.com/dmcgarry/tanklog-core/internal/infrastructure/mqtt"
	"github.com/dmcgarry/tanklog-core/internal/store"
	"github.com/dmcgarry/tanklog-core/internal/tank"
)

// fakeTransport records subscriptions and published messages.
type fakeTransport struct {
	handlers  map[string]mqtt.MessageHandler
	published map[string][][]byte
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		handlers:  make(map[string]mqtt.MessageHandler),
		published: make(map[string][][]byte),
	}
}

func (t *fakeTransport) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	t.handlers[topic] = handler
	return nil
}

func (t *fakeTransport) Unsubscribe(topic string) error {
	delete(t.handlers, topic)
	return nil
}

func (t *fakeTransport) Publish(topic string, payload []byte, _ byte, _ bool) error {
	t.published[topic] = append(t.published[topic], payload)
	return nil
}

// deliver simulates the broker routing a message to the wildcard handler.
func (t *fakeTransport) deliver(tb testing.TB, topic string, payload []byte) error {
	tb.Helper()

	handler, ok := t.handlers[mqtt.Topics{}.AllReadings()]
	if !ok {
		tb.Fatal("bridge has no readings subscription")
	}
	return handler(topic, payload)
}

// fakeTankRepo serves one tank record by device ID.
type fakeTankRepo struct {
	tanks map[string]*tank.Tank
}

func (r *fakeTankRepo) Save(context.Context, *tank.Tank) error { return nil }
func (r *fakeTankRepo) Delete(context.Context, string) error   { return nil }
func (r *fakeTankRepo) List(context.Context) ([]tank.Tank, error) {
	return nil, nil
}

func (r *fakeTankRepo) GetByDeviceID(_ context.Context, deviceID string) (*tank.Tank, error) {
	record, ok := r.tanks[deviceID]
	if !ok {
		return nil, tank.ErrNotFound
	}
	return record, nil
}

func setupBridge(t *testing.T) (*Bridge, *fakeTransport, *store.MemoryStore) {
	t.Helper()

	st := store.NewMemoryStore()
	transport := newFakeTransport()
	repo := &fakeTankRepo{tanks: map[string]*tank.Tank{
		"tank-main": {
			ID:       "t1",
			DeviceID: "tank-main",
			Name:     "Main Tank",
			Geometry: tank.Geometry{
				Shape:        tank.ShapeCylinder,
				Diameter:     2,
				Height:       5,
				SensorHeight: 5,
				Capacity:     15_000,
			},
		},
	}}

	bridge := NewBridge(transport, history.NewSyncEngine(st, 5*time.Minute), repo, nil)
	if err := bridge.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return bridge, transport, st
}

func TestBridge_SyncsBatchAndPublishesResult(t *testing.T) {
	_, transport, st := setupBridge(t)

	payload := []byte(`[{"timestamp":1700000000,"distance":2.5},{"timestamp":1700000060,"distance":2.4}]`)
	if err := transport.deliver(t, "tanklog/readings/tanks/tank-main", payload); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	if st.Len() != 2 {
		t.Errorf("stored %d entries, want 2", st.Len())
	}

	resultTopic := mqtt.Topics{}.SyncResult("tanks", "tank-main")
	messages := transport.published[resultTopic]
	if len(messages) != 1 {
		t.Fatalf("published %d result messages, want 1", len(messages))
	}

	var result history.SyncResult
	if err := json.Unmarshal(messages[0], &result); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if result.Synced != 2 || result.Skipped != 0 {
		t.Errorf("result = %+v, want synced=2 skipped=0", result)
	}
}

func TestBridge_AppliesTankGeometry(t *testing.T) {
	_, transport, st := setupBridge(t)

	payload := []byte(`[{"timestamp":1700000000,"distance":2.5}]`)
	if err := transport.deliver(t, "tanklog/readings/tanks/tank-main", payload); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	children, err := st.Children(context.Background(), history.HistoryPath("tanks", "tank-main"))
	if err != nil {
		t.Fatalf("Children() error = %v", err)
	}
	for _, raw := range children {
		var entry history.Entry
		if err := json.Unmarshal(raw, &entry); err != nil {
			t.Fatalf("decoding entry: %v", err)
		}
		if entry.CurrentVolume == nil || *entry.CurrentVolume != 7854 {
			t.Errorf("volume = %v, want 7854 from tank geometry", entry.CurrentVolume)
		}
	}
}

func TestBridge_UnknownTankSyncsWithoutGeometry(t *testing.T) {
	_, transport, st := setupBridge(t)

	payload := []byte(`[{"timestamp":1700000000,"distance":2.5}]`)
	if err := transport.deliver(t, "tanklog/readings/tanks/tank-unknown", payload); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	children, err := st.Children(context.Background(), history.HistoryPath("tanks", "tank-unknown"))
	if err != nil {
		t.Fatalf("Children() error = %v", err)
	}
	if len(children) != 1 {
		t.Fatalf("stored %d entries, want 1", len(children))
	}
	for _, raw := range children {
		var entry history.Entry
		if err := json.Unmarshal(raw, &entry); err != nil {
			t.Fatalf("decoding entry: %v", err)
		}
		if entry.CurrentVolume != nil {
			t.Error("entry without registered tank must not carry derived metrics")
		}
	}
}

func TestBridge_MalformedPayloadPublishesError(t *testing.T) {
	_, transport, st := setupBridge(t)

	if err := transport.deliver(t, "tanklog/readings/tanks/tank-main", []byte(`{not json`)); err != nil {
		t.Fatalf("handler error = %v, malformed payload must not error the transport", err)
	}

	if st.Len() != 0 {
		t.Errorf("stored %d entries from malformed payload, want 0", st.Len())
	}

	messages := transport.published[mqtt.Topics{}.SyncResult("tanks", "tank-main")]
	if len(messages) != 1 {
		t.Fatalf("published %d result messages, want 1", len(messages))
	}
	var result history.SyncResult
	if err := json.Unmarshal(messages[0], &result); err != nil {
		t.Fatalf("decoding result: %v", err)
	}
	if result.Error == "" {
		t.Error("result for malformed payload must carry an error")
	}
}

func TestBridge_MalformedTopic(t *testing.T) {
	_, transport, _ := setupBridge(t)

	err := transport.deliver(t, "tanklog/readings/tanks", []byte(`[]`))
	if !errors.Is(err, ErrMalformedTopic) {
		t.Errorf("handler error = %v, want ErrMalformedTopic", err)
	}
}

func TestBridge_Stop(t *testing.T) {
	bridge, transport, _ := setupBridge(t)

	if err := bridge.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if len(transport.handlers) != 0 {
		t.Error("Stop() must remove the readings subscription")
	}
}

func TestParseReadingsTopic(t *testing.T) {
	tests := []struct {
		topic    string
		wantType string
		wantID   string
		wantErr  bool
	}{
		{"tanklog/readings/tanks/tank-main", "tanks", "tank-main", false},
		{"tanklog/readings/valves/valve-7", "valves", "valve-7", false},
		{"tanklog/readings/tanks", "", "", true},
		{"tanklog/sync/tanks/tank-main/result", "", "", true},
		{"tanklog/readings//tank-main", "", "", true},
		{"tanklog/readings/tanks/", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.topic, func(t *testing.T) {
			deviceType, deviceID, err := parseReadingsTopic(tt.topic)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseReadingsTopic(%q) error = %v, wantErr %v", tt.topic, err, tt.wantErr)
			}
			if deviceType != tt.wantType || deviceID != tt.wantID {
				t.Errorf("parseReadingsTopic(%q) = (%q, %q), want (%q, %q)",
					tt.topic, deviceType, deviceID, tt.wantType, tt.wantID)
			}
		})
	}
}
