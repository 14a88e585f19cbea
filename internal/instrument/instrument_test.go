package instrument

import (
	"errors"
	"sync"
	"testing"

	"github.com/liquisense/liquisense-core/internal/infrastructure/influxdb"
	"github.com/liquisense/liquisense-core/internal/infrastructure/mqtt"
	"github.com/liquisense/liquisense-core/internal/weight"
)

// ─── Shared Mocks ───────────────────────────────────────────────────────────

// publishedMsg captures one Publish call.
type publishedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// mockBroker is an in-memory Broker. Delivered messages invoke the
// registered handler synchronously.
type mockBroker struct {
	mu          sync.Mutex
	published   []publishedMsg
	handlers    map[string]mqtt.MessageHandler
	failPublish bool
}

func newMockBroker() *mockBroker {
	return &mockBroker{handlers: make(map[string]mqtt.MessageHandler)}
}

func (b *mockBroker) Publish(topic string, payload []byte, qos byte, retained bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failPublish {
		return errors.New("broker unavailable")
	}
	buf := make([]byte, len(payload))
	copy(buf, payload)
	b.published = append(b.published, publishedMsg{topic: topic, payload: buf, qos: qos, retained: retained})
	return nil
}

func (b *mockBroker) Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[topic] = handler
	return nil
}

func (b *mockBroker) Unsubscribe(topic string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.handlers, topic)
	return nil
}

// deliver invokes the handler registered for topic with the payload.
func (b *mockBroker) deliver(t *testing.T, topic string, payload []byte) {
	t.Helper()
	b.mu.Lock()
	handler, ok := b.handlers[topic]
	b.mu.Unlock()
	if !ok {
		t.Fatalf("no handler subscribed on %s", topic)
	}
	if err := handler(topic, payload); err != nil {
		t.Fatalf("handler returned error: %v", err)
	}
}

// messages returns all publishes to the given topic.
func (b *mockBroker) messages(topic string) []publishedMsg {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []publishedMsg
	for _, msg := range b.published {
		if msg.topic == topic {
			out = append(out, msg)
		}
	}
	return out
}

func (b *mockBroker) hasHandler(topic string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.handlers[topic]
	return ok
}

// mockHistory captures history writes.
type mockHistory struct {
	mu      sync.Mutex
	samples []influxdb.WeightSample
	events  []historyEvent
}

type historyEvent struct {
	runID     string
	eventType string
	message   string
}

func (h *mockHistory) WriteWeightSample(_ string, sample influxdb.WeightSample) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.samples = append(h.samples, sample)
}

func (h *mockHistory) WriteExperimentEvent(_, runID, eventType, message string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, historyEvent{runID: runID, eventType: eventType, message: message})
}

func (h *mockHistory) sampleCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.samples)
}

func (h *mockHistory) eventList() []historyEvent {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]historyEvent(nil), h.events...)
}

// mockIngestor records raw samples and echoes them back as status.
type mockIngestor struct {
	mu   sync.Mutex
	raws []float64
}

func (m *mockIngestor) Ingest(raw float64) weight.Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.raws = append(m.raws, raw)
	return weight.Status{Raw: raw, Filtered: raw, Stable: true}
}

func (m *mockIngestor) received() []float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]float64(nil), m.raws...)
}
