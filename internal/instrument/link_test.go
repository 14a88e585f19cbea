package instrument

import (
	"testing"

	"github.com/liquisense/liquisense-core/internal/infrastructure/mqtt"
)

func TestActuatorLink_SendCommand(t *testing.T) {
	broker := newMockBroker()
	link := NewActuatorLink(broker, 1, nil)

	if err := link.SendCommand("MODE:INJECT"); err != nil {
		t.Fatalf("SendCommand() error = %v", err)
	}

	msgs := broker.messages(mqtt.Topics{}.ActuatorCommand())
	if len(msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(msgs))
	}
	if got := string(msgs[0].payload); got != "MODE:INJECT" {
		t.Errorf("payload = %q, want %q", got, "MODE:INJECT")
	}
	if msgs[0].qos != 1 {
		t.Errorf("qos = %d, want 1", msgs[0].qos)
	}
	if msgs[0].retained {
		t.Error("command published retained, commands must never be retained")
	}
}

func TestActuatorLink_PublishFailure(t *testing.T) {
	broker := newMockBroker()
	broker.failPublish = true
	link := NewActuatorLink(broker, 1, nil)

	if err := link.SendCommand("CAL:ZERO"); err == nil {
		t.Error("SendCommand() error = nil, want publish failure")
	}
}
