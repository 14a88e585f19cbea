package instrument

import (
	"fmt"

	"github.com/liquisense/liquisense-core/internal/infrastructure/mqtt"
)

// Publisher is the outbound half of the MQTT client used by the
// adapters in this package. Satisfied by *mqtt.Client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Broker extends Publisher with subscription support.
// Satisfied by *mqtt.Client.
type Broker interface {
	Publisher
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
	Unsubscribe(topic string) error
}

// Logger is the narrow logging interface used by the adapters.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger discards all log output. Used when no logger is provided.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ActuatorLink forwards raw actuator command strings to the firmware
// over MQTT. One command per message, QoS 1, never retained.
//
// Thread Safety: safe for concurrent use; the MQTT client serialises
// publishes internally.
type ActuatorLink struct {
	publisher Publisher
	topic     string
	qos       byte
	logger    Logger
}

// NewActuatorLink creates a link that publishes commands to the
// actuator command topic.
func NewActuatorLink(publisher Publisher, qos byte, logger Logger) *ActuatorLink {
	if logger == nil {
		logger = noopLogger{}
	}
	return &ActuatorLink{
		publisher: publisher,
		topic:     mqtt.Topics{}.ActuatorCommand(),
		qos:       qos,
		logger:    logger,
	}
}

// SendCommand publishes a single command string to the firmware.
//
// Returns:
//   - error: If the publish fails or times out
func (l *ActuatorLink) SendCommand(command string) error {
	if err := l.publisher.Publish(l.topic, []byte(command), l.qos, false); err != nil {
		return fmt.Errorf("sending actuator command %q: %w", command, err)
	}
	l.logger.Debug("Actuator command sent", "command", command)
	return nil
}
