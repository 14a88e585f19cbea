package mqtt

import "fmt"

// Topic prefixes for the LiquiSense MQTT namespace.
//
// All topics use the flat scheme: liquisense/{category}/{suffix...}.
// The firmware link subscribes to command topics and publishes sample,
// ack and status topics; this core owns the event and control topics.
const (
	// TopicPrefix is the base for all LiquiSense topics.
	TopicPrefix = "liquisense"

	// TopicPrefixSystem is the base for system status topics.
	TopicPrefixSystem = "liquisense/system"
)

// Topics provides builders for LiquiSense MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	cmdTopic := topics.ActuatorCommand()
//	// Returns: "liquisense/command/actuator"
type Topics struct{}

// ActuatorCommand returns the topic the firmware link listens on for
// raw actuator command strings (motor moves, valve switches, tare).
//
// Example: liquisense/command/actuator
func (Topics) ActuatorCommand() string {
	return fmt.Sprintf("%s/command/actuator", TopicPrefix)
}

// LoadCellSample returns the topic raw load-cell samples arrive on.
//
// Example: liquisense/sample/loadcell
func (Topics) LoadCellSample() string {
	return fmt.Sprintf("%s/sample/loadcell", TopicPrefix)
}

// WeightStatus returns the topic the filtered weight status is published to.
//
// Example: liquisense/status/weight
func (Topics) WeightStatus() string {
	return fmt.Sprintf("%s/status/weight", TopicPrefix)
}

// ExperimentEvent returns the topic for a specific experiment event type.
//
// Example: liquisense/event/step_started
func (Topics) ExperimentEvent(eventType string) string {
	return fmt.Sprintf("%s/event/%s", TopicPrefix, eventType)
}

// ExperimentStatus returns the topic run-state snapshots are published to.
//
// Example: liquisense/status/experiment
func (Topics) ExperimentStatus() string {
	return fmt.Sprintf("%s/status/experiment", TopicPrefix)
}

// Control returns the topic remote clients send engine commands on.
//
// Example: liquisense/control/experiment
func (Topics) Control() string {
	return fmt.Sprintf("%s/control/experiment", TopicPrefix)
}

// ControlReply returns the per-request reply topic for control commands.
//
// Example: liquisense/control/reply/req-abc123
func (Topics) ControlReply(requestID string) string {
	return fmt.Sprintf("%s/control/reply/%s", TopicPrefix, requestID)
}

// Alert returns the topic for instrument alerts (overflow, faults).
//
// Example: liquisense/alert/overflow
func (Topics) Alert(kind string) string {
	return fmt.Sprintf("%s/alert/%s", TopicPrefix, kind)
}

// SystemStatus returns the system status topic.
//
// Example: liquisense/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllExperimentEvents returns a pattern matching every experiment event.
//
// Pattern: liquisense/event/+
func (Topics) AllExperimentEvents() string {
	return fmt.Sprintf("%s/event/+", TopicPrefix)
}

// AllAlerts returns a pattern matching every alert topic.
//
// Pattern: liquisense/alert/+
func (Topics) AllAlerts() string {
	return fmt.Sprintf("%s/alert/+", TopicPrefix)
}

// AllTopics returns a pattern matching all LiquiSense topics.
// Use with caution - this receives ALL traffic.
//
// Pattern: liquisense/#
func (Topics) AllTopics() string {
	return "liquisense/#"
}
