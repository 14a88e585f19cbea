// Package mqtt provides the MQTT transport for LiquiSense Core.
//
// The broker is the seam between this core and the instrument firmware:
// actuator command strings go out on liquisense/command/actuator, raw
// load-cell samples come in on liquisense/sample/loadcell, and experiment
// events fan out on liquisense/event/{type} for bench software.
//
// # Features
//
//   - Connection management with auto-reconnect and exponential backoff
//   - Last Will and Testament for crash detection
//   - Subscription tracking with automatic re-subscription on reconnect
//   - Panic recovery around message handlers
//   - Consistent topic naming via the Topics builders
//
// # Usage
//
//	client, err := mqtt.Connect(cfg.MQTT)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	topics := mqtt.Topics{}
//	err = client.Subscribe(topics.LoadCellSample(), 1, handleSample)
//
// # Thread Safety
//
// All Client methods are safe for concurrent use.
package mqtt
