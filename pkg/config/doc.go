// Package config loads the YAML configuration used by the qmi commands.
//
// A minimal file:
//
//	device: /dev/cdc-wdm0
//	open: [version-info, sync]
//	timeouts:
//	  open: 10
//	  command: 30
//	trace:
//	  enabled: true
//
// Through qmi-proxy, spawning it when nothing listens:
//
//	device: /dev/cdc-wdm0
//	proxy: true
//	proxySpawn: /usr/libexec/qmi-proxy
//
// Timeouts are whole seconds. A zero open or command timeout waits
// indefinitely; control and abort timeouts must be set. Unknown keys are
// rejected.
package config
