// Package config loads the YAML configuration shared by the smqtt binaries.
//
// Values are resolved in three layers: built-in defaults, the YAML file,
// then environment variable overrides of the form SMQTT_SECTION_KEY. The
// result is validated as a whole and every problem is reported at once.
//
// Example file:
//
//	node:
//	  name: "m"
//	  mode: "GatewayAckAll"
//	mesh:
//	  listen: ":4210"
//	  peers: ["192.168.1.255:4210"]
//	mqtt:
//	  enabled: true
//	  broker:
//	    host: "localhost"
//	logging:
//	  level: "info"
package config
