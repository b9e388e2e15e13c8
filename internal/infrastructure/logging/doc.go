// Package logging configures the structured logger used across Keyfold.
//
// It is a thin layer over log/slog: the config.yaml logging section
// picks level, format (JSON or text) and destination, and every record
// carries the service name and build version so aggregated logs from
// several deployments stay attributable.
//
//	logging:
//	  level: "info"    # debug, info, warn, error
//	  format: "json"   # json, text
//	  output: "stdout" # stdout, stderr
//
// Components take the logger (or their own minimal interface over it)
// as a dependency; nothing logs through a package-level global.
//
// Never log secrets: no JWT secrets, vendor API keys or tokens, even
// at debug level.
package logging
