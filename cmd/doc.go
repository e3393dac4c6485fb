// Package cmd provides the command-line interface for toast.
//
// # Available Commands
//
//   - build: compile every module for the browser and the server
//   - watch: rebuild after every batch of source or import map changes
//   - config: show or validate the resolved configuration
//   - version: show build information
//
// # Command Examples
//
//	// Build ./site into ./dist with route data from the sourcing script
//	node toast.js | toast build site dist --routes -
//
//	// Let the sourcing script post route data over HTTP
//	toast build --listen 127.0.0.1:7777 --drain-timeout 2m
//
//	// Rebuild on change, logging as JSON
//	toast watch --log-format json
//
// # Exit Status
//
// A failed build exits non-zero and logs the failing module path together
// with the cause. No module files are written by a failed build.
package cmd
