// Package testdata provides embedded test fixtures for use across all test packages.
package testdata

import _ "embed"

// FastProfileTOML is the CW305 AES-128 profile with a 10ms settle time,
// suited to the simulated board
//
//go:embed cw305-fast.toml
var FastProfileTOML []byte

// PollProfileYAML adds a done flag at 0x450 and completes by polling it
//
//go:embed cw305-poll.yaml
var PollProfileYAML []byte
