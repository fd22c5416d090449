package cmd

import (
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"

	"github.com/anchorageoss/fpga-aes-harness/device"
	"github.com/anchorageoss/fpga-aes-harness/harness"
	"github.com/anchorageoss/fpga-aes-harness/pkg/cw305"
	"github.com/anchorageoss/fpga-aes-harness/profile"
)

// TransportSim is the bundled simulated CW305 transport
const TransportSim = "cw305-sim"

type transportOpener func(p profile.Profile, sim cw305.Options) (device.Transport, error)

var transports = map[string]transportOpener{
	TransportSim: openSimulator,
}

// Transports lists the available transport names
func Transports() []string {
	names := lo.Keys(transports)
	sort.Strings(names)
	return names
}

// newTransportFactory resolves name lazily so that an unknown transport
// surfaces as a connect failure.
func newTransportFactory(name string, sim cw305.Options) harness.TransportFactory {
	return func(p profile.Profile) (device.Transport, error) {
		open, ok := transports[name]
		if !ok {
			return nil, fmt.Errorf("unknown transport %q (available: %s)", name, strings.Join(Transports(), ", "))
		}
		return open(p, sim)
	}
}

func openSimulator(p profile.Profile, sim cw305.Options) (device.Transport, error) {
	sim.Registers = p.Registers
	board, err := cw305.NewBoard(sim)
	if err != nil {
		return nil, err
	}
	return board.Link(), nil
}
