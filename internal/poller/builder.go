// internal/poller/builder.go
package poller

import (
	"strings"
	"time"

	"github.com/tamzrod/chassis-manager/internal/blade"
	cfg "github.com/tamzrod/chassis-manager/internal/config"
)

// Build constructs the Poller of one blade from validated, normalized config.
// The client is owned by the caller.
func Build(pc cfg.PollConfig, client Client) (*Poller, error) {
	return New(
		Config{
			Interval: time.Duration(pc.IntervalMs) * time.Millisecond,
			Sections: SectionsFromNames(pc.Sections),
		},
		client,
	)
}

// SectionsFromNames maps poll.sections names to blade.Sections.
// Unknown names are ignored; Validate rejects them earlier.
func SectionsFromNames(names []string) blade.Sections {
	var s blade.Sections
	for _, n := range names {
		switch strings.ToLower(strings.TrimSpace(n)) {
		case "processors":
			s.Processors = true
		case "memory":
			s.Memory = true
		case "pcie":
			s.PCIe = true
		case "management_engine":
			s.ManagementEngine = true
		case "temperature":
			s.Temperature = true
		case "power":
			s.Power = true
		case "fru":
			s.FRU = true
		case "misc":
			s.Misc = true
		case "disk":
			s.Disk = true
		}
	}
	return s
}
