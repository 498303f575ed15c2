// cmd/bladectl/commands.go
package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tamzrod/chassis-manager/internal/blade"
	"github.com/tamzrod/chassis-manager/internal/config"
	"github.com/tamzrod/chassis-manager/internal/ipmi"
	"github.com/tamzrod/chassis-manager/internal/poller"
	"github.com/tamzrod/chassis-manager/internal/transport"
)

func parseByte(name, raw string) (byte, error) {
	v, err := strconv.ParseUint(raw, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return byte(v), nil
}

// statusFailure turns a failed completion into a command error after the
// result has been printed.
func statusFailure(what string, st ipmi.Status) error {
	if st.OK() {
		return nil
	}
	return fmt.Errorf("%s: %s", what, st)
}

// ---- status ----

func newStatusCommand(opts *rootOpts) *cobra.Command {
	var sections []string

	cmd := &cobra.Command{
		Use:   "status <slot>",
		Short: "Collect the hardware status of a blade",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			slot, err := parseByte("slot", args[0])
			if err != nil {
				return err
			}
			sel := blade.AllSections()
			if len(sections) > 0 {
				for _, s := range sections {
					if !isSection(s) {
						return fmt.Errorf("unknown section %q (want one of %s)", s, strings.Join(config.SectionNames, ", "))
					}
				}
				sel = poller.SectionsFromNames(sections)
			}

			s, err := opts.open()
			if err != nil {
				return err
			}
			defer s.done()

			c, err := s.client(slot)
			if err != nil {
				return err
			}
			hs := c.HardwareStatus(sel, transport.PriorityHigh)
			if err := s.print(hs); err != nil {
				return err
			}
			return statusFailure("status", ipmi.Status{Code: hs.Completion})
		},
	}

	cmd.Flags().StringSliceVar(&sections, "sections", nil, "sections to collect (default all)")
	return cmd
}

func isSection(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, n := range config.SectionNames {
		if n == s {
			return true
		}
	}
	return false
}

// ---- sensor ----

func newSensorCommand(opts *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "sensor <slot> [number]",
		Short: "Read one sensor, or the primary sensor when no number is given",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			slot, err := parseByte("slot", args[0])
			if err != nil {
				return err
			}
			var number byte
			if len(args) == 2 {
				if number, err = parseByte("sensor number", args[1]); err != nil {
					return err
				}
			}

			s, err := opts.open()
			if err != nil {
				return err
			}
			defer s.done()

			c, err := s.client(slot)
			if err != nil {
				return err
			}

			var r blade.SensorReading
			if len(args) == 2 {
				r = c.GetSensorReading(number, transport.PriorityHigh)
			} else {
				r = c.PrimarySensorReading(transport.PriorityHigh)
			}
			if err := s.print(r); err != nil {
				return err
			}
			return statusFailure("sensor", r.Status)
		},
	}
}

// ---- sdr ----

func newSDRCommand(opts *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "sdr <slot>",
		Short: "Dump the sensor data record repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			slot, err := parseByte("slot", args[0])
			if err != nil {
				return err
			}

			s, err := opts.open()
			if err != nil {
				return err
			}
			defer s.done()

			c, err := s.client(slot)
			if err != nil {
				return err
			}
			records, st := c.SDR(transport.PriorityHigh)
			if !st.OK() {
				return statusFailure("sdr", st)
			}
			return s.print(records)
		},
	}
}

// ---- fru ----

func newFRUCommand(opts *rootOpts) *cobra.Command {
	var fruID uint8

	cmd := &cobra.Command{
		Use:   "fru <slot>",
		Short: "Read and parse the FRU inventory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			slot, err := parseByte("slot", args[0])
			if err != nil {
				return err
			}

			s, err := opts.open()
			if err != nil {
				return err
			}
			defer s.done()

			c, err := s.client(slot)
			if err != nil {
				return err
			}
			inv, st, err := c.FRU(fruID, transport.PriorityHigh)
			if !st.OK() {
				return statusFailure("fru", st)
			}
			if err != nil {
				return fmt.Errorf("fru: %w", err)
			}
			return s.print(inv)
		},
	}

	cmd.Flags().Uint8Var(&fruID, "fru-id", 0, "FRU device id")
	return cmd
}

// ---- power ----

var controlActions = map[string]ipmi.ControlAction{
	"off":      ipmi.ControlPowerOff,
	"on":       ipmi.ControlPowerOn,
	"cycle":    ipmi.ControlPowerCycle,
	"reset":    ipmi.ControlHardReset,
	"soft-off": ipmi.ControlSoftOff,
}

func parseAction(raw string) (ipmi.ControlAction, error) {
	a, ok := controlActions[strings.ToLower(raw)]
	if !ok {
		return 0, fmt.Errorf("unknown power action %q (want on, off, cycle, reset or soft-off)", raw)
	}
	return a, nil
}

type powerReport struct {
	Reading ipmi.GetPowerReadingResponse `json:"reading" yaml:"reading"`
	Limit   ipmi.GetPowerLimitResponse   `json:"limit" yaml:"limit"`
}

func newPowerCommand(opts *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "power <slot> [on|off|cycle|reset|soft-off]",
		Short: "Show power readings, or issue a chassis control action",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			slot, err := parseByte("slot", args[0])
			if err != nil {
				return err
			}
			var action ipmi.ControlAction
			if len(args) == 2 {
				if action, err = parseAction(args[1]); err != nil {
					return err
				}
			}

			s, err := opts.open()
			if err != nil {
				return err
			}
			defer s.done()

			c, err := s.client(slot)
			if err != nil {
				return err
			}

			if len(args) == 2 {
				st := c.ChassisControl(action, transport.PriorityHigh)
				if err := s.print(st); err != nil {
					return err
				}
				return statusFailure("power", st)
			}

			rep := powerReport{
				Reading: c.PowerReading(transport.PriorityHigh),
				Limit:   c.PowerLimit(transport.PriorityHigh),
			}
			if err := s.print(rep); err != nil {
				return err
			}
			return statusFailure("power reading", rep.Reading.Status)
		},
	}
}

// ---- broadcast ----

func newBroadcastCommand(opts *rootOpts) *cobra.Command {
	return &cobra.Command{
		Use:   "broadcast <on|off|cycle|reset|soft-off>",
		Short: "Send a chassis control action to every blade behind the first line",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			action, err := parseAction(args[0])
			if err != nil {
				return err
			}

			s, err := opts.open()
			if err != nil {
				return err
			}
			defer s.done()

			all := s.reg.All()
			if len(all) == 0 {
				return fmt.Errorf("no blades configured")
			}
			entries, st := all[0].Broadcast(ipmi.ChassisControlRequest{Action: action}, transport.PriorityHigh)
			if !st.OK() {
				return statusFailure("broadcast", st)
			}
			return s.print(entries)
		},
	}
}
