// cmd/bladectl/main.go
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/tamzrod/chassis-manager/internal/blade"
	"github.com/tamzrod/chassis-manager/internal/chassis"
	"github.com/tamzrod/chassis-manager/internal/config"
	"github.com/tamzrod/chassis-manager/internal/logging"
)

type rootOpts struct {
	configPath string
	format     string
	logLevel   string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOpts{}

	cmd := &cobra.Command{
		Use:           "bladectl",
		Short:         "One-shot IPMI queries against chassis blades",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if _, err := newRenderer(opts.format); err != nil {
				return err
			}
			logging.Configure(logging.ProfileCLI, opts.logLevel)
			return nil
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "/etc/chassis/chassis.yaml", "chassis config file (.yaml or .toml)")
	cmd.PersistentFlags().StringVarP(&opts.format, "format", "o", "json", "output format: json, yaml or cbor")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "log level (default warn)")

	cmd.AddCommand(
		newStatusCommand(opts),
		newSensorCommand(opts),
		newSDRCommand(opts),
		newFRUCommand(opts),
		newPowerCommand(opts),
		newBroadcastCommand(opts),
	)
	return cmd
}

// session is an opened chassis for the duration of one command.
type session struct {
	reg   *blade.Registry
	close func() error
	out   renderer
}

func (o *rootOpts) open() (*session, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return nil, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	config.Normalize(cfg)

	out, err := newRenderer(o.format)
	if err != nil {
		return nil, err
	}

	reg, closeLines, err := chassis.Build(cfg, nil, chassis.OpenSerial)
	if err != nil {
		return nil, err
	}
	return &session{reg: reg, close: closeLines, out: out}, nil
}

// client returns the initialized client of slot.
func (s *session) client(slot byte) (*blade.Client, error) {
	c, ok := s.reg.Get(slot)
	if !ok {
		return nil, fmt.Errorf("slot %d is not configured", slot)
	}
	c.Initialize()
	return c, nil
}

func (s *session) done() {
	for _, c := range s.reg.All() {
		c.Logoff()
	}
	_ = s.close()
}
