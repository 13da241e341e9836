package main

import (
	"fmt"
	"os"
	"time"

	"github.com/loykin/vastwatch/internal/config"
	"github.com/loykin/vastwatch/internal/ipc"
	"github.com/spf13/cobra"
)

func main() {
	root := buildRoot()
	if err := root.Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// GlobalFlags holds persistent flags shared by every command
type GlobalFlags struct {
	ConfigPath string
}

// MonitorFlags holds the per-run overrides accepted by monitor and start
type MonitorFlags struct {
	Processes     []string
	IdleTimeout   time.Duration
	CheckInterval time.Duration
	Target        string
	APIKey        string
	APIBase       string
	DataDir       string
	HTTPListen    string
}

// StopFlags holds flags for the stop command
type StopFlags struct {
	Wait time.Duration
}

// StatusFlags holds flags for the status command
type StatusFlags struct {
	JSON bool
}

// InstancesFlags holds flags for the instances command
type InstancesFlags struct {
	JSON bool
}

// buildRoot creates the root command and wires all subcommands
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	monitorFlags := &MonitorFlags{}
	startFlags := &MonitorFlags{}
	stopFlags := &StopFlags{}
	statusFlags := &StatusFlags{}
	instancesFlags := &InstancesFlags{}

	watchCommand := command{out: os.Stdout}

	root := createRootCommand(globalFlags)
	root.AddCommand(
		createMonitorCommand(watchCommand, globalFlags, monitorFlags),
		createStartCommand(watchCommand, globalFlags, startFlags),
		createStopCommand(watchCommand, globalFlags, stopFlags),
		createStatusCommand(watchCommand, globalFlags, statusFlags),
		createPauseCommand(watchCommand, globalFlags),
		createResumeCommand(watchCommand, globalFlags),
		createStopNowCommand(watchCommand, globalFlags),
		createInstancesCommand(watchCommand, globalFlags, instancesFlags),
		createConfigCommand(watchCommand),
	)
	return root
}

// createRootCommand creates the root command with the persistent config flag
func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "vastwatch",
		Short: "Idle watchdog for Vast.ai instances",
		Long: `Vastwatch watches local processes and stops a Vast.ai instance after
they have been gone for a configured idle timeout, so a forgotten GPU
rental stops billing instead of burning money overnight.

Examples:
  vastwatch config init                 # Write a starter vastwatch.toml
  vastwatch monitor                     # Run the watchdog in the foreground
  vastwatch start                       # Run the watchdog in the background
  vastwatch status                      # Show what the watchdog is doing
  vastwatch stop --wait=10s             # End monitoring without touching the instance
  vastwatch stop-now                    # Stop the instance immediately`,
	}

	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (default: ./vastwatch.toml if present)")

	return root
}

// registerMonitorFlags declares the config-override flags shared by the
// monitor and start commands.
func registerMonitorFlags(cmd *cobra.Command, flags *MonitorFlags) {
	cmd.Flags().StringSliceVar(&flags.Processes, "processes", nil, "process names that count as activity (comma-separated)")
	cmd.Flags().DurationVar(&flags.IdleTimeout, "idle-timeout", 45*time.Minute, "continuous idle time before the instance is stopped")
	cmd.Flags().DurationVar(&flags.CheckInterval, "check-interval", 5*time.Second, "process table poll interval")
	cmd.Flags().StringVar(&flags.Target, "target", "", "instance id or label to stop")
	cmd.Flags().StringVar(&flags.APIKey, "api-key", "", "Vast.ai API key (prefer VAST_API_KEY or the config file)")
	cmd.Flags().StringVar(&flags.APIBase, "api-base", "", "provider endpoint override")
	cmd.Flags().StringVar(&flags.DataDir, "data-dir", "", "directory for mailboxes, lock, pidfile and logs")
	cmd.Flags().StringVar(&flags.HTTPListen, "http-listen", "", "optional read-only status endpoint, e.g. 127.0.0.1:8891")
}

// createMonitorCommand creates the monitor subcommand (the long-lived unit)
func createMonitorCommand(watchCommand command, globalFlags *GlobalFlags, monitorFlags *MonitorFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Run the monitor loop in the foreground",
		Long: `Run the monitor loop in the foreground until the instance is stopped,
monitoring is cancelled, or a signal arrives. Only one monitor may run
per data directory; a second one fails fast.

Examples:
  vastwatch monitor
  vastwatch monitor --processes=blender,ffmpeg --idle-timeout=30m --target=12345
  VAST_API_KEY=... vastwatch monitor --target=training-box`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(globalFlags.ConfigPath, cmd, monitorFlags)
			if err != nil {
				return err
			}
			return watchCommand.Monitor(cfg)
		},
	}
	registerMonitorFlags(cmd, monitorFlags)
	return cmd
}

// createStartCommand creates the start subcommand (daemonized monitor)
func createStartCommand(watchCommand command, globalFlags *GlobalFlags, startFlags *MonitorFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Launch the monitor as a background daemon",
		Long: `Launch the monitor loop as a detached background process and return.
The daemon keeps running after this terminal closes; use 'vastwatch status'
to observe it and 'vastwatch stop' to end it.

Examples:
  vastwatch start
  vastwatch start --config=render.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := resolveConfig(globalFlags.ConfigPath, cmd, startFlags)
			if err != nil {
				return err
			}
			return watchCommand.Start(cfg, globalFlags.ConfigPath, cmd.Flags())
		},
	}
	registerMonitorFlags(cmd, startFlags)
	return cmd
}

// createStopCommand creates the stop subcommand
func createStopCommand(watchCommand command, globalFlags *GlobalFlags, stopFlags *StopFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "End monitoring without touching the instance",
		Long: `Ask the running monitor to stop monitoring. The cloud instance keeps
running; only the watchdog exits.

Examples:
  vastwatch stop
  vastwatch stop --wait=10s   # Block until the monitor has exited`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(globalFlags.ConfigPath)
			if err != nil {
				return err
			}
			var wait time.Duration
			if cmd.Flag("wait").Changed {
				wait = stopFlags.Wait
			}
			return watchCommand.Stop(cfg, wait)
		},
	}
	cmd.Flags().DurationVar(&stopFlags.Wait, "wait", 10*time.Second, "block until the monitor has exited, up to this long")
	return cmd
}

// createStatusCommand creates the status subcommand
func createStatusCommand(watchCommand command, globalFlags *GlobalFlags, statusFlags *StatusFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the monitor status",
		Long: `Show the latest status record written by the monitor: decision state,
idle time, time remaining, stop attempts, and whether the monitor process
is actually alive.

Examples:
  vastwatch status
  vastwatch status --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(globalFlags.ConfigPath)
			if err != nil {
				return err
			}
			return watchCommand.Status(cfg, statusFlags.JSON)
		},
	}
	cmd.Flags().BoolVar(&statusFlags.JSON, "json", false, "print the raw status record as JSON")
	return cmd
}

// createPauseCommand creates the pause subcommand
func createPauseCommand(watchCommand command, globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "pause",
		Short: "Pause monitoring",
		Long: `Pause the running monitor. While paused no samples are taken, no idle
time accrues, and the instance is never stopped. Resume with 'vastwatch resume'.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(globalFlags.ConfigPath)
			if err != nil {
				return err
			}
			return watchCommand.Send(cfg, ipc.ActionPause)
		},
	}
}

// createResumeCommand creates the resume subcommand
func createResumeCommand(watchCommand command, globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "resume",
		Short: "Resume a paused monitor",
		Long:  `Resume a paused monitor. The idle clock restarts from zero.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(globalFlags.ConfigPath)
			if err != nil {
				return err
			}
			return watchCommand.Send(cfg, ipc.ActionResume)
		},
	}
}

// createStopNowCommand creates the stop-now subcommand
func createStopNowCommand(watchCommand command, globalFlags *GlobalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stop-now",
		Short: "Stop the cloud instance immediately",
		Long: `Ask the running monitor to stop the cloud instance right away, without
waiting for the idle timeout. The monitor performs the stop so the attempt
is accounted for exactly once and lands in the final status record.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(globalFlags.ConfigPath)
			if err != nil {
				return err
			}
			return watchCommand.Send(cfg, ipc.ActionStopNow)
		},
	}
}

// createInstancesCommand creates the instances subcommand
func createInstancesCommand(watchCommand command, globalFlags *GlobalFlags, instancesFlags *InstancesFlags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "instances",
		Short: "List instances for the configured API key",
		Long: `List the Vast.ai instances visible to the configured API key, with the
ids and labels usable as the monitor target.

Examples:
  vastwatch instances
  vastwatch instances --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadOrDefault(globalFlags.ConfigPath)
			if err != nil {
				return err
			}
			return watchCommand.Instances(cfg, instancesFlags.JSON)
		},
	}
	cmd.Flags().BoolVar(&instancesFlags.JSON, "json", false, "print the raw instance list as JSON")
	return cmd
}

// createConfigCommand creates the config command with its init subcommand
func createConfigCommand(watchCommand command) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration helpers",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "init [path]",
		Short: "Write a commented default config file",
		Long: `Write a commented default configuration to the given path, or to
./vastwatch.toml when no path is given. Refuses to overwrite an existing file.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.DefaultFileName
			if len(args) > 0 {
				path = args[0]
			}
			return watchCommand.ConfigInit(path)
		},
	})
	return cmd
}

// resolveConfig loads the config file and layers the flags the user actually
// set on top of it.
func resolveConfig(path string, cmd *cobra.Command, flags *MonitorFlags) (config.Config, error) {
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return config.Config{}, err
	}
	applyMonitorFlags(&cfg, cmd, flags)
	return cfg, nil
}

// applyMonitorFlags overrides config fields with flag values, but only for
// flags that were explicitly set.
func applyMonitorFlags(cfg *config.Config, cmd *cobra.Command, flags *MonitorFlags) {
	set := cmd.Flags().Changed
	if set("processes") {
		cfg.Processes = flags.Processes
	}
	if set("idle-timeout") {
		cfg.IdleTimeout = flags.IdleTimeout
	}
	if set("check-interval") {
		cfg.CheckInterval = flags.CheckInterval
	}
	if set("target") {
		cfg.Target = flags.Target
	}
	if set("api-key") {
		cfg.APIKey = flags.APIKey
	}
	if set("api-base") {
		cfg.APIBase = flags.APIBase
	}
	if set("data-dir") {
		cfg.DataDir = config.ExpandPath(flags.DataDir)
	}
	if set("http-listen") {
		cfg.HTTPListen = flags.HTTPListen
	}
}
