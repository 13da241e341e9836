package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
)

// daemonEnv marks a monitor launched by 'vastwatch start' so it knows it is
// writing to a log file rather than a terminal.
const daemonEnv = "VASTWATCH_DAEMON"

// pidFileName is the monitor pidfile inside the data directory.
const pidFileName = "monitor.pid"

// daemonLogName receives the daemon's stdout and stderr inside the data
// directory. The structured log goes wherever [log] says; this file catches
// anything written around it, panics included.
const daemonLogName = "daemon.log"

// daemonize launches 'vastwatch monitor' as a detached child carrying the
// flags the user set on start, and returns the child's PID.
func daemonize(dataDir, configPath string, fs *pflag.FlagSet) (int, error) {
	executable, err := os.Executable()
	if err != nil {
		return 0, fmt.Errorf("resolve executable path: %w", err)
	}

	// #nosec 204
	cmd := exec.Command(executable, daemonArgs(configPath, fs)...)
	configureDaemonAttrs(cmd)
	cmd.Env = append(os.Environ(), daemonEnv+"=1")
	cmd.Stdin = nil

	logPath := filepath.Join(dataDir, daemonLogName)
	// #nosec 304
	logF, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return 0, fmt.Errorf("open daemon log %s: %w", logPath, err)
	}
	cmd.Stdout = logF
	cmd.Stderr = logF

	if err := cmd.Start(); err != nil {
		_ = logF.Close()
		return 0, fmt.Errorf("start daemon process: %w", err)
	}
	_ = logF.Close()

	// The child rewrites this once it holds the lock; writing it here too
	// makes 'vastwatch status' useful before the child's first tick.
	if err := writePidFile(filepath.Join(dataDir, pidFileName), cmd.Process.Pid); err != nil {
		return cmd.Process.Pid, fmt.Errorf("write pidfile: %w", err)
	}
	return cmd.Process.Pid, nil
}

// daemonArgs rebuilds the argument list for the child monitor process from
// the flags the user actually set on the start command.
func daemonArgs(configPath string, fs *pflag.FlagSet) []string {
	args := []string{"monitor"}
	if configPath != "" {
		args = append(args, "--config="+configPath)
	}
	if fs == nil {
		return args
	}
	fs.Visit(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		// Slice flags repeat, one item per argument.
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			for _, item := range sv.GetSlice() {
				args = append(args, "--"+f.Name+"="+item)
			}
			return
		}
		args = append(args, "--"+f.Name+"="+f.Value.String())
	})
	return args
}

// writePidFile writes the monitor PID to a file
func writePidFile(pidFile string, pid int) error {
	// #nosec 302
	f, err := os.OpenFile(pidFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	_, err = f.WriteString(strconv.Itoa(pid))
	return err
}

// readPidFile returns the recorded PID, or 0 when the file is missing or
// does not hold one.
func readPidFile(pidFile string) int {
	b, err := os.ReadFile(pidFile)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil || pid <= 0 {
		return 0
	}
	return pid
}

// removePidFile removes the PID file
func removePidFile(pidFile string) error {
	if pidFile == "" {
		return nil
	}
	return os.Remove(pidFile)
}
