package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/loykin/vastwatch/internal/ipc"
	"github.com/loykin/vastwatch/pkg/vast"
	"github.com/olekukonko/tablewriter"
)

func printJSON(w io.Writer, v any) {
	b, _ := json.MarshalIndent(v, "", "  ")
	_, _ = fmt.Fprintln(w, string(b))
}

// exitReasonText maps a machine-readable exit reason to a sentence.
func exitReasonText(reason string) string {
	switch reason {
	case ipc.ExitStopped:
		return "instance stopped"
	case ipc.ExitCancelled:
		return "monitoring cancelled"
	case ipc.ExitFatal:
		return "fatal error"
	default:
		return reason
	}
}

// renderStatus writes the human-readable status report.
func renderStatus(w io.Writer, rec ipc.StatusRecord, live bool, pid int, now time.Time, interval time.Duration) {
	switch {
	case rec.Final():
		_, _ = fmt.Fprintf(w, "monitor:   exited (%s)\n", exitReasonText(rec.ExitReason))
	case live && pid > 0:
		_, _ = fmt.Fprintf(w, "monitor:   running (pid %d)\n", pid)
	case live:
		_, _ = fmt.Fprintln(w, "monitor:   running")
	default:
		_, _ = fmt.Fprintln(w, "monitor:   not running (last record is not final; it may have been killed)")
	}

	state := rec.State
	if rec.Paused {
		state += " (paused)"
	}
	_, _ = fmt.Fprintf(w, "state:     %s\n", state)

	if !rec.Final() && !rec.Paused {
		if rec.AnyAlive {
			_, _ = fmt.Fprintln(w, "watched:   alive")
		} else {
			_, _ = fmt.Fprintf(w, "watched:   idle for %s, %s remaining\n",
				seconds(rec.IdleSeconds), seconds(rec.RemainSeconds))
		}
	}
	if rec.StopAttempts > 0 {
		_, _ = fmt.Fprintf(w, "attempts:  %d\n", rec.StopAttempts)
	}
	if rec.LastError != "" {
		_, _ = fmt.Fprintf(w, "last error: %s\n", rec.LastError)
	}

	line := fmt.Sprintf("updated:   %s ago", rec.Age(now).Round(time.Second))
	if live && interval > 0 && rec.Age(now) > 3*interval {
		line += " (stale)"
	}
	_, _ = fmt.Fprintln(w, line)
}

// seconds renders a float second count as a rounded duration.
func seconds(s float64) string {
	return time.Duration(s * float64(time.Second)).Round(time.Second).String()
}

// renderInstances writes the instance table.
func renderInstances(w io.Writer, instances []vast.Instance) {
	if len(instances) == 0 {
		_, _ = fmt.Fprintln(w, "no instances found for this API key")
		return
	}

	table := tablewriter.NewWriter(w)
	table.Header("ID", "Label", "Machine", "GPU", "Status", "$/hr")
	for _, in := range instances {
		gpu := in.GPUName
		if in.NumGPUs > 1 {
			gpu = fmt.Sprintf("%dx %s", in.NumGPUs, in.GPUName)
		}
		table.Append(
			strconv.Itoa(in.ID),
			in.Label,
			strconv.Itoa(in.MachineID),
			gpu,
			in.ActualStatus,
			fmt.Sprintf("%.3f", in.DPHTotal),
		)
	}
	table.Render()
	_, _ = fmt.Fprintf(w, "\nTotal instances: %d\n", len(instances))
}
