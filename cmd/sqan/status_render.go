package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/iamvazu/SQAN/internal/daemon"
)

type statusKind int

const (
	statusInfo statusKind = iota
	statusOK
	statusWarn
	statusError
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
	ansiBlue   = "\x1b[34m"
)

const (
	statusLabelWidth = 16
	statusIndent     = "  "
)

var componentTitle = cases.Title(language.English)

func renderStatusLine(label string, kind statusKind, message string, colorize bool) string {
	text := "[" + statusKindLabel(kind) + "]"
	if message != "" {
		text += " " + message
	}
	line := fmt.Sprintf("%s%-*s %s", statusIndent, statusLabelWidth, label+":", text)
	if !colorize {
		return line
	}
	return statusKindColor(kind) + line + ansiReset
}

func statusKindLabel(kind statusKind) string {
	switch kind {
	case statusOK:
		return "OK"
	case statusWarn:
		return "WARN"
	case statusError:
		return "ERROR"
	default:
		return "INFO"
	}
}

func statusKindColor(kind statusKind) string {
	switch kind {
	case statusOK:
		return ansiGreen
	case statusWarn:
		return ansiYellow
	case statusError:
		return ansiRed
	default:
		return ansiBlue
	}
}

func renderSectionHeader(title string, colorize bool) []string {
	line := fmt.Sprintf("== %s ==", strings.TrimSpace(title))
	rule := strings.Repeat("-", len(line))
	if colorize {
		line = ansiBlue + line + ansiReset
		rule = ansiBlue + rule + ansiReset
	}
	return []string{line, rule}
}

// statusLines renders the daemon status report shown by `sqan status`.
func statusLines(status daemon.Status, colorize bool) []string {
	lines := renderSectionHeader("SQAN", colorize)

	if status.Running {
		msg := fmt.Sprintf("Running (pid %d)", status.PID)
		if status.StartedAt != nil {
			msg += ", up " + time.Since(*status.StartedAt).Truncate(time.Second).String()
		}
		lines = append(lines, renderStatusLine("Daemon", statusOK, msg, colorize))
	} else {
		lines = append(lines, renderStatusLine("Daemon", statusError, "Not running", colorize))
	}
	lines = append(lines, renderStatusLine("Store", statusInfo, status.StoreDriver, colorize))
	lines = append(lines, ingestLine(status.Ingest, colorize))
	lines = append(lines, qcLines(status, colorize)...)

	if len(status.Components) > 0 {
		lines = append(lines, "")
		lines = append(lines, renderSectionHeader("Components", colorize)...)
		for _, comp := range status.Components {
			kind := statusOK
			msg := "Ready"
			if !comp.Ready {
				kind = statusError
				msg = "Not ready"
			}
			if comp.Detail != "" {
				msg += " (" + comp.Detail + ")"
			}
			lines = append(lines, renderStatusLine(componentTitle.String(comp.Name), kind, msg, colorize))
		}
	}
	return lines
}

func ingestLine(ingest daemon.IngestStatus, colorize bool) string {
	switch {
	case !ingest.Enabled:
		return renderStatusLine("Ingest", statusInfo, "Disabled", colorize)
	case ingest.Halted:
		msg := "Halted"
		if ingest.LastError != "" {
			msg += ": " + ingest.LastError
		}
		return renderStatusLine("Ingest", statusError, msg, colorize)
	case ingest.Running:
		return renderStatusLine("Ingest", statusOK, "Consuming", colorize)
	default:
		return renderStatusLine("Ingest", statusWarn, "Idle", colorize)
	}
}

func qcLines(status daemon.Status, colorize bool) []string {
	qc := status.QC
	if qc == nil {
		return []string{renderStatusLine("QC engine", statusInfo, "Disabled", colorize)}
	}
	kind := statusOK
	msg := fmt.Sprintf("Running (%d cycles, %d pending)", qc.Cycles, qc.Pending)
	switch {
	case !qc.Running:
		kind = statusWarn
		msg = fmt.Sprintf("Stopped (%d pending)", qc.Pending)
	case qc.LastError != "":
		kind = statusWarn
		msg += ", last error: " + qc.LastError
	}
	lines := []string{renderStatusLine("QC engine", kind, msg, colorize)}
	if last := qc.LastCycle; last != nil {
		cycle := "Skipped (lock held elsewhere)"
		if !last.Skipped {
			cycle = fmt.Sprintf("%d checked, %d errors, %d warnings, %d notemp, %d failed in %s",
				last.Checked, last.Errors, last.Warnings, last.NoTemplate, last.Failed, last.Duration.Truncate(time.Millisecond))
		}
		lines = append(lines, renderStatusLine("Last cycle", statusInfo, cycle, colorize))
	}
	return lines
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
