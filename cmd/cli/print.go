package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/SanjoDeundiak/ocr-supervisor/pkg/lib"
)

// printStatusTable prints a table on a terminal and key=value pairs when piped.
func printStatusTable(st lib.SupervisorStatus) {
	if term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Print(formatStatusTable(st))
		return
	}
	fmt.Println(formatStatusPlain(st))
}

func formatStatusPlain(st lib.SupervisorStatus) string {
	parts := []string{
		"kind=" + st.Kind.String(),
		"state=" + st.State.String(),
		"running=" + strconv.FormatBool(st.Running),
		"timed_out=" + strconv.FormatBool(st.TimedOut),
		"pid=" + strconv.Itoa(st.PID),
	}
	if st.RunID != "" {
		parts = append(parts, "run_id="+st.RunID)
	}
	return strings.Join(parts, " ")
}

func formatStatusTable(st lib.SupervisorStatus) string {
	kind := st.Kind.String()
	if kind == "" {
		kind = "-"
	}
	pid := "-"
	if st.PID > 0 {
		pid = strconv.Itoa(st.PID)
	}
	started := "-"
	if !st.StartedAt.IsZero() {
		started = st.StartedAt.Local().Format(time.DateTime)
	}

	headers := []string{"KIND", "STATE", "RUNNING", "TIMED OUT", "PID", "STARTED"}
	row := []string{kind, st.State.String(), strconv.FormatBool(st.Running), strconv.FormatBool(st.TimedOut), pid, started}

	widths := make([]int, len(headers))
	for i := range headers {
		widths[i] = max(len(headers[i]), len(row[i]))
	}

	var b strings.Builder
	sep := "+"
	for _, w := range widths {
		sep += "-" + strings.Repeat("-", w) + "-+"
	}
	sep += "\n"
	line := func(cells []string) {
		b.WriteString("|")
		for i, c := range cells {
			b.WriteString(" " + pad(c, widths[i]) + " |")
		}
		b.WriteString("\n")
	}

	b.WriteString(sep)
	line(headers)
	b.WriteString(sep)
	line(row)
	b.WriteString(sep)
	return b.String()
}

func pad(s string, w int) string {
	if len(s) >= w {
		return s
	}
	return s + strings.Repeat(" ", w-len(s))
}
