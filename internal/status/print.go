package status

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
)

var (
	okColor      = color.New(color.FgGreen)
	waitColor    = color.New(color.FgYellow)
	failColor    = color.New(color.FgRed, color.Bold)
	neutralColor = color.New(color.Faint)
)

// Print writes a human readable report
func Print(w io.Writer, r *Report) {
	fmt.Fprintf(w, "Environment: %s\n", r.Environment)

	if c := r.Certificate; c != nil {
		fmt.Fprintf(w, "\nCertificate %s\n", c.Domain)
		fmt.Fprintf(w, "  Status:  %s\n", certificateColor(c).Sprint(c.Status))
		if c.Arn != "" {
			fmt.Fprintf(w, "  ARN:     %s\n", c.Arn)
			fmt.Fprintf(w, "  Age:     %s (timeout %s)\n", c.Age.Round(time.Second), c.Timeout)
		}
		if c.Stalled {
			fmt.Fprintf(w, "  %s validation has been pending longer than %s, check the DNS record:\n", failColor.Sprint("!"), c.Timeout)
			for _, rec := range c.Records {
				fmt.Fprintf(w, "    %s\n", rec)
			}
		}
	}

	if p := r.Pipeline; p != nil {
		fmt.Fprintf(w, "\nPipeline %s\n", p.Name)
		for _, a := range p.Actions {
			fmt.Fprintf(w, "  %-8s %-10s %s", a.Stage, a.Action, actionColor(a.Status).Sprint(a.Status))
			if a.Summary != "" {
				fmt.Fprintf(w, "  %s", a.Summary)
			}
			fmt.Fprintln(w)
			if a.Error != "" {
				fmt.Fprintf(w, "    %s\n", failColor.Sprint(a.Error))
			}
		}
		if p.AwaitingApproval {
			fmt.Fprintf(w, "  %s waiting for manual approval\n", waitColor.Sprint("□"))
		}
		if p.Failed {
			fmt.Fprintf(w, "  %s last execution failed\n", failColor.Sprint("✗"))
		}
	}
}

func certificateColor(c *CertificateStatus) *color.Color {
	switch {
	case c.Status == "ISSUED":
		return okColor
	case c.Stalled:
		return failColor
	case c.Status == "PENDING_VALIDATION":
		return waitColor
	case c.Status == "NOT_FOUND":
		return neutralColor
	default:
		return failColor
	}
}

func actionColor(status string) *color.Color {
	switch status {
	case "Succeeded":
		return okColor
	case "InProgress":
		return waitColor
	case "Failed", "Abandoned":
		return failColor
	default:
		return neutralColor
	}
}
