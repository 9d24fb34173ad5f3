package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/hejijunhao/statusreport/internal/model"
)

// renderSummary formats the headline numbers, category counts and peer
// table of a report for a terminal.
func renderSummary(b *model.ReportBundle) string {
	var sb strings.Builder
	m := b.Metrics

	head := table.NewWriter()
	head.SetStyle(table.StyleLight)
	head.SetTitle(fmt.Sprintf("%s  %s to %s", b.Company, b.Start.Format(dateLayout), b.End.Format(dateLayout)))
	head.AppendRows([]table.Row{
		{"Incidents", m.TotalIncidents},
		{"Per month", fmt.Sprintf("%.1f", m.IncidentRate)},
		{"MTTR", humanDuration(m.MTTR)},
		{"Open", m.Open},
		{"Trend", fmt.Sprintf("%s (%+.0f%%)", m.Trend, m.TrendChange*100)},
		{"New since last run", len(b.NewIncidents)},
	})
	if b.Degraded {
		head.AppendRow(table.Row{"Degraded", strings.Join(b.DegradedReasons, "\n")})
	}
	sb.WriteString(head.Render())

	if len(b.Categories) > 0 {
		cats := table.NewWriter()
		cats.SetStyle(table.StyleLight)
		cats.AppendHeader(table.Row{"Category", "Incidents", "Share", "Method"})
		for _, c := range b.Categories {
			n := m.ByCategory[c.ID]
			if n == 0 {
				continue
			}
			cats.AppendRow(table.Row{c.Name, n, fmt.Sprintf("%.0f%%", share(n, m.TotalIncidents)), c.Method})
		}
		cats.SetColumnConfigs([]table.ColumnConfig{
			{Number: 2, Align: text.AlignRight},
			{Number: 3, Align: text.AlignRight},
		})
		sb.WriteString("\n")
		sb.WriteString(cats.Render())
	}

	if len(b.Peers) > 0 {
		peers := table.NewWriter()
		peers.SetStyle(table.StyleLight)
		peers.AppendHeader(table.Row{"Peer", "Incidents", "Δ", "MTTR", "Δ MTTR", "Trend"})
		for _, p := range b.Peers {
			if p.Missing {
				peers.AppendRow(table.Row{p.Company, "-", "-", "-", "-", p.Reason})
				continue
			}
			peers.AppendRow(table.Row{
				p.Company,
				p.Metrics.TotalIncidents,
				fmt.Sprintf("%+d", p.IncidentDelta),
				humanDuration(p.Metrics.MTTR),
				signedDuration(p.MTTRDelta),
				p.Metrics.Trend,
			})
		}
		sb.WriteString("\n")
		sb.WriteString(peers.Render())
	}

	if len(m.KeyIssues) > 0 {
		sb.WriteString("\nKey issues:\n")
		for _, issue := range m.KeyIssues {
			sb.WriteString("  - " + issue + "\n")
		}
	}
	return strings.TrimRight(sb.String(), "\n")
}

func share(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}

func humanDuration(d time.Duration) string {
	if d == 0 {
		return "-"
	}
	d = d.Round(time.Minute)
	h := int(d.Hours())
	mins := int(d.Minutes()) % 60
	if h == 0 {
		return fmt.Sprintf("%dm", mins)
	}
	return fmt.Sprintf("%dh%02dm", h, mins)
}

func signedDuration(d time.Duration) string {
	switch {
	case d > 0:
		return "+" + humanDuration(d)
	case d < 0:
		return "-" + humanDuration(-d)
	default:
		return "0"
	}
}
