package tasks

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"github.com/aibtcdev/daoctl/internal/platform"
)

// GovernanceReportJobType renders a treasury-balance-over-time chart for a
// governance report. Enqueue-only (interval=0): triggered on demand, not by
// the Scheduler's ticker.
const GovernanceReportJobType = "governance_report"

// TreasuryPoint is one sample in a GovernanceReportPayload's history series.
type TreasuryPoint struct {
	AsOf            time.Time
	BalanceMicroSTX int64
}

// GovernanceReportPayload is the Manager.Enqueue payload for this job type.
type GovernanceReportPayload struct {
	DAOID      string
	OutputPath string
	History    []TreasuryPoint
}

type governanceReportTask struct{}

func (governanceReportTask) Validate(_ context.Context, inv *platform.Invocation) (bool, string) {
	p, ok := inv.Payload.(GovernanceReportPayload)
	if !ok {
		return false, "invalid payload for governance_report"
	}
	if p.OutputPath == "" {
		return false, "missing report output path"
	}
	if len(p.History) < 2 {
		return false, "need at least 2 treasury history points to chart"
	}
	return true, ""
}

func (governanceReportTask) Execute(_ context.Context, inv *platform.Invocation) (int, error) {
	p := inv.Payload.(GovernanceReportPayload)

	png, err := renderTreasuryChart(p.History)
	if err != nil {
		return 0, fmt.Errorf("tasks: governance_report: %w", err)
	}
	if err := os.WriteFile(p.OutputPath, png, 0o644); err != nil {
		return 0, fmt.Errorf("tasks: governance_report: write %s: %w", p.OutputPath, err)
	}
	return 1, nil
}

// renderTreasuryChart renders a PNG line chart of treasury balance over
// time. Single series: Treasury Balance (blue solid).
func renderTreasuryChart(points []TreasuryPoint) ([]byte, error) {
	if len(points) < 2 {
		return nil, fmt.Errorf("need at least 2 data points, got %d", len(points))
	}

	xValues := make([]time.Time, len(points))
	valueY := make([]float64, len(points))
	for i, p := range points {
		xValues[i] = p.AsOf
		valueY[i] = float64(p.BalanceMicroSTX) / 1e6
	}

	span := xValues[len(xValues)-1].Sub(xValues[0])
	xFormat := "Jan 06"
	if span < 60*24*time.Hour {
		xFormat = "02 Jan"
	} else if span > 18*30*24*time.Hour {
		xFormat = "Jan 2006"
	}

	balanceSeries := chart.TimeSeries{
		Name: "Treasury Balance",
		Style: chart.Style{
			StrokeColor: drawing.ColorFromHex("2563eb"),
			StrokeWidth: 2.5,
		},
		XValues: xValues,
		YValues: valueY,
	}

	graph := chart.Chart{
		Title:  "Treasury Balance",
		Width:  900,
		Height: 400,
		Background: chart.Style{
			Padding: chart.Box{Top: 40, Left: 10, Right: 20, Bottom: 10},
		},
		XAxis: chart.XAxis{
			TickPosition: chart.TickPositionBetweenTicks,
			ValueFormatter: func(v interface{}) string {
				if t, ok := v.(float64); ok {
					return chart.TimeFromFloat64(t).Format(xFormat)
				}
				return ""
			},
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				if f, ok := v.(float64); ok {
					return fmt.Sprintf("%.0f STX", f)
				}
				return ""
			},
		},
		Series: []chart.Series{
			balanceSeries,
		},
	}

	var buf bytes.Buffer
	if err := graph.Render(chart.PNG, &buf); err != nil {
		return nil, fmt.Errorf("chart render failed: %w", err)
	}
	return buf.Bytes(), nil
}

func init() {
	d := platform.NewTaskDescriptor(GovernanceReportJobType, governanceReportTask{})
	d.DisplayName = "Governance Report Chart"
	d.Description = "Renders a treasury-balance-over-time chart for a governance report."
	d.Interval = 0
	d.Priority = platform.PriorityLow
	d.MaxRetries = 1
	platform.MustRegisterDescriptor(d)
}
