package report

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/robalyx/warden/internal/database/types"
	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"
)

const (
	chartWidth      = 800
	chartHeight     = 400
	titleFontSize   = 12.0
	xAxisFontSize   = 10.0
	yAxisFontSize   = 12.0
	gridLineWidth   = 1.0
	seriesLineWidth = 3.0
	seriesDotWidth  = 4.0
	padding         = 20
)

// ChartBuilder renders the daily strike and action counts of a report.
type ChartBuilder struct {
	strikes []types.DailyCount
	actions []types.DailyCount
}

// NewChartBuilder creates a chart builder. Both series must cover the same days.
func NewChartBuilder(strikes, actions []types.DailyCount) *ChartBuilder {
	return &ChartBuilder{
		strikes: strikes,
		actions: actions,
	}
}

// Build renders the chart as a PNG.
func (b *ChartBuilder) Build() (*bytes.Buffer, error) {
	if len(b.strikes) == 0 || len(b.strikes) != len(b.actions) {
		return nil, fmt.Errorf("mismatched series: %d strike days, %d action days", len(b.strikes), len(b.actions))
	}

	xValues, strikeValues := b.series(b.strikes)
	_, actionValues := b.series(b.actions)

	graph := &chart.Chart{
		Title:      fmt.Sprintf("Moderation Activity (%dd)", len(b.strikes)),
		TitleStyle: chart.Style{FontSize: titleFontSize},
		Width:      chartWidth,
		Height:     chartHeight,
		Background: chart.Style{
			Padding: chart.Box{Top: padding, Left: padding, Right: padding, Bottom: padding},
		},
		XAxis: b.xAxis(),
		YAxis: b.yAxis(max(slices.Max(strikeValues), slices.Max(actionValues))),
		Series: []chart.Series{
			b.createSeries("Strikes", xValues, strikeValues, chart.ColorRed),
			b.createSeries("Actions", xValues, actionValues, chart.ColorBlue),
		},
	}

	graph.Elements = []chart.Renderable{
		chart.Legend(graph),
	}

	buf := new(bytes.Buffer)
	if err := graph.Render(chart.PNG, buf); err != nil {
		return nil, fmt.Errorf("failed to render chart: %w", err)
	}

	return buf, nil
}

func (b *ChartBuilder) series(counts []types.DailyCount) ([]float64, []float64) {
	xValues := make([]float64, len(counts))
	yValues := make([]float64, len(counts))

	for i, c := range counts {
		xValues[i] = float64(i)
		yValues[i] = float64(c.Count)
	}

	return xValues, yValues
}

// xAxis labels each point with its calendar day.
func (b *ChartBuilder) xAxis() chart.XAxis {
	ticks := make([]chart.Tick, len(b.strikes))
	gridLines := make([]chart.GridLine, len(b.strikes))

	for i, c := range b.strikes {
		ticks[i] = chart.Tick{Value: float64(i), Label: c.Day.Format("Jan 02")}
		gridLines[i] = chart.GridLine{Value: float64(i)}
	}

	return chart.XAxis{
		Style: chart.Style{FontSize: xAxisFontSize},
		GridMajorStyle: chart.Style{
			StrokeColor: chart.ColorAlternateGray,
			StrokeWidth: gridLineWidth,
		},
		Range:        &chart.ContinuousRange{Min: 0, Max: float64(max(len(b.strikes)-1, 1))},
		GridLines:    gridLines,
		Ticks:        ticks,
		TickPosition: chart.TickPositionUnderTick,
	}
}

// yAxis pins the range so that an all-zero week still renders.
func (b *ChartBuilder) yAxis(peak float64) chart.YAxis {
	return chart.YAxis{
		Style: chart.Style{FontSize: yAxisFontSize},
		GridMajorStyle: chart.Style{
			StrokeColor: chart.ColorAlternateGray,
			StrokeWidth: gridLineWidth,
		},
		Range: &chart.ContinuousRange{Min: 0, Max: max(peak, 1)},
		ValueFormatter: func(v any) string {
			if f, ok := v.(float64); ok {
				return fmt.Sprintf("%.0f", f)
			}
			return ""
		},
	}
}

func (b *ChartBuilder) createSeries(name string, xValues, yValues []float64, color drawing.Color) chart.Series {
	return chart.ContinuousSeries{
		Name:    name,
		XValues: xValues,
		YValues: yValues,
		Style: chart.Style{
			StrokeColor: color,
			StrokeWidth: seriesLineWidth,
			DotColor:    color,
			DotWidth:    seriesDotWidth,
		},
	}
}
