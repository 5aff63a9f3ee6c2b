// Package charts renders dashboard views as PNG images.
package charts

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/wcharczuk/go-chart/v2"
	"github.com/wcharczuk/go-chart/v2/drawing"

	"fintrack/internal/analytics"
	"fintrack/internal/core"
)

// ErrNoData is returned when there is nothing to draw.
var ErrNoData = errors.New("no data to render")

const (
	defaultWidth  = 1200
	defaultHeight = 600
)

// Renderer draws charts at a fixed size.
type Renderer struct {
	Width  int
	Height int
}

func NewRenderer() *Renderer {
	return &Renderer{Width: defaultWidth, Height: defaultHeight}
}

// BalanceTrend draws the cumulative balance line of a trend.
func (g *Renderer) BalanceTrend(points []analytics.TrendPoint) ([]byte, error) {
	if len(points) == 0 {
		return nil, ErrNoData
	}

	xValues := make([]time.Time, len(points))
	yValues := make([]float64, len(points))
	for i, p := range points {
		xValues[i] = p.Date.Time
		yValues[i] = p.Balance.InexactFloat64()
	}
	// A single point cannot span an x range
	if len(points) == 1 {
		xValues = append([]time.Time{xValues[0].AddDate(0, 0, -1)}, xValues...)
		yValues = append([]float64{yValues[0]}, yValues...)
	}

	graph := chart.Chart{
		Width:  g.Width,
		Height: g.Height,
		Background: chart.Style{
			Padding:   chart.Box{Top: 50, Left: 50, Right: 50, Bottom: 50},
			FillColor: chart.ColorWhite,
		},
		XAxis: chart.XAxis{
			ValueFormatter: chart.TimeValueFormatterWithFormat("Jan 02"),
			Style:          chart.Style{FontSize: 12, FontColor: chart.ColorBlack},
		},
		YAxis: chart.YAxis{
			ValueFormatter: func(v interface{}) string {
				return fmt.Sprintf("%.2f", v.(float64))
			},
			Style: chart.Style{FontSize: 12, FontColor: chart.ColorBlack},
			Range: flatRange(yValues),
		},
		Series: []chart.Series{
			chart.TimeSeries{
				Name:    "Balance",
				XValues: xValues,
				YValues: yValues,
				Style: chart.Style{
					StrokeColor: chart.ColorBlue,
					StrokeWidth: 3,
					FillColor:   chart.ColorBlue.WithAlpha(40),
				},
			},
		},
	}

	buffer := bytes.NewBuffer([]byte{})
	if err := graph.Render(chart.PNG, buffer); err != nil {
		return nil, fmt.Errorf("render balance trend: %w", err)
	}
	return buffer.Bytes(), nil
}

// CategoryBreakdown draws expense shares as a pie, using each category's
// catalogue color.
func (g *Renderer) CategoryBreakdown(items []core.CategoryAmount) ([]byte, error) {
	values := make([]chart.Value, 0, len(items))
	for _, it := range items {
		if !it.Amount.IsPositive() {
			continue
		}
		v := chart.Value{
			Label: fmt.Sprintf("%s %d%%", it.Name, it.Share),
			Value: it.Amount.InexactFloat64(),
		}
		if info, ok := it.Name.Info(); ok {
			v.Style = chart.Style{FillColor: drawing.ColorFromHex(strings.TrimPrefix(info.Color, "#"))}
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		return nil, ErrNoData
	}

	pie := chart.PieChart{
		Width:  g.Width,
		Height: g.Height,
		Values: values,
		Background: chart.Style{
			Padding:   chart.Box{Top: 50, Left: 50, Right: 50, Bottom: 50},
			FillColor: chart.ColorWhite,
		},
	}

	buffer := bytes.NewBuffer([]byte{})
	if err := pie.Render(chart.PNG, buffer); err != nil {
		return nil, fmt.Errorf("render category breakdown: %w", err)
	}
	return buffer.Bytes(), nil
}

// flatRange widens the y axis when every value is equal, since a zero
// range cannot be drawn.
func flatRange(values []float64) chart.Range {
	for _, v := range values[1:] {
		if v != values[0] {
			return nil
		}
	}
	return &chart.ContinuousRange{Min: values[0] - 1, Max: values[0] + 1}
}
