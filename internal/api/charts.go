package api

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"

	"github.com/banshee-data/wayfinder/internal/httputil"
)

// maxChartPoints bounds the series sent to the browser.
const maxChartPoints = 2000

// progressChart renders distance remaining and distance from the route
// against elapsed seconds of the current session.
// Query params:
//   - max_points (optional; default 2000) to reduce payload size
func (s *Server) progressChart(w http.ResponseWriter, r *http.Request) {
	samples := s.History()
	if len(samples) == 0 {
		httputil.NotFound(w, "no progress recorded")
		return
	}

	maxPoints := maxChartPoints
	if mp := r.URL.Query().Get("max_points"); mp != "" {
		if v, err := strconv.Atoi(mp); err == nil && v >= 10 && v <= 20000 {
			maxPoints = v
		}
	}
	stride := 1
	if len(samples) > maxPoints {
		stride = (len(samples) + maxPoints - 1) / maxPoints
	}

	start := samples[0].Time
	var (
		x         []string
		remaining []opts.LineData
		fromRoute []opts.LineData
		offRoute  int
	)
	for i := 0; i < len(samples); i += stride {
		sm := samples[i]
		x = append(x, strconv.FormatFloat(sm.Time.Sub(start).Seconds(), 'f', 0, 64))
		remaining = append(remaining, opts.LineData{Value: sm.Remaining})
		fromRoute = append(fromRoute, opts.LineData{Value: sm.FromRoute})
		if sm.OffRoute {
			offRoute++
		}
	}

	line := charts.NewLine()
	line.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "Route progress", Width: "100%", Height: "640px"}),
		charts.WithTitleOpts(opts.Title{
			Title:    "Route progress",
			Subtitle: fmt.Sprintf("samples=%d stride=%d off-route=%d", len(samples), stride, offRoute),
		}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithLegendOpts(opts.Legend{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Name: "elapsed (s)", NameLocation: "middle", NameGap: 25}),
		charts.WithYAxisOpts(opts.YAxis{Name: "meters"}),
	)
	line.SetXAxis(x).
		AddSeries("remaining", remaining).
		AddSeries("from route", fromRoute)

	page := components.NewPage()
	page.AddCharts(line)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("render error: %v", err))
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
