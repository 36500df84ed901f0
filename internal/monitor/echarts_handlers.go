package monitor

import (
	"bytes"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// echartsAssetsPrefix is where the chart pages load their JS assets from.
const echartsAssetsPrefix = "https://go-echarts.github.io/go-echarts-assets/assets/"

// handleSizeChart renders a scatter plot (HTML) of recent packet sizes over
// time using go-echarts. RDMX-recognized packets carry a 1 in the third
// dimension so the visual map colors them apart from unrecognized traffic.
// Query params:
//   - max_points (optional; default 5000) to reduce payload size
func (ws *WebServer) handleSizeChart(w http.ResponseWriter, r *http.Request) {
	if ws.ring == nil {
		ws.writeJSONError(w, http.StatusNotFound, "no sample ring configured")
		return
	}

	samples := ws.ring.Recent()
	if len(samples) == 0 {
		ws.writeJSONError(w, http.StatusNotFound, "no packet samples available")
		return
	}

	maxPoints := 5000
	if mp := r.URL.Query().Get("max_points"); mp != "" {
		if v, err := strconv.Atoi(mp); err == nil && v > 100 && v <= 50000 {
			maxPoints = v
		}
	}

	// Downsample by stride to stay within maxPoints
	stride := 1
	if len(samples) > maxPoints {
		stride = (len(samples) + maxPoints - 1) / maxPoints
	}

	data := make([]opts.ScatterData, 0, len(samples)/stride+1)
	for i := 0; i < len(samples); i += stride {
		s := samples[i]
		rdmxFlag := 0
		if s.IsRDMX {
			rdmxFlag = 1
		}
		data = append(data, opts.ScatterData{
			Value: []interface{}{s.Time.Format("15:04:05.000"), s.Size, rdmxFlag},
		})
	}

	scatter := charts.NewScatter()
	scatter.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "RDMX Packet Sizes", Theme: "dark", Width: "1200px", Height: "700px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Recent Packet Sizes", Subtitle: fmt.Sprintf("samples=%d stride=%d", len(data), stride)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
		charts.WithXAxisOpts(opts.XAxis{Type: "category", Name: "Time"}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Bytes"}),
		charts.WithVisualMapOpts(opts.VisualMap{
			Show:      opts.Bool(true),
			Min:       0,
			Max:       1,
			Dimension: "2",
			InRange:   &opts.VisualMapInRange{Color: []string{"#888888", "#35b779"}},
		}),
	)

	scatter.AddSeries("packets", data, charts.WithScatterChartOpts(opts.ScatterChart{SymbolSize: 4}))

	var buf bytes.Buffer
	if err := scatter.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("failed to render chart: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}

// handleFlowsChart renders a bar chart of the top flows by byte volume over
// the recent sample window.
// Query params:
//   - top (optional; default 10)
func (ws *WebServer) handleFlowsChart(w http.ResponseWriter, r *http.Request) {
	if ws.ring == nil {
		ws.writeJSONError(w, http.StatusNotFound, "no sample ring configured")
		return
	}

	top := 10
	if v := r.URL.Query().Get("top"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 && parsed <= 100 {
			top = parsed
		}
	}

	flows := ws.ring.TopFlows(top)
	if len(flows) == 0 {
		ws.writeJSONError(w, http.StatusNotFound, "no flows observed yet")
		return
	}

	x := make([]string, 0, len(flows))
	bytesSeries := make([]opts.BarData, 0, len(flows))
	rdmxSeries := make([]opts.BarData, 0, len(flows))
	for _, f := range flows {
		x = append(x, f.Flow)
		bytesSeries = append(bytesSeries, opts.BarData{Value: f.Bytes})
		rdmxSeries = append(rdmxSeries, opts.BarData{Value: f.RDMX})
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{Width: "100%", Height: "720px", AssetsHost: echartsAssetsPrefix}),
		charts.WithTitleOpts(opts.Title{Title: "Top Flows", Subtitle: time.Now().Format(time.RFC3339)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true)}),
	)
	bar.SetXAxis(x).
		AddSeries("bytes", bytesSeries,
			charts.WithLabelOpts(opts.Label{Show: opts.Bool(true), Position: "top"}),
		).
		AddSeries("rdmx packets", rdmxSeries)

	page := components.NewPage()
	page.SetAssetsHost(echartsAssetsPrefix)
	page.AddCharts(bar)

	var buf bytes.Buffer
	if err := page.Render(&buf); err != nil {
		ws.writeJSONError(w, http.StatusInternalServerError, fmt.Sprintf("render error: %v", err))
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write(buf.Bytes())
}
