package tui

import (
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/gdamore/tcell/v2"
	"github.com/jrwynneiii/rxcap/config"
	"github.com/jrwynneiii/rxcap/pager"
	"github.com/jrwynneiii/rxcap/record"
	"github.com/navidys/tvxwidgets"
	"github.com/rivo/tview"
)

var LogOut *tview.TextView

// Baseband is what the record view samples for its level gauge and plot.
type Baseband interface {
	Level() float32
	Spectrum(bins int) []float64
}

func newLogView(app *tview.Application) *tview.TextView {
	view := tview.NewTextView().
		SetDynamicColors(true).
		SetRegions(true).
		SetWordWrap(true)
	view.SetChangedFunc(func() {
		view.ScrollToEnd()
		app.Draw()
	})
	view.SetBorder(true).SetTitle("Log Output")
	log.SetOutput(view)
	return view
}

func newGauge(label string, warn, crit float64) *tvxwidgets.UtilModeGauge {
	gauge := tvxwidgets.NewUtilModeGauge()
	gauge.SetLabel(label)
	gauge.SetLabelColor(tcell.ColorLightSkyBlue)
	gauge.SetWarnPercentage(warn)
	gauge.SetCritPercentage(crit)
	gauge.SetEmptyColor(tcell.ColorBlack)
	gauge.SetBorder(false)
	return gauge
}

func newSpectrumPlot() *tvxwidgets.Plot {
	plot := tvxwidgets.NewPlot()
	plot.SetLineColor([]tcell.Color{tcell.ColorLightSkyBlue})
	plot.SetMarker(tvxwidgets.PlotMarkerBraille)
	plot.SetBorder(true)
	plot.SetTitle("Spectrum")
	return plot
}

func refreshInterval(tuiConf config.TuiConf) time.Duration {
	if tuiConf.RefreshMs <= 0 {
		return time.Second
	}
	return time.Duration(tuiConf.RefreshMs) * time.Millisecond
}

// levelPercent maps a dBFS level onto the gauge, -100 dBFS being empty.
func levelPercent(dbfs float32) float64 {
	return min(max(float64(dbfs)+100, 0), 100)
}

// StartRecordUI runs the capture view until the user quits. 'r' toggles
// recording and 'd' switches between pattern and date/frequency filenames.
func StartRecordUI(ctrl *record.Controller, baseband Baseband, dateFrequency bool, tuiConf config.TuiConf) error {
	app := tview.NewApplication()
	LogOut = newLogView(app)
	defer log.SetOutput(os.Stderr)

	telemetry := &TelemetryTableData{}
	telemetryTable := tview.NewTable().SetContent(telemetry)
	telemetryTable.SetSelectable(false, false).SetBorder(true).SetTitle("Recorder")

	dropGauge := newGauge("Dropped blocks:  ", tuiConf.DropWarnPct, tuiConf.DropCritPct)
	levelGauge := newGauge("Signal level:    ", 99, 100)

	gaugeBox := tview.NewFlex()
	gaugeBox.SetDirection(tview.FlexRow)
	gaugeBox.AddItem(levelGauge, 0, 1, false)
	gaugeBox.AddItem(dropGauge, 0, 1, false)
	gaugeBox.SetTitle("Capture Health")
	gaugeBox.SetBorder(true)

	help := tview.NewTextView().SetDynamicColors(true)
	help.SetText("[lightskyblue]r[white] record  [lightskyblue]d[white] date/frequency names  [lightskyblue]q[white] quit")

	signalPlot := newSpectrumPlot()

	leftCol := tview.NewFlex().SetDirection(tview.FlexRow)
	leftCol.AddItem(telemetryTable, 0, 3, false)
	leftCol.AddItem(gaugeBox, 0, 1, false)
	leftCol.AddItem(help, 1, 0, false)

	rightCol := tview.NewFlex().SetDirection(tview.FlexRow)
	if tuiConf.EnableSpectrum {
		rightCol.AddItem(signalPlot, 0, 2, false)
	}
	if tuiConf.EnableLogOutput {
		rightCol.AddItem(LogOut, 0, 3, false)
	}

	page := tview.NewFlex().SetDirection(tview.FlexColumn)
	page.AddItem(leftCol, 0, 2, false)
	page.AddItem(rightCol, 0, 3, false)

	app.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		switch ev.Rune() {
		case 'r':
			if err := ctrl.Toggle(); err != nil {
				log.Errorf("[record] %v", err)
			}
		case 'd':
			dateFrequency = !dateFrequency
			ctrl.SetFilenameDateFrequency(dateFrequency)
			log.Infof("[record] Date/frequency filenames: %v", dateFrequency)
		case 'q':
			app.Stop()
		default:
			return ev
		}
		return nil
	})

	tick := ctrl.OnTick(refreshInterval(tuiConf), func(t record.Telemetry) {
		var bins []float64
		if tuiConf.EnableSpectrum {
			bins = baseband.Spectrum(tuiConf.SpectrumBins)
		}
		level := baseband.Level()
		app.QueueUpdateDraw(func() {
			telemetry.Update(t)
			dropGauge.SetValue(float64(t.DroppedPercent))
			levelGauge.SetValue(levelPercent(level))
			if len(bins) > 0 {
				signalPlot.SetData([][]float64{bins})
			}
		})
	})
	defer tick.Close()

	if err := app.SetRoot(page, true).EnableMouse(true).Run(); err != nil {
		return fmt.Errorf("could not start UI: %w", err)
	}
	return nil
}

// StartPagerUI runs the pager view until the user quits. The caller adds
// allowed packets to packets as they are decoded. 'i' ignores the last
// address shown, 'b' and 'a' toggle hiding bad and address-only packets.
func StartPagerUI(packets *PacketTableData, decoder DecoderStatus, snr func() float64, filter *pager.Filter, tuiConf config.TuiConf) error {
	app := tview.NewApplication()
	LogOut = newLogView(app)
	defer log.SetOutput(os.Stderr)

	packetTable := tview.NewTable().SetContent(packets)
	packetTable.SetSelectable(false, false).SetBorder(true).SetTitle("Pages")

	decoderTable := tview.NewTable().SetContent(&DecoderTableData{decoder: decoder, snr: snr})
	decoderTable.SetSelectable(false, false).SetBorder(true).SetTitle("Decoder Status")

	settings := tview.NewTextView().SetDynamicColors(true)
	settings.SetBorder(true).SetTitle("Filter")

	page := tview.NewFlex().SetDirection(tview.FlexColumn)

	leftCol := tview.NewFlex().SetDirection(tview.FlexRow)
	leftCol.AddItem(packetTable, 0, 3, false)
	if tuiConf.EnableLogOutput {
		leftCol.AddItem(LogOut, 0, 1, false)
	}

	rightCol := tview.NewFlex().SetDirection(tview.FlexRow)
	rightCol.AddItem(decoderTable, 10, 0, false)
	rightCol.AddItem(settings, 0, 1, false)

	page.AddItem(leftCol, 0, 4, false)
	page.AddItem(rightCol, 0, 1, false)

	app.SetInputCapture(func(ev *tcell.EventKey) *tcell.EventKey {
		switch ev.Rune() {
		case 'i':
			if addr, ok := filter.IgnoreLast(); ok {
				log.Infof("[pager] Ignoring address %d", addr)
			}
		case 'b':
			filter.Update(func(c *config.PagerConf) { c.HideBadData = !c.HideBadData })
		case 'a':
			filter.Update(func(c *config.PagerConf) { c.HideAddrOnly = !c.HideAddrOnly })
		case 'q':
			app.Stop()
		default:
			return ev
		}
		settings.SetText(FilterText(filter.Settings()))
		return nil
	})
	settings.SetText(FilterText(filter.Settings()))

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(refreshInterval(tuiConf))
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				app.Draw()
			}
		}
	}()

	if err := app.SetRoot(page, true).EnableMouse(true).Run(); err != nil {
		return fmt.Errorf("could not start UI: %w", err)
	}
	return nil
}

func onOff(b bool) string {
	if b {
		return "[green]on[white]"
	}
	return "[gray]off[white]"
}

// FilterText renders the filter settings and key help for the side panel.
func FilterText(conf config.PagerConf) string {
	ignore := "[gray]none[white]"
	if conf.EnableIgnore {
		ignore = fmt.Sprintf("[red]%d[white]", conf.AddressToIgnore)
	}
	return fmt.Sprintf("Ignore: %s\nHide bad (b): %s\nHide address only (a): %s\n\n[lightskyblue]i[white] ignore last  [lightskyblue]q[white] quit",
		ignore, onOff(conf.HideBadData), onOff(conf.HideAddrOnly))
}
