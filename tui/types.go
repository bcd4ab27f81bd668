package tui

import (
	"fmt"
	"sync"

	"github.com/gdamore/tcell/v2"
	"github.com/jrwynneiii/rxcap/pocsag"
	"github.com/jrwynneiii/rxcap/record"
	"github.com/rivo/tview"
)

type TelemetryTableData struct {
	tview.TableContentReadOnly
	mu  sync.RWMutex
	tel record.Telemetry
}

func (d *TelemetryTableData) Update(t record.Telemetry) {
	d.mu.Lock()
	d.tel = t
	d.mu.Unlock()
}

func (d *TelemetryTableData) GetRowCount() int {
	return 7
}

func (d *TelemetryTableData) GetColumnCount() int {
	return 2
}

func stateColor(s record.State) tcell.Color {
	switch s {
	case record.Recording:
		return tcell.ColorRed
	case record.Armed:
		return tcell.ColorGreen
	}
	return tcell.ColorGray
}

func (d *TelemetryTableData) GetCell(row, column int) *tview.TableCell {
	d.mu.RLock()
	t := d.tel
	d.mu.RUnlock()

	labels := [...]string{"State:", "File:", "Rate:", "Written:", "Dropped:", "Available:", "Status:"}
	if row < 0 || row >= len(labels) {
		return tview.NewTableCell("ERROR")
	}
	if column == 0 {
		return tview.NewTableCell(labels[row]).SetTextColor(tcell.ColorLightSkyBlue)
	}

	switch row {
	case 0:
		return tview.NewTableCell(t.State.String()).SetTextColor(stateColor(t.State))
	case 1:
		if t.Filename == "" {
			return tview.NewTableCell("-")
		}
		return tview.NewTableCell(t.Filename)
	case 2:
		if t.SampleRate == 0 {
			return tview.NewTableCell("-")
		}
		cell := tview.NewTableCell(fmt.Sprintf("%d S/s (%v, front end %d S/s)", t.SampleRate, t.Decimation, t.EffectiveRate))
		if t.Warning {
			cell.SetTextColor(tcell.ColorYellow)
		}
		return cell
	case 3:
		return tview.NewTableCell(fmt.Sprintf("%d blocks", t.Written))
	case 4:
		cell := tview.NewTableCell(fmt.Sprintf("%s (%d blocks)", t.DroppedText(), t.Dropped))
		if t.Dropped > 0 {
			cell.SetTextColor(tcell.ColorRed)
		}
		return cell
	case 5:
		return tview.NewTableCell(t.Available.String())
	case 6:
		switch {
		case t.Err != nil:
			return tview.NewTableCell(t.Err.Error()).SetTextColor(tcell.ColorRed)
		case t.Warning:
			return tview.NewTableCell("rate too high for exact capture").SetTextColor(tcell.ColorYellow)
		}
		return tview.NewTableCell("ok")
	}
	return tview.NewTableCell("ERROR")
}

// PacketTableData holds the most recent packets, newest first.
type PacketTableData struct {
	tview.TableContentReadOnly
	mu      sync.RWMutex
	packets []pocsag.Packet
	max     int
}

func NewPacketTableData(max int) *PacketTableData {
	if max <= 0 {
		max = 200
	}
	return &PacketTableData{max: max}
}

func (d *PacketTableData) Add(p pocsag.Packet) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.packets = append([]pocsag.Packet{p}, d.packets...)
	if len(d.packets) > d.max {
		d.packets = d.packets[:d.max]
	}
}

func (d *PacketTableData) GetRowCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.packets) + 1
}

func (d *PacketTableData) GetColumnCount() int {
	return 5
}

func (d *PacketTableData) GetCell(row, column int) *tview.TableCell {
	if row == 0 {
		headers := [...]string{"[lightskyblue]Time ", "[lightskyblue]Address ", "[lightskyblue]F ", "[lightskyblue]Err ", "[white]Message"}
		if column < 0 || column >= len(headers) {
			return tview.NewTableCell("ERROR")
		}
		return tview.NewTableCell(headers[column])
	}

	d.mu.RLock()
	if row-1 >= len(d.packets) {
		d.mu.RUnlock()
		return tview.NewTableCell("")
	}
	p := d.packets[row-1]
	d.mu.RUnlock()

	switch column {
	case 0:
		return tview.NewTableCell(p.Timestamp.Format("15:04:05"))
	case 1:
		return tview.NewTableCell(fmt.Sprintf("[lightskyblue]%d", p.Address))
	case 2:
		return tview.NewTableCell(fmt.Sprintf("%d", p.Function))
	case 3:
		if p.Degraded() {
			return tview.NewTableCell(fmt.Sprintf("[red]%d", p.ErrorCount))
		}
		if p.ErrorCount > 0 {
			return tview.NewTableCell(fmt.Sprintf("[yellow]%d", p.ErrorCount))
		}
		return tview.NewTableCell("[green]0")
	case 4:
		if p.AddressOnly() {
			return tview.NewTableCell("[gray](tone only)")
		}
		return tview.NewTableCell(tview.Escape(p.Text())).SetExpansion(1)
	}
	return tview.NewTableCell("ERROR")
}

// DecoderStatus is satisfied by pocsag.Stream and pocsag.Decoder.
type DecoderStatus interface {
	State() pocsag.DecoderState
	Stats() *pocsag.Stats
}

type DecoderTableData struct {
	tview.TableContentReadOnly
	decoder DecoderStatus
	snr     func() float64
}

func (d *DecoderTableData) GetRowCount() int {
	return 8
}

func (d *DecoderTableData) GetColumnCount() int {
	return 2
}

func (d *DecoderTableData) GetCell(row, column int) *tview.TableCell {
	labels := [...]string{"Sync:", "SNR:", "Codewords:", "Corrected:", "Uncorrectable:", "Packets:", "Sync losses:", "Torn packets:"}
	if row < 0 || row >= len(labels) {
		return tview.NewTableCell("ERROR")
	}
	if column == 0 {
		return tview.NewTableCell(labels[row])
	}

	s := d.decoder.Stats()
	switch row {
	case 0:
		state := d.decoder.State()
		color := tcell.ColorGreen
		if state == pocsag.Unsynchronized {
			color = tcell.ColorRed
		}
		return tview.NewTableCell(state.String()).SetTextColor(color)
	case 1:
		if d.snr == nil {
			return tview.NewTableCell("-")
		}
		return tview.NewTableCell(fmt.Sprintf("%.1f dB", d.snr()))
	case 2:
		return tview.NewTableCell(fmt.Sprintf("%d", s.Codewords.Load()))
	case 3:
		return tview.NewTableCell(fmt.Sprintf("%d", s.Corrected.Load()))
	case 4:
		return tview.NewTableCell(fmt.Sprintf("[red]%d", s.Uncorrectable.Load()))
	case 5:
		return tview.NewTableCell(fmt.Sprintf("[green]%d", s.Packets.Load()))
	case 6:
		return tview.NewTableCell(fmt.Sprintf("%d", s.SyncLosses.Load()))
	case 7:
		return tview.NewTableCell(fmt.Sprintf("%d", s.TornPackets.Load()))
	}
	return tview.NewTableCell("ERROR")
}
