package main

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/jrwynneiii/rxcap/config"
	"github.com/jrwynneiii/rxcap/demod"
	"github.com/jrwynneiii/rxcap/metrics"
	"github.com/jrwynneiii/rxcap/oversample"
	"github.com/jrwynneiii/rxcap/pager"
	"github.com/jrwynneiii/rxcap/pocsag"
	"github.com/jrwynneiii/rxcap/radio"
	"github.com/jrwynneiii/rxcap/radio/replay"
	"github.com/jrwynneiii/rxcap/record"
	"github.com/jrwynneiii/rxcap/tui"
	"github.com/jrwynneiii/rxcap/writer"
)

const chanBuffer = 16

// source is a live radio or a replayed IQ file.
type source struct {
	samples   chan []complex64
	tuner     demod.Tuner
	frequency func() uint64
	rate      float64
	run       func(ctx context.Context) error
}

func openSource(conf config.Config, flags sourceFlags, frequency uint64) (*source, error) {
	if flags.File != "" {
		format, ok := replay.FormatForPath(flags.File)
		if flags.Format != "" {
			f, err := replay.ParseFormat(flags.Format)
			if err != nil {
				return nil, err
			}
			format = f
		} else if !ok {
			return nil, fmt.Errorf("cannot tell the IQ format of %s, use --format", flags.File)
		}
		rate := flags.Rate
		if rate == 0 {
			rate = conf.Radio.SampleRate
		}
		f, err := replay.Open(flags.File, replay.Options{
			Format:     format,
			ChunkSize:  int(conf.Radio.ChunkSize),
			SampleRate: rate,
			Frequency:  frequency,
			Paced:      flags.Paced,
			Loop:       flags.Loop,
		}, chanBuffer)
		if err != nil {
			return nil, err
		}
		log.Infof("[source] Replaying %s as %v IQ at %.0f S/s", flags.File, format, rate)
		return &source{samples: f.SamplesOutput, tuner: f, frequency: f.Frequency, rate: rate, run: f.Start}, nil
	}

	r := radio.New(conf.Radio, chanBuffer)
	if err := r.SetFrequency(frequency); err != nil {
		return nil, err
	}
	return &source{
		samples:   r.SamplesOutput,
		tuner:     r,
		frequency: r.Frequency,
		rate:      conf.Radio.SampleRate,
		run: func(ctx context.Context) error {
			if err := r.Connect(); err != nil {
				close(r.SamplesOutput)
				return err
			}
			r.Start(ctx)
			return nil
		},
	}, nil
}

func startMetrics(ctx context.Context, conf config.MetricsConf, m *metrics.Metrics) {
	if !conf.Enabled {
		return
	}
	go func() {
		if err := m.Serve(ctx, conf.Listen); err != nil {
			log.Errorf("[metrics] %v", err)
		}
	}()
}

func logTelemetry(t record.Telemetry) {
	if t.State != record.Recording {
		log.Debugf("[record] %v, %s available", t.State, t.Available)
		return
	}
	log.Infof("[record] %s: %d blocks written, dropped %s, %s available", t.Filename, t.Written, t.DroppedText(), t.Available)
	if t.Err != nil {
		log.Errorf("[record] %v", t.Err)
	}
}

func runRecord(ctx context.Context, conf config.Config) error {
	opts := cli.Record
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	ft, err := writer.ParseFileType(conf.Record.FileType)
	if err != nil {
		return err
	}
	src, err := openSource(conf, opts.Source, uint64(conf.Radio.Frequency))
	if err != nil {
		return err
	}

	m := metrics.New()
	var demodulator *demod.Demodulator
	ctrl, err := record.New(record.Options{
		Folder:          conf.Record.Folder,
		FilenameStem:    conf.Record.FilenameStem,
		FileType:        ft,
		WriteSize:       conf.Record.WriteSize,
		BufferCount:     conf.Record.BufferCount,
		TimestampFormat: conf.Record.TimestampFormat,
		Limits: oversample.Limits{
			MinFrontEndRate: conf.Record.MinFrontEndRate,
			Min:             oversample.Rate(conf.Record.MinOversample),
			Max:             oversample.Rate(conf.Record.MaxOversample),
			SafeCaptureRate: conf.Record.SafeCaptureLimit,
		},
		Baseband: record.BasebandFunc(func(rate uint32, decimation oversample.Rate) {
			demodulator.SetSampleRate(rate, decimation)
		}),
		Frequency: src.frequency,
		Observer:  m,
		OnError: func(err error) {
			log.Errorf("[record] %v", err)
		},
	})
	if err != nil {
		return err
	}
	defer ctrl.Close()

	demodulator = demod.New(conf.Demod, ft, src.tuner, ctrl, chanBuffer)
	demodulator.SampleInput = src.samples
	ctrl.SetFilenameDateFrequency(conf.Record.DateFrequency)

	rate := opts.SampleRate
	if rate == 0 {
		rate = conf.Record.SampleRate
	}
	effective := ctrl.SetSampleRate(rate)
	log.Infof("[record] %d S/s %v, front end %d S/s", rate, ft, effective)

	startMetrics(ctx, conf.Metrics, m)

	sourceErr := make(chan error, 1)
	go func() {
		sourceErr <- src.run(ctx)
	}()
	demodDone := make(chan struct{})
	go func() {
		defer close(demodDone)
		demodulator.Start()
	}()
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case comp := <-ctrl.Completions():
				ctrl.HandleCompletion(comp)
			}
		}
	}()

	if opts.Now {
		if err := ctrl.Start(); err != nil {
			return err
		}
	}
	if opts.Duration > 0 {
		timer := time.AfterFunc(opts.Duration, func() {
			log.Infof("[record] %v elapsed", opts.Duration)
			ctrl.Stop()
			if opts.Headless {
				cancel()
			}
		})
		defer timer.Stop()
	}

	if !opts.Headless {
		err := tui.StartRecordUI(ctrl, demodulator, conf.Record.DateFrequency, conf.Tui)
		cancel()
		return err
	}

	interval := time.Duration(conf.Tui.RefreshMs) * time.Millisecond
	if interval <= 0 {
		interval = time.Second
	}
	tick := ctrl.OnTick(interval, logTelemetry)
	defer tick.Close()

	select {
	case <-ctx.Done():
		return nil
	case <-demodDone:
		// The source ran dry; whatever was produced is already queued.
		ctrl.Stop()
		return <-sourceErr
	}
}

func runPocsag(ctx context.Context, conf config.Config) error {
	opts := cli.Pocsag
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := metrics.New()
	stream := pocsag.NewStream(conf.Pocsag, m)
	frequency := func() uint64 { return uint64(conf.Pocsag.InitialFrequency) }

	var snr func() float64
	if opts.Bits != "" {
		go func() {
			if err := replay.SendBitFile(ctx, opts.Bits, stream.BitsInput); err != nil {
				log.Errorf("[pocsag] %v", err)
			}
		}()
	} else {
		src, err := openSource(conf, opts.Source, uint64(conf.Pocsag.InitialFrequency))
		if err != nil {
			return err
		}
		frequency = src.frequency

		fsk := demod.NewFSK(conf.Pocsag, conf.Demod, src.rate, stream.BitsInput, chanBuffer)
		fsk.SampleInput = src.samples
		snr = fsk.SNR
		go func() {
			if err := src.run(ctx); err != nil {
				log.Errorf("[source] %v", err)
			}
		}()
		go fsk.Start()
	}
	go stream.Start(ctx)

	filter := pager.NewFilter(conf.Pager)
	var pagerLog *pager.Logger
	if conf.Pager.EnableLogging {
		l, err := pager.OpenLogger(conf.Pager, frequency)
		if err != nil {
			return err
		}
		defer l.Close()
		pagerLog = l
	}
	var publisher *pager.Publisher
	if conf.MQTT.Enabled {
		p, err := pager.NewPublisher(conf.MQTT, frequency)
		if err != nil {
			return err
		}
		defer p.Close()
		publisher = p
	}
	startMetrics(ctx, conf.Metrics, m)

	packets := tui.NewPacketTableData(conf.Tui.MaxPackets)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for p := range stream.PacketsOutput {
			if !filter.Allow(p) {
				continue
			}
			if pagerLog != nil {
				if err := pagerLog.Log(p); err != nil {
					log.Errorf("[pager] %v", err)
				}
			}
			if publisher != nil {
				if err := publisher.Publish(p); err != nil {
					log.Errorf("[pager] %v", err)
				}
			}
			if opts.Headless {
				log.Info(pager.DecodedLine(p.Timestamp.Format(time.DateTime), p))
			}
			packets.Add(p)
		}
	}()

	if !opts.Headless {
		err := tui.StartPagerUI(packets, stream, snr, filter, conf.Tui)
		cancel()
		<-done
		return err
	}

	<-done
	s := stream.Stats()
	log.Infof("[pocsag] %d codewords, %d corrected, %d uncorrectable, %d packets, %d sync losses",
		s.Codewords.Load(), s.Corrected.Load(), s.Uncorrectable.Load(), s.Packets.Load(), s.SyncLosses.Load())
	return nil
}
