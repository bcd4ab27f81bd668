package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/pprof"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"
	"github.com/charmbracelet/log"
	"github.com/jrwynneiii/rxcap/config"
	"github.com/jrwynneiii/rxcap/radio"

	"github.com/knadh/koanf/parsers/hcl"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

type sourceFlags struct {
	File   string  `help:"Replay an IQ file instead of opening the radio" type:"existingfile"`
	Format string  `help:"IQ format of --file (cu8, cs8, cs16, cf32), guessed from the extension when empty"`
	Rate   float64 `help:"Sample rate of --file, defaults to radio.sample_rate"`
	Paced  bool    `help:"Replay --file in real time" default:"true" negatable:""`
	Loop   bool    `help:"Replay --file forever"`
}

var cli struct {
	Verbose bool   `help:"Prints debug output by default"`
	Profile bool   `help:"Output a pprof profile"`
	Config  string `help:"Config file, searched for in the usual places when empty" type:"existingfile"`
	Probe   struct {
	} `cmd:"" help:"List the available radios and SoapySDR configuration"`
	Record struct {
		Source     sourceFlags   `embed:""`
		SampleRate uint32        `help:"Capture sample rate, defaults to record.sample_rate"`
		Now        bool          `help:"Start recording as soon as the stream is up"`
		Duration   time.Duration `help:"Stop recording after this long"`
		Headless   bool          `help:"Log telemetry instead of starting the TUI"`
	} `cmd:"" help:"Capture baseband to disk"`
	Pocsag struct {
		Source   sourceFlags `embed:""`
		Bits     string      `help:"Decode a text file of 0 and 1 characters instead of a sample source" type:"existingfile"`
		Headless bool        `help:"Log pages instead of starting the TUI"`
	} `cmd:"" help:"Decode POCSAG pages"`
}

var configFile = koanf.New(".")

func getConfigPath() string {
	paths := []string{"/etc/rxcap/config.hcl", "./config.hcl"}
	if home, err := os.UserHomeDir(); err == nil {
		paths = []string{"/etc/rxcap/config.hcl", filepath.Join(home, ".config", "rxcap", "config.hcl"), "./config.hcl"}
	}
	for _, path := range paths {
		if _, err := os.Stat(path); !errors.Is(err, os.ErrNotExist) {
			log.Infof("Found config file: %s", path)
			return path
		}
	}
	log.Info("Config file not found!")
	return ""
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		path = getConfigPath()
	}
	if err := configFile.Load(file.Provider(path), hcl.Parser(true)); err != nil {
		log.Errorf("Could not read config file: %v", err)
		log.Error("Attempting to use environment variables")
		configFile.Load(env.Provider("", env.Opt{
			Prefix: "RXCAP_",
			TransformFunc: func(k, v string) (string, any) {
				key := strings.ToLower(strings.TrimPrefix(k, "RXCAP_"))
				k = strings.Replace(key, "_", ".", 1)
				log.Debugf("Found config env var: %s=%v", k, v)
				return k, v
			},
		}), nil)
	}
	return config.Load(configFile)
}

func main() {
	flags := kong.Parse(&cli,
		kong.Name("rxcap"),
		kong.Description("SDR baseband recorder and POCSAG pager decoder"),
	)
	if cli.Verbose {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("Starting rxcap")

	if cli.Profile {
		prof, err := os.Create("./cpu.pprof")
		if err != nil {
			log.Fatalf("Could not create profile: %v", err)
		}
		pprof.StartCPUProfile(prof)
		defer pprof.StopCPUProfile()
	}

	conf, err := loadConfig(cli.Config)
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch flags.Command() {
	case "probe":
		radio.Probe()
	case "record":
		err = runRecord(ctx, conf)
	case "pocsag":
		err = runPocsag(ctx, conf)
	default:
		err = fmt.Errorf("command not recognized: %s", flags.Command())
	}
	if err != nil {
		log.Error(err)
		stop()
		pprof.StopCPUProfile()
		os.Exit(1)
	}
}
