package config

import (
	"github.com/knadh/koanf/v2"
)

type RadioConf struct {
	Driver      string  `koanf:"driver"`
	Address     string  `koanf:"address"`
	DeviceIndex int     `koanf:"device_index"`
	Gain        int     `koanf:"gain"`
	Frequency   float64 `koanf:"frequency"`
	SampleRate  float64 `koanf:"sample_rate"`
	SampleType  string  `koanf:"sample_type"`
	ChunkSize   uint    `koanf:"chunk_size"`
}

type RecordConf struct {
	Folder           string `koanf:"folder"`
	FilenameStem     string `koanf:"filename_stem"`
	FileType         string `koanf:"file_type"`
	SampleRate       uint32 `koanf:"sample_rate"`
	WriteSize        int    `koanf:"write_size"`
	BufferCount      int    `koanf:"buffer_count"`
	DateFrequency    bool   `koanf:"filename_date_frequency"`
	TimestampFormat  string `koanf:"timestamp_format"`
	MinFrontEndRate  uint32 `koanf:"min_front_end_rate"`
	MinOversample    int    `koanf:"min_oversample"`
	MaxOversample    int    `koanf:"max_oversample"`
	SafeCaptureLimit uint32 `koanf:"safe_capture_limit"`
}

type DemodConf struct {
	AudioDecimation        int     `koanf:"audio_decimation"`
	LowPassTransitionWidth float64 `koanf:"lowpass_transition_width"`
	AudioGain              float64 `koanf:"audio_gain"`
}

type PocsagConf struct {
	Baud                 int    `koanf:"baud"`
	SampleRate           int    `koanf:"sample_rate"`
	SyncMaxBitErrors     int    `koanf:"sync_max_bit_errors"`
	MaxConsecutiveErrors int    `koanf:"max_consecutive_errors"`
	MaxMessageCodewords  int    `koanf:"max_message_codewords"`
	PacketBufferSize     int    `koanf:"packet_buffer_size"`
	BitBufferSize        int    `koanf:"bit_buffer_size"`
	InitialFrequency     uint32 `koanf:"initial_frequency"`
}

type PagerConf struct {
	EnableLogging   bool   `koanf:"enable_logging"`
	EnableRawLog    bool   `koanf:"enable_raw_log"`
	EnableIgnore    bool   `koanf:"enable_ignore"`
	AddressToIgnore uint32 `koanf:"address_to_ignore"`
	HideBadData     bool   `koanf:"hide_bad_data"`
	HideAddrOnly    bool   `koanf:"hide_addr_only"`
	LogFile         string `koanf:"log_file"`
	TimestampFormat string `koanf:"timestamp_format"`
}

type MQTTConf struct {
	Enabled  bool   `koanf:"enabled"`
	Broker   string `koanf:"broker"`
	Topic    string `koanf:"topic"`
	Username string `koanf:"username"`
	Password string `koanf:"password"`
	QoS      int    `koanf:"qos"`
}

type MetricsConf struct {
	Enabled bool   `koanf:"enabled"`
	Listen  string `koanf:"listen"`
}

type TuiConf struct {
	RefreshMs       int     `koanf:"refresh_ms"`
	DropWarnPct     float64 `koanf:"drop_threshold_warn_pct"`
	DropCritPct     float64 `koanf:"drop_threshold_crit_pct"`
	EnableLogOutput bool    `koanf:"enable_log_output"`
	MaxPackets      int     `koanf:"max_packets"`
	EnableSpectrum  bool    `koanf:"enable_spectrum"`
	SpectrumBins    int     `koanf:"spectrum_bins"`
}

type Config struct {
	Radio   RadioConf   `koanf:"radio"`
	Record  RecordConf  `koanf:"record"`
	Demod   DemodConf   `koanf:"demod"`
	Pocsag  PocsagConf  `koanf:"pocsag"`
	Pager   PagerConf   `koanf:"pager"`
	MQTT    MQTTConf    `koanf:"mqtt"`
	Metrics MetricsConf `koanf:"metrics"`
	Tui     TuiConf     `koanf:"tui"`
}

// Defaults returns the settings used for any key the config file leaves out.
func Defaults() Config {
	return Config{
		Radio: RadioConf{
			Driver:     "rtlsdr",
			Frequency:  466175000,
			SampleRate: 2400000,
			SampleType: "complex64",
			ChunkSize:  16384,
		},
		Record: RecordConf{
			Folder:           "CAPTURES",
			FilenameStem:     "BBD_????",
			FileType:         "c16",
			SampleRate:       500000,
			WriteSize:        16384,
			BufferCount:      3,
			TimestampFormat:  "%Y%m%dT%H%M%S",
			MinFrontEndRate:  1600000,
			MinOversample:    8,
			MaxOversample:    64,
			SafeCaptureLimit: 8000000,
		},
		Demod: DemodConf{
			AudioDecimation:        50,
			LowPassTransitionWidth: 5000,
			AudioGain:              0.5,
		},
		Pocsag: PocsagConf{
			Baud:                 1200,
			SampleRate:           24000,
			SyncMaxBitErrors:     1,
			MaxConsecutiveErrors: 8,
			MaxMessageCodewords:  128,
			PacketBufferSize:     64,
			BitBufferSize:        1024,
			InitialFrequency:     466175000,
		},
		Pager: PagerConf{
			LogFile:         "LOGS/POCSAG.TXT",
			TimestampFormat: "%Y-%m-%d %H:%M:%S",
		},
		MQTT: MQTTConf{
			Topic: "rxcap/pocsag",
		},
		Metrics: MetricsConf{
			Listen: ":9108",
		},
		Tui: TuiConf{
			RefreshMs:       500,
			DropWarnPct:     5,
			DropCritPct:     20,
			EnableLogOutput: true,
			MaxPackets:      200,
			SpectrumBins:    128,
		},
	}
}

// Load overlays whatever the koanf instance holds on top of Defaults.
func Load(k *koanf.Koanf) (Config, error) {
	conf := Defaults()
	if err := k.Unmarshal("", &conf); err != nil {
		return conf, err
	}
	return conf, nil
}
