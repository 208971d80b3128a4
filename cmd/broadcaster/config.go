package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/alxayo/go-broadcaster/internal/resources"
)

// version is injected at build time with -ldflags "-X main.version=...".
var version = "dev"

// runOptions holds the flag/config values that map onto resources.Config,
// plus the handful of process-level knobs (log level, config file) that
// aren't part of a stream.
type runOptions struct {
	rtmpURL   string
	streamKey string

	videoSource string
	videoWidth  int
	videoHeight int
	videoFPS    int
	videoKbps   uint32

	micDevice  string
	micVolume  float32
	sysVolume  float32
	audioKbps  uint32

	logLevel   string
	configFile string
}

func newRootCommand() *cobra.Command {
	opts := &runOptions{}
	v := viper.New()

	cmd := &cobra.Command{
		Use:           "broadcaster",
		Short:         "Capture screen/mic and publish an H.264/AAC stream over RTMP",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			bindViper(v, cmd)
			applyViper(v, opts)
			return runBroadcast(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.rtmpURL, "rtmp-url", "", "RTMP ingest URL, e.g. rtmp://live.example.com/app (required)")
	flags.StringVar(&opts.streamKey, "stream-key", "", "RTMP stream key (required)")
	flags.StringVar(&opts.videoSource, "video-source", "monitor:0", `capture source id ("monitor:<i64>" or "window:<i64>")`)
	flags.IntVar(&opts.videoWidth, "width", 1920, "video width in pixels")
	flags.IntVar(&opts.videoHeight, "height", 1080, "video height in pixels")
	flags.IntVar(&opts.videoFPS, "fps", 60, "video frame rate")
	flags.Uint32Var(&opts.videoKbps, "video-bitrate", 6000, "video bitrate in kbps")
	flags.StringVar(&opts.micDevice, "mic-device", "", "microphone device id (empty disables the microphone)")
	flags.Float32Var(&opts.micVolume, "mic-volume", 1.0, "initial microphone gain, 0.0-1.0")
	flags.Float32Var(&opts.sysVolume, "system-volume", 1.0, "initial system/loopback audio gain, 0.0-1.0")
	flags.Uint32Var(&opts.audioKbps, "audio-bitrate", 128, "audio bitrate in kbps")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level: debug|info|warn|error")
	flags.StringVar(&opts.configFile, "config", "", "optional config file (yaml/json/toml) providing any of the above as lower-kebab keys")

	return cmd
}

// bindViper wires every flag into v so config-file values are overridden by
// any flag the user actually set, and env vars (BROADCASTER_*) override the
// config file in turn.
func bindViper(v *viper.Viper, cmd *cobra.Command) {
	v.SetEnvPrefix("broadcaster")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if cfgFile, _ := cmd.Flags().GetString("config"); cfgFile != "" {
		v.SetConfigFile(cfgFile)
		_ = v.ReadInConfig() // a missing or unreadable config file is ignored; flags and env still apply
	}

	_ = v.BindPFlags(cmd.Flags())
}

// applyViper copies viper's resolved values back over opts so config-file/env
// values that were never touched on the command line still take effect.
func applyViper(v *viper.Viper, opts *runOptions) {
	opts.rtmpURL = v.GetString("rtmp-url")
	opts.streamKey = v.GetString("stream-key")
	opts.videoSource = v.GetString("video-source")
	opts.videoWidth = v.GetInt("width")
	opts.videoHeight = v.GetInt("height")
	opts.videoFPS = v.GetInt("fps")
	opts.videoKbps = uint32(v.GetUint("video-bitrate"))
	opts.micDevice = v.GetString("mic-device")
	opts.micVolume = float32(v.GetFloat64("mic-volume"))
	opts.sysVolume = float32(v.GetFloat64("system-volume"))
	opts.audioKbps = uint32(v.GetUint("audio-bitrate"))
	opts.logLevel = v.GetString("log-level")
}

func (o *runOptions) validate() error {
	if o.rtmpURL == "" {
		return fmt.Errorf("--rtmp-url is required")
	}
	if o.streamKey == "" {
		return fmt.Errorf("--stream-key is required")
	}
	u, err := url.Parse(o.rtmpURL)
	if err != nil || u.Scheme != "rtmp" || u.Host == "" {
		return fmt.Errorf("--rtmp-url must be a valid rtmp://host[:port]/app URL, got %q", o.rtmpURL)
	}
	switch o.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid --log-level %q", o.logLevel)
	}
	if o.micVolume < 0 || o.micVolume > 1 {
		return fmt.Errorf("--mic-volume must be between 0.0 and 1.0")
	}
	if o.sysVolume < 0 || o.sysVolume > 1 {
		return fmt.Errorf("--system-volume must be between 0.0 and 1.0")
	}
	return nil
}

func (o *runOptions) streamConfig() resources.Config {
	return resources.Config{
		VideoSourceID:    o.videoSource,
		VideoWidth:       o.videoWidth,
		VideoHeight:      o.videoHeight,
		VideoFPS:         o.videoFPS,
		VideoBitrateKbps: o.videoKbps,

		MicDeviceID:  o.micDevice,
		MicVolume:    o.micVolume,
		SystemVolume: o.sysVolume,

		AudioBitrateKbps: o.audioKbps,

		RTMPURL:   o.rtmpURL,
		StreamKey: o.streamKey,
	}
}
