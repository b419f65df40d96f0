package config

import (
	"flag"
	"time"
)

// Flags are the command line overrides. Only flags the user actually set are
// applied, so file values survive unset flags.
type Flags struct {
	fs *flag.FlagSet

	ConfigDir      string
	Server         string
	DisableSSL     bool
	RemoteOfferer  bool
	Identity       string
	ConnectTimeout time.Duration
	StatusListen   string
	LogLevel       string
}

func RegisterFlags(fs *flag.FlagSet) *Flags {
	f := &Flags{fs: fs}
	fs.StringVar(&f.ConfigDir, "config", "", "directory with signalling/webrtc/log/status .yaml or .json files")
	fs.StringVar(&f.Server, "server", "", "signalling server url, e.g. https://relay.example.org:8000")
	fs.BoolVar(&f.DisableSSL, "disable-ssl", false, "connect with ws:// even for https servers")
	fs.BoolVar(&f.RemoteOfferer, "remote-offerer", false, "expect the camera peer to send the offer (unsupported)")
	fs.StringVar(&f.Identity, "identity", "", "identity registered with the server (default viewer-<uuid>)")
	fs.DurationVar(&f.ConnectTimeout, "connect-timeout", 0, "give up connecting after this long (0 waits forever)")
	fs.StringVar(&f.StatusListen, "status-listen", "", "address for the status http server, e.g. 127.0.0.1:9100")
	fs.StringVar(&f.LogLevel, "log-level", "", "debug, info, warn or error")
	return f
}

// Apply overlays the flags that were set on the command line.
func (f *Flags) Apply(cfg *AppConfig) {
	f.fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "server":
			cfg.Signalling.Server = f.Server
		case "disable-ssl":
			cfg.Signalling.DisableSSL = f.DisableSSL
		case "remote-offerer":
			cfg.Signalling.RemoteOfferer = f.RemoteOfferer
		case "identity":
			cfg.Signalling.Identity = f.Identity
		case "connect-timeout":
			cfg.Signalling.ConnectTimeout = f.ConnectTimeout
		case "status-listen":
			cfg.Status.Listen = f.StatusListen
		case "log-level":
			cfg.Log.Level = f.LogLevel
		}
	})
}
