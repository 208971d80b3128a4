package client

import (
	"fmt"
	"net/url"
	"strings"

	rerrors "github.com/alxayo/go-broadcaster/internal/errors"
)

// destination is the parsed form of an `rtmp://host[:port]/app` URL.
type destination struct {
	host  string // host:port, port defaulted to 1935
	app   string
	tcURL string // rtmp://host:port/app (port defaulted), as sent in the connect command object
}

// parseURL accepts `rtmp://host[:port]/app` and rejects everything else,
// including `rtmps://` (TLS transport is not implemented). The app name is
// the path with its leading slash stripped; an empty app is InvalidUrl.
func parseURL(raw string) (*destination, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, rerrors.NewStartupError(rerrors.InvalidUrl, "client.parse_url", err)
	}
	if u.Scheme != "rtmp" {
		return nil, rerrors.NewStartupError(rerrors.InvalidUrl, "client.parse_url",
			fmt.Errorf("unsupported scheme %q (only rtmp:// is implemented)", u.Scheme))
	}
	host := u.Host
	if host == "" {
		return nil, rerrors.NewStartupError(rerrors.InvalidUrl, "client.parse_url", fmt.Errorf("missing host"))
	}
	if !strings.Contains(host, ":") {
		host += ":1935"
	}
	app := strings.TrimPrefix(u.Path, "/")
	if app == "" {
		return nil, rerrors.NewStartupError(rerrors.InvalidUrl, "client.parse_url", fmt.Errorf("empty app in path %q", u.Path))
	}

	return &destination{host: host, app: app, tcURL: fmt.Sprintf("rtmp://%s/%s", host, app)}, nil
}
