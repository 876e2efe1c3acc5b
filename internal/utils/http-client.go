package utils

import (
	"crypto/tls"
	"net"
	"net/http"
	"net/url"
	"syscall"
	"time"

	cleanhttp "github.com/hashicorp/go-cleanhttp"
)

type HTTPClientConfig struct {
	Timeout        time.Duration // dial, TLS handshake and response header timeout; never bounds the body
	KATimeout      time.Duration
	ProxyURL       string
	ProxyUsername  string
	ProxyPassword  string
	UserAgent      string
	Headers        map[string]string
	Username       string // basic auth for the download itself
	Password       string
	Insecure       bool
	HighThreadMode bool // advanced socket options for high concurrency
}

// HTTPDoer is the transport handle shared by the probe and every segment worker.
// Implementations must be safe for concurrent use.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

type RgetHTTPClient struct {
	client *http.Client
	config HTTPClientConfig
}

func NewRgetHTTPClient(cfg HTTPClientConfig) *RgetHTTPClient {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.KATimeout == 0 {
		cfg.KATimeout = 90 * time.Second
	}
	transport := cleanhttp.DefaultPooledTransport()
	transport.IdleConnTimeout = cfg.KATimeout
	transport.MaxIdleConns = 100
	transport.MaxIdleConnsPerHost = 100
	transport.DisableCompression = true // raw bytes, Content-Length must match the range
	transport.TLSHandshakeTimeout = cfg.Timeout
	transport.ResponseHeaderTimeout = cfg.Timeout
	dialer := &net.Dialer{
		Timeout:   cfg.Timeout,
		KeepAlive: 30 * time.Second,
	}
	if cfg.HighThreadMode {
		dialer.Control = func(network, address string, c syscall.RawConn) error {
			return c.Control(func(fd uintptr) {
				setSocketOptions(fd)
			})
		}
	}
	transport.DialContext = dialer.DialContext
	if cfg.Insecure {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}
	if cfg.ProxyURL != "" {
		proxyURL, err := url.Parse(cfg.ProxyURL)
		if err == nil {
			if cfg.ProxyUsername != "" {
				if cfg.ProxyPassword != "" {
					proxyURL.User = url.UserPassword(cfg.ProxyUsername, cfg.ProxyPassword)
				} else {
					proxyURL.User = url.User(cfg.ProxyUsername)
				}
			}
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	return &RgetHTTPClient{
		client: &http.Client{Transport: transport},
		config: cfg,
	}
}

// Do stamps the configured identity onto req; the config is never mutated after
// construction so concurrent calls are safe.
func (d *RgetHTTPClient) Do(req *http.Request) (*http.Response, error) {
	if d.config.UserAgent != "" {
		req.Header.Set("User-Agent", d.config.UserAgent)
	} else {
		req.Header.Set("User-Agent", ToolUserAgent)
	}
	for k, v := range d.config.Headers {
		// byte ranges belong to the segment planner
		if http.CanonicalHeaderKey(k) == "Range" {
			continue
		}
		req.Header.Set(k, v)
	}
	if d.config.Username != "" {
		req.SetBasicAuth(d.config.Username, d.config.Password)
	}
	return d.client.Do(req)
}
