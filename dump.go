package proxyscan

import (
	"encoding/json"
	"io"
	"net/url"
	"strings"

	"gopkg.in/yaml.v3"
)

const mask = "xxxxx"

// view is the printable form of Config keyed by variable names
type view struct {
	Debug             bool   `json:"DEBUG" yaml:"DEBUG"`
	SecretKey         string `json:"SECRET_KEY" yaml:"SECRET_KEY"`
	DatabaseURL       string `json:"DATABASE_URL" yaml:"DATABASE_URL"`
	CacheURL          string `json:"REDIS_URL" yaml:"REDIS_URL"`
	NodeRole          string `json:"NODE_ROLE" yaml:"NODE_ROLE"`
	WorkerID          string `json:"WORKER_ID" yaml:"WORKER_ID"`
	MasterURL         string `json:"MASTER_URL" yaml:"MASTER_URL"`
	ScanBatchSize     int    `json:"SCAN_BATCH_SIZE" yaml:"SCAN_BATCH_SIZE"`
	ProxyCheckTimeout int    `json:"PROXY_CHECK_TIMEOUT" yaml:"PROXY_CHECK_TIMEOUT"`
}

// Redacted returns a copy of c that is safe to print: the secret key and
// any password inside the connection strings are masked.
func (c Config) Redacted() Config {
	if c.SecretKey != "" {
		c.SecretKey = mask
	}
	c.DatabaseURL = redactURL(c.DatabaseURL)
	c.CacheURL = redactURL(c.CacheURL)
	return c
}

// MarshalJSON encodes the redacted configuration.
func (c Config) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.view())
}

// WriteYAML writes the redacted configuration to w.
func (c Config) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(c.view()); err != nil {
		return err
	}
	return enc.Close()
}

func (c Config) view() view {
	r := c.Redacted()
	return view{
		Debug:             bool(r.Debug),
		SecretKey:         r.SecretKey,
		DatabaseURL:       r.DatabaseURL,
		CacheURL:          r.CacheURL,
		NodeRole:          string(r.NodeRole),
		WorkerID:          r.WorkerID,
		MasterURL:         r.MasterURL,
		ScanBatchSize:     r.ScanBatchSize,
		ProxyCheckTimeout: r.ProxyCheckTimeoutSeconds,
	}
}

// redactURL masks the password of a URL or of a user:pass@addr string.
// Strings that url.Parse rejects are masked by hand.
func redactURL(s string) string {
	if s == "" {
		return s
	}

	u, err := url.Parse(s)
	if err == nil && u.User != nil {
		if _, ok := u.User.Password(); ok {
			return u.Redacted()
		}
		return s
	}

	prefix, rest := "", s
	if i := strings.Index(s, "://"); i >= 0 {
		if err == nil {
			return s
		}
		prefix, rest = s[:i+3], s[i+3:]
	}

	// user:pass@tcp(host:3306)/db
	at := strings.LastIndex(rest, "@")
	if at < 0 {
		return s
	}
	if colon := strings.Index(rest[:at], ":"); colon >= 0 {
		return prefix + rest[:colon+1] + mask + rest[at:]
	}
	return s
}
