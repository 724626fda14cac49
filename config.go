package proxyscan

import (
	"errors"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"
)

// DefaultEnvFile is the local definition file read before the process environment.
const DefaultEnvFile = ".env"

// Role is the declared identity of a node. The loader does not enforce it.
type Role string

const (
	RoleMaster Role = "master"
	RoleWorker Role = "worker"
)

// Flag is a boolean that is true only for the word "true" in any letter case.
type Flag bool

// UnmarshalText implements encoding.TextUnmarshaler. It never fails.
func (f *Flag) UnmarshalText(text []byte) error {
	*f = Flag(strings.EqualFold(string(text), "true"))
	return nil
}

// Config represents the settings of a scanning node.
// A loaded Config is never modified; pass it by value.
type Config struct {
	// Debug enables verbose logging
	Debug Flag `env:"DEBUG" envDefault:"false"`
	// SecretKey is the shared secret of the node, empty if unset
	SecretKey string `env:"SECRET_KEY"`
	// DatabaseURL is the database connection string, opaque to the loader
	DatabaseURL string `env:"DATABASE_URL"`
	// CacheURL is the cache connection string, opaque to the loader
	CacheURL string `env:"REDIS_URL"`
	// NodeRole is either master or worker
	NodeRole Role `env:"NODE_ROLE" envDefault:"worker"`
	// WorkerID identifies the node among its peers
	WorkerID string `env:"WORKER_ID" envDefault:"1"`
	// MasterURL is the host of the master node
	MasterURL string `env:"MASTER_URL" envDefault:"main.curl.im"`
	// ScanBatchSize is the number of proxies handled per scan batch
	ScanBatchSize int `env:"SCAN_BATCH_SIZE" envDefault:"100"`
	// ProxyCheckTimeoutSeconds is the proxy check timeout in seconds
	ProxyCheckTimeoutSeconds int `env:"PROXY_CHECK_TIMEOUT" envDefault:"10"`
}

// ProxyCheckTimeout returns the proxy check timeout as a duration.
func (c Config) ProxyCheckTimeout() time.Duration {
	return time.Duration(c.ProxyCheckTimeoutSeconds) * time.Second
}

func (c Config) IsMaster() bool { return c.NodeRole == RoleMaster }
func (c Config) HasSecretKey() bool { return c.SecretKey != "" }
func (c Config) HasDatabase() bool { return c.DatabaseURL != "" }
func (c Config) HasCache() bool { return c.CacheURL != "" }

// Option configures a single Load call.
type Option func(*loader)

// WithEnvFile reads the local definition file from path instead of DefaultEnvFile.
func WithEnvFile(path string) Option {
	return func(l *loader) {
		l.envFile = path
	}
}

// WithoutEnvFile skips the local definition file layer.
func WithoutEnvFile() Option {
	return func(l *loader) {
		l.envFile = ""
	}
}

// WithEnviron replaces the process environment layer with vars.
func WithEnviron(vars map[string]string) Option {
	return func(l *loader) {
		l.environ = vars
	}
}

// WithLogger sets the logger used to report a skipped definition file.
func WithLogger(log logrus.FieldLogger) Option {
	return func(l *loader) {
		if log != nil {
			l.log = log
		}
	}
}

type loader struct {
	envFile string
	environ map[string]string
	log     logrus.FieldLogger
}

// Load builds a Config from the local definition file and the process environment.
// The process environment takes precedence over the file. Defaults apply only to
// unset variables: a string variable set to "" stays empty. The only possible
// error is a *ConfigParseError for an integer variable that is not a base-10 number.
func Load(opts ...Option) (Config, error) {
	l := &loader{
		envFile: DefaultEnvFile,
		log:     logrus.StandardLogger(),
	}
	for _, opt := range opts {
		opt(l)
	}

	return decode(l.merge())
}

// MustLoad is like Load but panics if the configuration cannot be parsed.
func MustLoad(opts ...Option) Config {
	cfg, err := Load(opts...)
	if err != nil {
		panic(err)
	}
	return cfg
}

// merge returns the file layer overlaid by the environment layer.
func (l *loader) merge() map[string]string {
	vars := readEnvFile(l.envFile, l.log)

	environ := l.environ
	if environ == nil {
		environ = processEnviron()
	}
	for k, v := range environ {
		vars[k] = v
	}
	return vars
}

func processEnviron() map[string]string {
	vars := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			vars[k] = v
		}
	}
	return vars
}

// parsers replaces the decoder's 32-bit int parser; surrounding blanks are ignored.
var parsers = map[reflect.Type]env.ParserFunc{
	reflect.TypeOf(0): func(v string) (interface{}, error) {
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 0)
		return int(i), err
	},
}

// decode fills a Config from vars. The decoder applies envDefault to empty
// values too, so present-but-empty fields are fixed up afterwards.
func decode(vars map[string]string) (Config, error) {
	var cfg Config

	failed := make(map[string]*ConfigParseError)
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: vars, FuncMap: parsers}); err != nil {
		for _, e := range fieldErrors(err) {
			pe := newParseError(e, vars)
			failed[pe.Var] = pe
		}
	}

	var errs []*ConfigParseError
	v := reflect.ValueOf(&cfg).Elem()
	for i := 0; i < v.NumField(); i++ {
		name := envName(v.Type().Field(i).Name)
		if pe, ok := failed[name]; ok {
			errs = append(errs, pe)
			delete(failed, name)
			continue
		}
		if value, ok := vars[name]; !ok || value != "" {
			continue
		}

		switch f := v.Field(i); f.Kind() {
		case reflect.String:
			f.SetString("")
		case reflect.Int:
			_, err := strconv.ParseInt("", 10, 0)
			errs = append(errs, &ConfigParseError{Var: name, Err: err})
		}
	}
	for _, pe := range failed {
		errs = append(errs, pe)
	}

	if len(errs) == 0 {
		return cfg, nil
	}
	return Config{}, joinParseErrors(errs)
}

// joinParseErrors reports the first error and joins the rest into its cause.
func joinParseErrors(errs []*ConfigParseError) error {
	first := errs[0]
	if len(errs) == 1 {
		return first
	}

	joined := []error{first.Err}
	for _, pe := range errs[1:] {
		joined = append(joined, pe)
	}
	first.Err = errors.Join(joined...)
	return first
}

func fieldErrors(err error) []error {
	var agg env.AggregateError
	if errors.As(err, &agg) {
		return agg.Errors
	}
	return []error{err}
}

func newParseError(err error, vars map[string]string) *ConfigParseError {
	field, cause := fieldError(err)
	name := envName(field)
	return &ConfigParseError{Var: name, Value: vars[name], Err: cause}
}

func fieldError(err error) (string, error) {
	var pe env.ParseError
	if errors.As(err, &pe) {
		return pe.Name, pe.Err
	}
	var ppe *env.ParseError
	if errors.As(err, &ppe) {
		return ppe.Name, ppe.Err
	}
	return "", err
}

// envName maps a Config field name to its variable name.
func envName(field string) string {
	sf, ok := reflect.TypeOf(Config{}).FieldByName(field)
	if !ok {
		return field
	}
	name, _, _ := strings.Cut(sf.Tag.Get("env"), ",")
	return name
}
