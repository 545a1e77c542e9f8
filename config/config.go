package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// default sizes and paces for the pipeline
const (
	DefaultIdealBundleSize     = int64(100 * 1024 * 1024 * 1024) // 100 GiB
	DefaultFileCatalogPageSize = 1000
	DefaultWorkRetries         = 3
	DefaultWorkTimeoutSeconds  = 30
	DefaultWorkSleepSeconds    = 300
	DefaultHeartbeatSeconds    = 60
	DefaultLeaseStaleSeconds   = 1800
)

// Config holds the configuration for a single pipeline component. Every
// component reads the same set of keys; each component validates the subset
// it actually requires when it is constructed.
type Config struct {
	// type and name of the component ("picker", "node16-picker", ...)
	ComponentType string `yaml:"component_type"`
	ComponentName string `yaml:"component_name"`

	// site selectors used when popping work from the LTA DB
	SourceSite string `yaml:"source_site"`
	DestSite   string `yaml:"dest_site"`

	// status transition overrides (components have sensible defaults)
	InputStatus  string `yaml:"input_status"`
	OutputStatus string `yaml:"output_status"`

	// LTA DB access
	LtaRestURL       string `yaml:"lta_rest_url"`
	LtaAuthOpenIDURL string `yaml:"lta_auth_openid_url"`
	ClientID         string `yaml:"client_id"`
	ClientSecret     string `yaml:"client_secret"`

	// File Catalog access
	FileCatalogRestURL      string `yaml:"file_catalog_rest_url"`
	FileCatalogClientID     string `yaml:"file_catalog_client_id"`
	FileCatalogClientSecret string `yaml:"file_catalog_client_secret"`
	FileCatalogPageSize     int    `yaml:"file_catalog_page_size"`

	// retry / pace / loop exit policy
	WorkRetries              int  `yaml:"work_retries"`
	WorkTimeoutSeconds       int  `yaml:"work_timeout_seconds"`
	WorkSleepDurationSeconds int  `yaml:"work_sleep_duration_seconds"`
	HeartbeatSleepSeconds    int  `yaml:"heartbeat_sleep_duration_seconds"`
	RunOnceAndDie            bool `yaml:"run_once_and_die"`
	RunUntilNoWork           bool `yaml:"run_until_no_work"`
	LeaseStaleSeconds        int  `yaml:"lease_stale_seconds"`

	// filesystem paths
	WorkboxPath  string `yaml:"bundler_workbox_path"`
	OutboxPath   string `yaml:"bundler_outbox_path"`
	ScratchPath  string `yaml:"scratch_path"`
	TapeBasePath string `yaml:"tape_base_path"`
	JournalPath  string `yaml:"journal_path"`

	// bundle sizing (Picker)
	IdealBundleSize int64 `yaml:"ideal_bundle_size"`

	// destination path policy (Replicator)
	UseFullBundlePath bool `yaml:"use_full_bundle_path"`

	// transfer backend configuration
	Transfer Transfer `yaml:"transfer"`

	// telemetry and logging
	PrometheusMetricsPort int    `yaml:"prometheus_metrics_port"`
	LogLevel              string `yaml:"log_level"`
}

// returns a Config with every defaulted field filled in
func defaultConfig() *Config {
	return &Config{
		FileCatalogPageSize:      DefaultFileCatalogPageSize,
		WorkRetries:              DefaultWorkRetries,
		WorkTimeoutSeconds:       DefaultWorkTimeoutSeconds,
		WorkSleepDurationSeconds: DefaultWorkSleepSeconds,
		HeartbeatSleepSeconds:    DefaultHeartbeatSeconds,
		LeaseStaleSeconds:        DefaultLeaseStaleSeconds,
		IdealBundleSize:          DefaultIdealBundleSize,
		LogLevel:                 "info",
		Transfer:                 defaultTransfer(),
	}
}

// FromEnvironment builds a Config from the process environment. Malformed
// values and missing required keys are reported as errors so components can
// fail fast before touching any records.
func FromEnvironment() (*Config, error) {
	var errs []error
	conf := defaultConfig()

	conf.ComponentName = os.Getenv("COMPONENT_NAME")
	conf.SourceSite = os.Getenv("SOURCE_SITE")
	conf.DestSite = os.Getenv("DEST_SITE")
	conf.InputStatus = os.Getenv("INPUT_STATUS")
	conf.OutputStatus = os.Getenv("OUTPUT_STATUS")
	conf.LtaRestURL = os.Getenv("LTA_REST_URL")
	conf.LtaAuthOpenIDURL = os.Getenv("LTA_AUTH_OPENID_URL")
	conf.ClientID = os.Getenv("CLIENT_ID")
	conf.ClientSecret = os.Getenv("CLIENT_SECRET")
	conf.FileCatalogRestURL = os.Getenv("FILE_CATALOG_REST_URL")
	conf.FileCatalogClientID = os.Getenv("FILE_CATALOG_CLIENT_ID")
	conf.FileCatalogClientSecret = os.Getenv("FILE_CATALOG_CLIENT_SECRET")
	conf.WorkboxPath = os.Getenv("BUNDLER_WORKBOX_PATH")
	conf.OutboxPath = os.Getenv("BUNDLER_OUTBOX_PATH")
	conf.ScratchPath = os.Getenv("SCRATCH_PATH")
	conf.TapeBasePath = os.Getenv("TAPE_BASE_PATH")
	conf.JournalPath = os.Getenv("JOURNAL_PATH")
	if level := os.Getenv("LOG_LEVEL"); level != "" {
		conf.LogLevel = level
	}

	conf.FileCatalogPageSize = envInt("FILE_CATALOG_PAGE_SIZE", conf.FileCatalogPageSize, &errs)
	conf.WorkRetries = envInt("WORK_RETRIES", conf.WorkRetries, &errs)
	conf.WorkTimeoutSeconds = envInt("WORK_TIMEOUT_SECONDS", conf.WorkTimeoutSeconds, &errs)
	conf.WorkSleepDurationSeconds = envInt("WORK_SLEEP_DURATION_SECONDS", conf.WorkSleepDurationSeconds, &errs)
	conf.HeartbeatSleepSeconds = envInt("HEARTBEAT_SLEEP_DURATION_SECONDS", conf.HeartbeatSleepSeconds, &errs)
	conf.LeaseStaleSeconds = envInt("LEASE_STALE_SECONDS", conf.LeaseStaleSeconds, &errs)
	conf.IdealBundleSize = envInt64("IDEAL_BUNDLE_SIZE", conf.IdealBundleSize, &errs)
	conf.PrometheusMetricsPort = envInt("PROMETHEUS_METRICS_PORT", 0, &errs)
	conf.RunOnceAndDie = envBool("RUN_ONCE_AND_DIE", false, &errs)
	conf.RunUntilNoWork = envBool("RUN_UNTIL_NO_WORK", false, &errs)
	conf.UseFullBundlePath = envBool("USE_FULL_BUNDLE_PATH", false, &errs)

	conf.Transfer = transferFromEnvironment(&errs)

	if len(errs) > 0 {
		return nil, errs[0]
	}
	err := conf.Validate()
	if err != nil {
		return nil, err
	}
	return conf, nil
}

// Read builds a Config from YAML data, expanding any ${ENV_VAR} references
// before parsing. This form is used by tests and by deployments that prefer
// a single configuration document over two dozen environment variables.
func Read(data []byte) (*Config, error) {
	data = []byte(os.ExpandEnv(string(data)))
	conf := defaultConfig()
	err := yaml.Unmarshal(data, conf)
	if err != nil {
		return nil, fmt.Errorf("couldn't parse configuration data: %s", err.Error())
	}
	err = conf.Validate()
	if err != nil {
		return nil, err
	}
	return conf, nil
}

// Validate checks the keys every component requires. Component constructors
// check their own additional keys.
func (conf *Config) Validate() error {
	for _, required := range []struct{ name, value string }{
		{"LTA_REST_URL", conf.LtaRestURL},
		{"SOURCE_SITE", conf.SourceSite},
		{"DEST_SITE", conf.DestSite},
	} {
		if required.value == "" {
			return &MissingKeyError{Name: required.name}
		}
	}
	if conf.WorkRetries < 0 {
		return &InvalidValueError{Name: "WORK_RETRIES", Value: strconv.Itoa(conf.WorkRetries)}
	}
	if conf.FileCatalogPageSize <= 0 {
		return &InvalidValueError{Name: "FILE_CATALOG_PAGE_SIZE", Value: strconv.Itoa(conf.FileCatalogPageSize)}
	}
	// a token provider without credentials is a misconfiguration
	if conf.LtaAuthOpenIDURL != "" && (conf.ClientID == "" || conf.ClientSecret == "") {
		return &MissingKeyError{Name: "CLIENT_ID / CLIENT_SECRET"}
	}
	return nil
}

//-----------
// Internals
//-----------

func envInt(name string, deflt int, errs *[]error) int {
	value := os.Getenv(name)
	if value == "" {
		return deflt
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		*errs = append(*errs, &InvalidValueError{Name: name, Value: value})
		return deflt
	}
	return parsed
}

func envInt64(name string, deflt int64, errs *[]error) int64 {
	value := os.Getenv(name)
	if value == "" {
		return deflt
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		*errs = append(*errs, &InvalidValueError{Name: name, Value: value})
		return deflt
	}
	return parsed
}

func envBool(name string, deflt bool, errs *[]error) bool {
	value := os.Getenv(name)
	if value == "" {
		return deflt
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		*errs = append(*errs, &InvalidValueError{Name: name, Value: value})
		return deflt
	}
	return parsed
}
