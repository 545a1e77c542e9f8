package config

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

const validYaml = `
component_type: replicator
component_name: node16-replicator
source_site: WIPAC
dest_site: NERSC
input_status: located
output_status: transferring
lta_rest_url: http://localhost:8080
work_retries: 5
transfer:
  provider: move
  dest_root: /mnt/lfss/inbox
`

// tests that a YAML document populates the keys it names and leaves the
// defaults alone everywhere else
func TestReadValidYaml(t *testing.T) {
	assert := assert.New(t) // binds assert to t
	conf, err := Read([]byte(validYaml))
	assert.Nil(err, "a valid configuration should parse")

	assert.Equal("replicator", conf.ComponentType)
	assert.Equal("node16-replicator", conf.ComponentName)
	assert.Equal("WIPAC", conf.SourceSite)
	assert.Equal("NERSC", conf.DestSite)
	assert.Equal("located", conf.InputStatus)
	assert.Equal("transferring", conf.OutputStatus)
	assert.Equal("http://localhost:8080", conf.LtaRestURL)
	assert.Equal(5, conf.WorkRetries)
	assert.Equal("move", conf.Transfer.Provider)
	assert.Equal("/mnt/lfss/inbox", conf.Transfer.DestRoot)

	// untouched keys keep their defaults
	assert.Equal(DefaultLeaseStaleSeconds, conf.LeaseStaleSeconds)
	assert.Equal(DefaultIdealBundleSize, conf.IdealBundleSize)
	assert.Equal(DefaultFileCatalogPageSize, conf.FileCatalogPageSize)
	assert.Equal("info", conf.LogLevel)
	assert.True(conf.Transfer.ReplicatorWaits)
}

// tests that ${ENV_VAR} references in the document are expanded before
// parsing
func TestReadExpandsEnvironmentReferences(t *testing.T) {
	assert := assert.New(t) // binds assert to t
	t.Setenv("TEST_LTA_REST_URL", "http://lta.example.com:8080")
	conf, err := Read([]byte(`
source_site: WIPAC
dest_site: NERSC
lta_rest_url: ${TEST_LTA_REST_URL}
`))
	assert.Nil(err)
	assert.Equal("http://lta.example.com:8080", conf.LtaRestURL)
}

// tests that a document without the LTA DB address is rejected
func TestReadRejectsMissingRestUrl(t *testing.T) {
	assert := assert.New(t) // binds assert to t
	_, err := Read([]byte(`
source_site: WIPAC
dest_site: NERSC
`))
	assert.NotNil(err)
	var missing *MissingKeyError
	assert.True(errors.As(err, &missing))
	assert.Equal("LTA_REST_URL", missing.Name)
}

// tests that a negative retry count is rejected
func TestReadRejectsNegativeWorkRetries(t *testing.T) {
	assert := assert.New(t) // binds assert to t
	_, err := Read([]byte(`
source_site: WIPAC
dest_site: NERSC
lta_rest_url: http://localhost:8080
work_retries: -1
`))
	assert.NotNil(err)
	var invalid *InvalidValueError
	assert.True(errors.As(err, &invalid))
	assert.Equal("WORK_RETRIES", invalid.Name)
}

// tests that a token provider URL without client credentials is rejected
func TestReadRejectsAuthUrlWithoutCredentials(t *testing.T) {
	assert := assert.New(t) // binds assert to t
	_, err := Read([]byte(`
source_site: WIPAC
dest_site: NERSC
lta_rest_url: http://localhost:8080
lta_auth_openid_url: http://keycloak.example.com/auth
`))
	assert.NotNil(err)
	var missing *MissingKeyError
	assert.True(errors.As(err, &missing))
}

// tests that the environment form reads the same keys the YAML form does
func TestFromEnvironment(t *testing.T) {
	assert := assert.New(t) // binds assert to t
	t.Setenv("COMPONENT_NAME", "node16-verifier")
	t.Setenv("SOURCE_SITE", "WIPAC")
	t.Setenv("DEST_SITE", "NERSC")
	t.Setenv("INPUT_STATUS", "transferring")
	t.Setenv("OUTPUT_STATUS", "taping")
	t.Setenv("LTA_REST_URL", "http://localhost:8080")
	t.Setenv("WORK_RETRIES", "7")
	t.Setenv("LEASE_STALE_SECONDS", "600")
	t.Setenv("RUN_UNTIL_NO_WORK", "true")
	t.Setenv("TRANSFER_PROVIDER", "move")
	t.Setenv("DEST_ROOT", "/mnt/lfss/inbox")

	conf, err := FromEnvironment()
	assert.Nil(err)
	assert.Equal("node16-verifier", conf.ComponentName)
	assert.Equal("WIPAC", conf.SourceSite)
	assert.Equal("NERSC", conf.DestSite)
	assert.Equal("transferring", conf.InputStatus)
	assert.Equal("taping", conf.OutputStatus)
	assert.Equal(7, conf.WorkRetries)
	assert.Equal(600, conf.LeaseStaleSeconds)
	assert.True(conf.RunUntilNoWork)
	assert.Equal("move", conf.Transfer.Provider)
	assert.Equal("/mnt/lfss/inbox", conf.Transfer.DestRoot)
}

// tests that a malformed numeric key fails fast instead of silently
// falling back to the default
func TestFromEnvironmentRejectsMalformedInt(t *testing.T) {
	assert := assert.New(t) // binds assert to t
	t.Setenv("SOURCE_SITE", "WIPAC")
	t.Setenv("DEST_SITE", "NERSC")
	t.Setenv("LTA_REST_URL", "http://localhost:8080")
	t.Setenv("WORK_RETRIES", "seven")

	_, err := FromEnvironment()
	assert.NotNil(err)
	var invalid *InvalidValueError
	assert.True(errors.As(err, &invalid))
	assert.Equal("WORK_RETRIES", invalid.Name)
	assert.Equal("seven", invalid.Value)
}

// tests that the environment form enforces the required keys
func TestFromEnvironmentRejectsMissingKeys(t *testing.T) {
	assert := assert.New(t) // binds assert to t
	t.Setenv("SOURCE_SITE", "WIPAC")
	t.Setenv("DEST_SITE", "NERSC")
	t.Setenv("LTA_REST_URL", "")

	_, err := FromEnvironment()
	assert.NotNil(err)
	var missing *MissingKeyError
	assert.True(errors.As(err, &missing))
	assert.Equal("LTA_REST_URL", missing.Name)
}
