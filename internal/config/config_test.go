package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/h2a-linkage/internal/match"
	"github.com/h2a-linkage/internal/schema"
	"github.com/h2a-linkage/internal/table"
)

const sample = `
inputs:
  disclosure:
    2015: data/h2a_2015.csv
    2014: data/h2a_2014.csv
  acs:
    acs_2019: data/acs_2019.csv
aliases:
  global:
    CASE_NO: CASE_NUMBER
    WORKSITE_LOCATION_CITY: WORKSITE_CITY
  years:
    2016:
      EMPLOYER_STATE_CODE: EMPLOYER_STATE
derived:
  - year: 2014
    target: ATTORNEY_AGENT_NAME
    sources: [FIRST_NAME, MIDDLE_NAME, LAST_NAME]
    sep: " "
reconcile:
  policy: fill
percentages:
  excluded: [B19013]
matching:
  threshold: 0.9
  workers: 4
  mode: predict_investigations
represent:
  types:
    JOB_START_DATE: date
    workers: int
database:
  driver: postgres
  host: db.internal
  name: h2a
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "h2a.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("PGPASSWORD", "secret")
	t.Setenv("H2A_DB_DRIVER", "")
	t.Setenv("H2A_DB_DSN", "")
	t.Setenv("H2A_OUTPUT_DIR", "")
	t.Setenv("PGPORT", "")
	t.Setenv("PGUSER", "")

	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, []int{2014, 2015}, cfg.Years())
	assert.Equal(t, "data/acs_2019.csv", cfg.Inputs.ACS["acs_2019"])

	aliases := cfg.SchemaAliases()
	assert.Equal(t, "CASE_NUMBER", aliases.Resolve(2014, "CASE_NO"))
	assert.Equal(t, "EMPLOYER_STATE", aliases.Resolve(2016, "EMPLOYER_STATE_CODE"))

	derived := cfg.Derivations()
	require.Len(t, derived, 1)
	assert.Equal(t, schema.Concat{Year: 2014, Target: "ATTORNEY_AGENT_NAME", Sources: []string{"FIRST_NAME", "MIDDLE_NAME", "LAST_NAME"}, Sep: " "}, derived[0])

	policy, err := schema.ParsePolicy(cfg.Reconcile.Policy)
	require.NoError(t, err)
	assert.Equal(t, schema.FillNull, policy)

	assert.True(t, cfg.Percentages.ExcludedSet()["B19013"])
	assert.Equal(t, "GEO_ID", cfg.Percentages.GeoColumn, "defaults survive partial sections")

	opts := cfg.MatchOptions()
	assert.Equal(t, 0.9, opts.Threshold)
	assert.Equal(t, 4, opts.Workers)
	assert.Equal(t, []string{"EMPLOYER_STATE"}, opts.LeftBlock)
	assert.Equal(t, string(match.JaroWinkler), opts.Method)

	since, err := cfg.MatchingSince()
	require.NoError(t, err)
	assert.Equal(t, 2017, since.Year())

	assert.Equal(t, map[string]table.Kind{"JOB_START_DATE": table.KindTime, "workers": table.KindInt}, cfg.Represent.Kinds())

	assert.Equal(t, "host=db.internal port=5432 user=postgres password=secret dbname=h2a sslmode=disable", cfg.Database.ConnString())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("H2A_OUTPUT_DIR", "/tmp/h2a-out")
	t.Setenv("H2A_DB_DRIVER", "sqlite3")
	t.Setenv("H2A_DB_DSN", "file:h2a.db")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/h2a-out", cfg.Output.Dir)
	assert.Equal(t, "sqlite3", cfg.Database.Driver)
	assert.Equal(t, "file:h2a.db", cfg.Database.ConnString())
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Database.Driver = "sqlite3"
	require.NoError(t, cfg.Validate())

	cfg.Matching.RightFields = []string{"name"}
	cfg.Matching.Threshold = 2
	cfg.Matching.Method = "soundex"
	cfg.Reconcile.Policy = "outer"
	err := cfg.Validate()
	require.Error(t, err)

	var arity *match.MismatchedArityError
	assert.True(t, errors.As(err, &arity))
	assert.ErrorIs(t, err, match.ErrInvalidThreshold)
	var method *match.UnknownMethodError
	assert.True(t, errors.As(err, &method))
}

func TestLoadErrors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeConfig(t, "matching: [not, a, map]"))
	assert.Error(t, err)
}

func TestApplyEnvFile(t *testing.T) {
	t.Setenv("H2A_TEST_KEEP", "already")
	require.NoError(t, parseEnvFile("# comment\nH2A_TEST_NEW=\"value\"\nexport H2A_TEST_KEEP=ignored\nnot a pair\n"))
	t.Cleanup(func() { os.Unsetenv("H2A_TEST_NEW") })

	assert.Equal(t, "value", os.Getenv("H2A_TEST_NEW"))
	assert.Equal(t, "already", os.Getenv("H2A_TEST_KEEP"))
	assert.Equal(t, 7, GetEnvInt("H2A_TEST_MISSING", 7))
	assert.True(t, GetEnvBool("H2A_TEST_MISSING", true))
}
