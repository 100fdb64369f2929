package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleYAML = `
server:
  addr: ":8080"
  admin_username: operator
  admin_password_hash: "$2a$10$abcdefghijklmnopqrstuv"
bot:
  name: Zeytin
  personality: sarcastic but kind
  language: Turkish
  interval: 2h
  tick: 30s
accounts:
  - name: main
    bearer_token: main-bearer
    read_quota: 50
  - name: browse
    bearer_token: browse-bearer
generator:
  api_key: sk-test
  model: gpt-4o-mini
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFromFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "Zeytin", cfg.Bot.Name)
	assert.Equal(t, 2*time.Hour, cfg.Bot.Interval)
	assert.Equal(t, 30*time.Second, cfg.Bot.Tick)
	assert.True(t, cfg.Bot.Wrap)
	assert.Equal(t, "gpt-4o-mini", cfg.Generator.Model)
	assert.Equal(t, 280, cfg.Generator.MaxChars)
	assert.Equal(t, 23424977, cfg.Scraper.WOEID)

	require.Len(t, cfg.Accounts, 2)
	assert.Equal(t, 50, cfg.Accounts[0].ReadQuota)
	assert.Equal(t, 500, cfg.Accounts[0].PostQuota)
	assert.Equal(t, 100, cfg.Accounts[1].ReadQuota)

	require.NoError(t, cfg.Validate())
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("TRENDBOT_GENERATOR__API_KEY", "sk-env")
	t.Setenv("TRENDBOT_BOT__LANGUAGE", "English")
	t.Setenv("TRENDBOT_ACCOUNT2__BEARER_TOKEN", "env-bearer")
	t.Setenv("TRENDBOT_ACCOUNT2__ACCESS_TOKEN", "env-access")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "sk-env", cfg.Generator.APIKey)
	assert.Equal(t, "English", cfg.Bot.Language)
	assert.Equal(t, "env-bearer", cfg.Accounts[1].BearerToken)
	assert.Equal(t, "env-access", cfg.Accounts[1].AccessToken)
	assert.Equal(t, "browse", cfg.Accounts[1].Name)
	assert.Equal(t, "main-bearer", cfg.Accounts[0].BearerToken)
}

func TestLoadAccountsFromEnvOnly(t *testing.T) {
	t.Setenv("TRENDBOT_ACCOUNT1__BEARER_TOKEN", "one")
	t.Setenv("TRENDBOT_ACCOUNT2__BEARER_TOKEN", "two")

	cfg, err := Load("")
	require.NoError(t, err)

	require.Len(t, cfg.Accounts, 2)
	assert.Equal(t, "main", cfg.Accounts[0].Name)
	assert.Equal(t, "account2", cfg.Accounts[1].Name)
	assert.Equal(t, "two", cfg.Accounts[1].BearerToken)

	specs := cfg.AccountSpecs()
	assert.Equal(t, "one", specs[0].Credentials.BearerToken)
	assert.Equal(t, 100, specs[0].Limits.Read)
	assert.Equal(t, 500, specs[0].Limits.Post)
}

func TestLoadKeepsExplicitZeroQuotas(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
accounts:
  - name: main
    read_quota: 0
  - name: browse
    post_quota: 0
`))
	require.NoError(t, err)

	require.Len(t, cfg.Accounts, 2)
	assert.Equal(t, 0, cfg.Accounts[0].ReadQuota)
	assert.Equal(t, DefaultPostQuota, cfg.Accounts[0].PostQuota)
	assert.Equal(t, DefaultReadQuota, cfg.Accounts[1].ReadQuota)
	assert.Equal(t, 0, cfg.Accounts[1].PostQuota)
}

func TestLoadKeepsExplicitZeroQuotaFromEnv(t *testing.T) {
	t.Setenv("TRENDBOT_ACCOUNT2__BEARER_TOKEN", "two")
	t.Setenv("TRENDBOT_ACCOUNT2__POST_QUOTA", "0")

	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, 0, cfg.Accounts[1].PostQuota)
	assert.Equal(t, DefaultReadQuota, cfg.Accounts[1].ReadQuota)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "at least one account")
	assert.Contains(t, err.Error(), "admin_password_hash")
	assert.Contains(t, err.Error(), "generator.api_key")

	cfg.Accounts = []AccountConfig{{Name: "main", ReadQuota: 1, PostQuota: 1}}
	cfg.Server.AdminPasswordHash = "hash"
	cfg.Generator.APIKey = "key"
	require.NoError(t, cfg.Validate())

	cfg.Bot.Interval = time.Second
	assert.Error(t, cfg.Validate())

	cfg.Bot.Interval = time.Hour
	cfg.Scraper.Kind = "nitter"
	assert.Error(t, cfg.Validate())
	cfg.Scraper.Instance = "nitter.net"
	assert.Error(t, cfg.Validate())
	cfg.Scraper.Topics = []string{"golang"}
	assert.NoError(t, cfg.Validate())

	cfg.Publisher.Kind = "mastodon"
	assert.Error(t, cfg.Validate())
}

func TestExampleConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config.example.yaml"))
	require.NoError(t, err)

	require.Len(t, cfg.Accounts, 2)
	assert.Equal(t, "main", cfg.Accounts[0].Name)
	assert.Equal(t, 3*time.Hour, cfg.Bot.Interval)
	assert.Equal(t, "dryrun", cfg.Publisher.Kind)

	cfg.Generator.APIKey = "key"
	cfg.Server.AdminPasswordHash = "$2a$10$hash"
	assert.NoError(t, cfg.Validate())
}
