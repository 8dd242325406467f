package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const baseYAML = `
http:
  listen_addr: "127.0.0.1:8080"
  shutdown_timeout: 5s
forms:
  dir: conf/forms
  idle_ttl: 30m
  max_instances: 100
  simulated_delay: 1500ms
session:
  store: memory
  ttl: 30m
database:
  dsn: "knit:%s@tcp(db:3306)/knit"
  password: "vault:secret/knit/db#password"
`

type fakeSecrets struct {
	vals  map[string]string
	calls int
}

func (f *fakeSecrets) GetKV(_ context.Context, path, key string, _ time.Duration) (string, error) {
	f.calls++
	v, ok := f.vals[path+"#"+key]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func writeRoot(t *testing.T, yml string) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "conf"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "conf", "global.yaml"), []byte(yml), 0o644))
	return root
}

func TestLoad_YAMLAndSecrets(t *testing.T) {
	root := writeRoot(t, baseYAML)
	sec := &fakeSecrets{vals: map[string]string{"secret/knit/db#password": "s3cret"}}

	cfg, err := LoadWith(context.Background(), Options{Root: root, Secrets: sec})
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:8080", cfg.HTTP.ListenAddr)
	assert.Equal(t, 5*time.Second, cfg.HTTP.ShutdownTimeout)
	assert.Equal(t, filepath.Join(root, "conf", "forms"), cfg.Forms.Dir)
	assert.Equal(t, 1500*time.Millisecond, cfg.Forms.SimulatedDelay)
	assert.Equal(t, 100, cfg.Forms.MaxInstances)
	assert.Equal(t, "memory", cfg.Session.Store)
	assert.Equal(t, "s3cret", cfg.Database.Password)
	assert.Equal(t, "knit:s3cret@tcp(db:3306)/knit", cfg.Database.ConnString())
	assert.Equal(t, root, cfg.Paths.Root)
	assert.Equal(t, 1, sec.calls)
	assert.Same(t, cfg, Get())
}

func TestLoad_EnvOverrides(t *testing.T) {
	root := writeRoot(t, baseYAML)
	t.Setenv("KNIT_HTTP__LISTEN_ADDR", "0.0.0.0:9090")
	t.Setenv("KNIT_SESSION__STORE", "redis")
	t.Setenv("KNIT_SESSION__REDIS_ADDR", "localhost:6379")
	t.Setenv("KNIT_DATABASE__PASSWORD", "plain")

	cfg, err := LoadWith(context.Background(), Options{Root: root, Secrets: &fakeSecrets{}})
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:9090", cfg.HTTP.ListenAddr)
	assert.Equal(t, "redis", cfg.Session.Store)
	assert.Equal(t, "localhost:6379", cfg.Session.RedisAddr)
	assert.Equal(t, "plain", cfg.Database.Password)
}

func TestLoad_ValidationFailures(t *testing.T) {
	cases := map[string]string{
		"bad store": `
http: {listen_addr: "127.0.0.1:8080"}
forms: {dir: conf/forms}
session: {store: disk}
`,
		"redis without addr": `
http: {listen_addr: "127.0.0.1:8080"}
forms: {dir: conf/forms}
session: {store: redis}
`,
		"missing listen addr": `
forms: {dir: conf/forms}
session: {store: memory}
`,
		"two dsn verbs": `
http: {listen_addr: "127.0.0.1:8080"}
forms: {dir: conf/forms}
session: {store: memory}
database: {dsn: "%s:%s@tcp(db)/knit"}
`,
	}
	for name, yml := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := LoadWith(context.Background(), Options{Root: writeRoot(t, yml), Secrets: &fakeSecrets{}})
			assert.Error(t, err)
		})
	}
}

func TestLoad_BadVaultReference(t *testing.T) {
	root := writeRoot(t, `
http: {listen_addr: "127.0.0.1:8080"}
forms: {dir: conf/forms}
session: {store: memory}
database: {password: "vault:secret/knit/db"}
`)
	_, err := LoadWith(context.Background(), Options{Root: root, Secrets: &fakeSecrets{}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vault:<path>#<key>")
}

func TestLoad_MissingSecret(t *testing.T) {
	root := writeRoot(t, baseYAML)
	_, err := LoadWith(context.Background(), Options{Root: root, Secrets: &fakeSecrets{}})
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := LoadWith(context.Background(), Options{Root: t.TempDir()})
	assert.Error(t, err)
}

func TestRootDir_EnvOverride(t *testing.T) {
	t.Setenv("KNIT_ROOT", "/srv/knit")
	assert.Equal(t, "/srv/knit", rootDir())
}

func TestConnString_NoVerb(t *testing.T) {
	d := Database{DSN: "root@tcp(db)/knit", Password: "ignored"}
	assert.Equal(t, "root@tcp(db)/knit", d.ConnString())
}

func TestLoad_ShippedConfig(t *testing.T) {
	root, err := filepath.Abs(filepath.Join("..", ".."))
	require.NoError(t, err)

	cfg, err := LoadWith(context.Background(), Options{Root: root, Secrets: &fakeSecrets{}})
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Session.Store)
	assert.Equal(t, filepath.Join(root, "conf", "forms"), cfg.Forms.Dir)
	assert.Equal(t, "form_submission", cfg.Database.Table)
}
