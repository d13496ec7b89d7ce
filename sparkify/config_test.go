package sparkify_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pkg/errors"
	"github.com/sparkify/lake/aws/s3"
	"github.com/sparkify/lake/file"
	"github.com/sparkify/lake/sparkify"
)

func writeCfg(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "dl.cfg")
	if err := os.WriteFile(p, []byte(content), 0600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return p
}

func clearEnv(t *testing.T) {
	t.Setenv(sparkify.AccessKeyIDKey, "")
	t.Setenv(sparkify.SecretAccessKeyKey, "")
}

func TestLoadCredentials(t *testing.T) {
	clearEnv(t)
	p := writeCfg(t, "[AWS]\nAWS_ACCESS_KEY_ID=AKIAEXAMPLE\nAWS_SECRET_ACCESS_KEY=secret\n")
	creds, err := sparkify.LoadCredentials(p)
	if err != nil {
		t.Fatalf("loading: %v", err)
	}
	if creds.AccessKeyID != "AKIAEXAMPLE" || creds.SecretAccessKey != "secret" {
		t.Fatalf("unexpected credentials %+v", creds)
	}
}

func TestLoadCredentialsEnvFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv(sparkify.SecretAccessKeyKey, "fromenv")
	p := writeCfg(t, "[AWS]\nAWS_ACCESS_KEY_ID=AKIAEXAMPLE\n")
	creds, err := sparkify.LoadCredentials(p)
	if err != nil {
		t.Fatalf("loading: %v", err)
	}
	if creds.AccessKeyID != "AKIAEXAMPLE" || creds.SecretAccessKey != "fromenv" {
		t.Fatalf("unexpected credentials %+v", creds)
	}

	t.Setenv(sparkify.AccessKeyIDKey, "AKIAENV")
	creds, err = sparkify.LoadCredentials(filepath.Join(t.TempDir(), "missing.cfg"))
	if err != nil {
		t.Fatalf("loading without file: %v", err)
	}
	if creds.AccessKeyID != "AKIAENV" {
		t.Fatalf("unexpected credentials %+v", creds)
	}
}

func TestLoadCredentialsErrors(t *testing.T) {
	clearEnv(t)
	_, err := sparkify.LoadCredentials(filepath.Join(t.TempDir(), "missing.cfg"))
	if errors.Cause(err) != sparkify.ErrNoCredentials {
		t.Fatalf("expected ErrNoCredentials, got %v", err)
	}

	p := writeCfg(t, "[AWS]\nAWS_ACCESS_KEY_ID=AKIAEXAMPLE\n")
	if _, err := sparkify.LoadCredentials(p); err == nil || !strings.Contains(err.Error(), sparkify.SecretAccessKeyKey) {
		t.Fatalf("expected missing secret error, got %v", err)
	}

	p = writeCfg(t, "[AWS\nbroken")
	if _, err := sparkify.LoadCredentials(p); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestOpenStore(t *testing.T) {
	dir := t.TempDir()
	st, err := sparkify.OpenStore(dir, sparkify.StoreConfig{})
	if err != nil {
		t.Fatalf("opening local store: %v", err)
	}
	if _, ok := st.(*file.Store); !ok {
		t.Fatalf("expected a file store, got %T", st)
	}

	st, err = sparkify.OpenStore("s3a://udacity-dend/", sparkify.StoreConfig{Anonymous: true})
	if err != nil {
		t.Fatalf("opening s3 store: %v", err)
	}
	if _, ok := st.(*s3.Store); !ok {
		t.Fatalf("expected an s3 store, got %T", st)
	}
	if st.URI() != "s3a://udacity-dend/" {
		t.Fatalf("unexpected URI %s", st.URI())
	}

	if _, err := sparkify.OpenStore("s3://", sparkify.StoreConfig{}); err == nil {
		t.Fatal("expected an error for a URI without a bucket")
	}
}

func TestMainNeedsCredentialsForS3(t *testing.T) {
	clearEnv(t)
	m := sparkify.NewMain()
	m.CredentialsFile = filepath.Join(t.TempDir(), "missing.cfg")
	m.OutputData = t.TempDir()
	err := m.Run()
	if errors.Cause(err) != sparkify.ErrNoCredentials {
		t.Fatalf("expected ErrNoCredentials, got %v", err)
	}
}
