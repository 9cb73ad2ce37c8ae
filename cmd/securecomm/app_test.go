package main

import (
	"bytes"
	"context"
	"crypto/x509"
	"encoding/base64"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"code.securecomm.org/golang/internal/config"
)

func TestPubKey(t *testing.T) {
	app := newApp(t, config.DefaultConfig())

	var out1, out2 bytes.Buffer
	if err := app.Run("pubkey", nil, &out1); nil != err {
		t.Fatalf("failed pubkey, got error %v", err)
	}
	_ = app.Run("pubkey", nil, &out2)
	if out1.String() != out2.String() {
		t.Error("pubkey output changed")
	}
	der, err := base64.StdEncoding.DecodeString(strings.TrimSpace(out1.String()))
	if nil != err {
		t.Fatalf("pubkey output is not base64, got error %v", err)
	}
	if _, err = x509.ParsePKIXPublicKey(der); nil != err {
		t.Errorf("pubkey output is not SubjectPublicKeyInfo, got error %v", err)
	}
}

func TestCustodyCommands(t *testing.T) {
	app := newApp(t, config.DefaultConfig())
	runCustodyCommands(t, app)
}

func TestCustodyCommandsBolt(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TEST_SECURECOMM_PASSPHRASE", "demo passphrase")
	cfg := config.DefaultConfig()
	cfg.Keystore.Backend = config.BackendBolt
	cfg.Keystore.Path = filepath.Join(dir, "keys.db")
	cfg.Keystore.PassphraseEnv = "TEST_SECURECOMM_PASSPHRASE"
	cfg.Prefs.Backend = config.BackendBolt
	cfg.Prefs.Path = filepath.Join(dir, "prefs.db")

	runCustodyCommands(t, newApp(t, cfg))

	// records survive a new App
	_ = newApp(t, cfg).Run("put", []string{"persisted", "yes"}, io.Discard)
	var out bytes.Buffer
	err := newApp(t, cfg).Run("get", []string{"persisted"}, &out)
	if nil != err || "yes\n" != out.String() {
		t.Errorf("failed get after reopen, got %q error %v", out.String(), err)
	}
}

func TestCustodyCommandsPostgres(t *testing.T) {
	dsn := os.Getenv("SECURECOMM_TEST_DSN")
	if "" == dsn {
		t.Skip("SECURECOMM_TEST_DSN not set")
	}
	ctx := context.Background()
	const schema = "securecomm_app_test"
	conn, err := pgx.Connect(ctx, dsn)
	if nil != err {
		t.Fatalf("failed pgx.Connect, got error %v", err)
	}
	defer conn.Close(ctx)
	dropSchema := func() {
		_, err := conn.Exec(ctx, "DROP SCHEMA IF EXISTS "+pgx.Identifier{schema}.Sanitize()+" CASCADE")
		if nil != err {
			t.Fatalf("failed dropping schema %s, got error %v", schema, err)
		}
	}
	dropSchema()
	defer dropSchema()

	cfg := config.DefaultConfig()
	cfg.Prefs.Backend = config.BackendPostgres
	cfg.Prefs.DSN = dsn
	cfg.Prefs.Schema = schema

	app := newApp(t, cfg)
	defer app.Close()
	runCustodyCommands(t, app)
}

func runCustodyCommands(t *testing.T, app *App) {
	steps := []struct {
		cmd    string
		args   []string
		output string
		fail   bool
	}{
		{cmd: "put", args: []string{"token", "s3cr3t"}},
		{cmd: "get", args: []string{"token"}, output: "s3cr3t\n"},
		{cmd: "put", args: []string{"token", "updated"}},
		{cmd: "get", args: []string{"token"}, output: "updated\n"},
		{cmd: "rm", args: []string{"token"}},
		{cmd: "get", args: []string{"token"}, fail: true},
		{cmd: "put", args: []string{"a", "1"}},
		{cmd: "clear"},
		{cmd: "get", args: []string{"a"}, fail: true},
		{cmd: "put", args: []string{"b", "2"}},
		{cmd: "destroy", args: []string{"b"}},
		{cmd: "get", args: []string{"b"}, fail: true},
		{cmd: "put", args: []string{"missing value"}, fail: true},
		{cmd: "unknown", fail: true},
	}
	for pos, step := range steps {
		var out bytes.Buffer
		err := app.Run(step.cmd, step.args, &out)
		if step.fail {
			if nil == err {
				t.Errorf("step#%d %s succeeded", pos, step.cmd)
			}
			continue
		}
		if nil != err {
			t.Fatalf("step#%d failed %s, got error %v", pos, step.cmd, err)
		}
		if step.output != out.String() {
			t.Errorf("step#%d %s output %q != %q", pos, step.cmd, out.String(), step.output)
		}
	}
}

func TestDemo(t *testing.T) {
	app := newApp(t, config.DefaultConfig())

	var out bytes.Buffer
	err := app.Run("demo", nil, &out)
	if nil != err {
		t.Fatalf("failed demo, got error %v", err)
	}
	t.Logf("demo output:\n%s", out.String())
	for _, expected := range []string{"alice Ready bob Ready", `bob received "ping"`, "rejected replayed packet"} {
		if !strings.Contains(out.String(), expected) {
			t.Errorf("demo output misses %q", expected)
		}
	}
}

func TestMetricsHandler(t *testing.T) {
	app := newApp(t, config.DefaultConfig())
	if err := app.Run("demo", nil, io.Discard); nil != err {
		t.Fatalf("failed demo, got error %v", err)
	}

	srv := httptest.NewServer(app.MetricsHandler())
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/metrics")
	if nil != err {
		t.Fatalf("failed GET /metrics, got error %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if http.StatusOK != resp.StatusCode {
		t.Fatalf("unexpected status %d", resp.StatusCode)
	}
	for _, metric := range []string{
		`securecomm_channel_handshakes_total{result="ok"} 2`,
		`securecomm_channel_packets_total{direction="in",result="rejected"} 1`,
	} {
		if !strings.Contains(string(body), metric) {
			t.Errorf("metrics miss %s", metric)
		}
	}
}

func TestExecServesMetrics(t *testing.T) {
	app := newApp(t, config.DefaultConfig())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if nil != err {
		t.Fatalf("failed net.Listen, got error %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() {
		done <- app.Exec(ctx, ln, "put", []string{"token", "s3cr3t"}, io.Discard)
	}()

	// the endpoint stays up once put completed
	url := "http://" + ln.Addr().String() + "/metrics"
	const metric = `securecomm_custody_operations_total{op="store",result="ok"} 1`
	var body string
	for range 50 {
		body = scrape(t, url)
		if strings.Contains(body, metric) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if !strings.Contains(body, metric) {
		t.Fatalf("metrics miss %s", metric)
	}
	select {
	case err = <-done:
		t.Fatalf("Exec returned before cancellation, got error %v", err)
	default:
	}

	cancel()
	select {
	case err = <-done:
		if nil != err {
			t.Errorf("failed Exec, got error %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Exec did not return after cancellation")
	}
}

func TestExecCommandError(t *testing.T) {
	app := newApp(t, config.DefaultConfig())
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if nil != err {
		t.Fatalf("failed net.Listen, got error %v", err)
	}
	err = app.Exec(context.Background(), ln, "unknown", nil, io.Discard)
	if nil == err {
		t.Error("unknown command succeeded")
	}

	err = app.Exec(context.Background(), nil, "pubkey", nil, io.Discard)
	if nil != err {
		t.Errorf("failed Exec without metrics, got error %v", err)
	}
}

func scrape(t *testing.T, url string) string {
	resp, err := http.Get(url)
	if nil != err {
		t.Logf("failed GET %s, got error %v", url, err)
		return ""
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	return string(body)
}

func TestCurveOption(t *testing.T) {
	app, err := NewApp(config.DefaultConfig(), io.Discard, WithCurve("P384"))
	if nil != err {
		t.Fatalf("failed NewApp, got error %v", err)
	}
	if err = app.Run("demo", nil, io.Discard); nil != err {
		t.Errorf("failed demo on P384, got error %v", err)
	}
	if 3 != len(ecdsaCurves()) {
		t.Errorf("unexpected ECDSA curves %v", ecdsaCurves())
	}
}

func newApp(t *testing.T, cfg config.Config) *App {
	app, err := NewApp(cfg, io.Discard)
	if nil != err {
		t.Fatalf("failed NewApp, got error %v", err)
	}
	return app
}
