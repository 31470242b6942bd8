// Command proxy runs the forwarding HTTP/1.1 cache proxy: a raw-socket
// listener with a streaming parser and an RFC 7234 disk cache, plus a
// separate admin HTTP surface for health, metrics, and status.
package main

import (
	"context"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"github.com/jnovack/flag"
	"github.com/rs/zerolog/log"

	"github.com/jnovack/http-cache-proxy/pkg/admin"
	"github.com/jnovack/http-cache-proxy/pkg/cacheproxy"
	"github.com/jnovack/http-cache-proxy/pkg/logging"
	"github.com/jnovack/http-cache-proxy/pkg/signals"
)

// daemonEnv marks a re-exec'd child so it does not daemonize again.
const daemonEnv = "PROXY_DAEMONIZED"

var (
	flagAddr        = flag.String("addr", ":12345", "proxy listen address")
	flagAdminAddr   = flag.String("admin-addr", ":8080", "admin HTTP listen address")
	flagCacheDir    = flag.String("cache", "./__cache__", "cache directory")
	flagLogLevel    = flag.String("log-level", "info", "log level: debug|info|warn|error")
	flagLogFile     = flag.String("log-file", "/var/log/erss/proxy.log", "log file path used in daemonized mode")
	flagDialTimeout = flag.Duration("dial-timeout", 15*time.Second, "origin dial timeout")
	flagDemo        = flag.Bool("demo", false, "run in the foreground with console logging instead of daemonizing")
)

func main() {
	flag.Parse()

	foreground := *flagDemo || len(os.Args) > 1 || os.Getenv(daemonEnv) == "1"
	if !foreground {
		daemonize()
		return
	}

	// A foreground run started with arguments listens on the demo port
	// unless -addr names an address other than the default.
	addr := *flagAddr
	if os.Getenv(daemonEnv) != "1" && addr == ":12345" {
		addr = ":1234"
	}

	if os.Getenv(daemonEnv) == "1" {
		if err := logging.SetupFile(*flagLogLevel, *flagLogFile); err != nil {
			log.Warn().Err(err).Str("path", *flagLogFile).Msg("failed to open log file, falling back to stderr")
		}
	} else {
		logging.Setup(*flagLogLevel)
	}

	if err := os.MkdirAll(*flagCacheDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", *flagCacheDir).Msg("failed to create cache directory")
	}

	cache, err := cacheproxy.NewProxyCache(*flagCacheDir)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to construct cache")
	}

	metrics := admin.NewMetrics()
	cfg := cacheproxy.Config{
		CacheDir:    *flagCacheDir,
		DialTimeout: *flagDialTimeout,
		Metrics:     metrics,
	}

	adminMux := http.NewServeMux()
	adminMux.HandleFunc("/healthz", admin.HandleHealth)
	adminMux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) { admin.HandleMetrics(w, metrics) })
	adminMux.HandleFunc("/statusz", func(w http.ResponseWriter, r *http.Request) { admin.HandleStatusz(w, metrics) })
	adminMux.HandleFunc("/varz", func(w http.ResponseWriter, r *http.Request) {
		admin.HandleVarz(w, map[string]any{
			"addr":         addr,
			"admin-addr":   *flagAdminAddr,
			"cache":        *flagCacheDir,
			"log-level":    *flagLogLevel,
			"dial-timeout": flagDialTimeout.String(),
		})
	})
	adminSrv := &http.Server{Addr: *flagAdminAddr, Handler: adminMux}
	go func() {
		log.Info().Str("addr", *flagAdminAddr).Msg("admin HTTP starting")
		if err := adminSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("admin HTTP failed")
		}
	}()

	stopCh := make(chan struct{})
	ctx := signals.Setup(stopCh)

	srv := &cacheproxy.Server{Addr: addr, Cache: cache, Config: cfg}
	srvErrCh := make(chan error, 1)
	go func() { srvErrCh <- srv.ListenAndServe(ctx) }()

	exitCode := 0
	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown requested")
	case err := <-srvErrCh:
		if err != nil {
			log.Error().Err(err).Msg("proxy listener failed")
			exitCode = 1
		}
	}

	shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = adminSrv.Shutdown(shCtx)
	log.Info().Msg("proxy stopped")
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

// daemonize re-execs the current binary detached from the controlling
// terminal with output logging switched to the file sink, then exits
// the parent immediately. Invoking the binary with no arguments means
// "run as a background service"; this is the technique used to get
// there, since no daemon library appears anywhere in the corpus.
func daemonize() {
	exe, err := os.Executable()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to resolve executable path for daemonization")
	}
	exe, err = filepath.Abs(exe)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to resolve absolute executable path")
	}

	cmd := exec.Command(exe)
	cmd.Env = append(os.Environ(), daemonEnv+"=1")
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	setDaemonSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start daemonized process")
	}
	log.Info().Int("pid", cmd.Process.Pid).Msg("daemonized")
}
