// Package testtarget provides stand-in processes for tests.
//
// A package's test binary re-executes itself under different names:
// a hello-world origin (optionally writing an error line to stderr), a
// forwarding proxy, a forking fleet, a target that crashes on start, and
// curl/oha look-alikes. Install symlinks the test
// binary under those names; Main, called first in TestMain, dispatches on
// the program name when the helper environment variable is set.
package testtarget

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"
)

const (
	// EnvHelper marks a process as a helper.
	EnvHelper = "HTTP_BENCH_DRIVER_TEST_HELPER"

	envOriginPort = "HTTP_BENCH_DRIVER_TEST_ORIGIN_PORT"
	envProxyPort  = "HTTP_BENCH_DRIVER_TEST_PROXY_PORT"

	// Body is what the hello-world origin serves.
	Body = "Hello, world!\n"

	fleetWorkers = 2
)

// Main runs the helper named by os.Args[0] and exits, if this process was
// started as a helper. Otherwise it returns immediately.
func Main() {
	if os.Getenv(EnvHelper) != "1" {
		return
	}
	os.Exit(run(filepath.Base(os.Args[0]), os.Args[1:]))
}

// Ports are the ports helper targets listen on.
type Ports struct {
	Origin int
	Proxy  int
}

// Install symlinks the running test binary into dir under each name and
// sets the environment so children run as helpers on ports.
// It returns dir for convenience.
func Install(t testing.TB, dir string, ports Ports, names ...string) string {
	t.Helper()

	exe, err := os.Executable()
	if err != nil {
		t.Fatalf("os.Executable: %v", err)
	}
	for _, name := range names {
		if err := os.Symlink(exe, filepath.Join(dir, name)); err != nil {
			t.Fatalf("symlink %s: %v", name, err)
		}
	}

	t.Setenv(EnvHelper, "1")
	t.Setenv(envOriginPort, strconv.Itoa(ports.Origin))
	t.Setenv(envProxyPort, strconv.Itoa(ports.Proxy))
	return dir
}

// FreePort returns a TCP port that was free a moment ago.
func FreePort(t testing.TB) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

func run(name string, args []string) int {
	switch {
	case strings.HasPrefix(name, "curl"):
		return probe(args)
	case strings.HasPrefix(name, "oha"):
		return load(args)
	case strings.Contains(name, "crash"):
		fmt.Fprintln(os.Stderr, "Error: Address already in use (os error 98)")
		return 1
	case strings.Contains(name, "fleet"):
		return fleet(name, args)
	case strings.Contains(name, "proxy"):
		return serve(name, envPort(envProxyPort), forward(envPort(envOriginPort)))
	case strings.Contains(name, "noisy"):
		fmt.Fprintln(os.Stderr, "WARN: Connection reset by peer")
		return serve(name, envPort(envOriginPort), hello(name))
	default:
		return serve(name, envPort(envOriginPort), hello(name))
	}
}

func envPort(key string) int {
	port, _ := strconv.Atoi(os.Getenv(key))
	return port
}

func hello(server string) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Server", server)
		w.Header().Set("Content-Type", "text/plain")
		io.WriteString(w, Body)
	}
}

func forward(originPort int) http.HandlerFunc {
	target := fmt.Sprintf("http://127.0.0.1:%d/", originPort)
	return func(w http.ResponseWriter, _ *http.Request) {
		resp, err := http.Get(target)
		if err != nil {
			fmt.Fprintln(os.Stderr, "Error serving connection:", err)
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		defer resp.Body.Close()
		w.Header().Set("Content-Type", resp.Header.Get("Content-Type"))
		w.WriteHeader(resp.StatusCode)
		io.Copy(w, resp.Body)
	}
}

func serve(name string, port int, h http.Handler) int {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	fmt.Printf("%s listening on %s\n", name, ln.Addr())
	if err := http.Serve(ln, h); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return 1
	}
	return 0
}

// fleet forks workers running under the same program name, then serves.
func fleet(name string, args []string) int {
	if len(args) > 0 && args[0] == "worker" {
		time.Sleep(time.Hour)
		return 0
	}
	self := os.Args[0]
	for i := 0; i < fleetWorkers; i++ {
		cmd := exec.Command(self, "worker")
		if err := cmd.Start(); err != nil {
			fmt.Fprintln(os.Stderr, "Error: fork worker:", err)
			return 1
		}
		fmt.Printf("%s worker %d pid %d\n", name, i, cmd.Process.Pid)
	}
	return serve(name, envPort(envOriginPort), hello(name))
}

// probe mimics `curl -sSD - URL`: status line, headers, blank line, body.
func probe(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "curl: no URL specified")
		return 2
	}
	resp, err := http.Get(args[len(args)-1])
	if err != nil {
		fmt.Fprintln(os.Stderr, "curl: (7)", err)
		return 7
	}
	defer resp.Body.Close()

	fmt.Printf("%s %s\r\n", resp.Proto, resp.Status)
	resp.Header.Write(os.Stdout)
	fmt.Print("\r\n")
	io.Copy(os.Stdout, resp.Body)
	return 0
}

// load mimics oha: it sends requests for the -z duration and prints a JSON
// report. An "oha-fail" binary exits non-zero after printing.
func load(args []string) int {
	duration := 100 * time.Millisecond
	keepAlive := true
	for i, a := range args {
		switch a {
		case "-z":
			if i+1 < len(args) {
				if d, err := time.ParseDuration(args[i+1]); err == nil {
					duration = d
				}
			}
		case "--disable-keepalive":
			keepAlive = false
		}
	}
	url := args[len(args)-1]

	client := &http.Client{Transport: &http.Transport{DisableKeepAlives: !keepAlive}}
	var total, ok int
	deadline := time.Now().Add(duration)
	for time.Now().Before(deadline) {
		total++
		resp, err := client.Get(url)
		if err != nil {
			continue
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			ok++
		}
	}

	report := map[string]any{
		"summary": map[string]any{
			"total":       total,
			"successRate": float64(ok) / float64(max(total, 1)),
		},
		"keepAlive": keepAlive,
	}
	json.NewEncoder(os.Stdout).Encode(report)

	if strings.Contains(filepath.Base(os.Args[0]), "fail") {
		fmt.Fprintln(os.Stderr, "oha: simulated failure")
		return 3
	}
	return 0
}
