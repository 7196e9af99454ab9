// cyclegc-inspect talks to a running collector's diagnostic HTTP endpoint.
//
// Usage:
//
//	cyclegc-inspect -addr host:port [-min-version constraint] <command>
//
// Commands:
//
//	stats    print the collector statistics snapshot
//	objects  list tracked objects (use -n to limit)
//	garbage  list quarantined uncollectable objects
//	collect  request a collection and print the counts
//	version  print the remote collector version
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
)

func main() {
	var (
		addr       string
		minVersion string
		limit      int
		timeout    time.Duration
	)
	flag.StringVar(&addr, "addr", "127.0.0.1:6464", "diagnostic endpoint address")
	flag.StringVar(&minVersion, "min-version", ">=1.3.0", "semver constraint the remote collector must satisfy")
	flag.IntVar(&limit, "n", 100, "maximum objects to list")
	flag.DurationVar(&timeout, "timeout", 5*time.Second, "request timeout")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: cyclegc-inspect [flags] stats|objects|garbage|collect|version")
		os.Exit(2)
	}
	cmd := flag.Arg(0)

	client := &http.Client{Timeout: timeout}
	base := "http://" + addr

	remote, err := remoteVersion(client, base)
	if err != nil {
		fatalf("query %s: %v", addr, err)
	}
	if err := checkVersion(remote, minVersion); err != nil {
		fatalf("%v", err)
	}

	switch cmd {
	case "version":
		fmt.Println(remote)
	case "stats":
		passThrough(client, base+"/gc/stats")
	case "objects":
		passThrough(client, fmt.Sprintf("%s/gc/objects?n=%d", base, limit))
	case "garbage":
		passThrough(client, base+"/gc/garbage")
	case "collect":
		resp, err := client.Post(base+"/gc/collect", "application/json", strings.NewReader(""))
		if err != nil {
			fatalf("collect: %v", err)
		}
		defer resp.Body.Close()
		var counts map[string]int64
		if err := json.NewDecoder(resp.Body).Decode(&counts); err != nil {
			fatalf("collect: %v", err)
		}
		fmt.Printf("collected %d, uncollectable %d\n", counts["collected"], counts["uncollectable"])
	default:
		fatalf("unknown command %q", cmd)
	}
}

// remoteVersion asks the endpoint what it is before any other traffic.
func remoteVersion(client *http.Client, base string) (string, error) {
	resp, err := client.Get(base + "/gc/version")
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("version endpoint returned %s", resp.Status)
	}
	var v map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		return "", err
	}
	if v["version"] == "" {
		return "", fmt.Errorf("endpoint reported no version")
	}
	return v["version"], nil
}

// checkVersion refuses to drive collectors outside the supported range;
// older ones lack endpoints this tool assumes.
func checkVersion(remote, constraint string) error {
	con, err := semver.NewConstraint(constraint)
	if err != nil {
		return fmt.Errorf("bad -min-version %q: %w", constraint, err)
	}
	v, err := semver.NewVersion(remote)
	if err != nil {
		return fmt.Errorf("remote version %q: %w", remote, err)
	}
	if !con.Check(v) {
		return fmt.Errorf("remote collector %s does not satisfy %s", remote, constraint)
	}
	return nil
}

func passThrough(client *http.Client, url string) {
	resp, err := client.Get(url)
	if err != nil {
		fatalf("%v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		fatalf("%s: %s", url, resp.Status)
	}
	// Re-indent for the terminal.
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		fatalf("%v", err)
	}
	var buf any
	if err := json.Unmarshal(raw, &buf); err != nil {
		os.Stdout.Write(raw)
		return
	}
	out, _ := json.MarshalIndent(buf, "", "  ")
	os.Stdout.Write(append(out, '\n'))
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "cyclegc-inspect: "+format+"\n", args...)
	os.Exit(1)
}
