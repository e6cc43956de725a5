package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// httpCmd talks to a running server's loopback admin endpoints.
func httpCmd(name string, args []string) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	baseURL := fs.String("url", "http://127.0.0.1:8080", "server base url")
	budget := fs.Int64("budget", 0, "spawn: budget (0 draws one)")
	counterID := fs.String("id", "", "counter: counter id")
	enabled := fs.Bool("enabled", true, "counter: open (true) or close (false)")
	x := fs.Int("x", 0, "block: cell x")
	z := fs.Int("z", 0, "block: cell z")
	blocked := fs.Bool("blocked", true, "block: block (true) or clear (false)")
	_ = fs.Parse(args)

	method, path, q := adminRequest(name, *budget, *counterID, *enabled, *x, *z, *blocked)
	u := strings.TrimRight(strings.TrimSpace(*baseURL), "/") + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, _ := http.NewRequest(method, u, nil)
	cl := &http.Client{Timeout: 10 * time.Second}
	resp, err := cl.Do(req)
	if err != nil {
		fmt.Fprintln(os.Stderr, "request:", err)
		os.Exit(1)
	}
	defer resp.Body.Close()
	b, _ := io.ReadAll(resp.Body)
	fmt.Println(strings.TrimSpace(string(b)))
	if resp.StatusCode/100 != 2 {
		os.Exit(1)
	}
}

func adminRequest(name string, budget int64, counterID string, enabled bool, x, z int, blocked bool) (method, path string, q url.Values) {
	q = url.Values{}
	switch name {
	case "state":
		return http.MethodGet, "/admin/v1/state", q
	case "snapshot":
		return http.MethodPost, "/admin/v1/snapshot", q
	case "spawn":
		if budget > 0 {
			q.Set("budget", fmt.Sprint(budget))
		}
		return http.MethodPost, "/admin/v1/spawn", q
	case "counter":
		q.Set("id", counterID)
		q.Set("enabled", fmt.Sprint(enabled))
		return http.MethodPost, "/admin/v1/counter", q
	default:
		q.Set("x", fmt.Sprint(x))
		q.Set("z", fmt.Sprint(z))
		q.Set("blocked", fmt.Sprint(blocked))
		return http.MethodPost, "/admin/v1/block", q
	}
}
