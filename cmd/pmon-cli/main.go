// Command pmon-cli queries and controls a running pmond.
//
// Usage:
//
//	pmon-cli [flags] <command> [args]
//	pmon-cli [flags]                   # interactive shell
//
// Examples:
//
//	pmon-cli show fans
//	pmon-cli -json show component thermal ASIC
//	pmon-cli lpmode 8 on
//	pmon-cli watch thermal attrs=temperature min=5s
//	pmon-cli -discover show chassis
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/netplatform/pmon-go/cmd/pmon-cli/commands"
	"github.com/netplatform/pmon-go/pkg/client"
	"github.com/netplatform/pmon-go/pkg/discovery"
)

func main() {
	addr := flag.String("addr", envOr("PMON_ADDR", "127.0.0.1:8787"), "pmond API address (host:port or URL)")
	asJSON := flag.Bool("json", false, "Print JSON instead of tables")
	timeout := flag.Duration("timeout", 10*time.Second, "Request timeout")
	discover := flag.Bool("discover", false, "Locate pmond via mDNS instead of -addr")
	iface := flag.String("interface", "", "Network interface for -discover")
	instance := flag.String("instance", "", "Instance name to pick with -discover")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: pmon-cli [flags] [command]\n\nFlags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\n%s\n", commands.Help)
	}
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer cancel()

	base := *addr
	if *discover {
		svc, err := locate(ctx, *iface, *instance)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		base = svc.URL()
		fmt.Fprintf(os.Stderr, "Found %s (%s) at %s\n", svc.Instance, svc.Platform, base)
	}

	cli := &commands.CLI{
		Client: client.New(base).SetTimeout(*timeout),
		Out:    os.Stdout,
		JSON:   *asJSON,
	}

	if flag.NArg() == 0 {
		if err := runShell(ctx, cli, base); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	// One-shot commands stop on Ctrl-C, which matters for watch.
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	if err := cli.Exec(ctx, flag.Args()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.Is(err, commands.ErrUsage) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

// locate browses for pmond instances and picks the one named instance, or
// the only one found.
func locate(ctx context.Context, iface, instance string) (*discovery.Service, error) {
	found, err := discovery.Find(ctx, discovery.BrowserConfig{Interface: iface})
	if err != nil {
		return nil, err
	}
	for _, svc := range found {
		if instance != "" && svc.Instance == instance {
			return svc, nil
		}
	}
	switch {
	case instance != "":
		return nil, fmt.Errorf("instance %q not found (%d seen)", instance, len(found))
	case len(found) == 0:
		return nil, errors.New("no pmond found")
	case len(found) > 1:
		for _, svc := range found {
			fmt.Fprintf(os.Stderr, "  %s\t%s\t%s\n", svc.Instance, svc.Platform, svc.URL())
		}
		return nil, errors.New("several pmond instances found, pick one with -instance")
	}
	return found[0], nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
