// Command lsnp is the interactive LSNP client: it joins the local network,
// announces presence, and exposes posts, direct messages, groups, file
// transfer, and tic-tac-toe through a line-based prompt.
package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/lsnp-net/lsnp"
)

func main() {
	opts := lsnp.NewOptions().FromEnv()

	// Flags override the environment; their defaults are whatever FromEnv
	// left in place.
	flag.StringVar(&opts.Username, "username", opts.Username, "identity username (required)")
	flag.StringVar(&opts.DisplayName, "display", opts.DisplayName, "display name announced to peers")
	flag.StringVar(&opts.Status, "status", opts.Status, "status line announced to peers")
	flag.StringVar(&opts.ListenAddr, "listen", opts.ListenAddr, "UDP listen address")
	flag.StringVar(&opts.DownloadDir, "downloads", opts.DownloadDir, "directory for received files")
	flag.DurationVar(&opts.PresenceInterval, "presence-interval", opts.PresenceInterval, "gap between presence broadcasts")
	flag.BoolVar(&opts.MDNS, "mdns", opts.MDNS, "also announce via multicast DNS")
	flag.BoolVar(&opts.Verbose, "verbose", opts.Verbose, "enable debug logging")
	flag.Parse()

	applyLogLevel(opts.Verbose)

	stdin := bufio.NewScanner(os.Stdin)
	if opts.Username == "" {
		opts.Username = promptLine(stdin, "Username")
	}
	if opts.Username == "" {
		fmt.Fprintln(os.Stderr, "a username is required")
		os.Exit(1)
	}
	if opts.DisplayName == "" {
		opts.DisplayName = opts.Username
	}

	node, err := lsnp.New(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "startup failed: %v\n", err)
		os.Exit(1)
	}

	// Ctrl+C still revokes this session's tokens before the process ends.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt)
	go func() {
		<-sigChan
		fmt.Println("\nshutting down")
		node.Stop()
		os.Exit(0)
	}()

	node.Start()
	fmt.Printf("You are %s on %v. Type \"help\" for commands.\n", node.SelfID(), node.Addr())

	newREPL(node, stdin, os.Stdout, opts.Verbose).run()
	node.Stop()
}

// applyLogLevel keeps the prompt readable unless debugging was asked for.
func applyLogLevel(verbose bool) {
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.WarnLevel)
	}
}

func promptLine(in *bufio.Scanner, prompt string) string {
	fmt.Printf("%s: ", prompt)
	if !in.Scan() {
		return ""
	}
	return strings.TrimSpace(in.Text())
}
