// Command vimeonet fetches a video API resource and lists its connections.
//
// Usage:
//
//	vimeonet https://api.vimeo.com/videos/76979871
//	vimeonet -offline https://api.vimeo.com/me     # cached copy only
//	VIMEO_SESSION=... vimeonet https://api.vimeo.com/me/videos
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/codeGROOVE-dev/vimeonet/pkg/apijson"
	"github.com/codeGROOVE-dev/vimeonet/pkg/auth"
	"github.com/codeGROOVE-dev/vimeonet/pkg/cachecontrol"
	"github.com/codeGROOVE-dev/vimeonet/pkg/config"
	"github.com/codeGROOVE-dev/vimeonet/pkg/httpcache"
	"github.com/codeGROOVE-dev/vimeonet/pkg/model"
	"github.com/codeGROOVE-dev/vimeonet/pkg/netutil"
	"github.com/codeGROOVE-dev/vimeonet/pkg/transport"
)

var errUsage = errors.New("usage")

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// resource is the part of an API response this command reads.
type resource struct {
	Metadata *model.Metadata
	URI      string
}

type connection struct {
	Name    string
	URI     string
	Options []string
	Total   int
}

type report struct {
	Query        map[string]string
	URL          string
	URI          string
	CacheControl string
	Connections  []connection
	Status       int
	Cache        httpcache.Stats
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	fs := flag.NewFlagSet("vimeonet", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "config file (default ~/.config/vimeonet/config.toml)")
	debug := fs.Bool("debug", false, "enable debug logging")
	verbose := fs.Bool("v", false, "verbose logging (same as -debug)")
	browser := fs.Bool("browser", false, "read session cookies from browser stores")
	insecure := fs.Bool("insecure", false, "DISABLE TLS certificate verification (development only)")
	noCache := fs.Bool("no-cache", false, "disable the response cache")
	offline := fs.Bool("offline", false, "serve only from the response cache")
	refresh := fs.Bool("refresh", false, "bypass cached responses and fetch from the network")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, "Usage: vimeonet [options] <url>")
		fmt.Fprintln(stderr, "\nOptions:")
		fs.PrintDefaults()
		fmt.Fprintln(stderr, "\nSession cookies are read from:")
		for _, v := range (auth.EnvSource{}).EnvVars() {
			fmt.Fprintf(stderr, "  $%s\n", v)
		}
		return errUsage
	}
	target := fs.Arg(0)

	logLevel := slog.LevelInfo
	if *debug || *verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: logLevel}))

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *browser {
		cfg.Cookies.Browser = true
	}
	if *insecure {
		cfg.Trust.Mode = config.TrustInsecure
	}
	if *noCache {
		cfg.Cache.Enabled = false
	}

	b := transport.NewBuilder()
	cleanup, err := cfg.Apply(ctx, b, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := cleanup(); err != nil {
			logger.Warn("failed to close cache", "error", err)
		}
	}()

	h, err := b.Build()
	if err != nil {
		return err
	}
	defer h.CloseIdleConnections()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, http.NoBody)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.vimeo.*+json;version=3.4")
	switch {
	case *offline:
		cachecontrol.ForceCache().Apply(req.Header)
	case *refresh:
		cachecontrol.ForceNetwork().Apply(req.Header)
	default:
	}

	resp, err := h.Do(req)
	if err != nil {
		return fmt.Errorf("fetch %s: %w", target, err)
	}
	defer resp.Body.Close() //nolint:errcheck // read-only

	if err := httpcache.CheckStatus(resp); err != nil {
		return err
	}

	var res resource
	if err := apijson.Default().DecodeFrom(resp.Body, &res); err != nil {
		return fmt.Errorf("decode %s: %w", target, err)
	}

	rep := report{
		URL:          target,
		URI:          res.URI,
		Status:       resp.StatusCode,
		Query:        netutil.SimpleQueryMap(target),
		CacheControl: netutil.CacheControlBuilder(cachecontrol.Parse(resp.Header)).Build().String(),
		Connections:  []connection{},
		Cache:        h.CacheStats(),
	}
	if res.Metadata != nil {
		for _, name := range res.Metadata.Connections.Names() {
			c := res.Metadata.Connections.Get(name)
			rep.Connections = append(rep.Connections, connection{Name: name, URI: c.URI, Options: c.Options, Total: c.Total})
		}
	}
	logger.DebugContext(ctx, "fetched resource", "uri", res.URI, "connections", len(rep.Connections))

	if err := apijson.Default().EncodeTo(stdout, rep); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	_, err = fmt.Fprintln(stdout)
	return err
}
