package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/zsiec/ctv/internal/certs"
	"github.com/zsiec/ctv/internal/ctv"
	"github.com/zsiec/ctv/internal/library"
	"github.com/zsiec/ctv/internal/transport"
)

const dialTimeout = 10 * time.Second

func runServe(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "serve", "")
	addrFlag := fs.String("addr", e.cfg.Serve.Addr, "QUIC listen address")
	apiFlag := fs.String("api-addr", e.cfg.Serve.APIAddr, "HTTPS API listen address, empty to disable")
	dirFlag := fs.String("dir", e.cfg.Serve.Dir, "directory of .ctv files")
	if err := parse(fs, args, 0); err != nil {
		return err
	}

	slog.Info("generating self-signed certificate")
	cert, err := certs.Generate(e.cfg.Serve.CertValidity)
	if err != nil {
		return fmt.Errorf("generate cert: %w", err)
	}
	slog.Info("certificate generated",
		"fingerprint", cert.FingerprintHex(),
		"expires", cert.NotAfter.Format(time.RFC3339),
	)

	lib := library.New(nil)
	n, err := lib.LoadDir(*dirFlag)
	if err != nil {
		return err
	}
	slog.Info("ctv starting",
		"version", version,
		"quic", *addrFlag,
		"api", *apiFlag,
		"dir", *dirFlag,
		"streams", n,
	)

	srv, err := transport.NewServer(transport.ServerConfig{
		Addr:    *addrFlag,
		Cert:    cert,
		Library: lib,
	})
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.Start(ctx)
	})

	if *apiFlag != "" {
		apiSrv := &http.Server{
			Addr:    *apiFlag,
			Handler: srv.APIHandler(),
			TLSConfig: &tls.Config{
				Certificates: []tls.Certificate{cert.TLSCert},
			},
		}
		g.Go(func() error {
			slog.Info("HTTPS API server listening", "addr", *apiFlag)
			if err := apiSrv.ListenAndServeTLS("", ""); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("API server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			return apiSrv.Shutdown(shutdownCtx)
		})
	}

	err = g.Wait()
	st := srv.Stats()
	slog.Info("server stopped",
		"connections", st.Connections,
		"fetches", st.Fetches,
		"lists", st.Lists,
		"bytes_sent", st.BytesSent,
	)
	return err
}

func runFetch(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "fetch", "<name> | -list")
	addrFlag := fs.String("addr", "localhost"+e.cfg.Serve.Addr, "server address")
	fpFlag := fs.String("fingerprint", "", "server certificate SHA-256, hex")
	listFlag := fs.Bool("list", false, "list the server's streams")
	outFlag := fs.String("o", "", "output file (default <name>.ctv)")
	want := 1
	if hasFlag(args, "list") {
		want = 0
	}
	if err := parse(fs, args, want); err != nil {
		return err
	}

	c, err := dial(ctx, *addrFlag, *fpFlag)
	if err != nil {
		return err
	}
	defer c.Close()

	if *listFlag {
		entries, err := c.List(ctx)
		if err != nil {
			return err
		}
		for _, en := range entries {
			fmt.Fprintf(e.stdout, "%-24s %4d fps %7d frames %10d bytes\n", en.Name, en.Framerate, en.FrameCount, en.Size)
		}
		return nil
	}

	name := fs.Arg(0)
	info, blob, err := c.Fetch(ctx, name)
	if err != nil {
		return err
	}
	// Reject a corrupt download before it lands on disk.
	if _, err := ctv.Decompress(blob); err != nil {
		return fmt.Errorf("fetched stream %s: %w", name, err)
	}

	out := *outFlag
	if out == "" {
		out = filepath.Base(name) + ctv.Ext
	}
	if err := os.WriteFile(out, blob, 0o644); err != nil {
		return err
	}
	slog.Info("stream fetched", "name", name, "path", out, "frames", info.FrameCount, "bytes", len(blob))
	return nil
}

func dial(ctx context.Context, addr, fingerprint string) (*transport.Client, error) {
	if fingerprint == "" {
		return nil, errors.New("-fingerprint is required (printed by ctv serve)")
	}
	fp, err := certs.ParseFingerprint(fingerprint)
	if err != nil {
		return nil, err
	}
	dctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	return transport.Dial(dctx, addr, fp, nil)
}

func fetchDecoder(ctx context.Context, addr, fingerprint, name string) (*ctv.Decoder, error) {
	c, err := dial(ctx, addr, fingerprint)
	if err != nil {
		return nil, err
	}
	defer c.Close()
	return c.FetchDecoder(ctx, name)
}

// hasFlag reports whether a boolean flag is set in args before parsing, so
// the positional argument count can depend on it.
func hasFlag(args []string, name string) bool {
	for _, a := range args {
		switch a {
		case "-" + name, "--" + name, "-" + name + "=true", "--" + name + "=true":
			return true
		}
	}
	return false
}
