// Package ftpmirror copies a remote dataset folder from an FTP server into a
// local folder, skipping files already present with the same size.
package ftpmirror

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jlaffaye/ftp"
)

// Client is the FTP surface the mirror needs.
type Client interface {
	List(dir string) ([]*ftp.Entry, error)
	Fetch(file string) (io.ReadCloser, error)
	Quit() error
}

// Dialer opens an authenticated Client.
type Dialer func(ctx context.Context) (Client, error)

// Options configures a Mirror.
type Options struct {
	Addr      string
	User      string
	Password  string
	RemoteDir string
	Dest      string
	Timeout   time.Duration
	// MaxElapsed bounds the retries of each remote operation.
	MaxElapsed time.Duration
}

// Result lists the files handled by a Sync, by base name.
type Result struct {
	Downloaded []string
	Skipped    []string
}

type Mirror struct {
	opts    Options
	dial    Dialer
	backoff func() backoff.BackOff
	logger  *slog.Logger
}

// New returns a Mirror that dials opts.Addr.
func New(opts Options, logger *slog.Logger) *Mirror {
	if opts.User == "" {
		opts.User, opts.Password = "anonymous", "anonymous"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxElapsed <= 0 {
		opts.MaxElapsed = 2 * time.Minute
	}
	m := &Mirror{opts: opts, logger: logger}
	m.dial = m.dialFTP
	m.backoff = func() backoff.BackOff {
		bo := backoff.NewExponentialBackOff()
		bo.MaxElapsedTime = m.opts.MaxElapsed
		return bo
	}
	return m
}

type serverConn struct{ *ftp.ServerConn }

func (c serverConn) Fetch(file string) (io.ReadCloser, error) {
	resp, err := c.Retr(file)
	if err != nil {
		return nil, err
	}
	return resp, nil
}

func (m *Mirror) dialFTP(ctx context.Context) (Client, error) {
	conn, err := ftp.Dial(m.opts.Addr, ftp.DialWithTimeout(m.opts.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("ftp dial: %w", err)
	}
	if err := conn.Login(m.opts.User, m.opts.Password); err != nil {
		conn.Quit() //nolint:errcheck // already failing
		return nil, backoff.Permanent(fmt.Errorf("ftp login: %w", err))
	}
	return serverConn{conn}, nil
}

func (m *Mirror) retry(ctx context.Context, op func() error) error {
	return backoff.Retry(op, backoff.WithContext(m.backoff(), ctx))
}

// Sync lists RemoteDir and downloads every regular file missing from Dest or
// differing in size. Each file is written to a temporary name and renamed, so
// an interrupted Sync never leaves a truncated raster behind.
func (m *Mirror) Sync(ctx context.Context) (*Result, error) {
	if err := os.MkdirAll(m.opts.Dest, 0o755); err != nil {
		return nil, err
	}

	var client Client
	var entries []*ftp.Entry
	err := m.retry(ctx, func() error {
		c, err := m.dial(ctx)
		if err != nil {
			return err
		}
		list, err := c.List(m.opts.RemoteDir)
		if err != nil {
			c.Quit() //nolint:errcheck // retrying with a fresh connection
			return fmt.Errorf("ftp list %s: %w", m.opts.RemoteDir, err)
		}
		client, entries = c, list
		return nil
	})
	if err != nil {
		return nil, err
	}
	defer func() { _ = client.Quit() }()

	res := &Result{}
	for _, e := range entries {
		if e.Type != ftp.EntryTypeFile {
			continue
		}
		if err := ctx.Err(); err != nil {
			return res, err
		}
		local := filepath.Join(m.opts.Dest, e.Name)
		if info, err := os.Stat(local); err == nil && uint64(info.Size()) == e.Size {
			res.Skipped = append(res.Skipped, e.Name)
			continue
		}

		remote := path.Join(m.opts.RemoteDir, e.Name)
		err := m.retry(ctx, func() error {
			if err := m.download(client, remote, local); err != nil {
				var perm *backoff.PermanentError
				if errors.As(err, &perm) {
					return err
				}
				// The control connection may be gone; redial for the next attempt.
				_ = client.Quit()
				c, derr := m.dial(ctx)
				if derr != nil {
					return errors.Join(err, derr)
				}
				client = c
				return err
			}
			return nil
		})
		if err != nil {
			return res, fmt.Errorf("download %s: %w", e.Name, err)
		}
		m.logger.Info("mirrored file", "file", e.Name, "bytes", e.Size)
		res.Downloaded = append(res.Downloaded, e.Name)
	}
	return res, nil
}

func (m *Mirror) download(c Client, remote, local string) error {
	body, err := c.Fetch(remote)
	if err != nil {
		return err
	}
	defer body.Close() //nolint:errcheck // read side

	tmp, err := os.CreateTemp(filepath.Dir(local), "."+filepath.Base(local)+".part-*")
	if err != nil {
		return backoff.Permanent(err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after rename

	if _, err := io.Copy(tmp, body); err != nil {
		tmp.Close() //nolint:errcheck // already failing
		return err
	}
	if err := tmp.Close(); err != nil {
		return backoff.Permanent(err)
	}
	if err := os.Rename(tmp.Name(), local); err != nil {
		return backoff.Permanent(err)
	}
	return nil
}
