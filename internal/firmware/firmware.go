// Package firmware downloads a new controller image in the background and stages it
// next to the running binary for the service manager to pick up.
package firmware

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
)

var (
	ErrBusy          = errors.New("firmware update already in progress")
	ErrNoContent     = errors.New("firmware response has no content length")
	ErrTooManyHops   = errors.New("too many redirects")
	ErrShortDownload = errors.New("firmware download truncated")
)

const (
	MaxRedirects     = 5
	DefaultUserAgent = "zone-heater/1.0"
)

// Notifier is told when an image has been staged or has failed.
type Notifier interface {
	Send(title, message string) error
}

type Updater struct {
	client    *http.Client
	dest      string
	userAgent string
	notifier  Notifier
	ctx       context.Context

	busy atomic.Bool
	done chan error
}

// New returns an updater that stages images at dest. Downloads started by Request stop
// when ctx is cancelled.
func New(ctx context.Context, dest string, notifier Notifier) *Updater {
	return &Updater{
		client: &http.Client{
			Timeout: 10 * time.Minute,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) > MaxRedirects {
					return ErrTooManyHops
				}
				log.Debug().Str("url", req.URL.String()).Msg("Firmware download redirected")
				return nil
			},
		},
		dest:      dest,
		userAgent: DefaultUserAgent,
		notifier:  notifier,
		ctx:       ctx,
		done:      make(chan error, 1),
	}
}

// Request starts a download and returns immediately. Only one download runs at a time.
func (u *Updater) Request(url string) error {
	if !u.busy.CompareAndSwap(false, true) {
		return ErrBusy
	}

	go func() {
		defer u.busy.Store(false)

		n, err := u.Download(u.ctx, url)
		if err != nil {
			log.Error().Err(err).Str("url", url).Msg("Firmware update failed")
			u.notify("Firmware update failed", err.Error())
		} else {
			log.Info().Str("path", u.dest).Str("size", humanize.Bytes(uint64(n))).Msg("Firmware staged")
			u.notify("Firmware staged", fmt.Sprintf("%s staged at %s", humanize.Bytes(uint64(n)), u.dest))
		}

		select {
		case u.done <- err:
		default:
		}
	}()
	return nil
}

// Done reports the outcome of each background download.
func (u *Updater) Done() <-chan error {
	return u.done
}

// Download fetches url and atomically replaces the staged image. It returns the number
// of bytes written.
func (u *Updater) Download(ctx context.Context, url string) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", u.userAgent)

	resp, err := u.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("fetch firmware: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("fetch firmware: unexpected status %d", resp.StatusCode)
	}
	if resp.ContentLength <= 0 {
		return 0, ErrNoContent
	}

	if err := os.MkdirAll(filepath.Dir(u.dest), 0o755); err != nil {
		return 0, fmt.Errorf("create staging dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(u.dest), filepath.Base(u.dest)+".*.tmp")
	if err != nil {
		return 0, fmt.Errorf("create staging file: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, resp.Body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return n, fmt.Errorf("write firmware: %w", err)
	}
	if n != resp.ContentLength {
		return n, fmt.Errorf("%w: got %d of %d bytes", ErrShortDownload, n, resp.ContentLength)
	}

	if err := os.Chmod(tmp.Name(), 0o755); err != nil {
		return n, fmt.Errorf("chmod staged firmware: %w", err)
	}
	if err := os.Rename(tmp.Name(), u.dest); err != nil {
		return n, fmt.Errorf("stage firmware: %w", err)
	}
	return n, nil
}

func (u *Updater) notify(title, message string) {
	if u.notifier == nil {
		return
	}
	if err := u.notifier.Send(title, message); err != nil {
		log.Warn().Err(err).Msg("Failed to send firmware notification")
	}
}
