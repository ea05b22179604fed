package district

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-choropleth/internal/resilience"
)

// maxBody caps a fetched dataset.
const maxBody = 64 << 20

// ErrTooLarge is returned when a fetched dataset exceeds the body cap.
var ErrTooLarge = errors.New("district: dataset too large")

// Loader fetches and normalizes district datasets.
type Loader struct {
	Client  *http.Client
	BaseDir string
	Timeout time.Duration
	Retry   resilience.RetryConfig
	Log     zerolog.Logger
	// MaxBytes caps a fetched body; zero means 64 MiB.
	MaxBytes int64
}

// NewLoader creates a loader that resolves relative paths against baseDir.
func NewLoader(baseDir string, timeout time.Duration, retry resilience.RetryConfig, log zerolog.Logger) *Loader {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Loader{
		Client:  &http.Client{},
		BaseDir: baseDir,
		Timeout: timeout,
		Retry:   retry,
		Log:     log,
	}
}

// IsRemote reports whether source is an http(s) URL.
func IsRemote(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// Load retrieves the collection at source (path or URL) and normalizes it.
func (l *Loader) Load(ctx context.Context, source string) (*Collection, error) {
	start := time.Now()

	var data []byte
	var err error
	if IsRemote(source) {
		retry := l.Retry
		if retry.OnRetry == nil {
			retry.OnRetry = resilience.RetryLogger(l.Log, "district.fetch")
		}
		data, err = resilience.DoVal(ctx, retry, func(ctx context.Context) ([]byte, error) {
			return l.fetch(ctx, source)
		})
	} else {
		data, err = os.ReadFile(l.resolve(source))
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetch, eris.Wrapf(err, "load %s", source))
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, eris.Wrapf(err, "parse %s", source))
	}

	invalid := Normalize(fc)
	if invalid > 0 {
		l.Log.Debug().Str("source", source).Int("invalid", invalid).Msg("pop2010 values coerced to NaN")
	}
	l.Log.Info().
		Str("source", source).
		Int("features", len(fc.Features)).
		Dur("duration", time.Since(start)).
		Msg("district dataset loaded")

	return &Collection{fc: fc, invalid: invalid}, nil
}

func (l *Loader) resolve(path string) string {
	if filepath.IsAbs(path) || l.BaseDir == "" {
		return path
	}
	return filepath.Join(l.BaseDir, path)
}

func (l *Loader) fetch(ctx context.Context, url string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, l.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/geo+json, application/json")

	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
		if resilience.IsTransientHTTPStatus(resp.StatusCode) {
			return nil, resilience.NewTransientError(err, resp.StatusCode)
		}
		return nil, err
	}
	limit := l.MaxBytes
	if limit <= 0 {
		limit = maxBody
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrTooLarge, url, limit)
	}
	return data, nil
}
