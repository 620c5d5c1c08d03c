// Package lookup runs the external single-item fetcher as a subprocess and
// returns its JSON output untouched.
package lookup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/Sternrassler/catalog-api/pkg/pagination"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

// Commands understood by the lookup script.
const (
	CommandPlaylist        = "playlist"
	CommandPlaylistPreview = "playlist_preview"
	CommandBatchedPlaylist = "batched_playlist"
	CommandBatchedAlbum    = "batched_album"
	CommandBatchedArtist   = "batched_artist"
	CommandTrack           = "track"
	CommandSearchTracks    = "search_tracks"
)

// PlaylistURLPrefix turns a playlist id into the URL the script expects.
const PlaylistURLPrefix = "https://open.spotify.com/playlist/"

// Defaults for Config.
const (
	DefaultCommand        = "python"
	DefaultScript         = "python/my_spotify_script.py"
	DefaultTimeout        = 30 * time.Second
	DefaultMaxConcurrency = 4
)

// waitDelay bounds how long Run waits for output pipes after a kill.
const waitDelay = 2 * time.Second

// ErrUpstream matches every lookup failure.
var ErrUpstream = errors.New("upstream lookup failed")

var (
	lookupDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "catalog_lookup_duration_seconds",
		Help:    "Lookup subprocess duration by command",
		Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"command"})

	lookupFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "catalog_lookup_failures_total",
		Help: "Lookup failures by command and reason (exit, parse, timeout)",
	}, []string{"command", "reason"})
)

// Error describes a failed lookup.
type Error struct {
	Command  string
	ExitCode int
	Stderr   string
	Output   string
	Reason   string
	Err      error
}

func (e *Error) Error() string {
	switch e.Reason {
	case "parse":
		return "Failed to parse lookup output: " + e.Output
	case "timeout":
		return fmt.Sprintf("lookup %s timed out", e.Command)
	}
	if e.Stderr != "" {
		return e.Stderr
	}
	// A started script that exits quietly reports a fixed message.
	if e.Reason == "exit" && e.ExitCode >= 0 {
		return "lookup script failed"
	}
	if e.Err != nil {
		return fmt.Sprintf("lookup %s failed: %v", e.Command, e.Err)
	}
	return "lookup script failed"
}

// Is makes errors.Is(err, ErrUpstream) true.
func (e *Error) Is(target error) bool {
	return target == ErrUpstream
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Config holds Runner settings.
type Config struct {
	// Command is the interpreter (default: python)
	Command string

	// Script is passed as the first argument to Command
	Script string

	// Timeout bounds one lookup (default: 30s)
	Timeout time.Duration

	// MaxConcurrency bounds concurrent subprocesses (default: 4)
	MaxConcurrency int
}

// DefaultConfig returns the default settings.
func DefaultConfig() Config {
	return Config{
		Command:        DefaultCommand,
		Script:         DefaultScript,
		Timeout:        DefaultTimeout,
		MaxConcurrency: DefaultMaxConcurrency,
	}
}

// Runner executes lookups.
type Runner struct {
	cfg    Config
	sem    *semaphore.Weighted
	logger zerolog.Logger
}

// NewRunner creates a Runner.
func NewRunner(cfg Config, logger zerolog.Logger) *Runner {
	if cfg.Command == "" {
		cfg.Command = DefaultCommand
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = DefaultMaxConcurrency
	}
	return &Runner{
		cfg:    cfg,
		sem:    semaphore.NewWeighted(int64(cfg.MaxConcurrency)),
		logger: logger,
	}
}

// Run executes "<Command> <Script> command args..." and returns its stdout,
// which must be valid JSON.
func (r *Runner) Run(ctx context.Context, command string, args ...string) (json.RawMessage, error) {
	if err := r.sem.Acquire(ctx, 1); err != nil {
		return nil, &Error{Command: command, Reason: "timeout", Err: err}
	}
	defer r.sem.Release(1)

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	argv := make([]string, 0, len(args)+2)
	if r.cfg.Script != "" {
		argv = append(argv, r.cfg.Script)
	}
	argv = append(argv, command)
	argv = append(argv, args...)

	cmd := exec.CommandContext(ctx, r.cfg.Command, argv...)
	cmd.WaitDelay = waitDelay
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)
	lookupDuration.WithLabelValues(command).Observe(duration.Seconds())

	if ctx.Err() == context.DeadlineExceeded {
		return nil, r.fail(&Error{Command: command, Reason: "timeout", Err: ctx.Err()}, args, duration)
	}

	if err != nil {
		lerr := &Error{Command: command, Reason: "exit", Stderr: strings.TrimSpace(stderr.String()), ExitCode: -1, Err: err}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			lerr.ExitCode = exitErr.ExitCode()
		}
		return nil, r.fail(lerr, args, duration)
	}

	out := bytes.TrimSpace(stdout.Bytes())
	if !json.Valid(out) {
		return nil, r.fail(&Error{Command: command, Reason: "parse", Output: string(out)}, args, duration)
	}

	r.logger.Debug().
		Str("command", command).
		Strs("args", args).
		Dur("duration", duration).
		Msg("Lookup completed")

	return json.RawMessage(out), nil
}

func (r *Runner) fail(err *Error, args []string, duration time.Duration) error {
	lookupFailures.WithLabelValues(err.Command, err.Reason).Inc()
	r.logger.Error().
		Err(err).
		Str("command", err.Command).
		Strs("args", args).
		Int("exit_code", err.ExitCode).
		Dur("duration", duration).
		Msg("Lookup failed")
	return err
}

// Playlist fetches a playlist with its tracks.
func (r *Runner) Playlist(ctx context.Context, id string) (json.RawMessage, error) {
	return r.Run(ctx, CommandPlaylist, PlaylistURLPrefix+id)
}

// PlaylistPreview fetches a playlist overview.
func (r *Runner) PlaylistPreview(ctx context.Context, id string) (json.RawMessage, error) {
	return r.Run(ctx, CommandPlaylistPreview, id)
}

// BatchedPlaylist fetches one window of a playlist's tracks.
func (r *Runner) BatchedPlaylist(ctx context.Context, id string, w pagination.OffsetWindow) (json.RawMessage, error) {
	return r.Run(ctx, CommandBatchedPlaylist, id, strconv.Itoa(w.Offset), strconv.Itoa(w.Limit))
}

// BatchedAlbum fetches one window of an album's tracks.
func (r *Runner) BatchedAlbum(ctx context.Context, id string, w pagination.OffsetWindow) (json.RawMessage, error) {
	return r.Run(ctx, CommandBatchedAlbum, id, strconv.Itoa(w.Offset), strconv.Itoa(w.Limit))
}

// BatchedArtist fetches one window of an artist's catalog.
func (r *Runner) BatchedArtist(ctx context.Context, id string, w pagination.OffsetWindow) (json.RawMessage, error) {
	return r.Run(ctx, CommandBatchedArtist, id, strconv.Itoa(w.Offset), strconv.Itoa(w.Limit))
}

// Track fetches one track.
func (r *Runner) Track(ctx context.Context, id string) (json.RawMessage, error) {
	return r.Run(ctx, CommandTrack, id)
}

// SearchTracks fetches one window of track search results.
func (r *Runner) SearchTracks(ctx context.Context, query string, w pagination.OffsetWindow) (json.RawMessage, error) {
	return r.Run(ctx, CommandSearchTracks, query, strconv.Itoa(w.Offset), strconv.Itoa(w.Limit))
}
