// Package downloader is the resumable, parallel-segmented download engine.
//
// A run resolves whether it is a fresh download or the resumption of a
// persisted descriptor, probes the remote length, plans one byte range per
// segment, fetches all segments concurrently into part files and, once every
// segment succeeded, merges the parts in index order into the target.
//
// # Failure handling
//
// Segment failures never cancel siblings. The coordinator waits for every
// worker and reports all failures together in an *AggregateError; the
// descriptor and part files are left in place so the next invocation with the
// same output path resumes instead of restarting.
//
// # Degradation
//
// When the remote length cannot be determined the run falls back to a single
// unranged segment and does not persist a descriptor.
package downloader

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/tanq16/rget/internal/partfile"
	"github.com/tanq16/rget/internal/state"
	"github.com/tanq16/rget/internal/utils"
)

// State is a step of the coordinator's state machine.
type State int

const (
	StateInit State = iota
	StateResolved
	StatePlanning
	StateRunning
	StateSucceeded
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateResolved:
		return "resolved"
	case StatePlanning:
		return "planning"
	case StateRunning:
		return "running"
	case StateSucceeded:
		return "succeeded"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

type Mode int

const (
	ModeFresh Mode = iota
	ModeResumed
)

func (m Mode) String() string {
	if m == ModeResumed {
		return "resumed"
	}
	return "fresh"
}

// Config configures a Downloader.
type Config struct {
	// Parallel is the segment count for fresh downloads. A resumed
	// descriptor's count always wins.
	Parallel int

	// RateLimit caps the aggregate bytes per second across all segments.
	// Zero means unlimited.
	RateLimit int64
}

// Outcome summarizes a run.
type Outcome struct {
	State       State
	Mode        Mode
	URL         string
	Target      string
	TotalLength int64 // -1 when the remote length is unknown
	Segments    int   // segments actually executed
	Size        int64 // merged size on success
	Resumable   bool  // a descriptor exists for this target after the run
}

type Downloader struct {
	client   utils.HTTPDoer
	sink     ProgressSink
	log      zerolog.Logger
	parallel int
	limiter  *rate.Limiter
}

// New returns a Downloader sharing client across all of its workers. A nil sink
// discards progress.
func New(client utils.HTTPDoer, cfg Config, sink ProgressSink, log zerolog.Logger) (*Downloader, error) {
	if err := utils.ValidateParallel(cfg.Parallel); err != nil {
		return nil, err
	}
	if cfg.RateLimit < 0 {
		return nil, fmt.Errorf("rate limit must not be negative, got %d", cfg.RateLimit)
	}
	if sink == nil {
		sink = NopSink{}
	}
	d := &Downloader{
		client:   client,
		sink:     sink,
		log:      utils.ComponentLogger(log, "downloader"),
		parallel: cfg.Parallel,
	}
	if cfg.RateLimit > 0 {
		d.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), utils.DefaultBufferSize)
	}
	return d, nil
}

// Download resolves input (a URL or a descriptor path) and runs it.
func (d *Downloader) Download(ctx context.Context, input, output string) (*Outcome, error) {
	src, err := ResolveSource(input, output)
	if err != nil {
		return &Outcome{State: StateFailed, TotalLength: -1}, err
	}
	return d.Run(ctx, src)
}

// Run drives one download to success or failure. The returned Outcome is
// always non-nil.
func (d *Downloader) Run(ctx context.Context, src Source) (*Outcome, error) {
	out := &Outcome{State: StateInit, URL: src.URL, Target: src.Target, TotalLength: -1}
	log := d.log.With().Str("run", uuid.NewString()[:8]).Str("output", src.Target).Logger()
	fail := func(err error) (*Outcome, error) {
		out.State = StateFailed
		log.Debug().Str("state", out.State.String()).Msg("run finished")
		return out, err
	}

	desc, mode, err := d.resolve(src)
	if err != nil {
		return fail(err)
	}
	out.State, out.Mode, out.URL = StateResolved, mode, desc.URL
	out.Resumable = mode == ModeResumed
	log.Info().Str("mode", mode.String()).Str("url", desc.URL).Int("parallel", desc.Parallel).Msg("download resolved")

	out.State = StatePlanning
	length := d.probe(ctx, desc.URL, log)
	out.TotalLength = length
	count := desc.Parallel
	scratch := mode == ModeFresh
	if length < 0 {
		log.Warn().Msg("could not determine length of file, disabling parallel download")
		count, scratch = 1, true
	} else {
		log.Info().Str("size", utils.FormatBytes(length)).Msg("remote file size")
	}

	var existing []int64
	if !scratch {
		existing, err = existingSizes(src.Target, count)
		if err != nil {
			return fail(err)
		}
	}
	segments, err := PlanSegments(length, count, existing)
	if err != nil {
		return fail(err)
	}
	var inconsistent []error
	for _, seg := range segments {
		if seg.Inconsistent() {
			inconsistent = append(inconsistent, &InconsistentResumeStateError{Segment: seg.Index, Existing: seg.Existing, Planned: seg.Span})
		}
	}
	if err := aggregate(inconsistent); err != nil {
		return fail(err)
	}
	out.Segments = len(segments)

	out.State = StateRunning
	if mode == ModeFresh && length >= 0 {
		if err := desc.Create(); err != nil {
			log.Error().Err(err).Msg("could not save download state, an interrupted download will restart")
		} else {
			out.Resumable = true
		}
	}
	log.Info().Int("connections", len(segments)).Msg("starting segments")

	if err := aggregate(d.runWorkers(ctx, desc.URL, src.Target, scratch, segments, log)); err != nil {
		return fail(err)
	}

	log.Info().Msg("merging parts")
	size, err := Merge(src.Target, len(segments), log)
	if err != nil {
		return fail(err)
	}
	out.Size = size
	for i := len(segments); i < desc.Parallel; i++ {
		// parts left over when a resumed descriptor degraded to one segment
		if err := partfile.Remove(src.Target, i); err != nil {
			log.Warn().Err(err).Int("segment", i).Msg("could not remove stale part")
		}
	}
	if out.Resumable {
		if err := desc.Delete(); err != nil {
			return fail(err)
		}
		out.Resumable = false
	}
	out.State = StateSucceeded
	log.Info().Str("size", utils.FormatBytes(size)).Msg("finished merging")
	return out, nil
}

// resolve loads the descriptor for src.Target or prepares a fresh one.
func (d *Downloader) resolve(src Source) (*state.Descriptor, Mode, error) {
	desc, err := state.Load(src.Target)
	switch {
	case err == nil:
		if src.URL != "" {
			desc.URL = src.URL
		}
		return desc, ModeResumed, nil
	case errors.Is(err, state.ErrNotFound):
		if src.URL == "" {
			return nil, ModeFresh, ErrMissingSource
		}
		return state.New(src.Target, src.URL, d.parallel), ModeFresh, nil
	default:
		return nil, ModeFresh, err
	}
}

// probe returns the remote length, or -1 when it cannot be determined. Failure
// here degrades the run rather than failing it.
func (d *Downloader) probe(ctx context.Context, rawURL string, log zerolog.Logger) int64 {
	for _, method := range []string{http.MethodHead, http.MethodGet} {
		req, err := http.NewRequestWithContext(ctx, method, rawURL, nil)
		if err != nil {
			log.Debug().Err(err).Msg("could not build probe request")
			return -1
		}
		resp, err := d.client.Do(req)
		if err != nil {
			log.Debug().Err(err).Str("method", method).Msg("length probe failed")
			continue
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			log.Debug().Int("status", resp.StatusCode).Str("method", method).Msg("length probe rejected")
			continue
		}
		if resp.Header.Get("Accept-Ranges") == "none" {
			log.Debug().Msg("server refuses range requests")
			return -1
		}
		if resp.ContentLength >= 0 {
			return resp.ContentLength
		}
	}
	return -1
}

func existingSizes(target string, count int) ([]int64, error) {
	sizes := make([]int64, count)
	var errs []error
	for i := range count {
		n, err := partfile.Size(target, i)
		if err != nil {
			errs = append(errs, &TransportError{Segment: i, Op: "stat part file", Err: err})
			continue
		}
		sizes[i] = n
	}
	return sizes, aggregate(errs)
}

// runWorkers starts one worker per segment and blocks until all have reported.
// Results are indexed by segment.
func (d *Downloader) runWorkers(ctx context.Context, rawURL, target string, scratch bool, segments []Segment, log zerolog.Logger) []error {
	events := make(chan event, 4*len(segments))
	pumpDone := make(chan struct{})
	go pump(events, d.sink, pumpDone)

	results := make([]error, len(segments))
	var g errgroup.Group
	for i, seg := range segments {
		w := &worker{
			client:  d.client,
			url:     rawURL,
			target:  target,
			fresh:   scratch,
			limiter: d.limiter,
			events:  events,
			log:     log,
		}
		g.Go(func() error {
			results[i] = w.run(ctx, seg)
			return nil
		})
	}
	g.Wait()
	close(events)
	<-pumpDone
	return results
}
