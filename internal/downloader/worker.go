package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"runtime/debug"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tanq16/rget/internal/partfile"
	"github.com/tanq16/rget/internal/utils"
)

// worker fetches one segment into its part file. Each worker owns its part file
// exclusively; only the transport, limiter and events channel are shared.
type worker struct {
	client  utils.HTTPDoer
	url     string
	target  string
	fresh   bool // truncate instead of appending to an existing part
	limiter *rate.Limiter
	events  chan<- event
	log     zerolog.Logger
}

// run executes the segment and reports exactly one Complete or Fail event.
// A panic inside the fetch is converted into a *WorkerPanicError.
func (w *worker) run(ctx context.Context, seg Segment) (err error) {
	log := w.log.With().Int("segment", seg.Index).Logger()
	defer func() {
		if r := recover(); r != nil {
			err = &WorkerPanicError{Segment: seg.Index, Value: r, Stack: debug.Stack()}
		}
		if err != nil {
			log.Error().Err(err).Msg("segment failed")
			w.events <- event{kind: eventFail, segment: seg.Index, err: err}
			return
		}
		w.events <- event{kind: eventComplete, segment: seg.Index}
	}()

	if seg.Complete {
		// still materialize the part so zero-length segments exist for the merge
		part, err := w.openPart(seg)
		if err != nil {
			return err
		}
		log.Debug().Int64("size", seg.Span).Msg("part already downloaded, skipping")
		return part.Close()
	}
	return w.fetch(ctx, seg, log)
}

func (w *worker) fetch(ctx context.Context, seg Segment, log zerolog.Logger) error {
	part, err := w.openPart(seg)
	if err != nil {
		return err
	}
	defer part.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.url, nil)
	if err != nil {
		return &TransportError{Segment: seg.Index, Op: "build request", Err: err}
	}
	if seg.Ranged() {
		req.Header.Set("Range", seg.Range.Header())
		log.Debug().Str("range", seg.Range.Header()).Msg("sending range request")
	} else {
		log.Debug().Msg("sending unranged request")
	}
	resp, err := w.client.Do(req)
	if err != nil {
		return &TransportError{Segment: seg.Index, Op: "request", Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusPartialContent:
		return &UnexpectedStatusError{Segment: seg.Index, StatusCode: resp.StatusCode, Status: resp.Status}
	case resp.StatusCode == http.StatusOK && seg.Ranged() && seg.Range.Start != 0:
		// the server ignored the range; its body starts at byte 0
		return &UnexpectedStatusError{Segment: seg.Index, StatusCode: resp.StatusCode, Status: resp.Status}
	}

	w.events <- event{kind: eventRestore, segment: seg.Index, total: expectedTotal(seg, resp.ContentLength), n: seg.Existing}

	written, err := w.stream(ctx, seg, resp.Body, part)
	if err != nil {
		return err
	}
	if remaining := seg.Remaining(); remaining >= 0 && written != remaining {
		return &TransportError{
			Segment: seg.Index,
			Op:      "read body",
			Err:     fmt.Errorf("%w: expected %d bytes, got %d", io.ErrUnexpectedEOF, remaining, written),
		}
	}
	if err := part.Sync(); err != nil {
		return &TransportError{Segment: seg.Index, Op: "sync part file", Err: err}
	}
	log.Debug().Int64("downloaded", written).Int64("resumed", seg.Existing).Msg("segment completed")
	return nil
}

func (w *worker) openPart(seg Segment) (*partfile.File, error) {
	if w.fresh {
		part, err := partfile.Create(w.target, seg.Index)
		if err != nil {
			return nil, &TransportError{Segment: seg.Index, Op: "create part file", Err: err}
		}
		return part, nil
	}
	part, existing, err := partfile.OpenOrCreate(w.target, seg.Index)
	if err != nil {
		return nil, &TransportError{Segment: seg.Index, Op: "open part file", Err: err}
	}
	if existing != seg.Existing {
		part.Close()
		return nil, &TransportError{
			Segment: seg.Index,
			Op:      "open part file",
			Err:     fmt.Errorf("part file changed since planning: %d bytes, planned from %d", existing, seg.Existing),
		}
	}
	return part, nil
}

// stream copies body into part with a single reused buffer, never writing past
// the segment's remaining span.
func (w *worker) stream(ctx context.Context, seg Segment, body io.Reader, part io.Writer) (int64, error) {
	remaining := seg.Remaining()
	buffer := make([]byte, utils.DefaultBufferSize)
	var written int64
	for {
		chunk := len(buffer)
		if remaining >= 0 {
			if written >= remaining {
				return written, nil
			}
			chunk = int(min(int64(chunk), remaining-written))
		}
		bytesRead, readErr := body.Read(buffer[:chunk])
		if bytesRead > 0 {
			if w.limiter != nil {
				if err := w.limiter.WaitN(ctx, bytesRead); err != nil {
					return written, &TransportError{Segment: seg.Index, Op: "rate limit", Err: err}
				}
			}
			if _, err := part.Write(buffer[:bytesRead]); err != nil {
				return written, &TransportError{Segment: seg.Index, Op: "write part file", Err: err}
			}
			written += int64(bytesRead)
			w.events <- event{kind: eventUpdate, segment: seg.Index, n: int64(bytesRead)}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return written, nil
			}
			return written, &TransportError{Segment: seg.Index, Op: "read body", Err: readErr}
		}
	}
}

// expectedTotal is the segment's full length for progress purposes. The
// declared Content-Length covers only what is still missing, and may undercount
// the planned span, so it is clamped upward to the span.
func expectedTotal(seg Segment, declared int64) int64 {
	if seg.Span < 0 {
		return declared
	}
	if declared < 0 {
		return seg.Span
	}
	return max(seg.Existing+declared, seg.Span)
}
