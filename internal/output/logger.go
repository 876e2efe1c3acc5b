package output

import (
	"sync"

	"github.com/rs/zerolog"
)

// LogSink reports segment progress through structured logs, for runs without a
// terminal. Updates are logged every time a segment crosses another tenth of
// its length.
type LogSink struct {
	mu    sync.Mutex
	log   zerolog.Logger
	total map[int]int64
	done  map[int]int64
}

func NewLogSink(log zerolog.Logger) *LogSink {
	return &LogSink{
		log:   log.With().Str("component", "progress").Logger(),
		total: make(map[int]int64),
		done:  make(map[int]int64),
	}
}

func (s *LogSink) Restore(segment int, total, done int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total[segment] = total
	s.done[segment] = done
	s.log.Debug().Int("segment", segment).Int64("total", total).Int64("restored", done).Msg("segment started")
}

func (s *LogSink) Update(segment int, n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := s.done[segment]
	s.done[segment] = before + n
	total := s.total[segment]
	if total <= 0 {
		return
	}
	if before*10/total != s.done[segment]*10/total {
		s.log.Debug().Int("segment", segment).Int64("done", s.done[segment]).Int64("total", total).Msg("segment progress")
	}
}

func (s *LogSink) Complete(segment int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.log.Info().Int("segment", segment).Int64("bytes", s.done[segment]).Msg("segment complete")
}

func (s *LogSink) Fail(segment int, err error) {
	s.log.Error().Int("segment", segment).Err(err).Msg("segment failed")
}
