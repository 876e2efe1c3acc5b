package downloader

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"github.com/tanq16/rget/internal/partfile"
	"github.com/tanq16/rget/internal/utils"
)

// Merge appends part files 0..count-1 to target in index order, deleting each
// part as soon as its bytes are flushed, then sets target's length to the sum
// of the parts. On failure the remaining parts are left untouched; parts that
// were already consumed are gone.
func Merge(target string, count int, log zerolog.Logger) (int64, error) {
	log = utils.ComponentLogger(log, "merger")
	out, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE, 0644)
	if err != nil {
		return 0, &MergeError{Segment: -1, Path: target, Err: err}
	}
	defer out.Close()

	w := bufio.NewWriterSize(out, utils.DefaultBufferSize)
	var totalSize int64
	for i := range count {
		part, err := partfile.Open(target, i)
		if err != nil {
			return totalSize, &MergeError{Segment: i, Path: partfile.Path(target, i), Err: err}
		}
		n, err := io.Copy(w, part)
		if err == nil {
			err = w.Flush()
		}
		if err != nil {
			part.Close()
			return totalSize, &MergeError{Segment: i, Path: part.Path(), Err: err}
		}
		totalSize += n
		if err := part.Delete(); err != nil {
			return totalSize, &MergeError{Segment: i, Path: part.Path(), Err: err}
		}
		log.Debug().Int("segment", i).Int64("bytes", n).Msg("part merged")
	}

	if err := out.Truncate(totalSize); err != nil {
		return totalSize, &MergeError{Segment: -1, Path: target, Err: fmt.Errorf("error setting file length: %w", err)}
	}
	if err := out.Sync(); err != nil {
		return totalSize, &MergeError{Segment: -1, Path: target, Err: err}
	}
	return totalSize, nil
}
