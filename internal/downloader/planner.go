package downloader

import "fmt"

// ByteRange is an inclusive byte range.
type ByteRange struct {
	Start int64
	End   int64
}

func (r ByteRange) Header() string {
	return fmt.Sprintf("bytes=%d-%d", r.Start, r.End)
}

func (r ByteRange) Len() int64 {
	return r.End - r.Start + 1
}

// Segment is one planned slice of the resource.
type Segment struct {
	Index    int
	Range    *ByteRange // nil when the whole resource is fetched unranged
	Existing int64      // bytes already present in the part file
	Span     int64      // planned length of the whole segment, -1 if unknown
	Complete bool       // part file already holds the full span
}

// Ranged reports whether the segment carries a byte range.
func (s Segment) Ranged() bool {
	return s.Range != nil
}

// Remaining is the number of bytes still to fetch, or -1 when unknown.
func (s Segment) Remaining() int64 {
	if s.Span < 0 {
		return -1
	}
	return s.Span - s.Existing
}

// Inconsistent reports a part file longer than the segment's planned span.
func (s Segment) Inconsistent() bool {
	return s.Span >= 0 && s.Existing > s.Span
}

// PlanSegments splits [0, total) into count segments. The last segment absorbs
// the remainder of the integer division. A negative total means the length is
// unknown: a single unranged segment is planned regardless of count.
//
// existing holds the bytes already on disk per segment and may be nil for a
// fresh download. Oversized parts are planned as-is and flagged by
// Segment.Inconsistent; correcting them is left to the caller.
func PlanSegments(total int64, count int, existing []int64) ([]Segment, error) {
	if count < 1 {
		return nil, fmt.Errorf("segment count must be at least 1, got %d", count)
	}
	if existing != nil && len(existing) != count && total >= 0 {
		return nil, fmt.Errorf("got existing sizes for %d segments, want %d", len(existing), count)
	}
	if total < 0 {
		return []Segment{{Index: 0, Span: -1}}, nil
	}

	section := total / int64(count)
	segments := make([]Segment, count)
	for i := range count {
		var have int64
		if existing != nil {
			have = existing[i]
		}
		last := i == count-1
		span := section
		end := int64(i+1)*section - 1
		if last {
			span = total - section*int64(i)
			end = total - 1
		}
		seg := Segment{Index: i, Existing: have, Span: span}
		if have == span {
			seg.Complete = true
		} else {
			seg.Range = &ByteRange{Start: have + int64(i)*section, End: end}
		}
		segments[i] = seg
	}
	return segments, nil
}
