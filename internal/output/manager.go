package output

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

type SegmentOutput struct {
	Index       int
	Status      string // pending, active, success, error
	Total       int64  // -1 while unknown
	Done        int64
	Restored    int64 // bytes already on disk when the segment started
	Error       error
	Skipped     bool // completed without fetching
	StartTime   time.Time
	LastUpdated time.Time
}

type ErrorReport struct {
	Segment int
	Error   error
	Time    time.Time
}

// Manager renders per-segment progress bars to a terminal and implements the
// downloader's progress sink.
type Manager struct {
	w           io.Writer
	title       string
	segments    map[int]*SegmentOutput
	mutex       sync.RWMutex
	numLines    int
	errors      []ErrorReport
	doneCh      chan struct{}
	displayTick time.Duration
	displayWg   sync.WaitGroup
	startTime   time.Time
}

func NewManager(w io.Writer, title string) *Manager {
	return &Manager{
		w:           w,
		title:       title,
		segments:    make(map[int]*SegmentOutput),
		doneCh:      make(chan struct{}),
		displayTick: 200 * time.Millisecond,
		startTime:   time.Now(),
	}
}

// segment returns the entry for index, registering it on first use. The caller
// holds the write lock.
func (m *Manager) segment(index int) *SegmentOutput {
	info, exists := m.segments[index]
	if !exists {
		info = &SegmentOutput{
			Index:       index,
			Status:      "pending",
			Total:       -1,
			StartTime:   time.Now(),
			LastUpdated: time.Now(),
		}
		m.segments[index] = info
	}
	return info
}

func (m *Manager) Restore(segment int, total, done int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	info := m.segment(segment)
	info.Status = "active"
	info.Total = total
	info.Done = done
	info.Restored = done
	info.StartTime = time.Now()
	info.LastUpdated = time.Now()
}

func (m *Manager) Update(segment int, n int64) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	info := m.segment(segment)
	if info.Status == "pending" {
		info.Status = "active"
	}
	info.Done += n
	info.LastUpdated = time.Now()
}

func (m *Manager) Complete(segment int) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	info := m.segment(segment)
	info.Skipped = info.Status == "pending"
	info.Status = "success"
	if info.Total < 0 {
		info.Total = info.Done
	}
	info.LastUpdated = time.Now()
}

func (m *Manager) Fail(segment int, err error) {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	info := m.segment(segment)
	info.Status = "error"
	info.Error = err
	info.LastUpdated = time.Now()
	m.errors = append(m.errors, ErrorReport{Segment: segment, Error: err, Time: time.Now()})
}

func (m *Manager) GetStatusIndicator(status string) string {
	switch status {
	case "success":
		return successStyle.Render(StyleSymbols["pass"])
	case "error":
		return errorStyle.Render(StyleSymbols["fail"])
	case "pending":
		return pendingStyle.Render(StyleSymbols["pending"])
	default:
		return infoStyle.Render(StyleSymbols["bullet"])
	}
}

func (m *Manager) sortSegments() []*SegmentOutput {
	all := make([]*SegmentOutput, 0, len(m.segments))
	for _, info := range m.segments {
		all = append(all, info)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].Index < all[j].Index
	})
	return all
}

func (m *Manager) totals() (done, total, fetched int64) {
	for _, info := range m.segments {
		done += info.Done
		fetched += info.Done - info.Restored
		if info.Total < 0 || total < 0 {
			total = -1
			continue
		}
		total += info.Total
	}
	return done, total, fetched
}

func (m *Manager) segmentLine(info *SegmentOutput) string {
	label := debugStyle.Render(fmt.Sprintf("part %-2d", info.Index))
	indicator := m.GetStatusIndicator(info.Status)
	switch info.Status {
	case "error":
		return fmt.Sprintf("%s %s %s", indicator, label, errorStyle.Render(info.Error.Error()))
	case "pending":
		return fmt.Sprintf("%s %s %s", indicator, label, pendingStyle.Render("waiting..."))
	}
	if info.Skipped {
		return fmt.Sprintf("%s %s %s", indicator, label, successStyle.Render("already downloaded"))
	}
	if info.Total < 0 {
		return fmt.Sprintf("%s %s %s", indicator, label, streamStyle.Render(humanize.Bytes(uint64(info.Done))))
	}
	sizes := fmt.Sprintf("%s / %s", humanize.Bytes(uint64(info.Done)), humanize.Bytes(uint64(info.Total)))
	return fmt.Sprintf("%s %s %s%s", indicator, label, PrintProgressBar(info.Done, info.Total, 30), streamStyle.Render(sizes))
}

func (m *Manager) render() string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	var sb strings.Builder
	done, total, fetched := m.totals()
	elapsed := time.Since(m.startTime).Seconds()
	progress := humanize.Bytes(uint64(done))
	if total >= 0 {
		progress += " of " + humanize.Bytes(uint64(total))
	}
	fmt.Fprintf(&sb, "%s%s %s %s %s\n", strings.Repeat(" ", 2), headerStyle.Render(m.title),
		debugStyle.Render(progress), StyleSymbols["bullet"], debugStyle.Render(FormatSpeed(fetched, elapsed)))

	availableLines := terminalHeight(m.w) - 4
	segments := m.sortSegments()
	for i, info := range segments {
		if i >= availableLines {
			fmt.Fprintf(&sb, "%s%s\n", strings.Repeat(" ", 4), streamStyle.Render(fmt.Sprintf("... %d more parts", len(segments)-i)))
			break
		}
		fmt.Fprintf(&sb, "%s%s\n", strings.Repeat(" ", 4), m.segmentLine(info))
	}
	return sb.String()
}

func (m *Manager) updateDisplay() {
	frame := m.render()
	if m.numLines > 0 {
		fmt.Fprintf(m.w, "\033[%dA\033[J", m.numLines)
	}
	io.WriteString(m.w, frame)
	m.numLines = strings.Count(frame, "\n")
}

func (m *Manager) StartDisplay() {
	m.displayWg.Add(1)
	go func() {
		defer m.displayWg.Done()
		ticker := time.NewTicker(m.displayTick)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				m.updateDisplay()
			case <-m.doneCh:
				m.updateDisplay()
				return
			}
		}
	}()
}

// StopDisplay draws the final frame followed by the summary.
func (m *Manager) StopDisplay() {
	close(m.doneCh)
	m.displayWg.Wait()
	m.ShowSummary()
}

func (m *Manager) displayErrors() {
	if len(m.errors) == 0 {
		return
	}
	fmt.Fprintln(m.w)
	fmt.Fprintln(m.w, strings.Repeat(" ", 2)+errorStyle.Bold(true).Render("Errors:"))
	for i, report := range m.errors {
		fmt.Fprintf(m.w, "%s%s %s %s\n",
			strings.Repeat(" ", 2+2),
			errorStyle.Render(fmt.Sprintf("%d.", i+1)),
			debugStyle.Render(fmt.Sprintf("[%s]", report.Time.Format("15:04:05"))),
			errorStyle.Render(fmt.Sprintf("part %d: %v", report.Segment, report.Error)))
	}
}

func (m *Manager) ShowSummary() {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	fmt.Fprintln(m.w)
	var success, failures int
	for _, info := range m.segments {
		switch info.Status {
		case "success":
			success++
		case "error":
			failures++
		}
	}
	fmt.Fprintln(m.w, strings.Repeat(" ", 2)+success2Style.Render(fmt.Sprintf("Completed %d of %d parts", success, len(m.segments))))
	if failures > 0 {
		fmt.Fprintln(m.w, strings.Repeat(" ", 2)+errorStyle.Render(fmt.Sprintf("Failed %d of %d parts", failures, len(m.segments))))
	}
	m.displayErrors()
	fmt.Fprintln(m.w)
}
