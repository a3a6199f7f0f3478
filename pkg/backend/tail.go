package backend

import (
	"bufio"
	"context"
	"io"
	"os"
	"sync"
	"time"
)

const tailPollInterval = 500 * time.Millisecond

// TailFiles follows a set of log files, multiplexing appended lines onto a
// single channel. Each file is polled on a short timer from its current end
// of file. The channel closes once ctx is cancelled and every poller has
// stopped, so callers never leak a polling loop.
func TailFiles(ctx context.Context, units map[string]string) <-chan LogLine {
	out := make(chan LogLine, 64)
	var wg sync.WaitGroup
	for unit, path := range units {
		wg.Add(1)
		go func(unit, path string) {
			defer wg.Done()
			tailFile(ctx, unit, path, out)
		}(unit, path)
	}
	go func() {
		wg.Wait()
		close(out)
	}()
	return out
}

func tailFile(ctx context.Context, unit, path string, out chan<- LogLine) {
	var (
		f      *os.File
		reader *bufio.Reader
		offset int64
	)
	defer func() {
		if f != nil {
			f.Close()
		}
	}()

	ticker := time.NewTicker(tailPollInterval)
	defer ticker.Stop()

	for {
		if f == nil {
			var err error
			f, err = os.Open(path)
			if err == nil {
				// Start at the end; only new lines are interesting.
				offset, _ = f.Seek(0, io.SeekEnd)
				reader = bufio.NewReader(f)
			}
		}

		if f != nil {
			offset = drainLines(ctx, unit, reader, f, offset, out)

			// Detect truncation (log rotation) and reopen from the start.
			if info, err := f.Stat(); err == nil && info.Size() < offset {
				f.Close()
				f = nil
				reader = nil
				offset = 0
			}
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func drainLines(ctx context.Context, unit string, reader *bufio.Reader, f *os.File, offset int64, out chan<- LogLine) int64 {
	for {
		line, err := reader.ReadString('\n')
		if len(line) > 0 && err == nil {
			offset += int64(len(line))
			// Never block a cancelled tail on a consumer that stopped
			// draining; the poller loop exits on the next tick.
			select {
			case out <- LogLine{Unit: unit, Line: trimNewline(line), Time: time.Now()}:
			case <-ctx.Done():
				return offset
			}
			continue
		}
		// Partial line: rewind so it is re-read whole on the next poll.
		if len(line) > 0 {
			_, _ = f.Seek(offset, io.SeekStart)
			reader.Reset(f)
		}
		return offset
	}
}

func trimNewline(s string) string {
	for len(s) > 0 && (s[len(s)-1] == '\n' || s[len(s)-1] == '\r') {
		s = s[:len(s)-1]
	}
	return s
}
