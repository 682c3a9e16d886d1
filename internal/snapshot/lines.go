package snapshot

import (
	"bytes"
	"io"
	"os"
	"sync"
	"time"
)

// maxCountBytes bounds how much of one file is read for line counting.
const maxCountBytes = 4 << 20

type lineKey struct {
	path  string
	mtime time.Time
	size  int64
}

// lineCache remembers line counts per (path, mtime, size) so unchanged
// files are not re-read across snapshots taken by the same Generator.
type lineCache struct {
	mu     sync.Mutex
	counts map[string]lineEntry
	hits   int
	misses int
}

type lineEntry struct {
	key   lineKey
	lines int
	text  bool
}

func newLineCache() *lineCache {
	return &lineCache{counts: make(map[string]lineEntry)}
}

// count returns the line count of path and whether it looks like text.
func (c *lineCache) count(path string, info os.FileInfo) (int, bool) {
	key := lineKey{path: path, mtime: info.ModTime(), size: info.Size()}

	c.mu.Lock()
	if e, ok := c.counts[path]; ok && e.key == key {
		c.hits++
		c.mu.Unlock()
		return e.lines, e.text
	}
	c.misses++
	c.mu.Unlock()

	lines, text := countLines(path)

	c.mu.Lock()
	c.counts[path] = lineEntry{key: key, lines: lines, text: text}
	c.mu.Unlock()
	return lines, text
}

func (c *lineCache) stats() (hits, misses int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses
}

func countLines(path string) (int, bool) {
	f, err := os.Open(path)
	if err != nil {
		return 0, false
	}
	defer f.Close()

	buf := make([]byte, 32*1024)
	lines, read := 0, 0
	var last byte
	first := true
	for read < maxCountBytes {
		n, err := f.Read(buf)
		if n > 0 {
			chunk := buf[:n]
			if first {
				// NUL in the first chunk means binary.
				if bytes.IndexByte(chunk, 0) >= 0 {
					return 0, false
				}
				first = false
			}
			lines += bytes.Count(chunk, []byte{'\n'})
			last = chunk[n-1]
			read += n
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return lines, true
		}
	}
	if read > 0 && last != '\n' {
		lines++
	}
	return lines, true
}
