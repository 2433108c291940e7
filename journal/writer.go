package journal

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/klauspost/compress/zstd"
	"github.com/segmentio/encoding/json"
)

const hourLayout = "2006-01-02-15"

// HourlyWriter appends JSON lines to zstd compressed files, one file per UTC
// hour.
type HourlyWriter struct {
	dir    string
	prefix string
	now    func() time.Time

	mutex   sync.Mutex
	curHour string
	file    *os.File
	enc     *zstd.Encoder
	buf     *bufio.Writer
}

func NewHourlyWriter(dir, prefix string) *HourlyWriter {
	return &HourlyWriter{
		dir:    dir,
		prefix: prefix,
		now:    time.Now,
	}
}

// Write appends v as a JSON line.
func (w *HourlyWriter) Write(v any) error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	hour := w.now().UTC().Format(hourLayout)
	if hour != w.curHour {
		if err := w.rotate(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return errors.New("encoding journal line failed").Wrap(err)
	}
	if _, err := w.buf.Write(b); err != nil {
		return errors.New("writing journal line failed").Wrap(err)
	}
	if err := w.buf.WriteByte('\n'); err != nil {
		return errors.New("writing journal line failed").Wrap(err)
	}
	return w.buf.Flush()
}

// Path returns the file written during the given hour.
func (w *HourlyWriter) Path(t time.Time) string {
	return filepath.Join(w.dir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, t.UTC().Format(hourLayout)))
}

func (w *HourlyWriter) Close() error {
	w.mutex.Lock()
	defer w.mutex.Unlock()

	return w.close()
}

func (w *HourlyWriter) rotate(hour string) error {
	if err := w.close(); err != nil {
		return err
	}

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return errors.New("creating journal directory failed").
			WithTag("dir", w.dir).
			Wrap(err)
	}

	path := filepath.Join(w.dir, fmt.Sprintf("%s-%s.jsonl.zst", w.prefix, hour))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.New("opening journal file failed").
			WithTag("path", path).
			Wrap(err)
	}

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		f.Close()
		return errors.New("creating zstd encoder failed").Wrap(err)
	}

	w.file = f
	w.enc = enc
	w.buf = bufio.NewWriterSize(enc, 64*1024)
	w.curHour = hour
	return nil
}

func (w *HourlyWriter) close() error {
	var err error
	if w.buf != nil {
		w.buf.Flush()
	}
	if w.enc != nil {
		err = w.enc.Close()
		w.enc = nil
	}
	if w.file != nil {
		w.file.Close()
		w.file = nil
	}
	w.buf = nil
	w.curHour = ""
	return err
}
