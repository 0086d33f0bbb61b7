package backend

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
)

// PollInterval 是 fsnotify 不可用或漏报时的兜底轮询间隔。
const PollInterval = 50 * time.Millisecond

// Tailer 逐行读取另一个进程正在写入的 NDJSON 文件。没有换行结尾的半行会缓存到下一次 Poll。
type Tailer struct {
	path    string
	f       *os.File
	r       *bufio.Reader
	partial []byte
}

// OpenTailer 打开文件；fromEnd 为 true 时只读取之后新写入的内容。
func OpenTailer(path string, fromEnd bool) (*Tailer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open file for tailing: %w", err)
	}
	if fromEnd {
		if _, err := f.Seek(0, io.SeekEnd); err != nil {
			f.Close()
			return nil, fmt.Errorf("seek to end of file: %w", err)
		}
	}
	return &Tailer{path: path, f: f, r: bufio.NewReader(f)}, nil
}

// Poll 返回自上次以来新写入的完整行（不含换行）。
func (t *Tailer) Poll() ([]string, error) {
	var lines []string
	for {
		chunk, err := t.r.ReadBytes('\n')
		if len(chunk) > 0 {
			t.partial = append(t.partial, chunk...)
			if t.partial[len(t.partial)-1] == '\n' {
				lines = append(lines, string(bytes.TrimRight(t.partial, "\r\n")))
				t.partial = t.partial[:0]
			}
		}
		if errors.Is(err, io.EOF) {
			return lines, nil
		}
		if err != nil {
			return lines, fmt.Errorf("read line: %w", err)
		}
	}
}

// HasIncomplete reports whether a partial line is buffered.
func (t *Tailer) HasIncomplete() bool {
	return len(t.partial) > 0
}

func (t *Tailer) Close() error {
	return t.f.Close()
}

// Follow 持续读取新行并交给 fn，直到 fn 返回 false、ctx 取消或读取出错。
// 文件变化优先由 fsnotify 唤醒，同时保留轮询兜底。
func (t *Tailer) Follow(ctx context.Context, fn func(line string) bool) error {
	var wake <-chan fsnotify.Event
	var watchErrs <-chan error
	if watcher, err := fsnotify.NewWatcher(); err == nil {
		defer watcher.Close()
		if err := watcher.Add(t.path); err == nil {
			wake, watchErrs = watcher.Events, watcher.Errors
		} else {
			log.WithField("path", t.path).Debugf("fsnotify add failed, polling only: %v", err)
		}
	}
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		lines, err := t.Poll()
		for _, line := range lines {
			if !fn(line) {
				return nil
			}
		}
		if err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-wake:
			if !ok {
				wake = nil
				continue
			}
			if ev.Op.Has(fsnotify.Remove) || ev.Op.Has(fsnotify.Rename) {
				return fmt.Errorf("%s was removed while tailing", t.path)
			}
		case err, ok := <-watchErrs:
			if !ok {
				watchErrs = nil
				continue
			}
			log.WithField("path", t.path).Debugf("fsnotify error: %v", err)
		case <-ticker.C:
		}
	}
}

// FileProvider 从 NDJSON 文件回放一个回合。Follow 为 true 时像 tail -f 一样等待后续写入，
// 直到出现结束记录；否则读到文件末尾即视为回合结束。
type FileProvider struct {
	Path   string
	Follow bool
}

func (p FileProvider) Name() string { return "ndjson" }

func (p FileProvider) Stream(ctx context.Context, _ Turn, sink Sink) error {
	tailer, err := OpenTailer(p.Path, false)
	if err != nil {
		return err
	}
	defer tailer.Close()

	dec := &Decoder{}
	var result error
	handle := func(line string) bool {
		outcome, msg, err := dec.Decode(line, sink)
		if err != nil {
			log.WithField("path", p.Path).Debugf("skip line: %v", err)
			return true
		}
		switch outcome {
		case Done:
			return false
		case Failed:
			result = errors.New(msg)
			return false
		case Cancelled:
			result = ErrTurnCancelled
			return false
		}
		return true
	}

	if p.Follow {
		if err := tailer.Follow(ctx, handle); err != nil {
			return err
		}
		return result
	}
	lines, err := tailer.Poll()
	if err != nil {
		return err
	}
	for _, line := range lines {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !handle(line) {
			break
		}
	}
	return result
}
