package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/nxadm/tail"
)

// FileSource reads JSONL reports from a file, one report per line.
// In follow mode it keeps reading appended lines and survives rotation;
// otherwise it stops at end of file.
type FileSource struct {
	path            string
	follow          bool
	replay          ReplayCutoffs
	logger          *slog.Logger
	eventBufferSize int
	errorBufferSize int
}

// FileOption configures FileSource.
type FileOption func(*FileSource)

// WithFollow keeps the file open for appended lines.
func WithFollow(follow bool) FileOption {
	return func(s *FileSource) { s.follow = follow }
}

// WithReplayCutoffs skips reports already stored for their user and source.
func WithReplayCutoffs(c ReplayCutoffs) FileOption {
	return func(s *FileSource) { s.replay = c }
}

// WithFileLogger sets the logger. A nil logger is ignored.
func WithFileLogger(logger *slog.Logger) FileOption {
	return func(s *FileSource) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewFileSource creates a FileSource for path.
func NewFileSource(path string, opts ...FileOption) *FileSource {
	s := &FileSource{
		path:            path,
		logger:          slog.Default(),
		eventBufferSize: DefaultEventBufferSize,
		errorBufferSize: DefaultErrorBufferSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start implements Source.
func (s *FileSource) Start(ctx context.Context) (<-chan Report, <-chan error, error) {
	t, err := tail.TailFile(s.path, tail.Config{
		Follow:    s.follow,
		ReOpen:    s.follow,
		MustExist: !s.follow,
		Location:  &tail.SeekInfo{Offset: 0, Whence: io.SeekStart},
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("tail %s: %w", s.path, err)
	}

	s.logger.Info("reading report file",
		"path", s.path,
		"follow", s.follow,
		"replay_streams", len(s.replay.Latest),
	)

	reportCh := make(chan Report, s.eventBufferSize)
	errCh := make(chan error, s.errorBufferSize)

	go func() {
		defer close(reportCh)
		defer close(errCh)
		defer t.Cleanup()
		defer t.Stop()

		var skipped, droppedErrors int
		defer func() {
			if skipped > 0 {
				s.logger.Info("skipped already ingested reports", "count", skipped)
			}
			if droppedErrors > 0 {
				s.logger.Warn("errors dropped due to full buffer", "count", droppedErrors)
			}
		}()

		sendErr := func(err error) {
			select {
			case errCh <- err:
			default:
				droppedErrors++
			}
		}

		for {
			select {
			case <-ctx.Done():
				return
			case line, ok := <-t.Lines:
				if !ok {
					return
				}
				if line.Err != nil {
					sendErr(line.Err)
					continue
				}
				text := strings.TrimSpace(line.Text)
				if text == "" || strings.HasPrefix(text, "#") {
					continue
				}

				r, err := DecodeReport([]byte(text))
				if err != nil {
					sendErr(err)
					continue
				}
				if s.replay.replayed(ctx, r) {
					skipped++
					continue
				}

				select {
				case reportCh <- r:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return reportCh, errCh, nil
}
