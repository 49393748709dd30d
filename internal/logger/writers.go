// internal/logger/writers.go
package logger

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"
)

var ErrWriterClosed = errors.New("csv writer closed")

// SafeCSVWriter is an append-only CSV journal file shared by many goroutines.
// Records are buffered and reach the disk on Flush, on the periodic flush
// and on Close.
type SafeCSVWriter struct {
	mu       sync.Mutex
	writer   *csv.Writer
	file     *os.File
	logger   *zap.Logger
	filePath string
	closed   bool

	stop      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	closeErr  error

	// records buffered since the last flush
	pending int

	writtenRecords uint64
	flushCount     uint64
}

// NewSafeCSVWriter opens filePath for appending.
//
// A new or empty file gets header as its first row. An existing file whose
// first row is not header is moved aside (filePath + ".<unix>") and a fresh
// file is started, so one file never mixes two layouts. flushInterval <= 0
// disables the periodic flush.
func NewSafeCSVWriter(filePath string, header []string, flushInterval time.Duration, logger *zap.Logger) (*SafeCSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	if len(header) > 0 {
		if err := rotateOnHeaderChange(filePath, header, logger); err != nil {
			return nil, err
		}
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	stat, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	scw := &SafeCSVWriter{
		writer:   csv.NewWriter(file),
		file:     file,
		logger:   logger,
		filePath: filePath,
		stop:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}

	if stat.Size() == 0 && len(header) > 0 {
		// header is not a record; it goes straight to disk
		scw.writer.Write(header)
		scw.writer.Flush()
		if err := scw.writer.Error(); err != nil {
			file.Close()
			return nil, fmt.Errorf("failed to write header: %w", err)
		}
	}

	if flushInterval > 0 {
		go scw.periodicFlush(flushInterval)
	} else {
		close(scw.stopped)
	}

	return scw, nil
}

// rotateOnHeaderChange moves an existing file aside when its first row
// differs from header.
func rotateOnHeaderChange(filePath string, header []string, logger *zap.Logger) error {
	f, err := os.Open(filePath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}

	r := csv.NewReader(bufio.NewReader(f))
	r.FieldsPerRecord = -1
	first, readErr := r.Read()
	f.Close()

	if readErr != nil || slices.Equal(first, header) {
		// empty files get the header on open
		return nil
	}

	aside := filePath + "." + strconv.FormatInt(time.Now().Unix(), 10)
	if err := os.Rename(filePath, aside); err != nil {
		return fmt.Errorf("failed to move old journal aside: %w", err)
	}
	logger.Warn("CSV header changed, started a new file",
		zap.String("file", filePath),
		zap.String("previous", aside))
	return nil
}

// WriteRecord buffers one record.
func (scw *SafeCSVWriter) WriteRecord(record []string) error {
	scw.mu.Lock()
	defer scw.mu.Unlock()

	if scw.closed {
		return ErrWriterClosed
	}
	if err := scw.writer.Write(record); err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}

	scw.pending++
	scw.writtenRecords++
	return nil
}

// Flush writes buffered records and syncs the file. Nothing pending means
// nothing to do.
func (scw *SafeCSVWriter) Flush() error {
	scw.mu.Lock()
	defer scw.mu.Unlock()

	if scw.closed {
		return ErrWriterClosed
	}
	return scw.flushLocked()
}

func (scw *SafeCSVWriter) flushLocked() error {
	if scw.pending == 0 {
		return nil
	}

	scw.writer.Flush()
	if err := scw.writer.Error(); err != nil {
		return fmt.Errorf("CSV writer error: %w", err)
	}
	if err := scw.file.Sync(); err != nil {
		return fmt.Errorf("failed to sync file: %w", err)
	}

	scw.pending = 0
	scw.flushCount++
	return nil
}

func (scw *SafeCSVWriter) periodicFlush(interval time.Duration) {
	defer close(scw.stopped)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := scw.Flush(); err != nil && !errors.Is(err, ErrWriterClosed) {
				scw.logger.Error("Periodic CSV flush failed",
					zap.String("file", scw.filePath),
					zap.Error(err))
			}
		case <-scw.stop:
			return
		}
	}
}

// Close stops the periodic flush, writes what is buffered and closes the
// file. Later calls return the first result.
func (scw *SafeCSVWriter) Close() error {
	scw.closeOnce.Do(func() {
		close(scw.stop)
		<-scw.stopped

		scw.mu.Lock()
		defer scw.mu.Unlock()

		scw.closed = true
		flushErr := scw.flushLocked()
		closeErr := scw.file.Close()
		if flushErr != nil || closeErr != nil {
			scw.closeErr = errors.Join(flushErr, closeErr)
			return
		}

		scw.logger.Info("CSV writer closed",
			zap.String("file", scw.filePath),
			zap.Uint64("writtenRecords", scw.writtenRecords),
			zap.Uint64("flushCount", scw.flushCount))
	})
	return scw.closeErr
}

// Stats returns the number of records written and flushes done.
func (scw *SafeCSVWriter) Stats() (records, flushes uint64) {
	scw.mu.Lock()
	defer scw.mu.Unlock()
	return scw.writtenRecords, scw.flushCount
}
