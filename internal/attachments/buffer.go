// Package attachments buffers file context for the next outgoing message.
package attachments

import (
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/ashutoshrp06/agentdesk/internal/types"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultMaxTextBytes caps how much of a text file is inlined.
const DefaultMaxTextBytes int64 = 1 << 20

// Buffer holds queued attachments in insertion order.
type Buffer struct {
	mu           sync.RWMutex
	files        []types.UploadedFile
	maxTextBytes int64
	logger       *zap.Logger
}

// Config holds buffer configuration.
type Config struct {
	MaxTextBytes int64
	Logger       *zap.Logger
}

// New creates an empty buffer.
func New(cfg Config) *Buffer {
	if cfg.MaxTextBytes <= 0 {
		cfg.MaxTextBytes = DefaultMaxTextBytes
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Buffer{
		maxTextBytes: cfg.MaxTextBytes,
		logger:       cfg.Logger,
	}
}

// IsTextLike reports whether a file's content should be inlined.
func IsTextLike(mimeType, name string) bool {
	if strings.HasPrefix(mimeType, "text/") {
		return true
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".json", ".md":
		return true
	}
	return false
}

// Add queues a file. Text-like content is read from r before Add returns;
// other files keep metadata only.
func (b *Buffer) Add(name, mimeType string, size int64, r io.Reader) (types.UploadedFile, error) {
	file := types.UploadedFile{
		ID:   uuid.NewString(),
		Name: name,
		Size: size,
		Type: mimeType,
	}

	if IsTextLike(mimeType, name) && r != nil {
		if size > b.maxTextBytes {
			return types.UploadedFile{}, &types.ValidationError{
				Field:  "attachment",
				Reason: fmt.Sprintf("%s is %d bytes, text attachments are limited to %d", name, size, b.maxTextBytes),
			}
		}
		data, err := io.ReadAll(io.LimitReader(r, b.maxTextBytes+1))
		if err != nil {
			return types.UploadedFile{}, fmt.Errorf("read %s: %w", name, err)
		}
		if int64(len(data)) > b.maxTextBytes {
			return types.UploadedFile{}, &types.ValidationError{
				Field:  "attachment",
				Reason: fmt.Sprintf("%s exceeds the %d byte text limit", name, b.maxTextBytes),
			}
		}
		content := string(data)
		file.Content = &content
		if file.Size == 0 {
			file.Size = int64(len(data))
		}
	}

	b.mu.Lock()
	b.files = append(b.files, file)
	b.mu.Unlock()

	b.logger.Debug("attachment added",
		zap.String("name", name),
		zap.String("type", mimeType),
		zap.Int64("size", file.Size),
		zap.Bool("inlined", file.Content != nil))

	return file, nil
}

// AddFile queues a file from disk, detecting its MIME type.
func (b *Buffer) AddFile(path string) (types.UploadedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return types.UploadedFile{}, fmt.Errorf("open attachment: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return types.UploadedFile{}, fmt.Errorf("stat attachment: %w", err)
	}
	if info.IsDir() {
		return types.UploadedFile{}, &types.ValidationError{Field: "attachment", Reason: path + " is a directory"}
	}

	mimeType, err := DetectType(f, info.Name())
	if err != nil {
		return types.UploadedFile{}, err
	}
	return b.Add(info.Name(), mimeType, info.Size(), f)
}

// DetectType picks a MIME type from the extension, falling back to content
// sniffing. The reader is rewound afterwards.
func DetectType(f io.ReadSeeker, name string) (string, error) {
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return strings.TrimSpace(strings.SplitN(t, ";", 2)[0]), nil
	}

	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", fmt.Errorf("sniff %s: %w", name, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("rewind %s: %w", name, err)
	}
	if n == 0 {
		return "application/octet-stream", nil
	}
	t := http.DetectContentType(head[:n])
	return strings.TrimSpace(strings.SplitN(t, ";", 2)[0]), nil
}

// Remove drops the attachment with id. It reports whether one was removed.
func (b *Buffer) Remove(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.files[:0:0]
	for _, f := range b.files {
		if f.ID != id {
			kept = append(kept, f)
		}
	}
	removed := len(kept) != len(b.files)
	b.files = kept
	return removed
}

// Clear drops every queued attachment.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.files = nil
}

// Files returns a copy of the queue in insertion order.
func (b *Buffer) Files() []types.UploadedFile {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]types.UploadedFile, len(b.files))
	copy(out, b.files)
	return out
}

// Len returns the number of queued attachments.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.files)
}
