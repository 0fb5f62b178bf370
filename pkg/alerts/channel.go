package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/cruciblehq/crucible/pkg/models"
)

// Channel delivers rendered notifications. Channels are isolated from one
// another: a failure affects only the notification being sent.
type Channel interface {
	Type() models.ChannelType

	// Send attempts delivery. The bool reports whether the channel
	// confirmed the handoff.
	Send(ctx context.Context, n *models.Notification) (bool, error)

	// ValidateConfig checks the channel's settings without sending.
	ValidateConfig() error
}

// ConsoleChannel surfaces notifications through the structured log, so a
// bare deployment still shows alerts somewhere.
type ConsoleChannel struct{}

func (ConsoleChannel) Type() models.ChannelType { return models.ChannelConsole }

func (ConsoleChannel) ValidateConfig() error { return nil }

func (ConsoleChannel) Send(ctx context.Context, n *models.Notification) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	slog.Info("Alert notification",
		"priority", n.Priority,
		"subject", n.Subject,
		"content", flattenLines(n.Content))
	return true, nil
}

// FileChannel appends notifications to a daily log file,
// notifications_YYYYMMDD.log, under its directory.
type FileChannel struct {
	dir string
	mu  sync.Mutex
}

func NewFileChannel(dir string) *FileChannel {
	return &FileChannel{dir: dir}
}

func (c *FileChannel) Type() models.ChannelType { return models.ChannelFile }

func (c *FileChannel) ValidateConfig() error {
	if c.dir == "" {
		return fmt.Errorf("log directory not configured")
	}
	return nil
}

// Send appends one line per notification. Appends are serialised so
// concurrent batch deliveries never interleave lines.
func (c *FileChannel) Send(ctx context.Context, n *models.Notification) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return false, fmt.Errorf("create notification log dir: %w", err)
	}
	name := fmt.Sprintf("notifications_%s.log", time.Now().UTC().Format("20060102"))
	f, err := os.OpenFile(filepath.Join(c.dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return false, fmt.Errorf("open notification log: %w", err)
	}
	defer f.Close()

	line := fmt.Sprintf("[%s] [%s] %s: %s\n",
		time.Now().UTC().Format(time.RFC3339), n.Priority, n.Subject, flattenLines(n.Content))
	if _, err := f.WriteString(line); err != nil {
		return false, fmt.Errorf("append notification: %w", err)
	}
	return true, nil
}

// flattenLines folds multi-line content into a single log line.
func flattenLines(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
