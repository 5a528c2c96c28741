package audit

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Event is one line of the audit trail.
type Event struct {
	At      string `json:"at"`
	Actor   string `json:"actor"`
	Action  string `json:"action"`
	Target  string `json:"target,omitempty"`
	Outcome string `json:"outcome"`
	Detail  string `json:"detail,omitempty"`
}

const (
	OutcomeSuccess = "success"
	OutcomeFailed  = "failed"
)

// Logger appends audit events as JSON lines. A nil Logger, or one built with an
// empty path, records nothing.
type Logger struct {
	path    string
	nowFunc func() time.Time

	mu  sync.Mutex
	out *logrus.Logger
	f   io.Closer
}

func NewLogger(path string) *Logger {
	return &Logger{path: path, nowFunc: time.Now}
}

func (l *Logger) Log(actor, action, target, outcome, detail string) error {
	if l == nil || l.path == "" {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.openLocked(); err != nil {
		return err
	}

	fields := logrus.Fields{
		"actor":   actor,
		"action":  action,
		"outcome": outcome,
	}
	if target != "" {
		fields["target"] = target
	}
	if detail != "" {
		fields["detail"] = detail
	}
	l.out.WithTime(l.nowFunc().UTC()).WithFields(fields).Info("audit")
	return nil
}

func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	l.out = nil
	return err
}

func (l *Logger) openLocked() error {
	if l.out != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("mkdir audit log dir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open audit log file: %w", err)
	}

	out := logrus.New()
	out.SetOutput(f)
	out.SetLevel(logrus.InfoLevel)
	out.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat:   time.RFC3339,
		DisableHTMLEscape: true,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "at",
			logrus.FieldKeyLevel: "@level",
			logrus.FieldKeyMsg:   "@msg",
		},
	})
	l.out = out
	l.f = f
	return nil
}
