// Package monitor provides activity logging, metrics and rate limiting for the SCADA range.
package monitor

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Micca1978/scadarange/internal/config"
	"github.com/Micca1978/scadarange/pkg/types"
)

// Monitor fans activity entries out to the process logger, metrics and an
// optional handler, and enforces a per-key request rate limit.
type Monitor struct {
	config       *config.MonitoringConfig
	logger       *logrus.Logger
	rateLimiter  map[string][]time.Time
	lastSweep    time.Time
	eventHandler func(subsystem string, entry types.LogEntry)
	now          func() time.Time
	mu           sync.RWMutex
}

// NewMonitor creates a new monitor writing through logger.
func NewMonitor(cfg *config.MonitoringConfig, logger *logrus.Logger) *Monitor {
	return &Monitor{
		config:      cfg,
		logger:      logger,
		rateLimiter: make(map[string][]time.Time),
		now:         time.Now,
	}
}

// NewLogger builds the process logger from logging configuration.
func NewLogger(cfg *config.LoggingConfig) (*logrus.Logger, error) {
	log := logrus.New()
	ApplyLogging(log, cfg)

	if cfg.OutputPath != "" {
		file, err := os.OpenFile(cfg.OutputPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log output: %w", err)
		}
		log.SetOutput(io.MultiWriter(os.Stdout, file))
	}
	return log, nil
}

// ApplyLogging sets level and formatter on an existing logger.
func ApplyLogging(log *logrus.Logger, cfg *config.LoggingConfig) {
	log.SetLevel(parseLogLevel(cfg.Level))
	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	} else {
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
}

func parseLogLevel(level string) logrus.Level {
	switch strings.ToLower(level) {
	case "debug":
		return logrus.DebugLevel
	case "info":
		return logrus.InfoLevel
	case "warn", "warning":
		return logrus.WarnLevel
	case "error":
		return logrus.ErrorLevel
	default:
		return logrus.InfoLevel
	}
}

// NewLog creates a subsystem activity log whose entries are recorded by this monitor.
func (m *Monitor) NewLog(subsystem string) *ActivityLog {
	l := NewActivityLog(subsystem, m.config.LogCapacity)
	l.SetSink(m.record)
	return l
}

// Logger returns the process logger.
func (m *Monitor) Logger() *logrus.Logger {
	return m.logger
}

func (m *Monitor) record(subsystem string, entry types.LogEntry) {
	activityEvents.WithLabelValues(subsystem, entry.Type).Inc()

	fields := m.logger.WithFields(logrus.Fields{
		"subsystem":  subsystem,
		"event_type": entry.Type,
	})
	switch levelFor(entry.Type) {
	case logrus.WarnLevel:
		fields.Warn(entry.Message)
	case logrus.InfoLevel:
		fields.Info(entry.Message)
	default:
		fields.Debug(entry.Message)
	}

	m.mu.RLock()
	handler := m.eventHandler
	m.mu.RUnlock()
	if handler != nil {
		handler(subsystem, entry)
	}
}

func levelFor(eventType string) logrus.Level {
	switch eventType {
	case "exploit_success", "auth_locked":
		return logrus.WarnLevel
	case "connection_attempt", "connection_result", "scada_access", "scada_access_denied":
		return logrus.DebugLevel
	default:
		return logrus.InfoLevel
	}
}

// SetEventHandler sets a callback for every recorded activity entry.
func (m *Monitor) SetEventHandler(handler func(subsystem string, entry types.LogEntry)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventHandler = handler
}

// CheckRateLimit reports whether key may make another request in the current window.
func (m *Monitor) CheckRateLimit(key string) bool {
	if !m.config.RateLimitEnabled {
		return true
	}

	m.mu.Lock()
	now := m.now()
	windowStart := now.Add(-m.config.RateLimitWindow)
	if now.Sub(m.lastSweep) >= m.config.RateLimitWindow {
		m.sweepLocked(windowStart)
		m.lastSweep = now
	}

	timestamps := m.rateLimiter[key]
	validTimestamps := make([]time.Time, 0, len(timestamps)+1)
	for _, ts := range timestamps {
		if ts.After(windowStart) {
			validTimestamps = append(validTimestamps, ts)
		}
	}

	if len(validTimestamps) >= m.config.RateLimitMax {
		m.rateLimiter[key] = validTimestamps
		count := len(validTimestamps)
		m.mu.Unlock()

		rateLimited.Inc()
		m.logger.WithFields(logrus.Fields{"key": key, "count": count}).Warn("Rate limit exceeded")
		return false
	}

	m.rateLimiter[key] = append(validTimestamps, now)
	m.mu.Unlock()
	return true
}

// sweepLocked drops keys whose newest request is older than windowStart.
func (m *Monitor) sweepLocked(windowStart time.Time) {
	for key, timestamps := range m.rateLimiter {
		if len(timestamps) == 0 || !timestamps[len(timestamps)-1].After(windowStart) {
			delete(m.rateLimiter, key)
		}
	}
}
