// Package server exposes the scheduler over HTTP on the loopback interface:
// health, last decision, manual sync, alarm actions and the alarm calendar feed.
package server

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/tartampluch/go-wakeup/internal/alarm"
	"github.com/tartampluch/go-wakeup/internal/config"
)

// cacheItem stores a rendered document and its metadata for HTTP caching.
type cacheItem struct {
	data         []byte
	etag         string
	lastModified string // RFC1123 format required by HTTP headers
}

func newCacheItem(data []byte) *cacheItem {
	hash := sha256.Sum256(data)
	return &cacheItem{
		data:         data,
		etag:         fmt.Sprintf(config.FormatETag, hex.EncodeToString(hash[:])),
		lastModified: time.Now().UTC().Format(http.TimeFormat),
	}
}

// AlarmActions performs the user actions on a ringing alarm.
type AlarmActions interface {
	Snooze(ctx context.Context, dayID int32) (alarm.Record, error)
	Dismiss(ctx context.Context, dayID int32) error
}

// Server serves the latest synchronization outcome and the alarm feed.
type Server struct {
	// calendar and status use atomic.Pointer for lock-free reads: both are
	// read by clients far more often than a sync pass replaces them.
	calendar atomic.Pointer[cacheItem]
	status   atomic.Pointer[cacheItem]

	Port string

	// Actions handles snooze and dismiss. Nil answers 503.
	Actions AlarmActions

	// RequestSync queues a manual pass and reports whether it was accepted.
	RequestSync func() bool
}

// New creates a new instance of the server.
func New(port string) *Server {
	return &Server{Port: port}
}

// Handler returns the routing table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(config.RouteHealth, s.handleHealth)
	mux.HandleFunc(config.RouteStatus, s.handleStatus)
	mux.HandleFunc(config.RouteSync, s.handleSync)
	mux.HandleFunc(config.RouteSnooze, s.handleSnooze)
	mux.HandleFunc(config.RouteDismiss, s.handleDismiss)
	mux.HandleFunc(config.RouteCalendar, s.handleCalendar)
	return mux
}

// Start initializes the HTTP server and blocks until the context is cancelled.
func (s *Server) Start(ctx context.Context) error {
	if s.Port == "" {
		return errors.New(config.ErrPortRequired)
	}

	srv := &http.Server{
		Addr:         config.LocalhostBindAddr + config.AddrSeparator + s.Port,
		Handler:      s.Handler(),
		ReadTimeout:  config.ServerReadTimeout,
		WriteTimeout: config.ServerWriteTimeout,
		IdleTimeout:  config.ServerIdleTimeout,
	}

	serverError := make(chan error, config.ChannelBufferSize)

	go func() {
		slog.Info(config.MsgServerListen,
			config.LogKeyComponent, config.CompServer,
			config.LogKeyPort, s.Port,
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverError <- err
		}
	}()

	select {
	case <-ctx.Done():
		slog.Info(config.MsgServerStop, config.LogKeyComponent, config.CompServer)
		shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("%s: %w", config.ErrServerShutdown, err)
		}
		return nil

	case err := <-serverError:
		return fmt.Errorf("%s: %w", config.ErrServerStartup, err)
	}
}

// UpdateCalendar atomically replaces the served alarm feed.
func (s *Server) UpdateCalendar(data []byte) {
	item := newCacheItem(data)
	s.calendar.Store(item)

	slog.Debug(config.MsgCacheUpdated,
		config.LogKeyComponent, config.CompServer,
		config.LogKeySizeBytes, len(data),
		config.LogKeyETag, item.etag,
	)
}

// UpdateStatus atomically replaces the served status document.
func (s *Server) UpdateStatus(st Status) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	item := newCacheItem(data)
	s.status.Store(item)

	slog.Debug(config.MsgStatusUpdated,
		config.LogKeyComponent, config.CompServer,
		config.LogKeySizeBytes, len(data),
		config.LogKeyETag, item.etag,
	)
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !allowRead(w, r) {
		return
	}
	w.Header().Set(config.HeaderContentType, config.MimeTextPlain)
	if r.Method == http.MethodGet {
		_, _ = io.WriteString(w, config.HTTPMsgOK)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if !allowRead(w, r) {
		return
	}
	serveCached(w, r, s.status.Load(), config.MimeJSON)
}

// handleCalendar serves the ICS content with HTTP caching support.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	if !allowRead(w, r) {
		return
	}
	serveCached(w, r, s.calendar.Load(), config.MimeTextCalendar)
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	if !allowPost(w, r) {
		return
	}
	if s.RequestSync == nil || !s.RequestSync() {
		w.Header().Set(config.HeaderRetryAfter, config.RetryAfterSeconds)
		http.Error(w, config.HTTPMsgSyncDisabled, http.StatusServiceUnavailable)
		return
	}
	slog.Info(config.MsgSyncReq,
		config.LogKeyComponent, config.CompServer,
		config.LogKeyReason, config.ReasonManual)
	w.Header().Set(config.HeaderContentType, config.MimeTextPlain)
	w.WriteHeader(http.StatusAccepted)
	_, _ = io.WriteString(w, config.HTTPMsgSyncQueued)
}

func (s *Server) handleSnooze(w http.ResponseWriter, r *http.Request) {
	dayID, ok := s.alarmRequest(w, r)
	if !ok {
		return
	}
	rec, err := s.Actions.Snooze(r.Context(), dayID)
	if err != nil {
		writeActionError(w, dayID, err)
		return
	}
	writeJSON(w, http.StatusOK, AlarmView{
		DayID:     rec.DayID,
		TriggerAt: rec.TriggerAt,
		Label:     rec.Label,
		EventID:   rec.Event.ID,
	})
}

func (s *Server) handleDismiss(w http.ResponseWriter, r *http.Request) {
	dayID, ok := s.alarmRequest(w, r)
	if !ok {
		return
	}
	if err := s.Actions.Dismiss(r.Context(), dayID); err != nil {
		writeActionError(w, dayID, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// alarmRequest validates the method, the action handler and the day path parameter.
func (s *Server) alarmRequest(w http.ResponseWriter, r *http.Request) (int32, bool) {
	if !allowPost(w, r) {
		return 0, false
	}
	if s.Actions == nil {
		w.Header().Set(config.HeaderRetryAfter, config.RetryAfterSeconds)
		http.Error(w, config.HTTPMsgInitializing, http.StatusServiceUnavailable)
		return 0, false
	}
	id, err := strconv.ParseInt(r.PathValue(config.PathDayParam), 10, 32)
	if err != nil {
		http.Error(w, config.HTTPMsgBadDay, http.StatusBadRequest)
		return 0, false
	}
	return int32(id), true
}

func writeActionError(w http.ResponseWriter, dayID int32, err error) {
	slog.Warn(config.MsgAlarmAction,
		config.LogKeyComponent, config.CompServer,
		config.LogKeyDayID, dayID,
		config.LogKeyError, err)

	switch {
	case errors.Is(err, alarm.ErrNotFound):
		http.Error(w, config.HTTPMsgNotFound, http.StatusNotFound)
	case errors.Is(err, alarm.ErrNotFired), errors.Is(err, alarm.ErrSnoozeExhausted):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		http.Error(w, config.HTTPMsgInternalErr, http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set(config.HeaderContentType, config.MimeJSON)
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error(config.ErrWriteResp,
			config.LogKeyComponent, config.CompServer,
			config.LogKeyError, err,
		)
	}
}

func allowRead(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set(config.HeaderAllow, config.AllowedMethods)
		http.Error(w, config.HTTPMsgMethodNotAll, http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func allowPost(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		w.Header().Set(config.HeaderAllow, config.AllowedMethodsPost)
		http.Error(w, config.HTTPMsgMethodNotAll, http.StatusMethodNotAllowed)
		return false
	}
	return true
}

// serveCached writes item with conditional GET support.
func serveCached(w http.ResponseWriter, r *http.Request, item *cacheItem, mime string) {
	if item == nil {
		w.Header().Set(config.HeaderRetryAfter, config.RetryAfterSeconds)
		http.Error(w, config.HTTPMsgInitializing, http.StatusServiceUnavailable)
		return
	}

	w.Header().Set(config.HeaderContentType, mime)
	w.Header().Set(config.HeaderXContentType, config.MimeNoSniff)
	w.Header().Set(config.HeaderCacheControl, config.CacheControlPrivate)
	w.Header().Set(config.HeaderETag, item.etag)
	w.Header().Set(config.HeaderLastModified, item.lastModified)

	if match := r.Header.Get(config.HeaderIfNoneMatch); match == item.etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	if since := r.Header.Get(config.HeaderIfModifiedSince); since != "" {
		if clientTime, err := time.Parse(http.TimeFormat, since); err == nil {
			if serverTime, err := time.Parse(http.TimeFormat, item.lastModified); err == nil {
				// Content not newer than the client's copy.
				if !serverTime.After(clientTime) {
					w.WriteHeader(http.StatusNotModified)
					return
				}
			}
		}
	}

	if r.Method == http.MethodGet {
		if _, err := io.Copy(w, bytes.NewReader(item.data)); err != nil {
			slog.Error(config.ErrWriteResp,
				config.LogKeyComponent, config.CompServer,
				config.LogKeyError, err,
			)
		}
	}
}
