package relay

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	jww "github.com/spf13/jwalterweatherman"

	"cipherlink/internal/domain"
)

const (
	defaultCodeTTL     = 10 * time.Minute
	defaultMailboxTTL  = 10 * time.Minute
	defaultCodeLimit   = 60
	maxBodyBytes       = 1 << 20
	maxCodeGenAttempts = 16
)

type issuedCode struct {
	tokenID  domain.TokenID
	issuedAt time.Time
}

type mailbox struct {
	body     []byte
	filled   bool
	openedAt time.Time
}

// Server is an in-memory coordination service for development and tests.
// It never sees plaintext: provisioning messages are sealed to the new
// device before they arrive.
type Server struct {
	mu        sync.Mutex
	codes     map[string]issuedCode
	mailboxes map[domain.EphemeralDeviceID]*mailbox
	devices   map[domain.ACI]domain.DeviceID
	bundles   map[string]domain.PreKeyBundle

	codeTTL    time.Duration
	mailboxTTL time.Duration
	codeLimit  int
	newCode    func() (string, error)
	now        func() time.Time
	registry   *prometheus.Registry
	metrics    *metrics
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithCodeTTL sets how long an issued provisioning code stays redeemable.
func WithCodeTTL(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.codeTTL = d
		}
	}
}

// WithMailboxTTL sets how long an unread provisioning mailbox is kept.
func WithMailboxTTL(d time.Duration) ServerOption {
	return func(s *Server) {
		if d > 0 {
			s.mailboxTTL = d
		}
	}
}

// WithCodeGenerator replaces the random six-digit code source.
func WithCodeGenerator(gen func() (string, error)) ServerOption {
	return func(s *Server) {
		if gen != nil {
			s.newCode = gen
		}
	}
}

// WithCodeRateLimit caps provisioning code requests per client IP per minute.
func WithCodeRateLimit(perMinute int) ServerOption {
	return func(s *Server) {
		if perMinute > 0 {
			s.codeLimit = perMinute
		}
	}
}

// WithServerClock replaces time.Now.
func WithServerClock(now func() time.Time) ServerOption { return func(s *Server) { s.now = now } }

// NewServer returns an empty server with its own metrics registry.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		codes:      make(map[string]issuedCode),
		mailboxes:  make(map[domain.EphemeralDeviceID]*mailbox),
		devices:    make(map[domain.ACI]domain.DeviceID),
		bundles:    make(map[string]domain.PreKeyBundle),
		codeTTL:    defaultCodeTTL,
		mailboxTTL: defaultMailboxTTL,
		codeLimit:  defaultCodeLimit,
		newCode:    func() (string, error) { return randomDigits(6) },
		now:        time.Now,
		registry:   prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.metrics = newMetrics(s.registry)
	return s
}

// Handler returns the HTTP API.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.accessLog)

	r.Get("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}).ServeHTTP)

	r.Route("/v1", func(r chi.Router) {
		r.With(httprate.LimitByIP(s.codeLimit, time.Minute)).
			Get("/devices/provisioning/code", s.handleIssueCode)
		r.Put("/devices/link", s.handleLinkDevice)

		r.Post("/provisioning", s.handleOpenMailbox)
		r.Put("/provisioning/{uuid}", s.handleDeliver)
		r.Get("/provisioning/{uuid}", s.handleFetch)

		r.Put("/keys/{role}", s.handleUploadPreKeys)
	})
	return r
}

// PreKeyBundle returns the last bundle uploaded for (aci, device, role).
func (s *Server) PreKeyBundle(
	aci domain.ACI,
	device domain.DeviceID,
	role domain.IdentityRole,
) (domain.PreKeyBundle, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bundles[bundleKey(aci, device, role)]
	return b, ok
}

// handleIssueCode never hands out a code that is still outstanding.
func (s *Server) handleIssueCode(w http.ResponseWriter, r *http.Request) {
	out := domain.ProvisioningCode{TokenID: domain.TokenID(uuid.NewString())}

	s.mu.Lock()
	s.sweepLocked()
	code, err := s.uniqueCodeLocked()
	if err != nil {
		s.mu.Unlock()
		jww.WARN.Printf("provisioning code not issued: %v", err)
		http.Error(w, "code generation failed", http.StatusServiceUnavailable)
		return
	}
	out.VerificationCode = code
	s.codes[code] = issuedCode{tokenID: out.TokenID, issuedAt: s.now()}
	s.mu.Unlock()

	s.metrics.codesIssued.Inc()
	jww.INFO.Printf("issued provisioning code, token %s", out.TokenID)
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleOpenMailbox(w http.ResponseWriter, r *http.Request) {
	id := domain.EphemeralDeviceID(uuid.NewString())
	s.mu.Lock()
	s.sweepLocked()
	s.mailboxes[id] = &mailbox{openedAt: s.now()}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, provisioningChannel{UUID: id})
}

func (s *Server) handleDeliver(w http.ResponseWriter, r *http.Request) {
	id := domain.EphemeralDeviceID(chi.URLParam(r, "uuid"))
	var in provisioningMessage
	if err := decodeJSON(w, r, &in); err != nil || len(in.Body) == 0 {
		s.metrics.messagesDelivered.WithLabelValues("bad_request").Inc()
		http.Error(w, "body required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	mb, ok := s.mailboxes[id]
	switch {
	case !ok:
		s.mu.Unlock()
		s.metrics.messagesDelivered.WithLabelValues("unknown_mailbox").Inc()
		http.Error(w, "unknown mailbox", http.StatusNotFound)
		return
	case mb.filled:
		s.mu.Unlock()
		s.metrics.messagesDelivered.WithLabelValues("duplicate").Inc()
		http.Error(w, "mailbox already filled", http.StatusConflict)
		return
	}
	mb.body, mb.filled = in.Body, true
	s.mu.Unlock()

	s.metrics.messagesDelivered.WithLabelValues("ok").Inc()
	jww.INFO.Printf("provisioning message delivered to %s (%d bytes)", id, len(in.Body))
	w.WriteHeader(http.StatusNoContent)
}

// handleFetch hands the message out once, then drops the mailbox.
func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	id := domain.EphemeralDeviceID(chi.URLParam(r, "uuid"))

	s.mu.Lock()
	mb, ok := s.mailboxes[id]
	if ok && mb.filled {
		delete(s.mailboxes, id)
	}
	s.mu.Unlock()

	switch {
	case !ok:
		http.Error(w, "unknown mailbox", http.StatusNotFound)
	case !mb.filled:
		w.WriteHeader(http.StatusNoContent)
	default:
		writeJSON(w, http.StatusOK, provisioningMessage{Body: mb.body})
	}
}

func (s *Server) handleLinkDevice(w http.ResponseWriter, r *http.Request) {
	var in domain.DeviceLinkRequest
	if err := decodeJSON(w, r, &in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if in.ACI.IsZero() || in.PNI.IsZero() {
		http.Error(w, "aci and pni required", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	code, ok := s.codes[in.VerificationCode]
	if !ok || s.now().Sub(code.issuedAt) > s.codeTTL {
		delete(s.codes, in.VerificationCode)
		s.mu.Unlock()
		http.Error(w, "invalid or expired provisioning code", http.StatusForbidden)
		return
	}
	delete(s.codes, in.VerificationCode)
	next := s.devices[in.ACI]
	if next < domain.PrimaryDeviceID {
		next = domain.PrimaryDeviceID
	}
	next++
	s.devices[in.ACI] = next
	s.mu.Unlock()

	s.metrics.devicesLinked.Inc()
	jww.INFO.Printf("linked device %d (%q) to %s, token %s", next, in.DeviceName, in.ACI, code.tokenID)
	writeJSON(w, http.StatusOK, domain.DeviceLinkResponse{ACI: in.ACI, PNI: in.PNI, DeviceID: next})
}

func (s *Server) handleUploadPreKeys(w http.ResponseWriter, r *http.Request) {
	role, err := domain.ParseIdentityRole(chi.URLParam(r, "role"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var in domain.PreKeyBundle
	if err := decodeJSON(w, r, &in); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if in.Role != role || in.ACI.IsZero() {
		http.Error(w, "bundle does not match route", http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.bundles[bundleKey(in.ACI, in.DeviceID, role)] = in
	s.mu.Unlock()

	s.metrics.preKeyUploads.WithLabelValues(role.String()).Inc()
	w.WriteHeader(http.StatusNoContent)
}

// accessLog records one line and the request metrics per request.
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		route := r.URL.Path
		if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
			route = rc.RoutePattern()
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		elapsed := time.Since(start)
		s.metrics.requests.WithLabelValues(r.Method, route, strconv.Itoa(status)).Inc()
		s.metrics.requestDuration.WithLabelValues(r.Method, route).Observe(elapsed.Seconds())
		jww.INFO.Printf("%s %s %s %d %dB %s", r.Method, r.URL.Path, r.RemoteAddr, status, ww.BytesWritten(), elapsed)
	})
}

func (s *Server) uniqueCodeLocked() (string, error) {
	for i := 0; i < maxCodeGenAttempts; i++ {
		code, err := s.newCode()
		if err != nil {
			return "", err
		}
		if _, taken := s.codes[code]; !taken {
			return code, nil
		}
	}
	return "", errors.Errorf("no free code after %d attempts", maxCodeGenAttempts)
}

// sweepLocked drops expired codes and mailboxes. s.mu must be held.
func (s *Server) sweepLocked() {
	now := s.now()
	for code, issued := range s.codes {
		if now.Sub(issued.issuedAt) > s.codeTTL {
			delete(s.codes, code)
		}
	}
	for id, mb := range s.mailboxes {
		if now.Sub(mb.openedAt) > s.mailboxTTL {
			delete(s.mailboxes, id)
		}
	}
}

func bundleKey(aci domain.ACI, device domain.DeviceID, role domain.IdentityRole) string {
	return fmt.Sprintf("%s/%d/%s", aci, device, role)
}

func randomDigits(n int) (string, error) {
	out := make([]byte, n)
	ten := big.NewInt(10)
	for i := range out {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		out[i] = byte('0' + d.Int64())
	}
	return string(out), nil
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
