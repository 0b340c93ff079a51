// Package devserver is an in-memory backend that speaks the chat
// protocol. It exists for local demos and integration tests.
package devserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Chat commands understood by the dev backend.
const (
	// CommandDrop makes the server close the socket abnormally.
	CommandDrop = "/drop"
	// CommandError makes the server answer with an error frame.
	CommandError = "/error"
)

// AssistantName is the sender of every reply.
const AssistantName = "assistant"

// Options configures a Server.
type Options struct {
	Secret   []byte
	TokenTTL time.Duration
	// ProcessingPolls is how many status requests report processing
	// before a file flips to processed.
	ProcessingPolls int
	// UnsupportedExt lists extensions that end in the unknown status.
	UnsupportedExt []string
	MaxUploadBytes int64
	Logger         *zap.Logger
}

// DefaultOptions returns options suitable for local use.
func DefaultOptions() Options {
	return Options{
		Secret:          []byte("chatlink-dev-secret"),
		TokenTTL:        24 * time.Hour,
		ProcessingPolls: 2,
		UnsupportedExt:  []string{".bin", ".exe"},
		MaxUploadBytes:  32 << 20,
	}
}

type fileJob struct {
	name   string
	size   int64
	owner  string
	polls  int
	status string
	detail string
}

// Server holds users and uploaded files in memory.
type Server struct {
	opts       Options
	log        *zap.Logger
	now        func() time.Time
	bcryptCost int

	mu    sync.RWMutex
	users map[string]user
	files map[string]*fileJob
}

// New creates a Server. Zero option fields take their defaults.
func New(opts Options) *Server {
	def := DefaultOptions()
	if len(opts.Secret) == 0 {
		opts.Secret = def.Secret
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = def.TokenTTL
	}
	if opts.ProcessingPolls < 0 {
		opts.ProcessingPolls = 0
	}
	if opts.UnsupportedExt == nil {
		opts.UnsupportedExt = def.UnsupportedExt
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = def.MaxUploadBytes
	}
	log := opts.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{
		opts:       opts,
		log:        log.With(zap.String("module", "devserver")),
		now:        time.Now,
		bcryptCost: bcrypt.DefaultCost,
		users:      make(map[string]user),
		files:      make(map[string]*fileJob),
	}
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/ws/chat", s.handleChat)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.requestLogger)
		r.Post("/auth/register", s.handleRegister)
		r.Post("/auth/login", s.handleLogin)
		r.Group(func(r chi.Router) {
			r.Use(s.requireAuth)
			r.Post("/upload/", s.handleUpload)
			r.Get("/upload/status/{fileID}", s.handleStatus)
		})
	})
	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := s.now()
		next.ServeHTTP(ww, r)
		s.log.Info("request",
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

type userKey struct{}

func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := bearer(r)
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, err.Error())
			return
		}
		name, err := s.verify(token)
		if err != nil {
			writeDetail(w, http.StatusUnauthorized, "could not validate credentials")
			return
		}
		ctx := context.WithValue(r.Context(), userKey{}, name)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type credentials struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid JSON body")
		return
	}
	token, err := s.register(req.Username, req.Email, req.Password)
	switch {
	case errors.Is(err, errMissingPassword):
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	case errors.Is(err, errUserExists):
		writeDetail(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.log.Error("register failed", zap.Error(err))
		writeDetail(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.log.Info("user registered", zap.String("user", req.Username))
	writeJSON(w, http.StatusCreated, tokenResponse{AccessToken: token, TokenType: "bearer"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentials
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, "invalid JSON body")
		return
	}
	token, err := s.login(req.Username, req.Password)
	if err != nil {
		writeDetail(w, http.StatusUnauthorized, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{AccessToken: token, TokenType: "bearer"})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.MaxUploadBytes)

	f, hdr, err := r.FormFile("file")
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeDetail(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeDetail(w, http.StatusBadRequest, "missing file field")
		return
	}
	defer f.Close()

	n, err := io.Copy(io.Discard, f)
	if err != nil {
		writeDetail(w, http.StatusBadRequest, "read upload: "+err.Error())
		return
	}

	id := uuid.NewString()
	job := &fileJob{
		name:   hdr.Filename,
		size:   n,
		owner:  r.Context().Value(userKey{}).(string),
		status: "processing",
	}
	ext := strings.ToLower(filepath.Ext(hdr.Filename))
	for _, bad := range s.opts.UnsupportedExt {
		if ext == bad {
			job.status = "unknown"
			job.detail = "unsupported file type " + ext
		}
	}

	s.mu.Lock()
	s.files[id] = job
	s.mu.Unlock()

	s.log.Info("file uploaded", zap.String("file_id", id), zap.String("name", hdr.Filename), zap.Int64("bytes", n))
	writeJSON(w, http.StatusOK, map[string]string{"file_id": id, "message": "file accepted for processing"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "fileID")

	s.mu.Lock()
	job, ok := s.files[id]
	if ok && job.status == "processing" {
		job.polls++
		if job.polls > s.opts.ProcessingPolls {
			job.status = "processed"
		}
	}
	var resp map[string]string
	if ok {
		resp = map[string]string{"file_id": id, "status": job.status}
		if job.detail != "" {
			resp["detail"] = job.detail
		}
	}
	s.mu.Unlock()

	if !ok {
		writeDetail(w, http.StatusNotFound, "file not found")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

type inboundFrame struct {
	Message string `json:"message"`
}

type replyFrame struct {
	Sender    string `json:"sender,omitempty"`
	Message   string `json:"message,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
	Error     string `json:"error,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, nil)
	if err != nil {
		s.log.Warn("websocket accept failed", zap.Error(err))
		return
	}
	defer ws.CloseNow()

	name, err := s.verify(r.URL.Query().Get("token"))
	if err != nil {
		s.log.Info("chat rejected", zap.Error(err))
		_ = ws.Close(websocket.StatusPolicyViolation, "invalid token")
		return
	}

	log := s.log.With(zap.String("user", name))
	log.Info("chat connected")

	ctx := r.Context()
	for {
		var in inboundFrame
		if err := wsjson.Read(ctx, ws, &in); err != nil {
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				log.Info("chat closed")
			} else {
				log.Info("chat read ended", zap.Error(err))
			}
			return
		}

		var out replyFrame
		switch text := strings.TrimSpace(in.Message); {
		case text == "":
			out.Error = "message must not be empty"
		case text == CommandDrop:
			log.Info("dropping connection on request")
			_ = ws.Close(websocket.StatusInternalError, "dropped on request")
			return
		case strings.HasPrefix(text, CommandError):
			out.Error = strings.TrimSpace(strings.TrimPrefix(text, CommandError))
			if out.Error == "" {
				out.Error = "requested error"
			}
		default:
			out = replyFrame{
				Sender:    AssistantName,
				Message:   "echo: " + text,
				Timestamp: s.now().UTC().Format(time.RFC3339),
			}
		}

		if err := wsjson.Write(ctx, ws, out); err != nil {
			log.Warn("chat write failed", zap.Error(err))
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}
