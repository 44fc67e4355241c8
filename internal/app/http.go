package app

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/Sabina940/atlas/internal/auth"
	"github.com/Sabina940/atlas/internal/media"
	"github.com/Sabina940/atlas/internal/ratelimit"
	"github.com/Sabina940/atlas/internal/rbac"
	"github.com/Sabina940/atlas/internal/search"
	"github.com/Sabina940/atlas/internal/store"
)

const maxBodyBytes = 1 << 20

// Authorizer checks an Authorization header for one admin action.
type Authorizer interface {
	Authorize(ctx context.Context, authorization string, action rbac.Action) (auth.AdminIdentity, error)
}

// SecretMatcher checks the ingestion shared secret.
type SecretMatcher interface {
	Matches(candidate string) bool
}

type HTTPConfig struct {
	Gate           Authorizer
	IngestSecret   SecretMatcher
	CommentLimiter ratelimit.Limiter
	IngestLimiter  ratelimit.Limiter
	CORSOrigins    []string
	// TrustProxy takes the client address from X-Forwarded-For / X-Real-IP.
	// Only enable it behind a proxy that overwrites those headers.
	TrustProxy bool
	// ReadyChecks are extra dependencies reported by /api/ready, by name.
	ReadyChecks map[string]func(context.Context) error
}

type HTTPServer struct {
	service *Service
	cfg     HTTPConfig
}

func NewHTTPServer(service *Service, cfg HTTPConfig) *HTTPServer {
	if cfg.CommentLimiter == nil {
		cfg.CommentLimiter = ratelimit.Unlimited{}
	}
	if cfg.IngestLimiter == nil {
		cfg.IngestLimiter = ratelimit.Unlimited{}
	}
	if len(cfg.CORSOrigins) == 0 {
		cfg.CORSOrigins = []string{"*"}
	}
	return &HTTPServer{service: service, cfg: cfg}
}

func (s *HTTPServer) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if s.cfg.TrustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(accessLog)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-Ingest-Secret", "X-Atlas-Secret"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", "", nil)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", "", nil)
	})

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/ready", s.handleReady)

	r.Get("/admin/posts", s.handleAdminPostsGet)
	r.Post("/admin/posts", s.handleAdminPostsPost)
	r.Get("/admin/comments", s.handleAdminCommentsGet)
	r.Post("/admin/comments", s.handleAdminCommentsPost)
	r.Post("/admin/uploads", s.handleAdminUpload)

	r.Get("/comments", s.handlePublicComments)
	r.With(s.limited(s.cfg.CommentLimiter, "comments")).Post("/comments", s.handleSubmitComment)
	r.With(s.limited(s.cfg.IngestLimiter, "ingest")).Post("/ingest", s.handleIngest)

	r.Get("/posts", s.handlePublishedPosts)
	r.Get("/posts/search", s.handleSearch)
	r.Get("/posts/{slug}", s.handlePublishedPost)
	return r
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := "ready"
	statusCode := http.StatusOK
	checks := map[string]any{
		"database": map[string]any{"status": "ok"},
	}
	if err := s.service.Ping(ctx); err != nil {
		status = "not_ready"
		statusCode = http.StatusServiceUnavailable
		checks["database"] = map[string]any{
			"status": "error",
			"error":  err.Error(),
		}
	}
	for name, check := range s.cfg.ReadyChecks {
		if err := check(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks[name] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
			continue
		}
		checks[name] = map[string]any{"status": "ok"}
	}
	writeJSON(w, statusCode, map[string]any{
		"ok":     status == "ready",
		"status": status,
		"checks": checks,
	})
}

func (s *HTTPServer) handleAdminPostsGet(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorize(w, r, rbac.ActionReadAdmin); !ok {
		return
	}
	query := r.URL.Query()
	id := strings.TrimSpace(query.Get("id"))
	if id == "" {
		posts, err := s.service.ListPosts(r.Context())
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"posts": posts})
		return
	}

	if hash := strings.TrimSpace(query.Get("revision")); hash != "" {
		snapshot, info, err := s.service.PostRevision(r.Context(), id, hash)
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"post": snapshot, "revision": info})
		return
	}
	if isTruthy(query.Get("history")) {
		limit, _ := strconv.Atoi(query.Get("limit"))
		history, err := s.service.PostHistory(r.Context(), id, limit)
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"history": history})
		return
	}

	post, err := s.service.GetPost(r.Context(), id)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"post": post})
}

func (s *HTTPServer) handleAdminPostsPost(w http.ResponseWriter, r *http.Request) {
	identity, ok := s.authorize(w, r, rbac.ActionManagePosts)
	if !ok {
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	command, err := decodePostCommand(body)
	if err != nil {
		writeFailure(w, err)
		return
	}
	result, err := s.service.ExecutePostCommand(r.Context(), identity.Email, command)
	if err != nil {
		writeFailure(w, err)
		return
	}
	if result.Post != nil {
		writeJSON(w, http.StatusOK, map[string]any{"post": result.Post})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleAdminCommentsGet(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorize(w, r, rbac.ActionReadAdmin); !ok {
		return
	}
	comments, err := s.service.ListForModeration(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"comments": comments})
}

func (s *HTTPServer) handleAdminCommentsPost(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorize(w, r, rbac.ActionModerateComments); !ok {
		return
	}
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	command, err := decodeCommentCommand(body)
	if err != nil {
		writeFailure(w, err)
		return
	}
	reply, err := s.service.ExecuteCommentCommand(r.Context(), command)
	if err != nil {
		writeFailure(w, err)
		return
	}
	response := map[string]any{"ok": true}
	if reply != nil {
		response["comment"] = reply
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleAdminUpload(w http.ResponseWriter, r *http.Request) {
	if _, ok := s.authorize(w, r, rbac.ActionManagePosts); !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, media.MaxCoverBytes+maxBodyBytes)
	if err := r.ParseMultipartForm(maxBodyBytes); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeFailure(w, payloadTooLarge(tooLarge.Limit))
			return
		}
		writeFailure(w, missingField("file"))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeFailure(w, missingField("file"))
		return
	}
	defer file.Close()

	url, err := s.service.UploadCover(r.Context(), header.Filename, header.Header.Get("Content-Type"), file, header.Size)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"url": url})
}

func (s *HTTPServer) handlePublicComments(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	comments, err := s.service.ListApproved(r.Context(), query.Get("post_id"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	response := map[string]any{"comments": comments}
	if isTruthy(query.Get("threaded")) {
		threads, orphans := GroupThreads(comments)
		response["threads"] = threads
		response["orphans"] = orphans
	}
	writeJSON(w, http.StatusOK, response)
}

func (s *HTTPServer) handleSubmitComment(w http.ResponseWriter, r *http.Request) {
	body, ok := readBody(w, r)
	if !ok {
		return
	}
	comment, err := s.service.SubmitComment(r.Context(), decodeJSON[CommentInput](body))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "id": comment.ID})
}

func (s *HTTPServer) handleIngest(w http.ResponseWriter, r *http.Request) {
	secret := strings.TrimSpace(r.Header.Get("X-Ingest-Secret"))
	if secret == "" {
		secret = strings.TrimSpace(r.Header.Get("X-Atlas-Secret"))
	}
	if secret == "" || s.cfg.IngestSecret == nil || !s.cfg.IngestSecret.Matches(secret) {
		writeFailure(w, unauthenticated("Invalid ingest secret"))
		return
	}

	body, ok := readBody(w, r)
	if !ok {
		return
	}
	raw := string(body)
	if strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
		var envelope struct {
			Raw *string `json:"raw"`
		}
		if err := json.Unmarshal(body, &envelope); err == nil {
			raw = ""
			if envelope.Raw != nil {
				raw = *envelope.Raw
			}
		}
	}

	post, err := s.service.IngestNote(r.Context(), raw)
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ok":   true,
		"post": map[string]any{"id": post.ID, "slug": post.Slug},
	})
}

func (s *HTTPServer) handlePublishedPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := s.service.ListPublishedPosts(r.Context())
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"posts": posts})
}

func (s *HTTPServer) handlePublishedPost(w http.ResponseWriter, r *http.Request) {
	post, err := s.service.GetPublishedPost(r.Context(), chi.URLParam(r, "slug"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"post": post})
}

func (s *HTTPServer) handleSearch(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, _ := strconv.Atoi(query.Get("limit"))
	offset, _ := strconv.Atoi(query.Get("offset"))
	response, err := s.service.SearchPosts(r.Context(), search.Query{
		Text:   query.Get("q"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, response)
}

// authorize runs the gate for action and writes the failure response itself.
func (s *HTTPServer) authorize(w http.ResponseWriter, r *http.Request, action rbac.Action) (auth.AdminIdentity, bool) {
	if s.cfg.Gate == nil {
		writeFailure(w, auth.ErrUnauthenticated)
		return auth.AdminIdentity{}, false
	}
	identity, err := s.cfg.Gate.Authorize(r.Context(), r.Header.Get("Authorization"), action)
	if err != nil {
		if errors.Is(err, auth.ErrForbidden) {
			log.Printf(`{"request_id":"%s","denied":"%s","path":"%s"}`, middleware.GetReqID(r.Context()), action, r.URL.Path)
		}
		writeFailure(w, err)
		return auth.AdminIdentity{}, false
	}
	return identity, true
}

// limited counts requests per client address. A limiter that errors lets the
// request through.
func (s *HTTPServer) limited(limiter ratelimit.Limiter, scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			allowed, err := limiter.Allow(r.Context(), clientAddress(r))
			if err != nil {
				log.Printf("ratelimit: %s: %v", scope, err)
				allowed = true
			}
			if !allowed {
				writeFailure(w, rateLimited())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := middleware.GetReqID(r.Context())
		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		writer.Header().Set("X-Request-ID", requestID)
		writer.Header().Set("Cache-Control", "no-store")

		next.ServeHTTP(writer, r)

		log.Printf(`{"request_id":"%s","method":"%s","path":"%s","status":%d,"duration_ms":%d}`,
			requestID,
			r.Method,
			r.URL.Path,
			writer.status,
			time.Since(started).Milliseconds(),
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func clientAddress(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func isTruthy(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

// readBody reads at most maxBodyBytes. Oversized bodies get a 413.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	if r.Body == nil {
		return nil, true
	}
	defer r.Body.Close()
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeFailure(w, payloadTooLarge(tooLarge.Limit))
			return nil, false
		}
		return nil, true
	}
	return body, true
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message, field string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if field != "" {
		response["field"] = field
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func writeFailure(w http.ResponseWriter, err error) {
	status, code, message, field, details := mapError(err)
	writeError(w, status, code, message, field, details)
}

func mapError(err error) (status int, code, message, field string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Status, domainErr.Code, domainErr.Message, domainErr.Field, domainErr.Details
	}
	switch {
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "NOT_FOUND", "Not found", "", nil
	case errors.Is(err, auth.ErrUnauthenticated), errors.Is(err, auth.ErrInvalidToken):
		e := unauthenticated("Missing or invalid bearer token")
		return e.Status, e.Code, e.Message, "", nil
	case errors.Is(err, auth.ErrForbidden):
		e := forbidden("Not allowed")
		return e.Status, e.Code, e.Message, "", nil
	case errors.Is(err, auth.ErrProviderUnavailable):
		return http.StatusBadGateway, "IDENTITY_UNAVAILABLE", "Identity provider unavailable", "", nil
	}
	e := storeError(err)
	return e.Status, e.Code, e.Message, "", nil
}
