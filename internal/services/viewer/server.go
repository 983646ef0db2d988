package viewer

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io"
	"mime"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/muradrava/reportsync/internal/models"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

//go:embed templates/index.html
var templateFS embed.FS

const shutdownTimeout = 5 * time.Second

// Server is the report viewer HTTP server.
type Server struct {
	cfg     models.ViewerConfig
	logger  zerolog.Logger
	tmpl    *template.Template
	uploads *uploadStore
}

// NewServer creates a viewer for the images in cfg.Dir.
func NewServer(logger zerolog.Logger, cfg models.ViewerConfig) (*Server, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/index.html")
	if err != nil {
		return nil, fmt.Errorf("parsing page template: %w", err)
	}
	return &Server{
		cfg:     cfg,
		logger:  logger,
		tmpl:    tmpl,
		uploads: newUploadStore(MaxUploads),
	}, nil
}

// Handler returns the HTTP routes of the viewer.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex)
	mux.HandleFunc("GET /image/{name}", s.handleImage)
	mux.HandleFunc("GET /download/{name}", s.handleDownload)
	mux.HandleFunc("POST /upload", s.handleUpload)
	mux.HandleFunc("GET /uploads/{id}", s.handleUploadImage)
	mux.HandleFunc("GET /uploads/{id}/download", s.handleUploadDownload)
	return s.logRequests(mux)
}

// ListenAndServe listens on cfg.Listen and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info().Str("addr", ln.Addr().String()).Str("dir", s.cfg.Dir).Msg("viewer listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.logger.Info().Msg("viewer shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

type pageData struct {
	Title        string
	Dir          string
	Reports      []models.ReportFile
	All          []models.ReportFile
	SelectedName string
	Label        string
	ImageURL     string
	DownloadURL  string
	DownloadName string
	Error        string
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	data := pageData{Title: s.cfg.Title, Dir: s.cfg.Dir}

	reports, err := Scan(s.cfg.Dir)
	if err != nil {
		s.logger.Error().Err(err).Str("dir", s.cfg.Dir).Msg("failed to scan reports")
		data.Error = "Reports directory is not readable"
	}
	data.Reports = reports

	if len(reports) > 0 {
		selected := reports[0]
		if name := r.URL.Query().Get("file"); name != "" {
			if f, ok := findFile(reports, name); ok {
				selected = f
			} else {
				data.Error = fmt.Sprintf("Report %q not found, showing the latest", name)
			}
		}
		data.SelectedName = selected.Name
		data.Label = selected.Label()
		data.ImageURL = "/image/" + url.PathEscape(selected.Name)
		data.DownloadURL = "/download/" + url.PathEscape(selected.Name)
		data.DownloadName = s.cfg.DownloadPrefix + selected.Name
	} else {
		if err == nil {
			data.Error = "No regular or special reports found in " + s.cfg.Dir
			data.All, _ = All(s.cfg.Dir)
		}
		if id := r.URL.Query().Get("upload"); id != "" {
			if u, ok := s.uploads.get(id); ok {
				data.SelectedName = u.Name
				data.Label = u.File().Label()
				data.ImageURL = "/uploads/" + u.ID
				data.DownloadURL = "/uploads/" + u.ID + "/download"
				data.DownloadName = s.cfg.DownloadPrefix + u.Name
				data.Error = ""
			} else {
				data.Error = "Upload expired, please upload the image again"
			}
		}
	}

	var buf bytes.Buffer
	if err := s.tmpl.Execute(&buf, data); err != nil {
		s.logger.Error().Err(err).Msg("failed to render page")
		http.Error(w, "failed to render page", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = buf.WriteTo(w)
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	s.serveFile(w, r, false)
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	s.serveFile(w, r, true)
}

// serveFile only serves names present in the directory listing, so request
// paths never reach the filesystem.
func (s *Server) serveFile(w http.ResponseWriter, r *http.Request, attachment bool) {
	files, err := All(s.cfg.Dir)
	if err != nil {
		http.NotFound(w, r)
		return
	}
	f, ok := findFile(files, r.PathValue("name"))
	if !ok {
		http.NotFound(w, r)
		return
	}

	file, err := os.Open(f.Path)
	if err != nil {
		s.logger.Error().Err(err).Str("file", f.Path).Msg("failed to open report")
		http.NotFound(w, r)
		return
	}
	defer func() { _ = file.Close() }()

	info, err := file.Stat()
	if err != nil {
		http.Error(w, "failed to read report", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", ContentType(f.Name))
	if attachment {
		w.Header().Set("Content-Disposition", disposition(s.cfg.DownloadPrefix+f.Name))
	}
	http.ServeContent(w, r, f.Name, info.ModTime(), file)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	tooLargeMsg := fmt.Sprintf("image exceeds %d bytes", s.cfg.MaxUploadBytes)
	if r.ContentLength > s.cfg.MaxUploadBytes {
		http.Error(w, tooLargeMsg, http.StatusRequestEntityTooLarge)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, tooLargeMsg, http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "missing image file", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()

	name := filepath.Base(header.Filename)
	if !IsImage(name) {
		http.Error(w, "only PNG and JPEG images are accepted", http.StatusBadRequest)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		http.Error(w, "failed to read upload", http.StatusBadRequest)
		return
	}

	u := s.uploads.add(name, data)
	s.logger.Info().Str("id", u.ID).Str("name", name).Int("bytes", len(data)).Msg("image uploaded")

	http.Redirect(w, r, "/?upload="+u.ID, http.StatusSeeOther)
}

func (s *Server) handleUploadImage(w http.ResponseWriter, r *http.Request) {
	s.serveUpload(w, r, false)
}

func (s *Server) handleUploadDownload(w http.ResponseWriter, r *http.Request) {
	s.serveUpload(w, r, true)
}

func (s *Server) serveUpload(w http.ResponseWriter, r *http.Request, attachment bool) {
	u, ok := s.uploads.get(r.PathValue("id"))
	if !ok {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Content-Type", ContentType(u.Name))
	if attachment {
		w.Header().Set("Content-Disposition", disposition(s.cfg.DownloadPrefix+u.Name))
	}
	http.ServeContent(w, r, u.Name, u.Received, bytes.NewReader(u.Data))
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

func findFile(files []models.ReportFile, name string) (models.ReportFile, bool) {
	for _, f := range files {
		if f.Name == name {
			return f, true
		}
	}
	return models.ReportFile{}, false
}

func disposition(filename string) string {
	return mime.FormatMediaType("attachment", map[string]string{"filename": filename})
}
