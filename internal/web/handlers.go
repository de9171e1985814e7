package web

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/fpang/slop-meme-generator/internal/acquire"
	"github.com/fpang/slop-meme-generator/internal/caption"
	"github.com/fpang/slop-meme-generator/internal/compose"
	"github.com/fpang/slop-meme-generator/internal/export"
	"github.com/fpang/slop-meme-generator/internal/session"
)

const (
	defaultPreviewMax = compose.CanvasSize
	maxPreviewMax     = compose.CanvasSize * compose.ExportScale
)

type templateView struct {
	Index   int          `json:"index"`
	Label   string       `json:"label"`
	Prompt  string       `json:"prompt"`
	Caption caption.Pair `json:"caption"`
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		httpError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	return true
}

// allowGenerate takes a token for an acquisition that is about to start.
func (s *Server) allowGenerate(w http.ResponseWriter) bool {
	if s.limiter != nil && !s.limiter.Allow() {
		httpError(w, http.StatusTooManyRequests, "too many generate requests")
		return false
	}
	return true
}

// GET /api/health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /api/state
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	respondJSON(w, http.StatusOK, s.sess.Snapshot())
}

// GET /api/templates
func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	views := make([]templateView, len(caption.Templates))
	for i, t := range caption.Templates {
		views[i] = templateView{Index: i, Label: t.Label(), Prompt: t.PromptSeed, Caption: t.Caption}
	}
	respondJSON(w, http.StatusOK, views)
}

// POST /api/generate {"prompt": "..."}
func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	// Blank prompts go straight to the session for its notice and never
	// spend a rate token.
	if strings.TrimSpace(req.Prompt) != "" && !s.allowGenerate(w) {
		return
	}
	if err := s.sess.Submit(req.Prompt); err != nil {
		if errors.Is(err, acquire.ErrEmptyPrompt) {
			httpError(w, http.StatusBadRequest, session.MsgEnterPrompt)
			return
		}
		httpError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, s.sess.Snapshot())
}

// POST /api/template {"index": 0}
func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req struct {
		Index *int `json:"index"`
	}
	if err := decodeJSON(w, r, &req); err != nil || req.Index == nil {
		httpError(w, http.StatusBadRequest, "index is required")
		return
	}
	if _, ok := caption.TemplateAt(*req.Index); !ok {
		httpError(w, http.StatusNotFound, session.ErrUnknownTemplate.Error())
		return
	}
	if !s.allowGenerate(w) {
		return
	}
	if err := s.sess.SelectTemplate(*req.Index); err != nil {
		httpError(w, http.StatusNotFound, err.Error())
		return
	}
	respondJSON(w, http.StatusAccepted, s.sess.Snapshot())
}

// POST /api/autocaption
func (s *Server) handleAutoCaption(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	if err := s.sess.AutoCaption(r.Context()); err != nil {
		if errors.Is(err, session.ErrNoImage) {
			httpError(w, http.StatusConflict, session.MsgNeedImage)
			return
		}
		// Client went away during the pause.
		return
	}
	respondJSON(w, http.StatusOK, s.sess.Snapshot())
}

// POST /api/caption {"top": "...", "bottom": "..."}
func (s *Server) handleCaption(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req caption.Pair
	if err := decodeJSON(w, r, &req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.sess.SetCaption(req.Top, req.Bottom)
	respondJSON(w, http.StatusOK, s.sess.Snapshot())
}

// POST /api/size {"textScale": 48}
func (s *Server) handleSize(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	var req struct {
		TextScale int `json:"textScale"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.sess.SetTextScale(req.TextScale); err != nil {
		httpError(w, http.StatusBadRequest, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s.sess.Snapshot())
}

// GET /api/preview?max=512&format=webp
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	maxDim := defaultPreviewMax
	if v := r.URL.Query().Get("max"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > maxPreviewMax {
			httpError(w, http.StatusBadRequest, "max must be between 1 and "+strconv.Itoa(maxPreviewMax))
			return
		}
		maxDim = n
	}

	scale := compose.PreviewScale
	if maxDim > compose.CanvasSize {
		scale = compose.ExportScale
	}
	img, err := s.sess.Render(scale)
	if err != nil {
		log.Error().Err(err).Msg("Failed to render preview")
		httpError(w, http.StatusInternalServerError, "failed to render preview")
		return
	}

	var (
		data        []byte
		contentType string
	)
	thumb := compose.Thumbnail(img, maxDim)
	switch r.URL.Query().Get("format") {
	case "png":
		data, err = compose.EncodePNG(thumb)
		contentType = "image/png"
	case "", "webp":
		data, err = compose.EncodeWebP(thumb, compose.PreviewQuality)
		contentType = "image/webp"
	default:
		httpError(w, http.StatusBadRequest, "format must be webp or png")
		return
	}
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode preview")
		httpError(w, http.StatusInternalServerError, "failed to encode preview")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Cache-Control", "no-store")
	w.Write(data)
}

// GET /api/download
func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	if _, err := s.sess.Export(r.Context(), &export.WriterSink{W: w}); err != nil {
		s.exportError(w, err)
	}
}

// POST /api/export saves the meme through the configured server-side sink.
func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodPost) {
		return
	}
	if s.opts.Sink == nil {
		httpError(w, http.StatusNotFound, "no export sink configured")
		return
	}
	loc, err := s.sess.Export(r.Context(), s.opts.Sink)
	if err != nil {
		s.exportError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"location": loc})
}

func (s *Server) exportError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrNothingToExport):
		httpError(w, http.StatusConflict, session.MsgNothingToExport)
	case errors.Is(err, export.ErrCanceled):
		httpError(w, http.StatusConflict, "export canceled")
	default:
		httpError(w, http.StatusInternalServerError, session.MsgDownloadFailed)
	}
}

// GET /api/notices?since=0
func (s *Server) handleNotices(w http.ResponseWriter, r *http.Request) {
	if !allow(w, r, http.MethodGet) {
		return
	}
	var since uint64
	if v := r.URL.Query().Get("since"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			httpError(w, http.StatusBadRequest, "since must be a non-negative integer")
			return
		}
		since = n
	}
	respondJSON(w, http.StatusOK, s.notices.Since(since))
}
