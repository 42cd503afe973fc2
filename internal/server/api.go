package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"ocrdesk/internal/editor"
	"ocrdesk/internal/export"
	"ocrdesk/internal/intake"
	"ocrdesk/internal/ocr"
	"ocrdesk/internal/session"
	"ocrdesk/internal/workflow"
)

const defaultOCRTimeout = 90 * time.Second

type sessionHandler func(w http.ResponseWriter, r *http.Request, sess *session.Session)

func (s *Server) withSession(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.sessions.Get(r.PathValue("id"))
		if err != nil {
			writeErr(w, http.StatusNotFound, "session_not_found", "Session not found")
			return
		}
		next(w, r, sess)
	}
}

// writeState sends the snapshot and drains the session's notices.
func (s *Server) writeState(w http.ResponseWriter, status int, sess *session.Session, err error, code string) {
	resp := stateResponse{
		Success:  err == nil,
		Code:     code,
		ID:       sess.ID,
		Notices:  sess.Notices.Drain(),
		Snapshot: sess.Controller.Snapshot(),
	}
	if err != nil {
		resp.Error = sanitizeError(err)
	}
	if resp.Notices == nil {
		resp.Notices = []workflow.Notice{}
	}
	if resp.Preview != nil {
		resp.PreviewURL = "/api/sessions/" + sess.ID + "/preview/" + resp.Preview.Token
	}
	writeJSON(w, status, resp)
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	sess := s.sessions.Create()
	s.writeState(w, http.StatusCreated, sess, nil, "")
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Delete(r.PathValue("id")); err != nil {
		writeErr(w, http.StatusNotFound, "session_not_found", "Session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleReset returns the session to its initial state, keeping its id.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	sess.Controller.Reset()
	s.writeState(w, http.StatusOK, sess, nil, "")
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	s.writeState(w, http.StatusOK, sess, nil, "")
}

// handleFile streams the multipart body so an oversized file is rejected by
// the validator after reading at most one byte past the limit.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	mr, err := r.MultipartReader()
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_request", "Expected multipart/form-data")
		return
	}

	limit := s.cfg.MaxUploadBytes
	if limit <= 0 {
		limit = intake.DefaultMaxBytes
	}

	var file *intake.SelectedFile
	source := intake.SourcePicker
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			writeErr(w, http.StatusBadRequest, "invalid_request", "Malformed multipart body")
			return
		}

		switch part.FormName() {
		case "source":
			v, _ := io.ReadAll(io.LimitReader(part, 64))
			source = intake.ParseSource(string(v))
		case ocr.FieldName:
			data, err := io.ReadAll(io.LimitReader(part, limit+1))
			if err != nil {
				writeErr(w, http.StatusBadRequest, "invalid_request", "Could not read upload")
				return
			}
			file = &intake.SelectedFile{
				Name:      part.FileName(),
				MediaType: part.Header.Get("Content-Type"),
				Size:      int64(len(data)),
				Data:      data,
			}
		}
		part.Close()
		if file != nil && file.Size > limit {
			break
		}
	}

	if file == nil {
		writeErr(w, http.StatusBadRequest, "missing_file", "Multipart field \"file\" is required")
		return
	}
	file.Source = source

	if _, err := sess.Controller.Select(*file); err != nil {
		s.writeState(w, http.StatusUnprocessableEntity, sess, err, "validation")
		return
	}
	s.writeState(w, http.StatusOK, sess, nil, "")
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	p, ok := sess.Controller.OpenPreview(r.PathValue("token"))
	if !ok {
		writeErr(w, http.StatusGone, "preview_revoked", "Preview is no longer available")
		return
	}
	w.Header().Set("Content-Type", p.Handle.MediaType)
	w.Header().Set("Content-Length", strconv.Itoa(len(p.Data)))
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(p.Data)
}

// handleConvert runs the conversion detached from the request so a client
// disconnect does not abort it; the OCR timeout still bounds it.
func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if !sess.Controller.HasFile() {
		err := sess.Controller.Convert(r.Context())
		s.writeState(w, http.StatusBadRequest, sess, err, "no_file")
		return
	}
	if !s.ocrSem.TryAcquire(1) {
		writeErr(w, http.StatusServiceUnavailable, "ocr_capacity", "OCR at capacity")
		return
	}
	defer s.ocrSem.Release(1)

	timeout := s.cfg.OCRTimeout
	if timeout <= 0 {
		timeout = defaultOCRTimeout
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), timeout)
	defer cancel()

	err := sess.Controller.Convert(ctx)
	switch {
	case err == nil:
		s.writeState(w, http.StatusOK, sess, nil, "")
	case errors.Is(err, workflow.ErrNoFile):
		s.writeState(w, http.StatusBadRequest, sess, err, "no_file")
	case errors.Is(err, workflow.ErrBusy):
		s.writeState(w, http.StatusConflict, sess, err, "busy")
	case errors.Is(err, workflow.ErrStale):
		s.writeState(w, http.StatusConflict, sess, err, "stale")
	default:
		s.log.Warn().Str("session_id", sess.ID).Err(err).Msg("Conversion failed")
		s.writeState(w, http.StatusBadGateway, sess, err, "conversion_failed")
	}
}

func (s *Server) handleCommand(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	cmd, err := parseJSON[editor.Command](r, maxJSONBody)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_request", sanitizeError(err))
		return
	}
	if err := sess.Controller.Apply(cmd); err != nil {
		code := "invalid_command"
		if errors.Is(err, editor.ErrUnknownCommand) {
			code = "unknown_command"
		}
		writeErr(w, http.StatusBadRequest, code, sanitizeError(err))
		return
	}
	s.writeState(w, http.StatusOK, sess, nil, "")
}

type linkRequest struct {
	Action string `json:"action"`
	URL    string `json:"url"`
	From   int    `json:"from"`
	To     int    `json:"to"`
}

func (s *Server) handleLink(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	req, err := parseJSON[linkRequest](r, maxJSONBody)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_request", sanitizeError(err))
		return
	}
	sel := editor.Selection{From: req.From, To: req.To}
	switch req.Action {
	case "toggle":
		sess.Controller.ToggleLinkInput()
	case "url":
		sess.Controller.SetLinkURL(req.URL)
	case "apply":
		sess.Controller.ApplyLink(sel)
	case "remove":
		sess.Controller.RemoveLink(sel)
	default:
		writeErr(w, http.StatusBadRequest, "invalid_request", "action must be toggle, url, apply or remove")
		return
	}
	s.writeState(w, http.StatusOK, sess, nil, "")
}

func (s *Server) handleActive(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	q := r.URL.Query()
	from, errFrom := strconv.Atoi(q.Get("from"))
	to, errTo := strconv.Atoi(q.Get("to"))
	if errFrom != nil || errTo != nil {
		writeErr(w, http.StatusBadRequest, "invalid_request", "from and to must be integers")
		return
	}
	active := sess.Controller.Active(editor.Selection{From: from, To: to})
	if active == nil {
		active = editor.FormatState{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "active": active})
}

type contentRequest struct {
	HTML *string `json:"html"`
	Text *string `json:"text"`
}

func (s *Server) handleContent(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	req, err := parseJSON[contentRequest](r, maxJSONBody)
	if err != nil {
		writeErr(w, http.StatusBadRequest, "invalid_request", sanitizeError(err))
		return
	}
	switch {
	case req.HTML != nil:
		sess.Controller.SetHTML(*req.HTML)
	case req.Text != nil:
		sess.Controller.SetText(*req.Text)
	default:
		writeErr(w, http.StatusBadRequest, "invalid_request", "html or text is required")
		return
	}
	s.writeState(w, http.StatusOK, sess, nil, "")
}

func (s *Server) handleExportText(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	art, err := sess.Controller.ExportText()
	s.writeArtifact(w, sess, art, err)
}

func (s *Server) handleExportPDF(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	plain, _ := strconv.ParseBool(r.URL.Query().Get("plain"))
	art, err := sess.Controller.ExportPDF(plain)
	s.writeArtifact(w, sess, art, err)
}

func (s *Server) writeArtifact(w http.ResponseWriter, sess *session.Session, art *export.Artifact, err error) {
	if errors.Is(err, export.ErrNothingToExport) {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if errors.Is(err, workflow.ErrBusy) {
		writeErr(w, http.StatusConflict, "busy", "Conversion in progress")
		return
	}
	if err != nil {
		s.log.Error().Str("session_id", sess.ID).Err(err).Msg("Export failed")
		writeErr(w, http.StatusInternalServerError, "export_failed", "Export failed")
		return
	}

	w.Header().Set("Content-Type", art.ContentType)
	w.Header().Set("Content-Disposition", attachment(art.Name))
	w.Header().Set("Content-Length", strconv.Itoa(len(art.Data)))
	if art.Pages > 0 {
		w.Header().Set("X-Page-Count", strconv.Itoa(art.Pages))
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(art.Data)
}
