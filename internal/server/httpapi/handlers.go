package httpapi

import (
	"net"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/humanstamp/internal/common"
	"github.com/dmitrijs2005/humanstamp/internal/server/auth"
	"github.com/dmitrijs2005/humanstamp/internal/server/models"
	"github.com/dmitrijs2005/humanstamp/internal/server/services"
	"github.com/go-chi/chi/v5"
)

type issueRequest struct {
	SenderID       string `json:"sender_id"`
	RecipientEmail string `json:"recipient_email"`
	ContentHash    string `json:"content_hash"`
	CaptchaToken   string `json:"captcha_token"`
	ClientType     string `json:"client_type"`
	MassSend       *struct {
		RecipientCount int `json:"recipient_count"`
	} `json:"mass_send"`
}

type keysResponse struct {
	Keys []models.PublicKeyInfo `json:"keys"`
}

type stampsResponse struct {
	Stamps []services.StampSummary `json:"stamps"`
}

func (s *HTTPServer) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code, msg := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "kind", string(common.KindOf(err)), "error", err)
	}
	writeError(w, status, code, msg)
}

func (s *HTTPServer) issue(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req issueRequest
	if !readJSON(w, r, &req) {
		return
	}

	in := services.IssueRequest{
		SenderID:       req.SenderID,
		UserID:         userID,
		RecipientEmail: req.RecipientEmail,
		ContentHash:    req.ContentHash,
		CaptchaToken:   req.CaptchaToken,
		ClientType:     req.ClientType,
		CallerIP:       clientIP(r),
	}
	if req.MassSend != nil {
		in.MassSend = &services.MassSendInfo{RecipientCount: req.MassSend.RecipientCount}
	}

	res, err := s.stamps.Issue(r.Context(), in)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, res)
}

func (s *HTTPServer) listStamps(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	limit, ok := queryInt(r, "limit")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "limit must be an integer")
		return
	}
	offset, ok := queryInt(r, "offset")
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_request", "offset must be an integer")
		return
	}

	list, err := s.stamps.List(r.Context(), userID, limit, offset)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, stampsResponse{Stamps: list})
}

func (s *HTTPServer) revoke(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	if err := s.stamps.Revoke(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) verify(w http.ResponseWriter, r *http.Request) {
	obs := services.Observer{IP: clientIP(r), UserAgent: r.UserAgent()}

	res, err := s.verifier.Validate(r.Context(), chi.URLParam(r, "id"), obs)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, res)
}

func (s *HTTPServer) listKeys(w http.ResponseWriter, r *http.Request) {
	keys, err := s.keys.PublicKeys(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, keysResponse{Keys: keys})
}

// clientIP is the remote address after middleware.RealIP, without port.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// queryInt returns 0 for an absent parameter.
func queryInt(r *http.Request, name string) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	return n, err == nil
}
