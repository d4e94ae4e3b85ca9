// Package httpapi exposes the sheet service over HTTP plus a websocket
// channel per sheet for live change notifications. It holds no invariants of
// its own: every guard decision is delegated to the service before a read or
// modify is attempted.
package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/sirupsen/logrus"

	cell "github.com/sharecell/cell"
)

// Uploads larger than this are rejected outright.
const maxUploadBytes = 16 << 20

// Server routes HTTP requests to a cell.Service.
type Server struct {
	svc *cell.Service
	hub *Hub
	log *logrus.Logger
	mux *http.ServeMux
}

// New builds a Server around svc. Start the returned hub's event loop by
// calling Run before serving.
func New(svc *cell.Service, log *logrus.Logger) *Server {
	if log == nil {
		log = logrus.New()
	}
	s := &Server{
		svc: svc,
		hub: NewHub(log),
		log: log,
		mux: http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /sheets", s.handleCreate)
	s.mux.HandleFunc("GET /sheets/{sid}", s.handleRead)
	s.mux.HandleFunc("POST /sheets/{sid}/cells", s.handleModify)
	s.mux.HandleFunc("GET /sheets/{sid}/live", s.handleLive)
	s.mux.HandleFunc("GET /users/{uid}/sheets", s.handleList)
}

// Run starts the notification hub. It blocks until Stop is called.
func (s *Server) Run() { s.hub.Run() }

// Stop shuts the notification hub down.
func (s *Server) Stop() { s.hub.Stop() }

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "malformed upload")
		return
	}

	ownerID := r.FormValue("userId")
	title := r.FormValue("title")
	if ownerID == "" || title == "" {
		writeError(w, http.StatusBadRequest, "userId and title are required")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file field is required")
		return
	}
	defer file.Close()

	tempPath, err := spoolUpload(file)
	if err != nil {
		s.log.WithError(err).Error("spooling upload")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	record, err := s.svc.CreateSheet(ownerID, title, tempPath)
	if err != nil {
		os.Remove(tempPath)
		s.log.WithError(err).WithField("owner", ownerID).Error("sheet creation failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusCreated, record)
}

func (s *Server) handleRead(w http.ResponseWriter, r *http.Request) {
	sid := r.PathValue("sid")
	if !s.svc.Exists(sid) {
		writeError(w, http.StatusNotFound, "sheet not found")
		return
	}
	if !s.svc.CanRead(sid, r.URL.Query().Get("token")) {
		writeError(w, http.StatusForbidden, "access denied")
		return
	}

	ws, err := s.svc.ReadSheet(sid)
	if err != nil {
		s.writeServiceError(w, sid, err)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

type modifyRequest struct {
	Token string `json:"token"`
	Cell  string `json:"cell"`
	Value string `json:"value"`
}

func (s *Server) handleModify(w http.ResponseWriter, r *http.Request) {
	sid := r.PathValue("sid")

	var req modifyRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	if !s.svc.Exists(sid) {
		writeError(w, http.StatusNotFound, "sheet not found")
		return
	}
	if !s.svc.CanWrite(sid, req.Token) {
		writeError(w, http.StatusForbidden, "access denied")
		return
	}

	ws, err := s.svc.ModifySheet(sid, req.Cell, req.Value)
	if err != nil {
		s.writeServiceError(w, sid, err)
		return
	}

	s.hub.Broadcast(sid, ws)
	writeJSON(w, http.StatusOK, ws)
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	records, err := s.svc.SheetsForOwner(r.PathValue("uid"))
	if err != nil {
		s.log.WithError(err).Error("owner listing failed")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// writeServiceError maps the service error taxonomy onto HTTP statuses. The
// transport boundary must let a caller tell "not found", "denied" and
// "internal" apart; denied is decided before this point.
func (s *Server) writeServiceError(w http.ResponseWriter, sid string, err error) {
	switch {
	case errors.Is(err, cell.ErrNotFound):
		writeError(w, http.StatusNotFound, "sheet not found")
	case errors.Is(err, cell.ErrInvalidCell):
		writeError(w, http.StatusBadRequest, "invalid cell reference")
	case errors.Is(err, cell.ErrParse):
		writeError(w, http.StatusUnprocessableEntity, "sheet file is not a valid spreadsheet")
	default:
		s.log.WithError(err).WithField("sheet", sid).Error("sheet operation failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// spoolUpload writes the uploaded stream to a temp file the service can adopt.
func spoolUpload(src io.Reader) (string, error) {
	tmp, err := os.CreateTemp("", "cell-upload-*")
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return tmp.Name(), nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
