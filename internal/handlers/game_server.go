// internal/handlers/game_server.go
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openarcade/hall/internal/ident"
	"github.com/openarcade/hall/internal/server"
	"github.com/openarcade/hall/internal/store"
)

// GameServer wires the lobby operations to their HTTP endpoints. Every
// endpoint is a form-encoded POST that runs one store transaction and
// writes one JSON envelope. Domain errors are not HTTP errors: they come
// back in the same envelope shape with HTTP 200, so clients only ever
// parse one format.
type GameServer struct {
	Server *server.Server
	Logger *logrus.Logger
}

// NewGameServer creates a GameServer around srv.
func NewGameServer(srv *server.Server, logger *logrus.Logger) *GameServer {
	return &GameServer{Server: srv, Logger: logger}
}

// RegisterRoutes attaches every lobby endpoint to mux.
func (s *GameServer) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/newinstance", s.post(s.handleNewInstance))
	mux.HandleFunc("/invite", s.post(s.handleInvite))
	mux.HandleFunc("/joininstance", s.post(s.handleJoinInstance))
	mux.HandleFunc("/leaveinstance", s.post(s.handleLeaveInstance))
	mux.HandleFunc("/newmessage", s.post(s.handleNewMessage))
	mux.HandleFunc("/messages", s.post(s.handleMessages))
	mux.HandleFunc("/setleader", s.post(s.handleSetLeader))
	mux.HandleFunc("/servercommand", s.post(s.handleServerCommand))
	mux.HandleFunc("/getinstance", s.post(s.handleGetInstance))
	mux.HandleFunc("/getinstancelists", s.post(s.handleGetInstanceLists))
	mux.HandleFunc("/messages/ws", MessagesWSHandler(s.Logger, s))
}

func (s *GameServer) post(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "POST required", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	}
}

func (s *GameServer) writeEnvelope(w http.ResponseWriter, r *http.Request, res *server.Result, err error) {
	var resp server.Response
	if err != nil {
		resp = server.ErrorResponse(r.URL.Path, err)
	} else {
		resp = server.NewResponse(r.URL.Path, res)
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.Logger.WithError(err).Warn("failed to write response envelope")
	}
}

func (s *GameServer) handleNewInstance(w http.ResponseWriter, r *http.Request) {
	makePublic, err := ident.ParseBoolean(r.PostFormValue("makepublic"))
	if err != nil {
		makePublic = false
	}
	res, err := s.Server.NewInstance(r.Context(),
		r.PostFormValue("gid"), r.PostFormValue("iid"), r.PostFormValue("pid"),
		makePublic)
	s.writeEnvelope(w, r, res, err)
}

func (s *GameServer) handleInvite(w http.ResponseWriter, r *http.Request) {
	res, err := s.Server.InvitePlayer(r.Context(),
		r.PostFormValue("gid"), r.PostFormValue("iid"), r.PostFormValue("inv"))
	s.writeEnvelope(w, r, res, err)
}

func (s *GameServer) handleJoinInstance(w http.ResponseWriter, r *http.Request) {
	res, err := s.Server.JoinInstance(r.Context(),
		r.PostFormValue("gid"), r.PostFormValue("iid"), r.PostFormValue("pid"))
	s.writeEnvelope(w, r, res, err)
}

func (s *GameServer) handleLeaveInstance(w http.ResponseWriter, r *http.Request) {
	res, err := s.Server.LeaveInstance(r.Context(),
		r.PostFormValue("gid"), r.PostFormValue("iid"), r.PostFormValue("pid"))
	s.writeEnvelope(w, r, res, err)
}

func (s *GameServer) handleNewMessage(w http.ResponseWriter, r *http.Request) {
	res, err := s.Server.NewMessage(r.Context(),
		r.PostFormValue("gid"), r.PostFormValue("iid"), r.PostFormValue("pid"),
		r.PostFormValue("type"), r.PostFormValue("mrec"), r.PostFormValue("contents"))
	s.writeEnvelope(w, r, res, err)
}

func (s *GameServer) handleMessages(w http.ResponseWriter, r *http.Request) {
	count := store.DefaultFetchLimit
	if v := r.PostFormValue("count"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			count = n
		}
	}
	// A missing or malformed time means "everything".
	var since time.Time
	if v := r.PostFormValue("mtime"); v != "" {
		if t, err := time.Parse(time.RFC3339Nano, v); err == nil {
			since = t
		}
	}
	res, err := s.Server.GetMessages(r.Context(),
		r.PostFormValue("gid"), r.PostFormValue("iid"),
		r.PostFormValue("type"), r.PostFormValue("pid"), count, since)
	s.writeEnvelope(w, r, res, err)
}

func (s *GameServer) handleSetLeader(w http.ResponseWriter, r *http.Request) {
	res, err := s.Server.SetLeader(r.Context(),
		r.PostFormValue("gid"), r.PostFormValue("iid"), r.PostFormValue("pid"),
		r.PostFormValue("leader"))
	s.writeEnvelope(w, r, res, err)
}

func (s *GameServer) handleServerCommand(w http.ResponseWriter, r *http.Request) {
	res, err := s.Server.ServerCommand(r.Context(),
		r.PostFormValue("gid"), r.PostFormValue("iid"), r.PostFormValue("pid"),
		r.PostFormValue("command"), r.PostFormValue("args"))
	s.writeEnvelope(w, r, res, err)
}

func (s *GameServer) handleGetInstance(w http.ResponseWriter, r *http.Request) {
	res, err := s.Server.GetInstance(r.Context(),
		r.PostFormValue("gid"), r.PostFormValue("iid"))
	s.writeEnvelope(w, r, res, err)
}

func (s *GameServer) handleGetInstanceLists(w http.ResponseWriter, r *http.Request) {
	res, err := s.Server.GetInstanceLists(r.Context(),
		r.PostFormValue("gid"), r.PostFormValue("iid"), r.PostFormValue("pid"))
	s.writeEnvelope(w, r, res, err)
}
