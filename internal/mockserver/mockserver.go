// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package mockserver provides an in-process fake of the project chat
// collaborator for tests.
//
// It serves every /api endpoint the client uses: agents, project CRUD, file
// listings, file reads, the assistant process lifecycle, and agent chat
// (plain and server-sent events). State lives in memory and can be seeded
// with Option funcs or changed while the server runs.
//
// Usage:
//
//	s := mockserver.New(
//		mockserver.WithProject(model.Project{ID: "p1", Name: "demo", Path: "/tmp/demo"},
//			model.NewFile("README.md", "/tmp/demo/README.md", 12)),
//		mockserver.WithStartStatus("starting", 2),
//	)
//	defer s.Close()
//	client := api.NewClientWithConfig(&api.ClientConfig{BaseURL: s.URL})
package mockserver

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/jeranaias/projchat/internal/model"
)

// Server wraps an httptest.Server with a preconfigured collaborator backend.
type Server struct {
	*httptest.Server

	mu sync.Mutex

	agents   []model.Agent
	projects []model.Project
	files    map[string][]model.Node // keyed by project ID
	contents map[string]string       // keyed by file path

	// Assistant process simulation.
	status          string
	mode            string
	workingDir      string
	startStatus     string
	startError      string
	stopError       string
	pollsUntilReady int
	polls           int
	chatHandler     func(message, workingDir string) (string, error)

	streamChunks []string

	// filesHook, if set, runs before a file listing is served. It is called
	// without the server lock held so it may block.
	filesHook func(projectID string)

	// errorMode, if set, makes every endpoint return this status code.
	errorMode int

	// requestHook, if set, is called on every request before routing.
	requestHook func(r *http.Request)

	counts map[string]int
}

// Option configures a mock server.
type Option func(*Server)

// WithAgents sets the agents returned by GET /api/agents.
func WithAgents(agents ...model.Agent) Option {
	return func(s *Server) {
		s.agents = append(s.agents, agents...)
	}
}

// WithProject registers a project and the root-level nodes of its tree.
func WithProject(p model.Project, nodes ...model.Node) Option {
	return func(s *Server) {
		s.projects = append(s.projects, p)
		s.files[p.ID] = nodes
	}
}

// WithFileContent registers the content served by /api/files/read for path.
func WithFileContent(path, content string) Option {
	return func(s *Server) {
		s.contents[path] = content
	}
}

// WithStartStatus sets the status /api/claude/start reports. When status is
// "starting", /api/claude/status reports "ready" after polls status reads.
func WithStartStatus(status string, polls int) Option {
	return func(s *Server) {
		s.startStatus = status
		s.pollsUntilReady = polls
	}
}

// WithStartError makes /api/claude/start fail with a 500 {error} body.
func WithStartError(msg string) Option {
	return func(s *Server) {
		s.startError = msg
	}
}

// WithStopError makes /api/claude/stop fail with a 500 {error} body.
func WithStopError(msg string) Option {
	return func(s *Server) {
		s.stopError = msg
	}
}

// WithChatHandler sets how /api/claude/chat replies. A returned error is
// sent as a 500 {error} body.
func WithChatHandler(h func(message, workingDir string) (string, error)) Option {
	return func(s *Server) {
		s.chatHandler = h
	}
}

// WithStreamChunks sets the text events /api/chat/stream emits. A chunk
// starting with "!" is sent as an {error} event instead.
func WithStreamChunks(chunks ...string) Option {
	return func(s *Server) {
		s.streamChunks = chunks
	}
}

// WithFilesHook sets a callback run before each file listing is served.
func WithFilesHook(h func(projectID string)) Option {
	return func(s *Server) {
		s.filesHook = h
	}
}

// WithErrorMode makes every endpoint return the given HTTP status code.
func WithErrorMode(statusCode int) Option {
	return func(s *Server) {
		s.errorMode = statusCode
	}
}

// WithRequestHook sets a callback invoked on every request before routing.
func WithRequestHook(h func(r *http.Request)) Option {
	return func(s *Server) {
		s.requestHook = h
	}
}

// New creates and starts a mock collaborator.
func New(opts ...Option) *Server {
	s := &Server{
		files:       make(map[string][]model.Node),
		contents:    make(map[string]string),
		counts:      make(map[string]int),
		status:      "stopped",
		startStatus: "ready",
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/agents", s.serveAgents)
	mux.HandleFunc("GET /api/projects", s.serveProjects)
	mux.HandleFunc("POST /api/projects", s.createProject)
	mux.HandleFunc("DELETE /api/projects/{id}", s.deleteProject)
	mux.HandleFunc("GET /api/projects/{id}/files", s.serveFiles)
	mux.HandleFunc("GET /api/files/read", s.readFile)
	mux.HandleFunc("POST /api/claude/start", s.startAssistant)
	mux.HandleFunc("GET /api/claude/status", s.assistantStatus)
	mux.HandleFunc("POST /api/claude/chat", s.assistantChat)
	mux.HandleFunc("POST /api/claude/stop", s.stopAssistant)
	mux.HandleFunc("POST /api/chat", s.agentChat)
	mux.HandleFunc("POST /api/chat/stream", s.agentChatStream)

	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.requestHook != nil {
			s.requestHook(r)
		}
		if s.errorMode != 0 {
			writeError(w, s.errorMode, fmt.Sprintf("mock error %d", s.errorMode))
			return
		}
		mux.ServeHTTP(w, r)
	}))
	return s
}

// =============================================================================
// STATE ACCESS
// =============================================================================

// Count returns how many requests hit the named endpoint. Names are
// "agents", "projects", "create", "delete", "files", "read", "start",
// "status", "claude_chat", "stop", "chat" and "stream".
func (s *Server) Count(endpoint string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[endpoint]
}

// SetFiles replaces the tree served for a project.
func (s *Server) SetFiles(projectID string, nodes ...model.Node) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[projectID] = nodes
}

// SetAssistantStatus forces the simulated process status.
func (s *Server) SetAssistantStatus(status string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.status = status
}

// AssistantWorkingDir returns the working dir of the last start request.
func (s *Server) AssistantWorkingDir() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.workingDir
}

// Projects returns a copy of the registered projects.
func (s *Server) Projects() []model.Project {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Project(nil), s.projects...)
}

func (s *Server) hit(endpoint string) {
	s.mu.Lock()
	s.counts[endpoint]++
	s.mu.Unlock()
}

// =============================================================================
// PROJECTS & FILES
// =============================================================================

func (s *Server) serveAgents(w http.ResponseWriter, r *http.Request) {
	s.hit("agents")
	s.mu.Lock()
	agents := s.agents
	if agents == nil {
		agents = []model.Agent{}
	}
	s.mu.Unlock()
	writeJSON(w, http.StatusOK, agents)
}

func (s *Server) serveProjects(w http.ResponseWriter, r *http.Request) {
	s.hit("projects")
	writeJSON(w, http.StatusOK, s.projectList())
}

func (s *Server) projectList() []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]map[string]any, 0, len(s.projects))
	for _, p := range s.projects {
		out = append(out, projectJSON(p))
	}
	return out
}

func (s *Server) createProject(w http.ResponseWriter, r *http.Request) {
	s.hit("create")
	var req struct {
		Name string `json:"name"`
		Path string `json:"path"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Name == "" || req.Path == "" {
		writeError(w, http.StatusBadRequest, "name and path are required")
		return
	}

	p := model.Project{ID: uuid.NewString(), Name: req.Name, Path: req.Path}
	readme := filepath.Join(req.Path, "README.md")

	s.mu.Lock()
	s.projects = append(s.projects, p)
	s.files[p.ID] = []model.Node{model.NewFile("README.md", readme, int64(len(req.Name)+3))}
	s.contents[readme] = "# " + req.Name + "\n"
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, projectJSON(p))
}

func (s *Server) deleteProject(w http.ResponseWriter, r *http.Request) {
	s.hit("delete")
	id := r.PathValue("id")

	s.mu.Lock()
	kept := s.projects[:0]
	for _, p := range s.projects {
		if p.ID != id {
			kept = append(kept, p)
		}
	}
	s.projects = kept
	delete(s.files, id)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) serveFiles(w http.ResponseWriter, r *http.Request) {
	s.hit("files")
	id := r.PathValue("id")

	if s.filesHook != nil {
		s.filesHook(id)
	}

	s.mu.Lock()
	found := false
	for _, p := range s.projects {
		if p.ID == id {
			found = true
			break
		}
	}
	nodes := s.files[id]
	s.mu.Unlock()

	if !found {
		writeError(w, http.StatusNotFound, "project not found")
		return
	}
	if r.URL.Query().Get("recursive") != "true" {
		nodes = shallow(nodes)
	}
	if nodes == nil {
		nodes = []model.Node{}
	}

	data, err := model.EncodeNodes(nodes)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// shallow strips children so directories arrive unloaded.
func shallow(nodes []model.Node) []model.Node {
	out := make([]model.Node, 0, len(nodes))
	for _, n := range nodes {
		if d, ok := n.(*model.Directory); ok {
			out = append(out, &model.Directory{Entry: d.Entry})
			continue
		}
		out = append(out, n)
	}
	return out
}

func (s *Server) readFile(w http.ResponseWriter, r *http.Request) {
	s.hit("read")
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	s.mu.Lock()
	content, ok := s.contents[path]
	s.mu.Unlock()
	if !ok {
		writeError(w, http.StatusNotFound, "file not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"name":    filepath.Base(path),
		"ext":     strings.TrimPrefix(filepath.Ext(path), "."),
		"content": content,
	})
}

// =============================================================================
// ASSISTANT PROCESS
// =============================================================================

func (s *Server) startAssistant(w http.ResponseWriter, r *http.Request) {
	s.hit("start")
	var req struct {
		Mode       string `json:"mode"`
		WorkingDir string `json:"workingDir"`
	}
	json.NewDecoder(r.Body).Decode(&req)

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.startError != "" {
		s.status = "error"
		writeError(w, http.StatusInternalServerError, s.startError)
		return
	}

	s.mode = req.Mode
	s.workingDir = req.WorkingDir
	s.status = s.startStatus
	s.polls = 0
	writeJSON(w, http.StatusOK, s.statusJSON())
}

func (s *Server) assistantStatus(w http.ResponseWriter, r *http.Request) {
	s.hit("status")
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status == "starting" {
		s.polls++
		if s.polls >= s.pollsUntilReady {
			s.status = "ready"
		}
	}
	writeJSON(w, http.StatusOK, s.statusJSON())
}

func (s *Server) assistantChat(w http.ResponseWriter, r *http.Request) {
	s.hit("claude_chat")
	var req struct {
		Message    string `json:"message"`
		WorkingDir string `json:"workingDir"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Message == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	s.mu.Lock()
	ready := s.status == "ready"
	handler := s.chatHandler
	s.mu.Unlock()

	if !ready {
		writeError(w, http.StatusServiceUnavailable, "assistant not ready")
		return
	}

	reply := "echo: " + req.Message
	if handler != nil {
		var err error
		if reply, err = handler(req.Message, req.WorkingDir); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"reply": reply})
}

func (s *Server) stopAssistant(w http.ResponseWriter, r *http.Request) {
	s.hit("stop")
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopError != "" {
		writeError(w, http.StatusInternalServerError, s.stopError)
		return
	}
	s.status = "stopped"
	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

func (s *Server) statusJSON() map[string]string {
	return map[string]string{
		"status":     s.status,
		"mode":       s.mode,
		"workingDir": s.workingDir,
	}
}

// =============================================================================
// AGENT CHAT
// =============================================================================

type chatRequest struct {
	ProjectID string               `json:"projectId"`
	AgentID   string               `json:"agentId"`
	Message   string               `json:"message"`
	History   []model.HistoryEntry `json:"history"`
}

func (s *Server) decodeChat(w http.ResponseWriter, r *http.Request) (*chatRequest, bool) {
	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return nil, false
	}
	if req.ProjectID == "" || req.AgentID == "" || req.Message == "" {
		writeError(w, http.StatusBadRequest, "missing required parameters")
		return nil, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.agents {
		if a.ID == req.AgentID {
			return &req, true
		}
	}
	writeError(w, http.StatusNotFound, "agent not found")
	return nil, false
}

func (s *Server) agentChat(w http.ResponseWriter, r *http.Request) {
	s.hit("chat")
	req, ok := s.decodeChat(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reply": fmt.Sprintf("[%s] %s (%d prior turns)", req.AgentID, req.Message, len(req.History)),
		"usage": map[string]int{"input_tokens": len(req.Message), "output_tokens": len(req.Message)},
	})
}

func (s *Server) agentChatStream(w http.ResponseWriter, r *http.Request) {
	s.hit("stream")
	req, ok := s.decodeChat(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	chunks := s.streamChunks
	s.mu.Unlock()
	if chunks == nil {
		chunks = strings.SplitAfter("["+req.AgentID+"] "+req.Message, " ")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	flusher, _ := w.(http.Flusher)
	for _, c := range chunks {
		var data []byte
		if strings.HasPrefix(c, "!") {
			data, _ = json.Marshal(map[string]string{"error": strings.TrimPrefix(c, "!")})
		} else {
			data, _ = json.Marshal(map[string]string{"text": c})
		}
		fmt.Fprintf(w, "data: %s\n\n", data)
		if flusher != nil {
			flusher.Flush()
		}
	}
}

// =============================================================================
// HELPERS
// =============================================================================

func projectJSON(p model.Project) map[string]any {
	return map[string]any{
		"id":            p.ID,
		"name":          p.Name,
		"path":          p.Path,
		"conversations": []any{},
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
