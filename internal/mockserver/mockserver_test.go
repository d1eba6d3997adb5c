// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package mockserver

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/jeranaias/projchat/internal/model"
)

func TestNew_ServesProjects(t *testing.T) {
	s := New(WithProject(model.Project{ID: "p1", Name: "demo", Path: "/tmp/demo"}))
	defer s.Close()

	resp, err := http.Get(s.URL + "/api/projects")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	var projects []model.Project
	if err := json.NewDecoder(resp.Body).Decode(&projects); err != nil {
		t.Fatal(err)
	}
	if len(projects) != 1 || projects[0].ID != "p1" {
		t.Errorf("unexpected projects: %+v", projects)
	}
	if s.Count("projects") != 1 {
		t.Errorf("Count(projects) = %d, want 1", s.Count("projects"))
	}
}

func TestNew_FilesShallowUnlessRecursive(t *testing.T) {
	s := New(WithProject(model.Project{ID: "p1", Path: "/r"},
		model.NewDirectory("d", "/r/d", model.NewFile("f", "/r/d/f", 1)),
	))
	defer s.Close()

	get := func(recursive string) []model.Node {
		resp, err := http.Get(s.URL + "/api/projects/p1/files?recursive=" + recursive)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		nodes, err := model.DecodeNodes(body)
		if err != nil {
			t.Fatal(err)
		}
		return nodes
	}

	if d := get("true")[0].(*model.Directory); !d.Loaded || len(d.Children) != 1 {
		t.Errorf("recursive listing: loaded=%v children=%d", d.Loaded, len(d.Children))
	}
	if d := get("false")[0].(*model.Directory); d.Loaded {
		t.Error("shallow listing should leave directories unloaded")
	}
}

func TestNew_UnknownProjectFiles(t *testing.T) {
	s := New()
	defer s.Close()

	resp, err := http.Get(s.URL + "/api/projects/nope/files")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestNew_StartThenPollUntilReady(t *testing.T) {
	s := New(WithStartStatus("starting", 2))
	defer s.Close()

	status := func(method, path string) string {
		req, _ := http.NewRequest(method, s.URL+path, strings.NewReader(`{"mode":"local"}`))
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		defer resp.Body.Close()
		var body struct{ Status string }
		json.NewDecoder(resp.Body).Decode(&body)
		return body.Status
	}

	if got := status(http.MethodPost, "/api/claude/start"); got != "starting" {
		t.Fatalf("start status = %q", got)
	}
	if got := status(http.MethodGet, "/api/claude/status"); got != "starting" {
		t.Errorf("first poll = %q, want starting", got)
	}
	if got := status(http.MethodGet, "/api/claude/status"); got != "ready" {
		t.Errorf("second poll = %q, want ready", got)
	}
}

func TestNew_ErrorMode(t *testing.T) {
	s := New(WithErrorMode(http.StatusBadGateway))
	defer s.Close()

	resp, err := http.Get(s.URL + "/api/agents")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", resp.StatusCode)
	}
}
