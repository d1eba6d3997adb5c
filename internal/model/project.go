// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package model

// Project is a named, path-rooted unit of work. Projects are created and
// deleted through the collaborator and never change within a session.
type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Path string `json:"path"`
}

// Agent describes an assistant persona offered by GET /agents.
type Agent struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Title     string `json:"title"`
	Icon      string `json:"icon"`
	WhenToUse string `json:"whenToUse"`
	Role      string `json:"role"`
	Style     string `json:"style"`
	Focus     string `json:"focus"`
}

// FindProject returns the project with the given ID or name, or nil.
// An exact ID match wins over a name match.
func FindProject(projects []Project, key string) *Project {
	for i := range projects {
		if projects[i].ID == key {
			return &projects[i]
		}
	}
	for i := range projects {
		if projects[i].Name == key {
			return &projects[i]
		}
	}
	return nil
}
