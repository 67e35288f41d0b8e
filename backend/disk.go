// Copyright (c) 2025 The lighthoused developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package backend

import "github.com/lighthouse-io/lighthoused/pledge"

// ProjectEvent is a single project file appearing or disappearing from the
// watched directory tree.
type ProjectEvent struct {
	Project *pledge.Project
	Removed bool
}

// PledgeEvent is a single pledge file appearing or disappearing from a
// project's pledge directory.
type PledgeEvent struct {
	Project pledge.ProjectID
	Pledge  *pledge.Pledge
	Removed bool
}

// DiskManager is the narrow surface Backend needs from the project/pledge
// file watcher. The binary file formats, the watched-directory layout, and
// the temp-file-plus-rename discipline that makes a write atomic are all
// owned by whatever implements this interface; Backend only ever calls
// through this seam.
type DiskManager interface {
	// LoadAll returns every project currently on disk, used for the
	// initial population during WaitForInit.
	LoadAll() ([]*pledge.Project, error)

	// Watch begins delivering project and pledge add/remove events.
	// Delivery continues until the returned cancel func is called. Any
	// pledge files already on disk for a project at the moment watching
	// begins are replayed as ordinary "added" PledgeEvents; Backend relies
	// on this replay rather than a separate bulk-load call to verify a
	// project's existing pledges.
	Watch(projects chan<- ProjectEvent, pledges chan<- PledgeEvent) (cancel func(), err error)

	// SaveProject durably persists project, returning an IOError-kind
	// pledge.VerifyError on failure.
	SaveProject(project *pledge.Project) error

	// AddProjectFile registers an externally supplied project file (one
	// not discovered by the watched-directory scan) to be loaded and
	// watched the same as any other.
	AddProjectFile(path string) error

	// SavePledge durably persists a newly accepted pledge under project.
	SavePledge(project pledge.ProjectID, p *pledge.Pledge) error

	// PersistProjectState records a project's lifecycle state alongside
	// its project file. Called by Backend whenever ClaimWatcher or a
	// server refresh changes it.
	PersistProjectState(id pledge.ProjectID, info pledge.ProjectStateInfo) error
}
