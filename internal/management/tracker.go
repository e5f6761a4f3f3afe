// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package management

// FailureReason explains why a policy entry could not be honored.
type FailureReason string

const (
	FailureInvalidID                  FailureReason = "invalid_id"
	FailureNoUpdateURL                FailureReason = "no_update_url"
	FailureOverriddenBySettings       FailureReason = "overridden_by_settings"
	FailureMalformedExtensionSettings FailureReason = "malformed_extension_settings"
)

// Stage is a step in the lifecycle of a force-installed extension.
type Stage string

const StageCreated Stage = "created"

// CreationStage is a step in how a force-install request was created.
type CreationStage string

const (
	CreationInitiated                           CreationStage = "creation_initiated"
	CreationNotifiedFromManagement              CreationStage = "notified_from_management"
	CreationNotifiedFromManagementOther         CreationStage = "notified_from_management_not_forced"
	CreationNotifiedFromManagementInitialForced CreationStage = "notified_from_management_initial_creation_forced"
	CreationNotifiedFromManagementInitialOther  CreationStage = "notified_from_management_initial_creation_not_forced"
)

// Tracker receives soft failures and install-stage events produced while
// settings are parsed. ReportFailure may run while the Resolver holds its
// lock and must not call back into it. ReportInstallCreationStage is always
// called without the lock held.
type Tracker interface {
	ReportFailure(id string, reason FailureReason)
	ReportInstallationStage(id string, stage Stage)
	ReportInstallCreationStage(id string, stage CreationStage)
}

type nopTracker struct{}

func (nopTracker) ReportFailure(string, FailureReason)              {}
func (nopTracker) ReportInstallationStage(string, Stage)            {}
func (nopTracker) ReportInstallCreationStage(string, CreationStage) {}

// Observer is notified after preferences change and settings are refreshed.
// Observers are compared by identity, so register pointers.
type Observer interface {
	OnSettingsChanged()
}
