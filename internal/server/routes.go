// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/sigil-dev/extpolicy/internal/management"
	"github.com/sigil-dev/extpolicy/internal/store"
	sigilerr "github.com/sigil-dev/extpolicy/pkg/errors"
	"github.com/sigil-dev/extpolicy/pkg/health"
	"github.com/sigil-dev/extpolicy/pkg/types"
)

// RegisterServices sets the service dependencies and registers REST routes.
func (s *Server) RegisterServices(svc *Services) {
	s.services = svc
	s.registerRoutes()
}

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "policy-status",
		Method:      http.MethodGet,
		Path:        "/api/v1/status",
		Summary:     "Policy status",
		Tags:        []string{"system"},
	}, s.handleStatus)

	huma.Register(s.api, huma.Operation{
		OperationID: "refresh-policy",
		Method:      http.MethodPost,
		Path:        "/api/v1/refresh",
		Summary:     "Reload policy files and recompute settings",
		Tags:        []string{"system"},
	}, s.handleRefresh)

	// Extension endpoints
	huma.Register(s.api, huma.Operation{
		OperationID: "get-extension",
		Method:      http.MethodGet,
		Path:        "/api/v1/extensions/{id}",
		Summary:     "Resolved settings for an extension",
		Tags:        []string{"extensions"},
	}, s.handleGetExtension)

	huma.Register(s.api, huma.Operation{
		OperationID: "check-extension-host",
		Method:      http.MethodGet,
		Path:        "/api/v1/extensions/{id}/hosts/check",
		Summary:     "Check whether policy blocks an extension from a URL",
		Tags:        []string{"extensions"},
	}, s.handleCheckHost)

	// Install lists
	huma.Register(s.api, huma.Operation{
		OperationID: "list-forced",
		Method:      http.MethodGet,
		Path:        "/api/v1/install-lists/forced",
		Summary:     "Force-installed extensions",
		Tags:        []string{"install-lists"},
	}, s.handleForcedList)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-recommended",
		Method:      http.MethodGet,
		Path:        "/api/v1/install-lists/recommended",
		Summary:     "Recommended extensions",
		Tags:        []string{"install-lists"},
	}, s.handleRecommendedList)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-pinned",
		Method:      http.MethodGet,
		Path:        "/api/v1/install-lists/pinned",
		Summary:     "Extensions pinned to the toolbar by policy",
		Tags:        []string{"install-lists"},
	}, s.handlePinnedList)

	huma.Register(s.api, huma.Operation{
		OperationID: "list-reports",
		Method:      http.MethodGet,
		Path:        "/api/v1/reports",
		Summary:     "Install-stage and failure reports",
		Tags:        []string{"reports"},
	}, s.handleListReports)
}

// --- Request/Response types for huma ---

// GlobalSummary is the REST representation of the global restrictions.
type GlobalSummary struct {
	InstallSources          []string `json:"install_sources,omitempty" doc:"Allowed off-store install source patterns"`
	AllowedTypes            []string `json:"allowed_types,omitempty" doc:"Allowed manifest types; absent when unrestricted"`
	ManifestV2              string   `json:"manifest_v2" doc:"Manifest V2 availability"`
	UnpublishedAvailability string   `json:"unpublished_availability" doc:"Handling of extensions taken down from the web store"`
}

// StatusBody is the REST representation of the service status.
type StatusBody struct {
	Status               string         `json:"status" example:"ok" doc:"ok, or degraded when the last policy reload failed"`
	Version              string         `json:"version" doc:"Server version"`
	Policy               health.Metrics `json:"policy" doc:"Policy reload health"`
	ConfiguredExtensions int            `json:"configured_extensions" doc:"Extensions with settings of their own"`
	BlocklistedByDefault bool           `json:"blocklisted_by_default" doc:"Whether unlisted extensions are blocked"`
	DefaultMode          string         `json:"default_mode" doc:"Installation mode applied to unlisted extensions"`
	Global               GlobalSummary  `json:"global" doc:"Global restrictions"`
	Reports              *int64         `json:"reports,omitempty" doc:"Number of stored reports"`
}

type statusOutput struct {
	Body StatusBody
}

type refreshOutput struct {
	Body struct {
		Status               string `json:"status" example:"refreshed" doc:"Refresh outcome"`
		ConfiguredExtensions int    `json:"configured_extensions" doc:"Extensions with settings of their own"`
	}
}

type extensionInput struct {
	ID        string `path:"id" doc:"Extension ID"`
	UpdateURL string `query:"update_url" doc:"Manifest update URL used for by-update-URL settings"`
	Version   string `query:"version" doc:"Installed version to check against the policy minimum"`
}

// ExtensionDetail is the REST representation of the settings resolved for
// one extension.
type ExtensionDetail struct {
	ID                         string   `json:"id" doc:"Extension ID"`
	Configured                 bool     `json:"configured" doc:"Whether the extension has settings of its own"`
	InstallationMode           string   `json:"installation_mode" doc:"Resolved installation mode"`
	UpdateURL                  string   `json:"update_url,omitempty" doc:"Policy update URL"`
	OverrideUpdateURL          bool     `json:"override_update_url" doc:"Whether the policy update URL replaces the manifest one"`
	BlockedPermissions         []string `json:"blocked_permissions" doc:"Blocked API permissions"`
	PolicyBlockedHosts         []string `json:"policy_blocked_hosts" doc:"Runtime blocked host patterns"`
	PolicyAllowedHosts         []string `json:"policy_allowed_hosts" doc:"Runtime allowed host patterns"`
	UsesDefaultHostRestriction bool     `json:"uses_default_host_restrictions" doc:"Whether the default host sets apply"`
	MinimumVersion             string   `json:"minimum_version,omitempty" doc:"Minimum version required by policy"`
	MeetsMinimumVersion        *bool    `json:"meets_minimum_version,omitempty" doc:"Set when a version was supplied"`
	BlockedInstallMessage      string   `json:"blocked_install_message,omitempty" doc:"Message shown when installation is blocked"`
	ToolbarPin                 string   `json:"toolbar_pin" doc:"Toolbar pin state"`
	FileURLNavigationAllowed   bool     `json:"file_url_navigation_allowed" doc:"Whether file URL navigation is allowed"`
	ExplicitlyAllowed          bool     `json:"explicitly_allowed" doc:"Whether policy names the extension as allowed"`
	ExplicitlyBlocked          bool     `json:"explicitly_blocked" doc:"Whether policy names the extension as blocked"`
}

type extensionOutput struct {
	Body ExtensionDetail
}

type checkHostInput struct {
	ID  string `path:"id" doc:"Extension ID"`
	URL string `query:"url" required:"true" doc:"URL to check"`
}

type checkHostOutput struct {
	Body struct {
		URL     string `json:"url" doc:"Checked URL"`
		Blocked bool   `json:"blocked" doc:"Whether policy blocks the extension on this URL"`
	}
}

// InstallEntry is one force or recommended install record.
type InstallEntry struct {
	ID                string `json:"id" doc:"Extension ID"`
	ExternalUpdateURL string `json:"external_update_url" doc:"Update URL the extension is installed from"`
}

type installListOutput struct {
	Body struct {
		Extensions []InstallEntry `json:"extensions"`
	}
}

type pinnedListOutput struct {
	Body struct {
		Extensions []string `json:"extensions"`
	}
}

type listReportsInput struct {
	ExtensionID string `query:"extension_id" doc:"Filter by extension ID"`
	Kind        string `query:"kind" enum:"failure,installation_stage,creation_stage" doc:"Filter by report kind"`
	Value       string `query:"value" doc:"Filter by failure reason or stage"`
	Limit       int    `query:"limit" minimum:"0" maximum:"1000" doc:"Maximum reports to return"`
	Offset      int    `query:"offset" minimum:"0" doc:"Reports to skip"`
}

// ReportSummary is the REST representation of a stored report.
type ReportSummary struct {
	ID          string    `json:"id" doc:"Report identifier"`
	Timestamp   time.Time `json:"timestamp" doc:"When the report was recorded"`
	Kind        string    `json:"kind" doc:"Report kind"`
	ExtensionID string    `json:"extension_id" doc:"Extension ID"`
	Value       string    `json:"value" doc:"Failure reason or stage"`
}

type listReportsOutput struct {
	Body struct {
		Reports []ReportSummary `json:"reports"`
		Total   int64           `json:"total" doc:"Reports matching the filter, ignoring limit and offset"`
	}
}

// --- Handlers ---

func (s *Server) handleStatus(ctx context.Context, _ *struct{}) (*statusOutput, error) {
	r := s.services.resolver
	out := &statusOutput{}
	out.Body.Status = "ok"
	out.Body.Version = Version

	if rl := s.services.reloader; rl != nil {
		out.Body.Policy = rl.Health()
		if !out.Body.Policy.Available {
			out.Body.Status = "degraded"
		}
	} else {
		out.Body.Policy = health.Metrics{Available: true}
	}

	out.Body.ConfiguredExtensions = len(r.ConfiguredIDs())
	out.Body.BlocklistedByDefault = r.BlocklistedByDefault()
	out.Body.DefaultMode = string(r.DefaultSettings().InstallationMode)
	out.Body.Global = globalSummary(r.GlobalSettings())

	if rs := s.services.reports; rs != nil {
		n, err := rs.Count(ctx, store.ReportFilter{})
		if err != nil {
			return nil, huma.Error500InternalServerError("counting reports", err)
		}
		out.Body.Reports = &n
	}
	return out, nil
}

func globalSummary(g management.GlobalSettings) GlobalSummary {
	sum := GlobalSummary{
		ManifestV2:              g.ManifestV2.String(),
		UnpublishedAvailability: g.UnpublishedAvailability.String(),
	}
	if g.HasRestrictedInstallSources() {
		sum.InstallSources = g.InstallSources.Strings()
	}
	if g.HasAllowedTypes {
		sum.AllowedTypes = make([]string, 0, len(g.AllowedTypes))
		for _, t := range g.AllowedTypes {
			sum.AllowedTypes = append(sum.AllowedTypes, t.String())
		}
	}
	return sum
}

func (s *Server) handleRefresh(_ context.Context, _ *struct{}) (*refreshOutput, error) {
	if rl := s.services.reloader; rl != nil {
		if err := rl.Reload(); err != nil {
			return nil, huma.Error422UnprocessableEntity(
				fmt.Sprintf("reloading policy: %v; previous settings remain in effect", err))
		}
	} else {
		s.services.resolver.OnPreferencesChanged()
	}
	out := &refreshOutput{}
	out.Body.Status = "refreshed"
	out.Body.ConfiguredExtensions = len(s.services.resolver.ConfiguredIDs())
	return out, nil
}

func (s *Server) handleGetExtension(_ context.Context, input *extensionInput) (*extensionOutput, error) {
	d, err := DescribeExtension(s.services.resolver, input.ID, input.UpdateURL, input.Version)
	if err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}
	return &extensionOutput{Body: d}, nil
}

// DescribeExtension collects the settings resolved for id. A non-empty
// version is checked against the policy minimum.
func DescribeExtension(r *management.Resolver, id, updateURL, version string) (ExtensionDetail, error) {
	if !management.IsValidID(id) {
		return ExtensionDetail{}, sigilerr.Errorf(sigilerr.CodeServerRequestInvalid, "invalid extension id %q", id)
	}
	settings, configured := r.Settings(id)

	d := ExtensionDetail{
		ID:                         id,
		Configured:                 configured,
		InstallationMode:           string(r.GetInstallationMode(id, updateURL)),
		UpdateURL:                  settings.UpdateURL,
		OverrideUpdateURL:          settings.OverrideUpdateURL,
		BlockedPermissions:         r.GetBlockedAPIPermissions(id, updateURL).Strings(),
		PolicyBlockedHosts:         r.GetPolicyBlockedHosts(id).Strings(),
		PolicyAllowedHosts:         r.GetPolicyAllowedHosts(id).Strings(),
		UsesDefaultHostRestriction: r.UsesDefaultPolicyHostRestrictions(id),
		BlockedInstallMessage:      r.BlockedInstallMessage(id),
		ToolbarPin:                 string(settings.ToolbarPin),
		FileURLNavigationAllowed:   settings.FileURLNavigationAllowed,
		ExplicitlyAllowed:          r.IsInstallationExplicitlyAllowed(id),
		ExplicitlyBlocked:          r.IsInstallationExplicitlyBlocked(id),
	}
	if d.ToolbarPin == "" {
		d.ToolbarPin = string(types.ToolbarPinDefault)
	}
	if settings.MinimumVersionRequired != nil {
		d.MinimumVersion = settings.MinimumVersionRequired.String()
	}
	if version != "" {
		v, err := management.ParseVersion(version)
		if err != nil {
			return ExtensionDetail{}, sigilerr.Errorf(sigilerr.CodeServerRequestInvalid, "invalid version %q", version)
		}
		ok, _ := r.CheckMinimumVersion(management.Extension{ID: id, Version: v})
		d.MeetsMinimumVersion = &ok
	}
	return d, nil
}

func (s *Server) handleCheckHost(_ context.Context, input *checkHostInput) (*checkHostOutput, error) {
	if !management.IsValidID(input.ID) {
		return nil, huma.Error400BadRequest(fmt.Sprintf("invalid extension id %q", input.ID))
	}
	u, err := url.Parse(input.URL)
	if err != nil || u.Scheme == "" {
		return nil, huma.Error400BadRequest(fmt.Sprintf("invalid url %q", input.URL))
	}
	out := &checkHostOutput{}
	out.Body.URL = input.URL
	out.Body.Blocked = s.services.resolver.IsPolicyBlockedHost(input.ID, u)
	return out, nil
}

func (s *Server) handleForcedList(_ context.Context, _ *struct{}) (*installListOutput, error) {
	return installList(s.services.resolver.GetForceInstallList()), nil
}

func (s *Server) handleRecommendedList(_ context.Context, _ *struct{}) (*installListOutput, error) {
	return installList(s.services.resolver.GetRecommendedInstallList()), nil
}

func installList(entries map[string]management.InstallListEntry) *installListOutput {
	out := &installListOutput{}
	out.Body.Extensions = make([]InstallEntry, 0, len(entries))
	for id, e := range entries {
		out.Body.Extensions = append(out.Body.Extensions, InstallEntry{ID: id, ExternalUpdateURL: e.ExternalUpdateURL})
	}
	slices.SortFunc(out.Body.Extensions, func(a, b InstallEntry) int { return strings.Compare(a.ID, b.ID) })
	return out
}

func (s *Server) handlePinnedList(_ context.Context, _ *struct{}) (*pinnedListOutput, error) {
	out := &pinnedListOutput{}
	out.Body.Extensions = s.services.resolver.GetForcePinnedList()
	if out.Body.Extensions == nil {
		out.Body.Extensions = []string{}
	}
	return out, nil
}

func (s *Server) handleListReports(ctx context.Context, input *listReportsInput) (*listReportsOutput, error) {
	rs := s.services.reports
	if rs == nil {
		return nil, huma.Error503ServiceUnavailable("report storage not configured")
	}

	filter := store.ReportFilter{
		ExtensionID: input.ExtensionID,
		Kind:        store.ReportKind(input.Kind),
		Value:       input.Value,
		Limit:       input.Limit,
		Offset:      input.Offset,
	}
	reports, err := rs.Query(ctx, filter)
	if err != nil {
		if sigilerr.IsInvalidInput(err) {
			return nil, huma.Error400BadRequest(err.Error())
		}
		return nil, huma.Error500InternalServerError("querying reports", err)
	}
	total, err := rs.Count(ctx, filter)
	if err != nil {
		return nil, huma.Error500InternalServerError("counting reports", err)
	}

	out := &listReportsOutput{}
	out.Body.Total = total
	out.Body.Reports = make([]ReportSummary, 0, len(reports))
	for _, r := range reports {
		out.Body.Reports = append(out.Body.Reports, ReportSummary{
			ID:          r.ID,
			Timestamp:   r.Timestamp,
			Kind:        string(r.Kind),
			ExtensionID: r.ExtensionID,
			Value:       r.Value,
		})
	}
	return out, nil
}
