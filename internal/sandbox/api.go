// Package sandbox exposes the upstream sandbox API as typed operations.
// Response payloads stay opaque (json.RawMessage); the gateway forwards
// them without interpreting the domain model.
package sandbox

import (
	"context"
	"encoding/json"
	"io"
	"net/url"

	"github.com/basket/boxgate/internal/upstream"
)

// API wraps the upstream client with one method per remote operation.
type API struct {
	client *upstream.Client
}

func NewAPI(client *upstream.Client) *API {
	return &API{client: client}
}

// Health probes the upstream health endpoint.
func (a *API) Health(ctx context.Context) (json.RawMessage, error) {
	return a.client.Get(ctx, "/health", nil)
}

// Sandboxes.

func (a *API) CreateSandbox(ctx context.Context, spec any) (json.RawMessage, error) {
	return a.client.Post(ctx, "/sandbox", &upstream.RequestOptions{Body: spec})
}

func (a *API) ListSandboxes(ctx context.Context) (json.RawMessage, error) {
	return a.client.Get(ctx, "/sandbox", nil)
}

func (a *API) GetSandbox(ctx context.Context, sandboxID string) (json.RawMessage, error) {
	return a.client.Get(ctx, "/sandbox/"+url.PathEscape(sandboxID), nil)
}

func (a *API) StartSandbox(ctx context.Context, sandboxID string) (json.RawMessage, error) {
	return a.client.Post(ctx, "/sandbox/"+url.PathEscape(sandboxID)+"/start", nil)
}

func (a *API) StopSandbox(ctx context.Context, sandboxID string) (json.RawMessage, error) {
	return a.client.Post(ctx, "/sandbox/"+url.PathEscape(sandboxID)+"/stop", nil)
}

func (a *API) DeleteSandbox(ctx context.Context, sandboxID string) (json.RawMessage, error) {
	return a.client.Delete(ctx, "/sandbox/"+url.PathEscape(sandboxID), nil)
}

func (a *API) UpdateSandbox(ctx context.Context, sandboxID string, patch any) (json.RawMessage, error) {
	return a.client.Patch(ctx, "/sandbox/"+url.PathEscape(sandboxID), &upstream.RequestOptions{Body: patch})
}

// Sessions.

func (a *API) ListSessions(ctx context.Context, sandboxID string) (json.RawMessage, error) {
	return a.client.Get(ctx, sandboxPath(sandboxID)+"/session", nil)
}

func (a *API) CreateSession(ctx context.Context, sandboxID string, spec any) (json.RawMessage, error) {
	return a.client.Post(ctx, sandboxPath(sandboxID)+"/session", &upstream.RequestOptions{Body: spec})
}

func (a *API) GetSession(ctx context.Context, sandboxID, sessionID string) (json.RawMessage, error) {
	return a.client.Get(ctx, sessionPath(sandboxID, sessionID), nil)
}

func (a *API) DeleteSession(ctx context.Context, sandboxID, sessionID string) (json.RawMessage, error) {
	return a.client.Delete(ctx, sessionPath(sandboxID, sessionID), nil)
}

// ExecuteCommand runs a command inside an existing session.
func (a *API) ExecuteCommand(ctx context.Context, sandboxID, sessionID string, spec any) (json.RawMessage, error) {
	return a.client.Post(ctx, sessionPath(sandboxID, sessionID)+"/exec", &upstream.RequestOptions{Body: spec})
}

func (a *API) GetCommand(ctx context.Context, sandboxID, sessionID, commandID string) (json.RawMessage, error) {
	return a.client.Get(ctx, commandPath(sandboxID, sessionID, commandID), nil)
}

// CommandLogs fetches the accumulated log output of a finished command.
func (a *API) CommandLogs(ctx context.Context, sandboxID, sessionID, commandID string) (json.RawMessage, error) {
	return a.client.Get(ctx, commandPath(sandboxID, sessionID, commandID)+"/logs", nil)
}

// StreamCommandLogs opens the live log stream of a command with follow
// semantics. The caller owns the returned body and must close it;
// cancelling ctx unblocks pending reads.
func (a *API) StreamCommandLogs(ctx context.Context, sandboxID, sessionID, commandID string) (io.ReadCloser, error) {
	return a.client.Stream(ctx, commandPath(sandboxID, sessionID, commandID)+"/logs", &upstream.RequestOptions{
		Params: url.Values{"follow": {"true"}},
	})
}

// Snapshots.

func (a *API) ListSnapshots(ctx context.Context) (json.RawMessage, error) {
	return a.client.Get(ctx, "/snapshot", nil)
}

func (a *API) CreateSnapshot(ctx context.Context, spec any) (json.RawMessage, error) {
	return a.client.Post(ctx, "/snapshot", &upstream.RequestOptions{Body: spec})
}

func (a *API) GetSnapshot(ctx context.Context, snapshotID string) (json.RawMessage, error) {
	return a.client.Get(ctx, "/snapshot/"+url.PathEscape(snapshotID), nil)
}

func (a *API) DeleteSnapshot(ctx context.Context, snapshotID string) (json.RawMessage, error) {
	return a.client.Delete(ctx, "/snapshot/"+url.PathEscape(snapshotID), nil)
}

// Volumes.

func (a *API) ListVolumes(ctx context.Context) (json.RawMessage, error) {
	return a.client.Get(ctx, "/volume", nil)
}

func (a *API) CreateVolume(ctx context.Context, spec any) (json.RawMessage, error) {
	return a.client.Post(ctx, "/volume", &upstream.RequestOptions{Body: spec})
}

func (a *API) GetVolume(ctx context.Context, volumeID string) (json.RawMessage, error) {
	return a.client.Get(ctx, "/volume/"+url.PathEscape(volumeID), nil)
}

func (a *API) DeleteVolume(ctx context.Context, volumeID string) (json.RawMessage, error) {
	return a.client.Delete(ctx, "/volume/"+url.PathEscape(volumeID), nil)
}

// Organizations.

func (a *API) ListOrganizations(ctx context.Context) (json.RawMessage, error) {
	return a.client.Get(ctx, "/organization", nil)
}

func (a *API) GetOrganization(ctx context.Context, orgID string) (json.RawMessage, error) {
	return a.client.Get(ctx, "/organization/"+url.PathEscape(orgID), nil)
}

func sandboxPath(sandboxID string) string {
	return "/sandbox/" + url.PathEscape(sandboxID)
}

func sessionPath(sandboxID, sessionID string) string {
	return sandboxPath(sandboxID) + "/session/" + url.PathEscape(sessionID)
}

func commandPath(sandboxID, sessionID, commandID string) string {
	return sessionPath(sandboxID, sessionID) + "/command/" + url.PathEscape(commandID)
}
