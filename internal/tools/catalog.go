package tools

import (
	"context"
	"encoding/json"

	"github.com/basket/boxgate/internal/sandbox"
)

// strArg reads an optional string argument; schema validation has already
// enforced presence and type for required fields.
func strArg(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

func objArg(args map[string]any, key string) map[string]any {
	if v, ok := args[key].(map[string]any); ok {
		return v
	}
	return map[string]any{}
}

const sandboxIDSchema = `{
  "type": "object",
  "properties": {
    "sandbox_id": {"type": "string", "description": "Sandbox identifier"}
  },
  "required": ["sandbox_id"],
  "additionalProperties": false
}`

const sessionSchema = `{
  "type": "object",
  "properties": {
    "sandbox_id": {"type": "string", "description": "Sandbox identifier"},
    "session_id": {"type": "string", "description": "Session identifier"}
  },
  "required": ["sandbox_id", "session_id"],
  "additionalProperties": false
}`

const commandSchema = `{
  "type": "object",
  "properties": {
    "sandbox_id": {"type": "string", "description": "Sandbox identifier"},
    "session_id": {"type": "string", "description": "Session identifier"},
    "command_id": {"type": "string", "description": "Command identifier"}
  },
  "required": ["sandbox_id", "session_id", "command_id"],
  "additionalProperties": false
}`

const emptySchema = `{
  "type": "object",
  "additionalProperties": false
}`

// Catalog builds the full tool set over the sandbox API. Every upstream
// operation gets exactly one tool.
func Catalog(api *sandbox.API) []Tool {
	return []Tool{
		// Sandboxes.
		{
			Name:        "create_sandbox",
			Description: "Create a new sandbox from an optional snapshot with optional labels",
			Schema: json.RawMessage(`{
  "type": "object",
  "properties": {
    "snapshot": {"type": "string", "description": "Snapshot name to create the sandbox from"},
    "labels": {"type": "object", "description": "Key/value labels attached to the sandbox"},
    "spec": {"type": "object", "description": "Additional sandbox creation fields passed through upstream"}
  },
  "additionalProperties": false
}`),
			Handler: func(ctx context.Context, args map[string]any) (json.RawMessage, error) {
				spec := objArg(args, "spec")
				if v := strArg(args, "snapshot"); v != "" {
					spec["snapshot"] = v
				}
				if v, ok := args["labels"]; ok {
					spec["labels"] = v
				}
				return api.CreateSandbox(ctx, spec)
			},
		},
		{
			Name:        "list_sandboxes",
			Description: "List all sandboxes in the organization",
			Schema:      json.RawMessage(emptySchema),
			Handler: func(ctx context.Context, _ map[string]any) (json.RawMessage, error) {
				return api.ListSandboxes(ctx)
			},
		},
		{
			Name:        "get_sandbox",
			Description: "Fetch one sandbox's current state",
			Schema:      json.RawMessage(sandboxIDSchema),
			Handler: func(ctx context.Context, args map[string]any) (json.RawMessage, error) {
				return api.GetSandbox(ctx, strArg(args, "sandbox_id"))
			},
		},
		{
			Name:        "start_sandbox",
			Description: "Start a stopped sandbox",
			Schema:      json.RawMessage(sandboxIDSchema),
			Handler: func(ctx context.Context, args map[string]any) (json.RawMessage, error) {
				return api.StartSandbox(ctx, strArg(args, "sandbox_id"))
			},
		},
		{
			Name:        "stop_sandbox",
			Description: "Stop a running sandbox",
			Schema:      json.RawMessage(sandboxIDSchema),
			Handler: func(ctx context.Context, args map[string]any) (json.RawMessage, error) {
				return api.StopSandbox(ctx, strArg(args, "sandbox_id"))
			},
		},
		{
			Name:        "delete_sandbox",
			Description: "Delete a sandbox permanently",
			Schema:      json.RawMessage(sandboxIDSchema),
			Handler: func(ctx context.Context, args map[string]any) (json.RawMessage, error) {
				return api.DeleteSandbox(ctx, strArg(args, "sandbox_id"))
			},
		},
		{
			Name:        "update_sandbox",
			Description: "Patch mutable sandbox fields (labels, auto-stop interval)",
			Schema: json.RawMessage(`{
  "type": "object",
  "properties": {
    "sandbox_id": {"type": "string", "description": "Sandbox identifier"},
    "patch": {"type": "object", "description": "Fields to update"}
  },
  "required": ["sandbox_id", "patch"],
  "additionalProperties": false
}`),
			Handler: func(ctx context.Context, args map[string]any) (json.RawMessage, error) {
				return api.UpdateSandbox(ctx, strArg(args, "sandbox_id"), objArg(args, "patch"))
			},
		},

		// Sessions and commands.
		{
			Name:        "list_sessions",
			Description: "List the active sessions of a sandbox",
			Schema:      json.RawMessage(sandboxIDSchema),
			Handler: func(ctx context.Context, args map[string]any) (json.RawMessage, error) {
				return api.ListSessions(ctx, strArg(args, "sandbox_id"))
			},
		},
		{
			Name:        "create_session",
			Description: "Create a new exec session inside a sandbox",
			Schema: json.RawMessage(`{
  "type": "object",
  "properties": {
    "sandbox_id": {"type": "string", "description": "Sandbox identifier"},
    "session_id": {"type": "string", "description": "Identifier for the new session"}
  },
  "required": ["sandbox_id", "session_id"],
  "additionalProperties": false
}`),
			Handler: func(ctx context.Context, args map[string]any) (json.RawMessage, error) {
				return api.CreateSession(ctx, strArg(args, "sandbox_id"),
					map[string]string{"sessionId": strArg(args, "session_id")})
			},
		},
		{
			Name:        "get_session",
			Description: "Fetch one session and its command history",
			Schema:      json.RawMessage(sessionSchema),
			Handler: func(ctx context.Context, args map[string]any) (json.RawMessage, error) {
				return api.GetSession(ctx, strArg(args, "sandbox_id"), strArg(args, "session_id"))
			},
		},
		{
			Name:        "delete_session",
			Description: "Delete a session and terminate its commands",
			Schema:      json.RawMessage(sessionSchema),
			Handler: func(ctx context.Context, args map[string]any) (json.RawMessage, error) {
				return api.DeleteSession(ctx, strArg(args, "sandbox_id"), strArg(args, "session_id"))
			},
		},
		{
			Name:        "execute_command",
			Description: "Run a shell command inside a session, optionally async",
			Schema: json.RawMessage(`{
  "type": "object",
  "properties": {
    "sandbox_id": {"type": "string", "description": "Sandbox identifier"},
    "session_id": {"type": "string", "description": "Session identifier"},
    "command": {"type": "string", "description": "Shell command to run"},
    "run_async": {"type": "boolean", "description": "Return immediately instead of waiting for completion"}
  },
  "required": ["sandbox_id", "session_id", "command"],
  "additionalProperties": false
}`),
			Handler: func(ctx context.Context, args map[string]any) (json.RawMessage, error) {
				spec := map[string]any{"command": strArg(args, "command")}
				if v, ok := args["run_async"].(bool); ok {
					spec["runAsync"] = v
				}
				return api.ExecuteCommand(ctx, strArg(args, "sandbox_id"), strArg(args, "session_id"), spec)
			},
		},
		{
			Name:        "get_command",
			Description: "Fetch a command's status and exit code",
			Schema:      json.RawMessage(commandSchema),
			Handler: func(ctx context.Context, args map[string]any) (json.RawMessage, error) {
				return api.GetCommand(ctx, strArg(args, "sandbox_id"), strArg(args, "session_id"), strArg(args, "command_id"))
			},
		},
		{
			Name:        "get_command_logs",
			Description: "Fetch the accumulated output of a command (use the event stream for live logs)",
			Schema:      json.RawMessage(commandSchema),
			Handler: func(ctx context.Context, args map[string]any) (json.RawMessage, error) {
				return api.CommandLogs(ctx, strArg(args, "sandbox_id"), strArg(args, "session_id"), strArg(args, "command_id"))
			},
		},

		// Snapshots.
		{
			Name:        "list_snapshots",
			Description: "List available snapshots",
			Schema:      json.RawMessage(emptySchema),
			Handler: func(ctx context.Context, _ map[string]any) (json.RawMessage, error) {
				return api.ListSnapshots(ctx)
			},
		},
		{
			Name:        "create_snapshot",
			Description: "Create a snapshot from an image",
			Schema: json.RawMessage(`{
  "type": "object",
  "properties": {
    "name": {"type": "string", "description": "Snapshot name"},
    "image": {"type": "string", "description": "Source image reference"},
    "spec": {"type": "object", "description": "Additional snapshot fields passed through upstream"}
  },
  "required": ["name"],
  "additionalProperties": false
}`),
			Handler: func(ctx context.Context, args map[string]any) (json.RawMessage, error) {
				spec := objArg(args, "spec")
				spec["name"] = strArg(args, "name")
				if v := strArg(args, "image"); v != "" {
					spec["imageName"] = v
				}
				return api.CreateSnapshot(ctx, spec)
			},
		},
		{
			Name:        "get_snapshot",
			Description: "Fetch one snapshot",
			Schema: json.RawMessage(`{
  "type": "object",
  "properties": {
    "snapshot_id": {"type": "string", "description": "Snapshot identifier"}
  },
  "required": ["snapshot_id"],
  "additionalProperties": false
}`),
			Handler: func(ctx context.Context, args map[string]any) (json.RawMessage, error) {
				return api.GetSnapshot(ctx, strArg(args, "snapshot_id"))
			},
		},
		{
			Name:        "delete_snapshot",
			Description: "Delete a snapshot",
			Schema: json.RawMessage(`{
  "type": "object",
  "properties": {
    "snapshot_id": {"type": "string", "description": "Snapshot identifier"}
  },
  "required": ["snapshot_id"],
  "additionalProperties": false
}`),
			Handler: func(ctx context.Context, args map[string]any) (json.RawMessage, error) {
				return api.DeleteSnapshot(ctx, strArg(args, "snapshot_id"))
			},
		},

		// Volumes.
		{
			Name:        "list_volumes",
			Description: "List shared volumes",
			Schema:      json.RawMessage(emptySchema),
			Handler: func(ctx context.Context, _ map[string]any) (json.RawMessage, error) {
				return api.ListVolumes(ctx)
			},
		},
		{
			Name:        "create_volume",
			Description: "Create a shared volume",
			Schema: json.RawMessage(`{
  "type": "object",
  "properties": {
    "name": {"type": "string", "description": "Volume name"}
  },
  "required": ["name"],
  "additionalProperties": false
}`),
			Handler: func(ctx context.Context, args map[string]any) (json.RawMessage, error) {
				return api.CreateVolume(ctx, map[string]string{"name": strArg(args, "name")})
			},
		},
		{
			Name:        "get_volume",
			Description: "Fetch one volume",
			Schema: json.RawMessage(`{
  "type": "object",
  "properties": {
    "volume_id": {"type": "string", "description": "Volume identifier"}
  },
  "required": ["volume_id"],
  "additionalProperties": false
}`),
			Handler: func(ctx context.Context, args map[string]any) (json.RawMessage, error) {
				return api.GetVolume(ctx, strArg(args, "volume_id"))
			},
		},
		{
			Name:        "delete_volume",
			Description: "Delete a volume",
			Schema: json.RawMessage(`{
  "type": "object",
  "properties": {
    "volume_id": {"type": "string", "description": "Volume identifier"}
  },
  "required": ["volume_id"],
  "additionalProperties": false
}`),
			Handler: func(ctx context.Context, args map[string]any) (json.RawMessage, error) {
				return api.DeleteVolume(ctx, strArg(args, "volume_id"))
			},
		},

		// Organizations.
		{
			Name:        "list_organizations",
			Description: "List organizations visible to the configured credential",
			Schema:      json.RawMessage(emptySchema),
			Handler: func(ctx context.Context, _ map[string]any) (json.RawMessage, error) {
				return api.ListOrganizations(ctx)
			},
		},
		{
			Name:        "get_organization",
			Description: "Fetch one organization",
			Schema: json.RawMessage(`{
  "type": "object",
  "properties": {
    "organization_id": {"type": "string", "description": "Organization identifier"}
  },
  "required": ["organization_id"],
  "additionalProperties": false
}`),
			Handler: func(ctx context.Context, args map[string]any) (json.RawMessage, error) {
				return api.GetOrganization(ctx, strArg(args, "organization_id"))
			},
		},
	}
}

// BuildRegistry registers the full catalog and returns the ready registry.
func BuildRegistry(r *Registry, api *sandbox.API) error {
	for _, t := range Catalog(api) {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}
