package acl

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/gatekeep/gatekeep/internal/shared"
)

// SourceExample marks a result that came from the built-in dataset.
const SourceExample = "example"

// ImportResult summarizes a completed import.
type ImportResult struct {
	Source          string `json:"source"`
	Roles           int    `json:"roles"`
	Permissions     int    `json:"permissions"`
	RolePermissions int    `json:"rolePermissions"`
	UserRoles       int    `json:"userRoles"`
}

// DatasetRepository persists the last successfully imported dataset so
// a restart without an import run can serve the last-known-good graph.
type DatasetRepository interface {
	SaveDataset(ctx context.Context, payload []byte, source string) error
	LatestDataset(ctx context.Context) (payload []byte, source string, err error)
}

// Importer parses ACL datasets and replaces the graph atomically. It is
// never run concurrently with itself; a failed import leaves the active
// graph untouched.
type Importer struct {
	graph  *Graph
	repo   DatasetRepository
	logger *slog.Logger
}

// NewImporter constructs an Importer. repo may be nil, in which case
// datasets are not persisted between restarts.
func NewImporter(graph *Graph, repo DatasetRepository, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{graph: graph, repo: repo, logger: logger}
}

// ImportFrom reads the dataset at path, validates it and swaps it in.
// An empty path falls back to the built-in example dataset; the
// fallback is logged so a misconfigured real import cannot pass
// silently.
func (imp *Importer) ImportFrom(ctx context.Context, path string) (*ImportResult, error) {
	source := path
	var payload []byte
	if path == "" {
		imp.logger.Warn("no acl import file configured, using built-in example dataset")
		source = SourceExample
		payload = ExampleDataset()
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &ImportError{Kind: ParseFailure, Err: fmt.Errorf("read %s: %w", path, err)}
		}
		payload = data
	}
	result, err := imp.apply(payload, source)
	if err != nil {
		return nil, err
	}
	if imp.repo != nil {
		if err := imp.repo.SaveDataset(ctx, payload, source); err != nil {
			imp.logger.Warn("persist acl dataset", slog.Any("error", err))
		}
	}
	imp.logger.Info("acl import complete",
		slog.String("source", source),
		slog.Int("roles", result.Roles),
		slog.Int("permissions", result.Permissions),
		slog.Int("user_roles", result.UserRoles))
	return result, nil
}

// LoadPersisted activates the newest persisted dataset. When none
// exists the built-in example is used and the fallback is logged.
func (imp *Importer) LoadPersisted(ctx context.Context) (*ImportResult, error) {
	if imp.repo != nil {
		payload, source, err := imp.repo.LatestDataset(ctx)
		if err == nil {
			return imp.apply(payload, source)
		}
		if !errors.Is(err, shared.ErrNotFound) {
			return nil, err
		}
	}
	imp.logger.Warn("no persisted acl dataset found, using built-in example dataset")
	return imp.apply(ExampleDataset(), SourceExample)
}

func (imp *Importer) apply(payload []byte, source string) (*ImportResult, error) {
	ds, err := ParseDataset(payload)
	if err != nil {
		return nil, err
	}
	if err := imp.graph.Replace(ds); err != nil {
		return nil, err
	}
	return &ImportResult{
		Source:          source,
		Roles:           len(ds.Roles),
		Permissions:     len(ds.Permissions),
		RolePermissions: len(ds.RolePermissions),
		UserRoles:       len(ds.UserRoles),
	}, nil
}

// ParseDataset decodes and structurally validates an import payload.
// Unknown fields are ignored, missing required fields are rejected.
func ParseDataset(payload []byte) (Dataset, error) {
	var ds Dataset
	if err := json.Unmarshal(payload, &ds); err != nil {
		return Dataset{}, &ImportError{Kind: ParseFailure, Err: err}
	}
	seenRoles := make(map[string]struct{}, len(ds.Roles))
	for i, role := range ds.Roles {
		if role.ID == "" || role.Name == "" {
			return Dataset{}, parseFailure("roles[%d]: id and name are required", i)
		}
		if _, dup := seenRoles[role.ID]; dup {
			return Dataset{}, parseFailure("roles[%d]: duplicate role id %q", i, role.ID)
		}
		seenRoles[role.ID] = struct{}{}
	}
	seenPerms := make(map[string]struct{}, len(ds.Permissions))
	for i, perm := range ds.Permissions {
		if perm.ID == "" || perm.ResourcePattern == "" || perm.Action == "" {
			return Dataset{}, parseFailure("permissions[%d]: id, resourcePattern and action are required", i)
		}
		action, ok := ParseAction(perm.Action)
		if !ok {
			return Dataset{}, parseFailure("permissions[%d]: unknown action %q", i, perm.Action)
		}
		ds.Permissions[i].Action = string(action)
		if _, dup := seenPerms[perm.ID]; dup {
			return Dataset{}, parseFailure("permissions[%d]: duplicate permission id %q", i, perm.ID)
		}
		seenPerms[perm.ID] = struct{}{}
	}
	for i, rp := range ds.RolePermissions {
		if rp.RoleID == "" || rp.PermissionID == "" {
			return Dataset{}, parseFailure("rolePermissions[%d]: roleId and permissionId are required", i)
		}
	}
	for i, ur := range ds.UserRoles {
		if ur.UserID == "" || ur.RoleID == "" {
			return Dataset{}, parseFailure("userRoles[%d]: userId and roleId are required", i)
		}
	}
	return ds, nil
}
