package engine

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RegistryTable records how each bound source was attached so that later
// handles on the same file can rebuild the instance state views depend on.
const RegistryTable = "_session_sources"

const createRegistrySQL = `CREATE TABLE IF NOT EXISTS ` + RegistryTable + ` (
	source_id     VARCHAR NOT NULL,
	view_name     VARCHAR NOT NULL,
	kind          VARCHAR NOT NULL,
	catalog       VARCHAR NOT NULL DEFAULT '',
	attach_type   VARCHAR NOT NULL DEFAULT '',
	attach_target VARCHAR NOT NULL DEFAULT '',
	extension     VARCHAR NOT NULL DEFAULT '',
	bound_at      TIMESTAMP NOT NULL
)`

// Attachment kinds stored in the registry.
const (
	AttachmentRelational = "relational_table"
	AttachmentObject     = "object_file"
	AttachmentLocal      = "local_file"
)

// Attachment is one registry row. AttachTarget holds the sealed connection
// string when read from the table and the plain one when passed to Record.
type Attachment struct {
	SourceID     string    `db:"source_id"`
	ViewName     string    `db:"view_name"`
	Kind         string    `db:"kind"`
	Catalog      string    `db:"catalog"`
	AttachType   string    `db:"attach_type"`
	AttachTarget string    `db:"attach_target"`
	Extension    string    `db:"extension"`
	BoundAt      time.Time `db:"bound_at"`
}

// AttachSQL builds a read-only ATTACH of target as catalog using the given
// storage extension type.
func AttachSQL(target, catalog, attachType string) string {
	return fmt.Sprintf("ATTACH IF NOT EXISTS %s AS %s (TYPE %s, READ_ONLY)",
		QuoteLiteral(target), QuoteIdent(catalog), attachType)
}

// Attach attaches target as catalog on this handle, replacing an existing
// attachment of the same name so refreshed credentials take effect.
func (h *Handle) Attach(ctx context.Context, target, catalog, attachType string) error {
	if !isExtensionName(attachType) {
		return fmt.Errorf("invalid attach type %q", attachType)
	}
	if err := h.LoadExtension(ctx, attachType); err != nil {
		return err
	}
	if _, err := h.conn.ExecContext(ctx, "DETACH DATABASE IF EXISTS "+QuoteIdent(catalog)); err != nil {
		return fmt.Errorf("detach %s: %w", catalog, err)
	}
	if _, err := h.conn.ExecContext(ctx, AttachSQL(target, catalog, attachType)); err != nil {
		return fmt.Errorf("attach %s: %w", catalog, err)
	}
	return nil
}

// Record stores a bound source in the registry, replacing any previous row
// for the same source id or view name.
func (h *Handle) Record(ctx context.Context, a Attachment) error {
	if h.readOnly {
		return errors.New("record attachment: handle is read-only")
	}
	if _, err := h.conn.ExecContext(ctx, createRegistrySQL); err != nil {
		return fmt.Errorf("create registry: %w", err)
	}

	target := a.AttachTarget
	if target != "" && h.engine.sealer != nil {
		sealed, err := h.engine.sealer.Seal(target)
		if err != nil {
			return fmt.Errorf("seal attach target: %w", err)
		}
		target = sealed
	}
	if a.BoundAt.IsZero() {
		a.BoundAt = time.Now().UTC()
	}

	if _, err := h.conn.ExecContext(ctx,
		"DELETE FROM "+RegistryTable+" WHERE source_id = ? OR view_name = ?",
		a.SourceID, a.ViewName); err != nil {
		return fmt.Errorf("clear registry entry: %w", err)
	}
	_, err := h.conn.ExecContext(ctx,
		"INSERT INTO "+RegistryTable+" (source_id, view_name, kind, catalog, attach_type, attach_target, extension, bound_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)",
		a.SourceID, a.ViewName, a.Kind, a.Catalog, a.AttachType, target, a.Extension, a.BoundAt)
	if err != nil {
		return fmt.Errorf("insert registry entry: %w", err)
	}
	return nil
}

// Forget removes the registry row for a view, if any.
func (h *Handle) Forget(ctx context.Context, viewName string) error {
	ok, err := h.registryExists(ctx)
	if err != nil || !ok {
		return err
	}
	_, err = h.conn.ExecContext(ctx, "DELETE FROM "+RegistryTable+" WHERE view_name = ?", viewName)
	return err
}

// Attachments lists registry rows ordered by view name. Targets stay sealed.
func (h *Handle) Attachments(ctx context.Context) ([]Attachment, error) {
	ok, err := h.registryExists(ctx)
	if err != nil || !ok {
		return nil, err
	}
	var rows []Attachment
	if err := h.conn.SelectContext(ctx, &rows,
		"SELECT source_id, view_name, kind, catalog, attach_type, attach_target, extension, bound_at FROM "+RegistryTable+" ORDER BY view_name"); err != nil {
		return nil, fmt.Errorf("read registry: %w", err)
	}
	return rows, nil
}

func (h *Handle) registryExists(ctx context.Context) (bool, error) {
	var n int
	err := h.conn.GetContext(ctx, &n,
		"SELECT COUNT(*) FROM duckdb_tables() WHERE database_name = current_database() AND schema_name = 'main' AND table_name = ?",
		RegistryTable)
	if err != nil {
		return false, fmt.Errorf("inspect registry: %w", err)
	}
	return n > 0, nil
}

// restore replays the registry on a fresh handle. A failing entry does not
// fail Open; it is kept in RestoreErrors under the view name and surfaces
// when that view is queried.
func (h *Handle) restore(ctx context.Context) error {
	rows, err := h.Attachments(ctx)
	if err != nil {
		return err
	}
	for _, a := range rows {
		if err := h.replay(ctx, a); err != nil {
			h.engine.logger.Warn("attachment replay failed",
				"view", a.ViewName, "catalog", a.Catalog, "error", err)
			h.restoreErrs[a.ViewName] = err
		}
	}
	return nil
}

func (h *Handle) replay(ctx context.Context, a Attachment) error {
	if a.Kind == AttachmentObject {
		if err := h.EnableObjectStore(ctx); err != nil {
			return err
		}
	}
	if a.Extension != "" {
		if err := h.LoadExtension(ctx, a.Extension); err != nil {
			return err
		}
	}
	if a.AttachType == "" || a.Catalog == "" {
		return nil
	}
	if !isExtensionName(a.AttachType) {
		return fmt.Errorf("invalid attach type %q", a.AttachType)
	}
	if err := h.LoadExtension(ctx, a.AttachType); err != nil {
		return err
	}

	target := a.AttachTarget
	if h.engine.sealer != nil {
		plain, err := h.engine.sealer.Unseal(target)
		if err != nil {
			return fmt.Errorf("unseal attach target: %w", err)
		}
		target = plain
	}
	if _, err := h.conn.ExecContext(ctx, AttachSQL(target, a.Catalog, a.AttachType)); err != nil {
		return fmt.Errorf("attach %s: %w", a.Catalog, err)
	}
	return nil
}
