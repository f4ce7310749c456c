package binder

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/JonMunkholm/sessionlake/internal/engine"
	apperr "github.com/JonMunkholm/sessionlake/internal/errors"
	"github.com/JonMunkholm/sessionlake/internal/session"
)

// CredentialResolver turns a stored password into a usable one.
type CredentialResolver interface {
	Resolve(stored string) (string, error)
}

// Prober checks that an external database is reachable before it is attached.
type Prober interface {
	Probe(ctx context.Context, connString string) error
}

// Options configures a Binder.
type Options struct {
	Credentials  CredentialResolver
	Prober       Prober
	ProbeTimeout time.Duration
	Logger       *slog.Logger
}

// Binder attaches sources to session handles.
type Binder struct {
	creds        CredentialResolver
	prober       Prober
	probeTimeout time.Duration
	logger       *slog.Logger
}

// New creates a Binder. A nil Prober disables reachability checks.
func New(opts Options) *Binder {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	timeout := opts.ProbeTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Binder{
		creds:        opts.Credentials,
		prober:       opts.Prober,
		probeTimeout: timeout,
		logger:       logger.With("component", "binder"),
	}
}

// Failure records why one source could not be bound.
type Failure struct {
	SourceID string      `json:"source_id"`
	Name     string      `json:"name"`
	Kind     apperr.Kind `json:"kind"`
	Error    string      `json:"error"`
	Err      error       `json:"-"`
}

// Result is the outcome of binding a batch of sources.
type Result struct {
	Views    []string
	Failures []Failure
	// Columns maps each created view to its described columns.
	Columns map[string][]engine.Column
}

// BindAll binds every source on h. A failing source never aborts its
// siblings; it is reported in Failures instead.
func (b *Binder) BindAll(ctx context.Context, h *engine.Handle, dir string, sources []Source) Result {
	res := Result{Columns: make(map[string][]engine.Column)}
	seen := make(map[string]string, len(sources))

	for _, src := range sources {
		if prev, dup := seen[src.Name]; dup {
			err := apperr.Newf(apperr.Configuration, "view name %q is already used by source %s", src.Name, prev)
			res.Failures = append(res.Failures, failure(src, err))
			continue
		}
		seen[src.Name] = src.ID

		cols, err := b.Bind(ctx, h, dir, src)
		if err != nil {
			b.logger.Warn("source binding failed", "source_id", src.ID, "view", src.Name, "error", err)
			res.Failures = append(res.Failures, failure(src, err))
			continue
		}
		res.Views = append(res.Views, src.Name)
		res.Columns[src.Name] = cols
	}
	return res
}

func failure(src Source, err error) Failure {
	return Failure{
		SourceID: src.ID,
		Name:     src.Name,
		Kind:     apperr.KindOf(err),
		Error:    apperr.Cause(err),
		Err:      err,
	}
}

// Bind creates (or replaces) the view for one source and records it in the
// session registry. It returns the view's columns.
func (b *Binder) Bind(ctx context.Context, h *engine.Handle, dir string, src Source) ([]engine.Column, error) {
	if err := src.Validate(); err != nil {
		return nil, err
	}

	var err error
	switch src.Kind {
	case KindRelational:
		err = b.bindRelational(ctx, h, src)
	case KindObject:
		err = b.bindObject(ctx, h, dir, src)
	}
	if err != nil {
		return nil, err
	}

	cols, err := h.Describe(ctx, engine.QuoteIdent(src.Name))
	if err != nil {
		return nil, apperr.Wrap(apperr.Binding, "describe view "+src.Name, err)
	}
	b.logger.Info("source bound", "source_id", src.ID, "view", src.Name, "kind", src.Kind, "columns", len(cols))
	return cols, nil
}

func (b *Binder) bindRelational(ctx context.Context, h *engine.Handle, src Source) error {
	r := *src.Relational
	dialect, d, _ := LookupDialect(r.Engine)

	password := r.Password
	if b.creds != nil && password != "" {
		plain, err := b.creds.Resolve(password)
		if err != nil {
			return apperr.Wrap(apperr.Configuration, "resolve credentials for "+src.Name, err)
		}
		password = plain
	}

	target := ConnString(dialect, d, r, password)
	if dialect == "postgres" && b.prober != nil {
		probeCtx, cancel := context.WithTimeout(ctx, b.probeTimeout)
		err := b.prober.Probe(probeCtx, target)
		cancel()
		if err != nil {
			return apperr.Wrap(apperr.Binding, fmt.Sprintf("%s unreachable at %s:%d", dialect, r.Host, portOrDefault(r.Port, d)), err)
		}
	}

	catalog := engine.CatalogName(src.ID)
	if err := h.Attach(ctx, target, catalog, d.Extension); err != nil {
		return apperr.Wrap(apperr.Binding, "attach "+src.Name, err)
	}
	if err := h.Exec(ctx, RelationalViewSQL(src.Name, catalog, d, r)); err != nil {
		return apperr.Wrap(apperr.Binding, "create view "+src.Name, err)
	}
	if err := h.Record(ctx, engine.Attachment{
		SourceID:     src.ID,
		ViewName:     src.Name,
		Kind:         engine.AttachmentRelational,
		Catalog:      catalog,
		AttachType:   d.Extension,
		AttachTarget: target,
	}); err != nil {
		return apperr.Wrap(apperr.Binding, "record "+src.Name, err)
	}
	return nil
}

func (b *Binder) bindObject(ctx context.Context, h *engine.Handle, dir string, src Source) error {
	o := *src.Object
	format, _ := ParseFormat(o.Format, o.Key+o.Path)

	kind := engine.AttachmentObject
	var location string
	if o.Path != "" {
		p, err := session.ResolveIn(dir, o.Path)
		if err != nil {
			return err
		}
		location = p
		kind = engine.AttachmentLocal
	} else {
		if err := h.EnableObjectStore(ctx); err != nil {
			return apperr.Wrap(apperr.Configuration, "object storage for "+src.Name, err)
		}
		location = o.URL()
	}

	ext := RequiredExtension(format)
	if ext != "" {
		if err := h.LoadExtension(ctx, ext); err != nil {
			return apperr.Wrap(apperr.Binding, "load "+ext+" for "+src.Name, err)
		}
	}

	if err := h.Exec(ctx, ObjectViewSQL(src.Name, format, location)); err != nil {
		return apperr.Wrap(apperr.Binding, "create view "+src.Name, err)
	}
	if err := h.Record(ctx, engine.Attachment{
		SourceID:  src.ID,
		ViewName:  src.Name,
		Kind:      kind,
		Extension: ext,
	}); err != nil {
		return apperr.Wrap(apperr.Binding, "record "+src.Name, err)
	}
	return nil
}

func portOrDefault(p int, d Dialect) int {
	if p == 0 {
		return d.DefaultPort
	}
	return p
}
