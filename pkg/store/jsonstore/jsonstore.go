package jsonstore

import (
	"bytes"

	"github.com/foomo/idreset/pkg/store"
	"github.com/google/uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

var json = jsoniter.Config{
	EscapeHTML:  false,
	SortMapKeys: true,
	UseNumber:   true,
}.Froze()

type (
	// Rewriter replaces telemetry values and removes session keys in JSON documents.
	Rewriter struct {
		l             *zap.Logger
		fs            afero.Fs
		telemetryKeys []string
		sessionKeys   []string
		assignments   map[string]string
	}
	RewriterOption func(*Rewriter)
)

// ------------------------------------------------------------------------------------------------
// ~ Options
// ------------------------------------------------------------------------------------------------

func RewriterWithFs(v afero.Fs) RewriterOption {
	return func(o *Rewriter) {
		o.fs = v
	}
}

// RewriterWithAssignments pins the value written for the given keys.
func RewriterWithAssignments(v map[string]string) RewriterOption {
	return func(o *Rewriter) {
		o.assignments = v
	}
}

// ------------------------------------------------------------------------------------------------
// ~ Constructor
// ------------------------------------------------------------------------------------------------

func NewRewriter(l *zap.Logger, telemetryKeys, sessionKeys []string, opts ...RewriterOption) *Rewriter {
	inst := &Rewriter{
		l:             l.Named("jsonstore"),
		fs:            afero.NewOsFs(),
		telemetryKeys: telemetryKeys,
		sessionKeys:   sessionKeys,
	}

	for _, opt := range opts {
		opt(inst)
	}

	return inst
}

// ------------------------------------------------------------------------------------------------
// ~ Public methods
// ------------------------------------------------------------------------------------------------

// Rewrite updates the document at path in place. The file is only written when something changed.
func (r *Rewriter) Rewrite(path string) (store.ModifyResult, error) {
	res := store.ModifyResult{FilesProcessed: 1}

	info, err := r.fs.Stat(path)
	if err != nil {
		return res, errors.Wrapf(err, "failed to stat %s", path)
	}

	data, err := afero.ReadFile(r.fs, path)
	if err != nil {
		return res, errors.Wrapf(err, "failed to read %s", path)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		r.l.Debug("skipping empty document", zap.String("path", path))
		return res, nil
	}

	var doc interface{}
	if err := json.Unmarshal(data, &doc); err != nil {
		return res, errors.Wrapf(err, "failed to parse %s", path)
	}

	r.walk(doc, uuid.NewString(), uuid.NewString(), &res)

	if !res.Changed() {
		return res, nil
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return res, errors.Wrapf(err, "failed to encode %s", path)
	}
	if err := afero.WriteFile(r.fs, path, out, info.Mode().Perm()); err != nil {
		return res, errors.Wrapf(err, "failed to write %s", path)
	}

	r.l.Info("rewrote document",
		zap.String("path", path),
		zap.Int("updated", res.KeysUpdated),
		zap.Int("deleted", res.KeysDeleted),
	)

	return res, nil
}

// ------------------------------------------------------------------------------------------------
// ~ Private methods
// ------------------------------------------------------------------------------------------------

func (r *Rewriter) walk(node interface{}, machineID, sessionID string, res *store.ModifyResult) {
	switch v := node.(type) {
	case map[string]interface{}:
		for _, key := range r.telemetryKeys {
			if _, ok := v[key]; ok {
				v[key] = store.Replacement(key, r.assignments, machineID, sessionID)
				res.KeysUpdated++
			}
		}
		for _, key := range r.sessionKeys {
			if _, ok := v[key]; ok {
				delete(v, key)
				res.KeysDeleted++
			}
		}
		for _, child := range v {
			r.walk(child, machineID, sessionID, res)
		}
	case []interface{}:
		for _, child := range v {
			r.walk(child, machineID, sessionID, res)
		}
	}
}
