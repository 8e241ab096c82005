// Package sloghooks logs tiercache events with log/slog.
package sloghooks

import (
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sync/atomic"

	"github.com/unkn0wn-root/tiercache"
)

type Options struct {
	// Sampling to avoid floods; 0/1 = log all.
	SelfHealEvery uint64
	BackfillEvery uint64
	// Optional key redactor. Defaults to SHA-256 prefix.
	Redact func(string) string
}

type Hooks struct {
	l    *slog.Logger
	opts Options

	selfHealCtr atomic.Uint64
	backfillCtr atomic.Uint64
}

var _ tiercache.Hooks = (*Hooks)(nil)

func New(l *slog.Logger, opts Options) *Hooks {
	return &Hooks{l: l, opts: opts}
}

func (h *Hooks) redact(k string) string {
	if h.opts.Redact != nil {
		return h.opts.Redact(k)
	}
	sum := sha256.Sum256([]byte(k))
	return hex.EncodeToString(sum[:8])
}

func sample(n uint64, ctr *atomic.Uint64) bool {
	if n == 0 || n == 1 {
		return true
	}
	return ctr.Add(1)%n == 0
}

func (h *Hooks) SelfHeal(location, reason string) {
	if h.l == nil || !sample(h.opts.SelfHealEvery, &h.selfHealCtr) {
		return
	}
	h.l.Warn("tiercache.self_heal",
		"location", location,
		"reason", reason)
}

func (h *Hooks) CatalogBuilt(root string, entries int) {
	if h.l == nil {
		return
	}
	h.l.Info("tiercache.catalog_built",
		"root", root,
		"entries", entries)
}

func (h *Hooks) MetaRebuilt(location string) {
	if h.l == nil {
		return
	}
	h.l.Warn("tiercache.meta_rebuilt", "location", location)
}

func (h *Hooks) OrphanMeta(location string) {
	if h.l == nil {
		return
	}
	h.l.Warn("tiercache.orphan_meta", "location", location)
}

func (h *Hooks) Backfill(key, from, to string) {
	if h.l == nil || !sample(h.opts.BackfillEvery, &h.backfillCtr) {
		return
	}
	h.l.Debug("tiercache.backfill",
		"key", h.redact(key),
		"from", from,
		"to", to)
}

func (h *Hooks) Mismatch(key string, copies int) {
	if h.l == nil {
		return
	}
	h.l.Error("tiercache.mismatch",
		"key", h.redact(key),
		"copies", copies)
}
