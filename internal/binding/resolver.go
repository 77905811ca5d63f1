package binding

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/dokzlo13/visbind/internal/objects"
)

// DefaultHistoryInstance is the history service consulted when a
// configuration does not name one.
const DefaultHistoryInstance = "history.0"

// Resolver turns configured identifiers into Points.
type Resolver struct {
	objects ObjectReader
}

// NewResolver creates a resolver reading metadata through r.
func NewResolver(r ObjectReader) *Resolver {
	return &Resolver{objects: r}
}

// Resolve builds one Point per configured slot, keyed by slot key.
// A missing or unreadable object yields a point with empty metadata;
// it never fails the batch.
func (r *Resolver) Resolve(ctx context.Context, cfg Config) map[string]Point {
	pass := &resolvePass{
		r:     r,
		ctx:   ctx,
		cache: make(map[string]*objects.Object),
	}
	pass.prefetch(cfg.Points)

	instance := cfg.HistoryInstance
	if instance == "" {
		instance = DefaultHistoryInstance
	}

	points := make(map[string]Point, len(cfg.Points))
	for _, pc := range cfg.Points {
		points[pc.Key] = pass.point(pc, instance, cfg.Language)
	}
	return points
}

// resolvePass caches every object read during one resolution, including
// ancestors fetched for icon inheritance. A nil entry records absence.
type resolvePass struct {
	r     *Resolver
	ctx   context.Context
	cache map[string]*objects.Object
}

func (p *resolvePass) prefetch(pcs []PointConfig) {
	ids := make([]string, 0, len(pcs))
	seen := make(map[string]bool, len(pcs))
	for _, pc := range pcs {
		if !pc.IsBound() || seen[pc.ID] {
			continue
		}
		seen[pc.ID] = true
		ids = append(ids, pc.ID)
	}
	if len(ids) == 0 {
		return
	}

	found, err := p.r.objects.GetObjectsByID(p.ctx, ids)
	if err != nil {
		log.Warn().Err(err).Int("ids", len(ids)).Msg("Batch object fetch failed, falling back to single reads")
		return
	}
	for _, id := range ids {
		p.cache[id] = found[id]
	}
}

func (p *resolvePass) get(id string) *objects.Object {
	if obj, ok := p.cache[id]; ok {
		return obj
	}
	obj, err := p.r.objects.GetObject(p.ctx, id)
	switch {
	case errors.Is(err, objects.ErrNotFound):
		log.Debug().Str("oid", id).Msg("Object not found")
		obj = nil
	case err != nil:
		log.Warn().Err(err).Str("oid", id).Msg("Object fetch failed")
		obj = nil
	}
	p.cache[id] = obj
	return obj
}

func (p *resolvePass) point(pc PointConfig, instance, lang string) Point {
	pt := Point{
		Key:   pc.Key,
		ID:    pc.ID,
		Bound: pc.IsBound(),
		Kind:  KindBoolean,
		Min:   DefaultMin,
		Max:   DefaultMax,
		Step:  pc.Step,
		Icon:  pc.Icon,
		Color: pc.Color,
		Unit:  pc.Unit,
		Name:  pc.Title,
	}
	if pc.DefaultMin != nil {
		pt.Min = *pc.DefaultMin
	}
	if pc.DefaultMax != nil {
		pt.Max = *pc.DefaultMax
	}
	pt.Bounded = pc.DefaultMin != nil || pc.DefaultMax != nil
	if !pt.Bound {
		return pt
	}

	obj := p.get(pc.ID)
	if obj == nil {
		return pt
	}
	pt.Found = true

	c := obj.Common
	pt.ValueType = c.Type
	pt.Role = c.Role
	if c.Min != nil {
		pt.Min = *c.Min
	}
	if c.Max != nil {
		pt.Max = *c.Max
	}
	pt.States = normalizeStates(c.States)

	switch {
	case len(pt.States) > 0:
		pt.Kind = KindEnumerated
	case c.Type == objects.ValueNumber:
		pt.Kind = KindNumeric
	}

	if pt.Color == "" {
		pt.Color = c.Color
	}
	if pt.Unit == "" {
		pt.Unit = c.Unit
	}
	if pt.Name == "" {
		pt.Name = c.Name.String(lang)
	}
	if pt.Name == "" {
		pt.Name = obj.ID
	}
	if pt.Icon == "" {
		pt.Icon = p.inheritIcon(obj, lang)
	}
	pt.HistoryEnabled = historyEnabled(c.Custom, instance)
	return pt
}

// inheritIcon returns the object's own icon or, for states and channels,
// the icon of the nearest ancestor up to two levels above. An icon taken
// from an instance or adapter lives under that adapter's admin directory.
func (p *resolvePass) inheritIcon(obj *objects.Object, lang string) string {
	if obj.Common.Icon != "" {
		return obj.Common.Icon
	}
	if !isLeafType(obj.Type) {
		return ""
	}

	parentID, ok := objects.ParentID(obj.ID, 1)
	if !ok {
		return ""
	}
	parent := p.get(parentID)
	if parent == nil {
		return ""
	}
	if parent.Common.Icon != "" {
		return adapterIcon(parent, lang)
	}
	if !isLeafType(parent.Type) {
		return ""
	}

	grandID, ok := objects.ParentID(obj.ID, 2)
	if !ok {
		return ""
	}
	grand := p.get(grandID)
	if grand == nil || grand.Common.Icon == "" {
		return ""
	}
	return adapterIcon(grand, lang)
}

func isLeafType(t objects.Type) bool {
	return t == objects.TypeState || t == objects.TypeChannel
}

func adapterIcon(owner *objects.Object, lang string) string {
	icon := owner.Common.Icon
	if owner.Type == objects.TypeInstance || owner.Type == objects.TypeAdapter {
		return "../" + owner.Common.Name.String(lang) + ".admin/" + icon
	}
	return icon
}

func normalizeStates(s objects.States) []StateOption {
	if len(s.List) > 0 {
		out := make([]StateOption, len(s.List))
		for i, v := range s.List {
			out[i] = StateOption{Value: v, Label: v}
		}
		return out
	}
	if len(s.Entries) == 0 {
		return nil
	}
	out := make([]StateOption, len(s.Entries))
	for i, e := range s.Entries {
		out[i] = StateOption{Value: e.Value, Label: e.Label}
	}
	return out
}

func historyEnabled(custom map[string]any, instance string) bool {
	entry, ok := custom[instance]
	if !ok || entry == nil {
		return false
	}
	switch v := entry.(type) {
	case bool:
		return v
	case map[string]any:
		if enabled, ok := v["enabled"]; ok {
			return Truthy(enabled)
		}
	}
	return true
}
