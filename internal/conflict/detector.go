// Package conflict detects competing change records for the same entity and
// reconciles them according to a resolution policy.
package conflict

import (
	"github.com/iudanet/handsync/internal/models"
)

// Conflicts reports whether two records conflict: they target the same entity and
// their checksums differ. Identical checksums are the same change, never a conflict.
func Conflicts(a, b *models.ChangeRecord) bool {
	if a == nil || b == nil {
		return false
	}
	return a.Key() == b.Key() && a.Checksum != b.Checksum
}

// Distinct drops records whose checksum was already seen, keeping the newest
// copy of each. The result is ordered by timestamp.
func Distinct(records []*models.ChangeRecord) []*models.ChangeRecord {
	byChecksum := make(map[string]*models.ChangeRecord, len(records))
	order := make([]string, 0, len(records))

	for _, r := range records {
		existing, ok := byChecksum[r.Checksum]
		if !ok {
			byChecksum[r.Checksum] = r
			order = append(order, r.Checksum)
			continue
		}
		if r.IsNewerThan(existing) {
			byChecksum[r.Checksum] = r
		}
	}

	out := make([]*models.ChangeRecord, 0, len(order))
	for _, sum := range order {
		out = append(out, byChecksum[sum])
	}
	sortRecords(out)
	return out
}

// Group is the set of records for one entity seen in a reconciliation step,
// split by where they come from.
type Group struct {
	Key    models.EntityKey
	Local  []*models.ChangeRecord
	Remote []*models.ChangeRecord
}

// InConflict reports whether any local record conflicts with any remote one.
func (g *Group) InConflict() bool {
	for _, l := range g.Local {
		for _, r := range g.Remote {
			if Conflicts(l, r) {
				return true
			}
		}
	}
	return false
}

// Records returns local and remote records together, deduplicated by checksum.
func (g *Group) Records() []*models.ChangeRecord {
	all := make([]*models.ChangeRecord, 0, len(g.Local)+len(g.Remote))
	all = append(all, g.Local...)
	all = append(all, g.Remote...)
	return Distinct(all)
}

// GroupByEntity pairs local and remote records by entity key.
// The returned slice keeps the order in which keys were first seen.
func GroupByEntity(local, remote []*models.ChangeRecord) []*Group {
	index := make(map[models.EntityKey]*Group)
	var groups []*Group

	get := func(key models.EntityKey) *Group {
		g, ok := index[key]
		if !ok {
			g = &Group{Key: key}
			index[key] = g
			groups = append(groups, g)
		}
		return g
	}

	for _, r := range local {
		g := get(r.Key())
		g.Local = append(g.Local, r)
	}
	for _, r := range remote {
		g := get(r.Key())
		g.Remote = append(g.Remote, r)
	}

	for _, g := range groups {
		sortRecords(g.Local)
		sortRecords(g.Remote)
	}
	return groups
}
