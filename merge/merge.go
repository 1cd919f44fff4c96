// ABOUTME: Field-level, timestamp-aware merge of local and remote snapshots
// ABOUTME: Newer side wins per key; absence never deletes and sequences replace wholesale
package merge

import (
	"github.com/harperreed/studysync/canon"
	"github.com/harperreed/studysync/models"
)

// MergeField reconciles one field. The side with the strictly greater
// timestamp is newer. Equal timestamps fall back to comparing the canonical
// encoding of the data so merge(a, b) == merge(b, a).
func MergeField(local, remote models.SyncField) models.SyncField {
	newer, older := order(local, remote)
	return models.SyncField{
		Data:      mergeValue(newer.Data, older.Data),
		UpdatedAt: LatestTimestamp(local.UpdatedAt, remote.UpdatedAt),
	}
}

// MergeData reconciles two snapshots field by field over the union of field
// names and the tracked set. The aggregate timestamp is the latest of every
// per-field and top-level timestamp.
func MergeData(local, remote models.SyncSnapshot) models.SyncSnapshot {
	names := make(map[string]struct{}, len(models.TrackedFields))
	for _, name := range models.TrackedFields {
		names[name] = struct{}{}
	}
	for name := range local.Fields {
		names[name] = struct{}{}
	}
	for name := range remote.Fields {
		names[name] = struct{}{}
	}

	out := models.NewSnapshot()
	updatedAt := LatestTimestamp(local.UpdatedAt, remote.UpdatedAt)
	for name := range names {
		merged := MergeField(local.Field(name), remote.Field(name))
		out.Fields[name] = merged
		updatedAt = LatestTimestamp(updatedAt, merged.UpdatedAt)
	}
	out.UpdatedAt = updatedAt
	return out
}

func order(a, b models.SyncField) (newer, older models.SyncField) {
	am, bm := ParseMillis(a.UpdatedAt), ParseMillis(b.UpdatedAt)
	switch {
	case am > bm:
		return a, b
	case bm > am:
		return b, a
	case canon.Compare(a.Data, b.Data) >= 0:
		return a, b
	default:
		return b, a
	}
}

// mergeValue combines newer over older. A nil newer value keeps the older
// one; two mappings merge key by key; anything else on the newer side wins.
func mergeValue(newer, older any) any {
	if newer == nil {
		return clone(older)
	}

	nm, newerIsMap := newer.(map[string]any)
	om, olderIsMap := older.(map[string]any)
	if !newerIsMap || !olderIsMap {
		return clone(newer)
	}

	out := make(map[string]any, len(nm)+len(om))
	for k, v := range om {
		out[k] = clone(v)
	}
	for k, v := range nm {
		ov, exists := om[k]
		if !exists {
			out[k] = clone(v)
			continue
		}
		if v == nil {
			continue
		}
		out[k] = mergeValue(v, ov)
	}
	return out
}

// clone deep-copies JSON-shaped values so merged output never aliases inputs.
func clone(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = clone(elem)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = clone(elem)
		}
		return out
	default:
		return v
	}
}
