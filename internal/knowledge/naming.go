package knowledge

import (
	"sort"
	"strings"
	"time"

	"crawlmind/internal/model"
)

const (
	// TimestampLayout is the creation-time suffix of collection names.
	TimestampLayout = "20060102_150405"

	singleTenantPrefix = "crawlmind"
	collectionInfix    = "_collection_"
)

// Older deployments wrote minute-resolution suffixes.
var suffixLayouts = []string{TimestampLayout, "20060102_1504"}

// SanitizeIdentity maps an identity onto a safe path and name component.
func SanitizeIdentity(identity string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(identity) {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// CollectionPrefix is the name prefix shared by every collection of identity.
// The empty identity is the single-tenant deployment.
func CollectionPrefix(identity string) string {
	if identity == "" {
		return singleTenantPrefix + collectionInfix
	}
	return SanitizeIdentity(identity) + collectionInfix
}

func CollectionName(identity string, createdAt time.Time) string {
	return CollectionPrefix(identity) + createdAt.UTC().Format(TimestampLayout)
}

// CollectionTime parses the creation time encoded in name. ok is false when
// name does not follow the naming convention for prefix.
func CollectionTime(prefix, name string) (time.Time, bool) {
	if !strings.HasPrefix(name, prefix) {
		return time.Time{}, false
	}
	suffix := strings.TrimPrefix(name, prefix)
	for _, layout := range suffixLayouts {
		if len(suffix) != len(layout) {
			continue
		}
		if t, err := time.ParseInLocation(layout, suffix, time.UTC); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// SelectLatest picks the newest conventionally named collection. Times are
// compared after parsing so mixed suffix resolutions still order correctly;
// equal times fall back to the greater name.
func SelectLatest(prefix string, names []string) (CollectionRef, bool) {
	var refs []CollectionRef
	for _, name := range names {
		if t, ok := CollectionTime(prefix, name); ok {
			refs = append(refs, CollectionRef{Name: name, CreatedAt: t})
		}
	}
	if len(refs) == 0 {
		return CollectionRef{}, false
	}
	sort.Slice(refs, func(i, j int) bool {
		if !refs[i].CreatedAt.Equal(refs[j].CreatedAt) {
			return refs[i].CreatedAt.After(refs[j].CreatedAt)
		}
		return refs[i].Name > refs[j].Name
	})
	return refs[0], true
}

func sortMetadataNewestFirst(metas []model.CollectionMetadata) {
	sort.Slice(metas, func(i, j int) bool {
		if !metas[i].CreatedAt.Equal(metas[j].CreatedAt) {
			return metas[i].CreatedAt.After(metas[j].CreatedAt)
		}
		return metas[i].Name > metas[j].Name
	})
}
