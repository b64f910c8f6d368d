package schema

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// ProfilingParams are the knobs that shape profiling output. They are part of
// the reflection hash so a parameter change forces a rebuild of derived caches.
type ProfilingParams struct {
	SampleRows               int
	ValueConstraintThreshold int
	MinAreaSize              int
}

// ConnectionFingerprint derives a stable identifier for a connection target.
// Credentials are stripped first so the fingerprint is safe to use in file
// names and log lines.
func ConnectionFingerprint(databaseURL string) string {
	target := databaseURL
	if u, err := url.Parse(databaseURL); err == nil {
		u.User = nil
		target = u.String()
	}
	sum := sha256.Sum256([]byte(target))
	return hex.EncodeToString(sum[:])[:16]
}

// ReflectionHash fingerprints the reflected structure plus profiling
// parameters. It reads only structural fields (names, vendor types,
// nullability, keys, FK targets); sampled statistics, summaries, and
// timestamps never influence it, so rebuilding against an unchanged database
// yields the same hash.
func ReflectionHash(tables map[string]*TableProfile, params ProfilingParams) string {
	keys := make([]string, 0, len(tables))
	for k := range tables {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	h := sha256.New()
	fmt.Fprintf(h, "params:%d:%d:%d\n",
		params.SampleRows, params.ValueConstraintThreshold, params.MinAreaSize)

	for _, key := range keys {
		tbl := tables[key]
		fmt.Fprintf(h, "table:%s\n", key)
		fmt.Fprintf(h, "pk:%s\n", strings.Join(tbl.PrimaryKey, ","))
		for _, col := range tbl.Columns {
			fmt.Fprintf(h, "col:%s:%s:%t:%t\n",
				col.Name, col.VendorType, col.Nullable, col.IsPrimaryKey)
		}
		fks := make([]string, 0, len(tbl.ForeignKeys))
		for _, fk := range tbl.ForeignKeys {
			fks = append(fks, fk.LocalColumn+">"+fk.RemoteTableKey+"."+fk.RemoteColumn)
		}
		sort.Strings(fks)
		fmt.Fprintf(h, "fks:%s\n", strings.Join(fks, ","))
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// SubjectAreaID derives a stable area identifier from its member set. The
// same set of tables produces the same id across rebuilds.
func SubjectAreaID(tableKeys []string) string {
	sorted := append([]string(nil), tableKeys...)
	sort.Strings(sorted)
	sum := sha256.Sum256([]byte(strings.Join(sorted, "\n")))
	return "sa-" + hex.EncodeToString(sum[:])[:10]
}
