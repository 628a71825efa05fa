// Package digest builds and renders the daily per-client error report.
package digest

import (
	"cmp"
	"slices"
	"time"

	"github.com/kiranshivaraju/errdigest/pkg/models"
)

// Digest is the grouped view of one client's records for one report day.
type Digest struct {
	ClientID        string
	ReportDate      time.Time
	Versions        []VersionGroup
	VersionCount    int
	ExceptionCount  int
	OccurrenceCount int
}

// VersionGroup holds the records of one client version, highest count first.
type VersionGroup struct {
	Version     string
	Records     []*models.ErrorRecord
	Occurrences int
}

// Build groups records by client version, versions in descending order and
// records within a version by descending count. Records with equal counts
// keep their input order. The input slice is not modified.
func Build(clientID string, date time.Time, records []*models.ErrorRecord) *Digest {
	d := &Digest{ClientID: clientID, ReportDate: date}

	groups := make(map[string]*VersionGroup)
	for _, rec := range records {
		g, exists := groups[rec.ClientVersion]
		if !exists {
			g = &VersionGroup{Version: rec.ClientVersion}
			groups[rec.ClientVersion] = g
		}
		g.Records = append(g.Records, rec)
		g.Occurrences += rec.Count
		d.ExceptionCount++
		d.OccurrenceCount += rec.Count
	}

	d.Versions = make([]VersionGroup, 0, len(groups))
	for _, g := range groups {
		slices.SortStableFunc(g.Records, func(a, b *models.ErrorRecord) int {
			return cmp.Compare(b.Count, a.Count)
		})
		d.Versions = append(d.Versions, *g)
	}
	slices.SortFunc(d.Versions, func(a, b VersionGroup) int {
		return cmp.Compare(b.Version, a.Version)
	})

	d.VersionCount = len(d.Versions)
	return d
}

// Empty reports whether the digest has no records.
func (d *Digest) Empty() bool {
	return d.ExceptionCount == 0
}
