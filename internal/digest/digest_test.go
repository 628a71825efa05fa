package digest

import (
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/errdigest/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var reportDay = time.Date(2023, 5, 1, 0, 0, 0, 0, time.UTC)

func record(version, errType string, count int) *models.ErrorRecord {
	return &models.ErrorRecord{
		ID:             uuid.New(),
		Signature:      "hash:" + errType,
		Runtime:        "py",
		ClientID:       "app1",
		ClientVersion:  version,
		UserID:         "u1",
		UserName:       "Alice",
		ErrorType:      errType,
		ErrorMessage:   "bad input",
		Stacktrace:     "Traceback (most recent call last):\n  File \"app.py\", line 3",
		ReportDate:     reportDay,
		ActualDateTime: time.Date(2023, 5, 1, 10, 15, 0, 0, time.UTC),
		Count:          count,
	}
}

func TestBuild_GroupsAndTotals(t *testing.T) {
	records := []*models.ErrorRecord{
		record("1.0", "ValueError", 2),
		record("1.1", "KeyError", 1),
		record("1.0", "TypeError", 7),
	}

	d := Build("app1", reportDay, records)

	assert.Equal(t, 2, d.VersionCount)
	assert.Equal(t, 3, d.ExceptionCount)
	assert.Equal(t, 10, d.OccurrenceCount)
	require.Len(t, d.Versions, 2)

	assert.Equal(t, "1.1", d.Versions[0].Version)
	assert.Equal(t, 1, d.Versions[0].Occurrences)
	require.Len(t, d.Versions[0].Records, 1)

	assert.Equal(t, "1.0", d.Versions[1].Version)
	assert.Equal(t, 9, d.Versions[1].Occurrences)
	require.Len(t, d.Versions[1].Records, 2)
	assert.Equal(t, "TypeError", d.Versions[1].Records[0].ErrorType)
	assert.Equal(t, "ValueError", d.Versions[1].Records[1].ErrorType)

	// input order untouched
	assert.Equal(t, "ValueError", records[0].ErrorType)
}

func TestBuild_StableForEqualCounts(t *testing.T) {
	records := []*models.ErrorRecord{
		record("1.0", "A", 3),
		record("1.0", "B", 3),
		record("1.0", "C", 3),
	}
	d := Build("app1", reportDay, records)
	require.Len(t, d.Versions, 1)
	var types []string
	for _, r := range d.Versions[0].Records {
		types = append(types, r.ErrorType)
	}
	assert.Equal(t, []string{"A", "B", "C"}, types)
}

func TestBuild_InterleavedVersions(t *testing.T) {
	records := []*models.ErrorRecord{
		record("1.0", "A", 3),
		record("2.0", "X", 1),
		record("1.0", "B", 3),
		record("2.0", "Y", 4),
		record("1.0", "C", 5),
	}
	d := Build("app1", reportDay, records)
	require.Len(t, d.Versions, 2)

	var got [][]string
	for _, g := range d.Versions {
		var types []string
		for _, r := range g.Records {
			types = append(types, r.ErrorType)
		}
		got = append(got, types)
	}
	assert.Equal(t, [][]string{{"Y", "X"}, {"C", "A", "B"}}, got)
	assert.Equal(t, 5, d.Versions[0].Occurrences)
	assert.Equal(t, 11, d.Versions[1].Occurrences)
}

func TestBuild_Empty(t *testing.T) {
	d := Build("app1", reportDay, nil)
	assert.True(t, d.Empty())
	assert.Zero(t, d.VersionCount)
	assert.Zero(t, d.OccurrenceCount)
}

var htmlTag = regexp.MustCompile(`</?(h[1-6]|p|pre|code|table|thead|tbody|tr|th|td|ul|li|em|strong)\b[^>]*>`)

func TestRender_Scenario(t *testing.T) {
	d := Build("app1", reportDay, []*models.ErrorRecord{
		record("1.0", "ValueError", 2),
		record("1.1", "KeyError", 1),
		record("1.0", "TypeError", 7),
	})

	out, err := Render(d)
	require.NoError(t, err)

	assert.Contains(t, out.HTML, "<h1>")
	assert.Contains(t, out.HTML, "<table>")
	assert.Contains(t, out.HTML, "<pre><code>")
	assert.Contains(t, out.HTML, "Version 1.1")

	assert.NotRegexp(t, htmlTag, out.Text)
	assert.Contains(t, out.Text, `Daily exception report for "app1"`)
	assert.Contains(t, out.Text, "2023-05-01")
	assert.Contains(t, out.Text, "KeyError x1")
	assert.Contains(t, out.Text, "TypeError x7")
	assert.Contains(t, out.Text, `File "app.py", line 3`)
	// version 1.1 sorts before 1.0
	assert.Less(t, strings.Index(out.Text, "Version 1.1"), strings.Index(out.Text, "Version 1.0"))
}

func TestRender_Idempotent(t *testing.T) {
	records := []*models.ErrorRecord{
		record("2.0", "ValueError", 4),
		record("1.9", "KeyError", 1),
	}
	first, err := Render(Build("app1", reportDay, records))
	require.NoError(t, err)
	second, err := Render(Build("app1", reportDay, records))
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRender_EscapesUserContent(t *testing.T) {
	rec := record("1.0", "<script>alert(1)</script>", 1)
	rec.ErrorMessage = "```\n# not a heading\n```"
	rec.UserName = "*bold* _name_"

	out, err := Render(Build("app<1>", reportDay, []*models.ErrorRecord{rec}))
	require.NoError(t, err)

	assert.NotContains(t, out.HTML, "<script>")
	assert.Contains(t, out.HTML, "&lt;script&gt;")
	assert.NotContains(t, out.HTML, "<h1>not a heading</h1>")
	assert.NotContains(t, out.HTML, "<em>")
	assert.Contains(t, out.Text, "# not a heading")
	assert.Contains(t, out.Text, "*bold* _name_")
}

func TestFencedBlock(t *testing.T) {
	assert.Equal(t, "```\nplain\n```", fencedBlock("plain\n"))
	assert.Equal(t, "````\na ``` b\n````", fencedBlock("a ``` b"))
	assert.Equal(t, "``````\n`````\n``````", fencedBlock("`````"))
}

func TestStripTags(t *testing.T) {
	assert.Equal(t, "Title\nx < y & z", StripTags("<h1>Title</h1>\n<p>x &lt; y &amp; z</p>"))
}
