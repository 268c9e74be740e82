package split

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodePlan_Format(t *testing.T) {
	plan := &ChangePlan{
		Delete:        []string{"2", "3"},
		UpdateParents: []Relink{{StructureID: "4", PreviousID: "1"}},
	}

	var buf bytes.Buffer
	require.NoError(t, EncodePlan(&buf, plan))

	want := `{
  "delete": [
    "2",
    "3"
  ],
  "update_parents": [
    [
      "4",
      "1"
    ]
  ]
}
`
	assert.Equal(t, want, buf.String())
}

func TestEncodePlan_EmptyListsAreArrays(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodePlan(&buf, &ChangePlan{}))

	assert.Contains(t, buf.String(), `"delete": []`)
	assert.Contains(t, buf.String(), `"update_parents": []`)
	assert.NotContains(t, buf.String(), "null")
}

func TestDecodePlan(t *testing.T) {
	doc := `{"delete": ["2", "5"], "update_parents": [["9", "1"]]}`

	plan, err := DecodePlan(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, []string{"2", "5"}, plan.Delete)
	assert.Equal(t, []Relink{{StructureID: "9", PreviousID: "1"}}, plan.UpdateParents)
}

func TestDecodePlan_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"not json", `delete: [1]`},
		{"unknown member", `{"delete": [], "update_parents": [], "version": 2}`},
		{"missing update_parents", `{"delete": []}`},
		{"missing delete", `{"update_parents": []}`},
		{"three element pair", `{"delete": [], "update_parents": [["1", "2", "3"]]}`},
		{"unsorted delete", `{"delete": ["5", "2"], "update_parents": []}`},
		{"duplicate delete", `{"delete": ["2", "2"], "update_parents": []}`},
		{"relinked and deleted", `{"delete": ["4"], "update_parents": [["4", "1"]]}`},
		{"relink to deleted", `{"delete": ["1"], "update_parents": [["4", "1"]]}`},
		{"trailing data", `{"delete": [], "update_parents": []} {}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodePlan(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.True(t, IsKind(err, KindBadConfiguration), "got %v", err)
		})
	}
}

func TestWritePlanFile_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.json")
	plan := &ChangePlan{
		Delete:        []string{"7", "8"},
		UpdateParents: []Relink{{StructureID: "9", PreviousID: "1"}},
	}

	require.NoError(t, WritePlanFile(path, plan))

	got, err := ReadPlanFile(path)
	require.NoError(t, err)
	assert.Equal(t, plan, got)

	// No temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWritePlanFile_InvalidPlanLeavesExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "plan.json")
	require.NoError(t, os.WriteFile(path, []byte("previous"), 0o644))

	err := WritePlanFile(path, &ChangePlan{Delete: []string{"b", "a"}})
	require.Error(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "previous", string(data))
}

func TestReadPlanFile_Missing(t *testing.T) {
	_, err := ReadPlanFile(filepath.Join(t.TempDir(), "nope.json"))
	require.Error(t, err)
	assert.Equal(t, KindBadConfiguration, KindOf(err))
}
