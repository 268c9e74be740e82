package split

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStructure_IsOriginal(t *testing.T) {
	assert.True(t, Structure{ID: "1", OriginalID: "1"}.IsOriginal())
	assert.False(t, Structure{ID: "2", OriginalID: "1", PreviousID: "1"}.IsOriginal())
	assert.False(t, Structure{ID: "2", OriginalID: "1"}.IsOriginal(), "empty previous alone is not enough")
	assert.True(t, Structure{ID: "1", OriginalID: "1", PreviousID: "0"}.IsLineageRoot())
}

func TestSortBranches(t *testing.T) {
	branches := []Branch{
		{ActiveVersionID: "A200", Name: "draft"},
		{ActiveVersionID: "A100", Name: "published"},
		{ActiveVersionID: "A100", Name: "draft"},
	}

	SortBranches(branches)

	assert.Equal(t, "A100", branches[0].ActiveVersionID)
	assert.Equal(t, "draft", branches[0].Name)
	assert.Equal(t, "published", branches[1].Name)
	assert.Equal(t, "A200", branches[2].ActiveVersionID)
}

func TestChangePlan_Sort(t *testing.T) {
	plan := &ChangePlan{
		Delete:        []string{"8", "2", "5"},
		UpdateParents: []Relink{{"9", "1"}, {"3", "1"}},
	}

	plan.Sort()

	assert.Equal(t, []string{"2", "5", "8"}, plan.Delete)
	assert.Equal(t, "3", plan.UpdateParents[0].StructureID)
	assert.NoError(t, plan.Validate())
}

func TestChangePlan_IndexOfDelete(t *testing.T) {
	plan := &ChangePlan{Delete: []string{"2", "5", "7", "8"}}

	assert.Equal(t, 0, plan.IndexOfDelete("2"))
	assert.Equal(t, 2, plan.IndexOfDelete("7"))
	assert.Equal(t, -1, plan.IndexOfDelete("6"))
	assert.Equal(t, -1, plan.IndexOfDelete("9"))
}

func TestChangePlan_Empty(t *testing.T) {
	assert.True(t, (&ChangePlan{}).Empty())
	assert.False(t, (&ChangePlan{Delete: []string{"1"}}).Empty())
}
