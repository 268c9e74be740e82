package split

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// planDocument is the on-disk layout: exactly "delete" and "update_parents".
type planDocument struct {
	Delete        *[]string `json:"delete"`
	UpdateParents *[]Relink `json:"update_parents"`
}

// MarshalJSON encodes a re-link as a two-element array.
func (r Relink) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{r.StructureID, r.PreviousID})
}

// UnmarshalJSON decodes a two-element [structure_id, new_previous_id] array.
func (r *Relink) UnmarshalJSON(data []byte) error {
	var pair []string
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("update_parents entry must have 2 elements, got %d", len(pair))
	}
	r.StructureID, r.PreviousID = pair[0], pair[1]
	return nil
}

// EncodePlan writes p in the plan file format. Empty lists are written as
// [] rather than null.
func EncodePlan(w io.Writer, p *ChangePlan) error {
	del := p.Delete
	if del == nil {
		del = []string{}
	}
	ups := p.UpdateParents
	if ups == nil {
		ups = []Relink{}
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(planDocument{Delete: &del, UpdateParents: &ups})
}

// DecodePlan reads a plan document and validates it. Unknown or missing
// members are rejected.
func DecodePlan(r io.Reader) (*ChangePlan, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()

	var doc planDocument
	if err := dec.Decode(&doc); err != nil {
		return nil, &Error{Kind: KindBadConfiguration, Message: "malformed plan document", Err: err}
	}
	if dec.More() {
		return nil, NewBadConfiguration("plan document has trailing data")
	}
	if doc.Delete == nil || doc.UpdateParents == nil {
		return nil, NewBadConfiguration("plan document must contain delete and update_parents")
	}

	plan := &ChangePlan{Delete: *doc.Delete, UpdateParents: *doc.UpdateParents}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return plan, nil
}

// WritePlanFile validates p and writes it to path atomically: the document
// goes to a temp file in the same directory which is synced and renamed
// over path. A failed write leaves any existing file untouched.
func WritePlanFile(path string, p *ChangePlan) (err error) {
	if err := p.Validate(); err != nil {
		return err
	}

	var buf bytes.Buffer
	if err := EncodePlan(&buf, p); err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp plan file: %w", err)
	}
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmp.Name())
		}
	}()

	if _, err = tmp.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write plan file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("sync plan file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close plan file: %w", err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename plan file: %w", err)
	}
	return nil
}

// ReadPlanFile reads and validates the plan at path.
func ReadPlanFile(path string) (*ChangePlan, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &Error{Kind: KindBadConfiguration, Message: "cannot open plan file", ID: path, Err: err}
	}
	defer f.Close()
	return DecodePlan(f)
}
