package mesh

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

func sampleRecords() []Record {
	records := []Record{
		{
			Kind:        KindDescriptor,
			UI:          "D009369",
			Name:        "Neoplasms",
			TreeNumbers: []string{"C04"},
			Concepts: []Concept{{
				UI:            "M0014585",
				Name:          "Neoplasms",
				SemanticTypes: []string{"T191"},
				Attributes:    map[string]string{"PreferredConceptYN": "Y"},
				Terms: []Term{
					{UI: "T028349", Name: "Neoplasms", Attributes: map[string]string{"LexicalTag": "NON"}},
					{UI: "T028350", Name: "Tumors"},
				},
			}},
			Qualifiers: []Qualifier{{UI: "Q000097", Name: "blood"}},
		},
		{
			Kind:        KindDescriptor,
			UI:          "D006258",
			Name:        "Head and Neck Neoplasms",
			TreeNumbers: []string{"C04.588.443", "C04.588"},
		},
		{
			Kind:     KindSupplemental,
			UI:       "C000656",
			Name:     "calcimycin analog",
			SCRClass: "1",
		},
	}
	BuildParents(records)
	return records
}

func TestCacheRoundTrip(t *testing.T) {
	records := sampleRecords()

	var buf bytes.Buffer
	if err := WriteCache(&buf, records); err != nil {
		t.Fatalf("write cache: %v", err)
	}
	got, err := ReadCache(&buf)
	if err != nil {
		t.Fatalf("read cache: %v", err)
	}

	opts := cmp.Options{
		cmpopts.EquateEmpty(),
		cmpopts.SortSlices(func(a, b string) bool { return a < b }),
	}
	if diff := cmp.Diff(records, got, opts); diff != "" {
		t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestCacheKeys(t *testing.T) {
	records := sampleRecords()
	raw, err := json.Marshal(records)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var generic []map[string]any
	if err := json.Unmarshal(raw, &generic); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	for _, key := range []string{"descriptor_ui", "name", "tree_numbers", "concepts", "parents"} {
		if _, ok := generic[0][key]; !ok {
			t.Errorf("descriptor entry missing %q: %v", key, generic[0])
		}
	}
	if _, ok := generic[2]["supplemental_ui"]; !ok {
		t.Errorf("supplemental entry missing supplemental_ui: %v", generic[2])
	}
	if generic[2]["scr"] != "1" {
		t.Errorf("expected scr=1, got %v", generic[2]["scr"])
	}
}

func TestReadCacheRejectsMissingIdentifier(t *testing.T) {
	_, err := ReadCache(strings.NewReader(`[{"name": "orphan"}]`))
	if err == nil {
		t.Fatal("expected error for entry without identifier")
	}
}

func TestCacheFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "desc.json")
	if err := SaveCacheFile(path, sampleRecords()); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := LoadCacheFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 records, got %d", len(got))
	}
	if got[1].Parents[0] != "D009369" {
		t.Fatalf("expected parent D009369, got %v", got[1].Parents)
	}
}
