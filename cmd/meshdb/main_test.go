package main

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/japaniel/meshdb/pkg/mesh"
	"github.com/japaniel/meshdb/pkg/normalize"
)

const descXML = `<?xml version="1.0"?>
<DescriptorRecordSet LanguageCode="eng">
  <DescriptorRecord DescriptorClass="1">
    <DescriptorUI>D009369</DescriptorUI>
    <DescriptorName><String>Neoplasms</String></DescriptorName>
    <TreeNumberList><TreeNumber>C04</TreeNumber><TreeNumber>C04.588</TreeNumber></TreeNumberList>
    <ConceptList>
      <Concept PreferredConceptYN="Y">
        <ConceptUI>M0014585</ConceptUI>
        <ConceptName><String>Neoplasms</String></ConceptName>
        <TermList>
          <Term ConceptPreferredTermYN="Y" RecordPreferredTermYN="Y"><TermUI>T028349</TermUI><String>Neoplasms</String></Term>
          <Term ConceptPreferredTermYN="N" RecordPreferredTermYN="N"><TermUI>T028350</TermUI><String>Tumors</String></Term>
        </TermList>
      </Concept>
    </ConceptList>
  </DescriptorRecord>
  <DescriptorRecord DescriptorClass="1">
    <DescriptorUI>D001943</DescriptorUI>
    <DescriptorName><String>Breast Neoplasms</String></DescriptorName>
    <TreeNumberList><TreeNumber>C04.588.180</TreeNumber></TreeNumberList>
    <ConceptList>
      <Concept PreferredConceptYN="Y">
        <ConceptUI>M0002793</ConceptUI>
        <ConceptName><String>Breast Neoplasms</String></ConceptName>
        <TermList>
          <Term><TermUI>T005302</TermUI><String>Breast Tumors</String></Term>
        </TermList>
      </Concept>
    </ConceptList>
  </DescriptorRecord>
</DescriptorRecordSet>
`

const suppXML = `<?xml version="1.0"?>
<SupplementalRecordSet LanguageCode="eng">
  <SupplementalRecord SCRClass="1">
    <SupplementalRecordUI>C000002</SupplementalRecordUI>
    <SupplementalRecordName><String>bevonium</String></SupplementalRecordName>
  </SupplementalRecord>
</SupplementalRecordSet>
`

func gz(t *testing.T, s string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	if _, err := w.Write([]byte(s)); err != nil {
		t.Fatalf("gzip: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

type env struct {
	dir  string
	args []string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	desc, supp := gz(t, descXML), gz(t, suppXML)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/desc2017.gz":
			w.Write(desc)
		case "/supp2017.gz":
			w.Write(supp)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	t.Setenv("MESHDB_BASE_URL", srv.URL)

	dir := t.TempDir()
	return &env{
		dir: dir,
		args: []string{
			"--config", filepath.Join(dir, "missing.yaml"),
			"--data-dir", filepath.Join(dir, "data"),
			"--db", filepath.Join(dir, "mesh.db"),
			"--year", "2017",
			"--log-level", "error",
		},
	}
}

func (e *env) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append(append([]string{}, args...), e.args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func (e *env) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, errOut, err := e.run(t, args...)
	if err != nil {
		t.Fatalf("meshdb %s: %v\nstderr:\n%s", strings.Join(args, " "), err, errOut)
	}
	return out
}

func TestPopulateAndQuery(t *testing.T) {
	e := newEnv(t)

	out := e.mustRun(t, "status")
	if !strings.Contains(out, "Store is empty") {
		t.Fatalf("expected empty store notice, got: %s", out)
	}

	out = e.mustRun(t, "populate", "--supplements")
	if !strings.Contains(out, "Loaded 3 records: 3 descriptors") {
		t.Fatalf("unexpected populate output: %s", out)
	}
	// A second populate comes from the caches and adds nothing.
	out = e.mustRun(t, "populate", "--supplements")
	if !strings.Contains(out, "0 descriptors, 0 concepts, 0 terms") {
		t.Fatalf("expected idempotent reload, got: %s", out)
	}

	out = e.mustRun(t, "status")
	if !strings.Contains(out, "descriptors  3") || !strings.Contains(out, "terms        3") {
		t.Fatalf("unexpected status output:\n%s", out)
	}

	out = e.mustRun(t, "search", "tumor", "--json")
	var terms []map[string]string
	if err := json.Unmarshal([]byte(out), &terms); err != nil {
		t.Fatalf("search output is not JSON: %v\n%s", err, out)
	}
	if len(terms) != 2 || terms[0]["term_name"] != "Tumors" {
		t.Fatalf("unexpected search results: %v", terms)
	}

	out = e.mustRun(t, "search", "Breast Tumors", "--exact")
	if !strings.HasPrefix(out, "D001943") {
		t.Fatalf("unexpected exact search output: %s", out)
	}

	out = e.mustRun(t, "lookup", "Breast Tumors")
	var res struct {
		Identifier string `json:"identifier"`
		Parents    []struct {
			Identifier string `json:"identifier"`
		} `json:"parents"`
	}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatalf("lookup output is not JSON: %v\n%s", err, out)
	}
	if res.Identifier != "D001943" || len(res.Parents) != 1 || res.Parents[0].Identifier != "D009369" {
		t.Fatalf("unexpected lookup result: %s", out)
	}

	if _, _, err := e.run(t, "lookup", "D999999"); err == nil {
		t.Fatal("expected lookup of unknown identifier to fail")
	}
}

func TestExport(t *testing.T) {
	e := newEnv(t)
	e.mustRun(t, "populate")

	path := filepath.Join(e.dir, "meshc.belns")
	e.mustRun(t, "export", "MESHC", "-o", path)
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	s := string(data)
	if !strings.Contains(s, "Keyword=MESHC") || !strings.HasSuffix(s, "[Values]\nBreast Neoplasms|O\nNeoplasms|O\n") {
		t.Fatalf("unexpected namespace file:\n%s", s)
	}

	out := e.mustRun(t, "export", "meshc", "--from-cache")
	if !strings.HasSuffix(out, "[Values]\nBreast Neoplasms|O\nNeoplasms|O\n") {
		t.Fatalf("unexpected cached export:\n%s", out)
	}

	if _, _, err := e.run(t, "export", "HGNC"); err == nil {
		t.Fatal("expected unknown namespace to fail")
	}
}

func TestNormalize(t *testing.T) {
	e := newEnv(t)
	e.mustRun(t, "populate")

	in := filepath.Join(e.dir, "graph.json")
	doc := `{"nodes":[
		{"function":"Pathology","namespace":"MESHC","name":"tumors"},
		{"function":"Pathology","namespace":"MESHD","name":"D001943"},
		{"function":"Protein","namespace":"HGNC","name":"TP53"}],
		"edges":[{"source":2,"target":0,"relation":"increases"}]}`
	if err := os.WriteFile(in, []byte(doc), 0o644); err != nil {
		t.Fatalf("write doc: %v", err)
	}

	out, errOut, err := e.run(t, "normalize", in)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	got, err := normalize.ReadDocument(strings.NewReader(out))
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if got.Nodes[0].Identifier != "D009369" || got.Nodes[0].Name != "Neoplasms" || got.Nodes[0].Namespace != "mesh" {
		t.Errorf("unexpected node 0: %+v", got.Nodes[0])
	}
	if got.Nodes[1].Name != "Breast Neoplasms" {
		t.Errorf("unexpected node 1: %+v", got.Nodes[1])
	}
	if got.Nodes[2].Namespace != "HGNC" {
		t.Errorf("non-MeSH node rewritten: %+v", got.Nodes[2])
	}
	if !strings.Contains(errOut, "MESHC\t1") || !strings.Contains(errOut, "MESHD\t1") {
		t.Errorf("unexpected counts:\n%s", errOut)
	}
}

func TestVersion(t *testing.T) {
	e := newEnv(t)
	out := e.mustRun(t, "version")
	if strings.TrimSpace(out) != mesh.Version() {
		t.Fatalf("version = %q; want %q", out, mesh.Version())
	}
}

func TestDataDirHoldsDatabase(t *testing.T) {
	e := newEnv(t)
	// Drop --db so the store location comes from --data-dir.
	var args []string
	for i := 0; i < len(e.args); i++ {
		if e.args[i] == "--db" {
			i++
			continue
		}
		args = append(args, e.args[i])
	}
	e.args = args

	e.mustRun(t, "status")
	if _, err := os.Stat(filepath.Join(e.dir, "data", "mesh.db")); err != nil {
		t.Fatalf("expected database inside the data dir: %v", err)
	}
}

func TestNormalizeFromCache(t *testing.T) {
	e := newEnv(t)
	e.mustRun(t, "populate", "--supplements")

	in := filepath.Join(e.dir, "graph.json")
	doc := `{"nodes":[
		{"function":"Pathology","namespace":"MESHC","name":"MESHC:Breast Tumors"},
		{"function":"Abundance","namespace":"MESH","identifier":"MESH:C000002","name":"x"}]}`
	if err := os.WriteFile(in, []byte(doc), 0o644); err != nil {
		t.Fatalf("write doc: %v", err)
	}
	// Remove the store so only the caches can answer.
	if err := os.Remove(filepath.Join(e.dir, "mesh.db")); err != nil {
		t.Fatalf("remove db: %v", err)
	}

	outPath := filepath.Join(e.dir, "normalized.json")
	e.mustRun(t, "normalize", in, "--from-cache", "--supplements", "-o", outPath)
	f, err := os.Open(outPath)
	if err != nil {
		t.Fatalf("open output: %v", err)
	}
	defer f.Close()
	got, err := normalize.ReadDocument(f)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if got.Nodes[0].Identifier != "D001943" || got.Nodes[1].Name != "bevonium" {
		t.Fatalf("unexpected nodes: %+v", got.Nodes)
	}
	if _, err := os.Stat(filepath.Join(e.dir, "mesh.db")); !os.IsNotExist(err) {
		t.Errorf("normalize --from-cache should not open the store, stat err = %v", err)
	}
}

func TestWriteOutput(t *testing.T) {
	dir := t.TempDir()
	cmd := newRootCmd()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)

	if err := writeOutput(cmd, "", func(w io.Writer) error {
		_, err := io.WriteString(w, "hello")
		return err
	}); err != nil {
		t.Fatalf("stdout write: %v", err)
	}
	if stdout.String() != "hello" {
		t.Errorf("stdout = %q", stdout.String())
	}

	path := filepath.Join(dir, "out.txt")
	boom := errors.New("disk full")
	err := writeOutput(cmd, path, func(w io.Writer) error {
		io.WriteString(w, "partial")
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected write error, got %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("partial file left behind, stat err = %v", err)
	}

	if err := writeOutput(cmd, filepath.Join(dir, "missing", "out.txt"), func(io.Writer) error { return nil }); err == nil {
		t.Fatal("expected error creating file in a missing directory")
	}
}
