package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for name, body := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func hostnameRule() Rule {
	return RuleFunc{ID: "has_hostname", Fn: func(_ context.Context, a *Archive) (*Hit, error) {
		if h := a.Hostname(); h != "" {
			return &Hit{Key: "HOSTNAME", Details: map[string]any{"hostname": h}}, nil
		}
		return nil, nil
	}}
}

func failingRule() Rule {
	return RuleFunc{ID: "broken", Fn: func(context.Context, *Archive) (*Hit, error) {
		return nil, errors.New("parser exploded")
	}}
}

func testRules() *RuleSet {
	return NewRuleSet(Package{Name: "test", Version: "0.1", Rules: []Rule{hostnameRule(), failingRule()}})
}

func systemOf(t *testing.T, doc map[string]any) map[string]any {
	t.Helper()
	sys, ok := doc["system"].(map[string]any)
	if !ok {
		t.Fatalf("document has no system: %v", doc)
	}
	return sys
}

func TestArchiveRejectsEscapes(t *testing.T) {
	a := NewArchive(writeTree(t, map[string]string{"x": "1"}))
	if _, err := a.Content("../etc/passwd"); err == nil {
		t.Fatal("expected an error for a parent path")
	}
	if a.Exists("/x") {
		t.Fatal("absolute path should not resolve")
	}
	if b, err := a.Content("missing"); b != nil || err != nil {
		t.Fatalf("missing file = %q, %v", b, err)
	}
}

func TestReadMetadata(t *testing.T) {
	md, err := ReadMetadata(NewArchive(writeTree(t, nil)))
	if err != nil || len(md) != 0 {
		t.Fatalf("absent metadata = %v, %v", md, err)
	}
	md, err = ReadMetadata(NewArchive(writeTree(t, map[string]string{MetadataFile: "  \n"})))
	if err != nil || len(md) != 0 {
		t.Fatalf("blank metadata = %v, %v", md, err)
	}
	if _, err := ReadMetadata(NewArchive(writeTree(t, map[string]string{MetadataFile: "{nope"}))); err == nil {
		t.Fatal("malformed metadata should fail")
	}
}

func TestSelect(t *testing.T) {
	cases := []struct {
		name  string
		files map[string]string
		want  Kind
	}{
		{"multi", map[string]string{MetadataFile: `{"systems":[]}`, "machine-id": "x"}, KindMulti},
		{"single host", map[string]string{"machine-id": "abc"}, KindSingleHost},
		{"empty machine-id", map[string]string{"machine-id": " \n"}, KindGeneric},
		{"generic", map[string]string{"sos_commands/x": "1"}, KindGeneric},
		{"metadata without systems", map[string]string{MetadataFile: `{"product":"x"}`}, KindGeneric},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := NewArchive(writeTree(t, tc.files))
			md, err := ReadMetadata(a)
			if err != nil {
				t.Fatal(err)
			}
			if got := Select(a, md, "", testRules()).Kind(); got != tc.want {
				t.Fatalf("Select = %s, want %s", got, tc.want)
			}
		})
	}
}

func TestSingleHostUsesMachineID(t *testing.T) {
	a := NewArchive(writeTree(t, map[string]string{"machine-id": " abc-123\n", "etc/hostname": "h1"}))
	res, err := Select(a, Metadata{}, "", testRules()).Process(context.Background())
	if err != nil || res.IsInvalid() {
		t.Fatalf("Process = %+v, %v", res, err)
	}
	sys := systemOf(t, res.Doc)
	if sys["system_id"] != "abc-123" || sys["hostname"] != "h1" {
		t.Fatalf("system = %v", sys)
	}
	if reports := res.Doc["reports"].([]any); len(reports) != 1 {
		t.Fatalf("reports = %v", reports)
	}
	skips := res.Doc["skips"].([]any)
	if len(skips) != 1 || !strings.Contains(skips[0].(map[string]any)["reason"].(string), "exploded") {
		t.Fatalf("skips = %v", skips)
	}
}

func TestSingleHostSuppliedIDWins(t *testing.T) {
	a := NewArchive(writeTree(t, map[string]string{"machine-id": "abc"}))
	res, _ := Select(a, Metadata{}, "supplied", testRules()).Process(context.Background())
	if systemOf(t, res.Doc)["system_id"] != "supplied" {
		t.Fatalf("doc = %v", res.Doc)
	}
}

func TestEmptyMachineIDFallsThroughToGeneric(t *testing.T) {
	a := NewArchive(writeTree(t, map[string]string{"machine-id": "\n", "hostname": "sos-host"}))
	res, err := Select(a, Metadata{}, "", testRules()).Process(context.Background())
	if err != nil || res.IsInvalid() {
		t.Fatalf("Process = %+v, %v", res, err)
	}
	sys := systemOf(t, res.Doc)
	if sys["type"] != "sosreport" || sys["system_id"] != nil {
		t.Fatalf("system = %v", sys)
	}
}

func TestSingleHostSavesUploaderLog(t *testing.T) {
	a := NewArchive(writeTree(t, map[string]string{
		"machine-id":   "abc-123",
		"uploader_log": "2024-05-17 upload started\n2024-05-17 upload done\n",
	}))
	dir := filepath.Join(t.TempDir(), "uploader_logs")

	res, err := Select(a, Metadata{}, "", testRules(), WithUploaderLogDir(dir)).Process(context.Background())
	if err != nil || res.IsInvalid() {
		t.Fatalf("Process = %+v, %v", res, err)
	}
	b, err := os.ReadFile(filepath.Join(dir, "abc-123.log"))
	if err != nil {
		t.Fatalf("uploader log not written: %v", err)
	}
	if !strings.Contains(string(b), "upload done") {
		t.Fatalf("uploader log = %q", b)
	}
}

func TestSingleHostUploaderLogSkipped(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploader_logs")

	// No log in the archive.
	a := NewArchive(writeTree(t, map[string]string{"machine-id": "abc"}))
	if _, err := Select(a, Metadata{}, "", testRules(), WithUploaderLogDir(dir)).Process(context.Background()); err != nil {
		t.Fatal(err)
	}
	// A system id that is not a plain file name.
	a = NewArchive(writeTree(t, map[string]string{"machine-id": "abc", "uploader_log": "x"}))
	res, err := Select(a, Metadata{}, "../escape", testRules(), WithUploaderLogDir(dir)).Process(context.Background())
	if err != nil || res.IsInvalid() {
		t.Fatalf("Process = %+v, %v", res, err)
	}
	if entries, _ := os.ReadDir(dir); len(entries) != 0 {
		t.Fatalf("unexpected files: %v", entries)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(dir), "escape.log")); err == nil {
		t.Fatal("log escaped the directory")
	}
}

func TestMultiSystem(t *testing.T) {
	root := writeTree(t, map[string]string{
		MetadataFile:     `{"product":"OSP","system_id":"parent-1","systems":[{"system_id":"a","type":"controller"},{"system_id":"b"}]}`,
		"a/etc/hostname": "node-a",
		"hostname":       "director",
	})
	a := NewArchive(root)
	md, err := ReadMetadata(a)
	if err != nil {
		t.Fatal(err)
	}
	res, err := Select(a, md, "ignored", testRules()).Process(context.Background())
	if err != nil || res.IsInvalid() {
		t.Fatalf("Process = %+v, %v", res, err)
	}
	sys := systemOf(t, res.Doc)
	if sys["system_id"] != "parent-1" || sys["type"] != "OSP" {
		t.Fatalf("system = %v", sys)
	}
	archives := res.Doc["archives"].([]any)
	if len(archives) != 2 {
		t.Fatalf("archives = %v", archives)
	}
	first := systemOf(t, archives[0].(map[string]any))
	if first["hostname"] != "node-a" || first["type"] != "controller" {
		t.Fatalf("first = %v", first)
	}
	// "b" has no directory of its own and is evaluated at the root.
	second := systemOf(t, archives[1].(map[string]any))
	if second["hostname"] != "director" || second["type"] != "host" {
		t.Fatalf("second = %v", second)
	}
}

func TestMultiSystemParentFallsBackToSuppliedID(t *testing.T) {
	a := NewArchive(writeTree(t, nil))
	md := Metadata{"systems": []any{map[string]any{"system_id": "a"}}}
	res, _ := Select(a, md, "supplied", testRules()).Process(context.Background())
	if systemOf(t, res.Doc)["system_id"] != "supplied" {
		t.Fatalf("doc = %v", res.Doc)
	}
}

func TestMultiSystemInvalid(t *testing.T) {
	a := NewArchive(writeTree(t, nil))
	for name, md := range map[string]Metadata{
		"empty":      {"systems": []any{}},
		"not a list": {"systems": "a,b"},
		"no id":      {"systems": []any{map[string]any{"type": "x"}}},
		"not object": {"systems": []any{"a"}},
	} {
		t.Run(name, func(t *testing.T) {
			res, err := Select(a, md, "", testRules()).Process(context.Background())
			if err != nil || !res.IsInvalid() {
				t.Fatalf("Process = %+v, %v", res, err)
			}
		})
	}
}

func TestGenericSystemID(t *testing.T) {
	a := NewArchive(writeTree(t, map[string]string{"sos_commands/x": "1"}))
	res, _ := Select(a, Metadata{}, "", testRules()).Process(context.Background())
	if id, ok := systemOf(t, res.Doc)["system_id"]; !ok || id != nil {
		t.Fatalf("system_id = %v", id)
	}
	res, _ = Select(a, Metadata{}, "given", testRules()).Process(context.Background())
	if systemOf(t, res.Doc)["system_id"] != "given" {
		t.Fatalf("doc = %v", res.Doc)
	}
}

func TestProcessHonoursContext(t *testing.T) {
	a := NewArchive(writeTree(t, map[string]string{"machine-id": "abc"}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := Select(a, Metadata{}, "", testRules()).Process(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func TestRegistry(t *testing.T) {
	RegisterPackage(Package{Name: "registry-test", Version: "2", Commit: "c0ffee", Rules: []Rule{hostnameRule()}})

	rs, err := LoadPackages([]string{"registry-test", "does-not-exist", "registry-test"})
	if err == nil || !strings.Contains(err.Error(), "does-not-exist") {
		t.Fatalf("err = %v", err)
	}
	if len(rs.Packages()) != 1 || rs.Len() != 1 {
		t.Fatalf("packages = %v", rs.Packages())
	}
	v := rs.Versions()["registry-test"].(map[string]any)
	if v["version"] != "2" || v["commit"] != "c0ffee" {
		t.Fatalf("versions = %v", v)
	}

	found := false
	for _, n := range ListPackages() {
		found = found || n == "registry-test"
	}
	if !found {
		t.Fatal("ListPackages is missing registry-test")
	}
}
