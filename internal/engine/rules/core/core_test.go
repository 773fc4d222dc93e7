package core

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"insights-gateway/internal/engine"
)

func archive(t *testing.T, files map[string]string) *engine.Archive {
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
	return engine.NewArchive(root)
}

func TestRegistered(t *testing.T) {
	rs, err := engine.LoadPackages([]string{Name})
	if err != nil || rs.Len() != 3 {
		t.Fatalf("LoadPackages = %d rules, %v", rs.Len(), err)
	}
}

func TestSelinuxDisabled(t *testing.T) {
	hit, err := selinuxDisabled(context.Background(), archive(t, map[string]string{
		"etc/selinux/config": "# SELINUX=enforcing\nSELINUX=disabled\nSELINUXTYPE=targeted\n",
	}))
	if err != nil || hit == nil || hit.Key != "SELINUX_DISABLED" {
		t.Fatalf("hit = %+v, %v", hit, err)
	}

	hit, err = selinuxDisabled(context.Background(), archive(t, map[string]string{
		"etc/selinux/config": "SELINUX=enforcing\n",
	}))
	if err != nil || hit != nil {
		t.Fatalf("enforcing: hit = %+v, %v", hit, err)
	}
}

func TestEOLRelease(t *testing.T) {
	cases := map[string]bool{
		"Red Hat Enterprise Linux Server release 6.10 (Santiago)": true,
		"Red Hat Enterprise Linux release 9.4 (Plow)":             false,
		"Fedora release 40":                                       false,
	}
	for rel, want := range cases {
		hit, err := eolRelease(context.Background(), archive(t, map[string]string{"etc/redhat-release": rel}))
		if err != nil || (hit != nil) != want {
			t.Errorf("%q: hit = %+v, %v", rel, hit, err)
		}
	}
}

func TestRootFSFull(t *testing.T) {
	df := "Filesystem 1024-blocks Used Available Capacity Mounted on\n" +
		"/dev/mapper/rhel-root 100 97 3 97% /\n" +
		"/dev/vda1 100 10 90 10% /boot\n"
	hit, err := rootFSFull(context.Background(), archive(t, map[string]string{"insights_commands/df_-alP": df}))
	if err != nil || hit == nil || hit.Details["use"] != "97%" {
		t.Fatalf("hit = %+v, %v", hit, err)
	}

	_, err = rootFSFull(context.Background(), archive(t, map[string]string{"insights_commands/df_-alP": "fs 1 1 1 lots /\n"}))
	if err == nil {
		t.Fatal("expected a parse error")
	}
}
