package config

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

const holmesPack = `---
id: baker-street
character: Sherlock Holmes
title: A Study in Scarlet
setting: London, 1881
traits:
  deduction: 0.9
speech_style: clipped
cast:
  - name: Watson
  - name: Lestrade
    role: NPC
---

Consulting detective of Baker Street.
`

func TestParsePack(t *testing.T) {
	t.Run("full pack", func(t *testing.T) {
		pack, err := ParsePack([]byte(holmesPack))
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if pack.ID != "baker-street" || pack.Character != "Sherlock Holmes" {
			t.Fatalf("unexpected identity: %+v", pack)
		}
		if pack.Backstory != "Consulting detective of Baker Street." {
			t.Fatalf("expected body as backstory, got %q", pack.Backstory)
		}
		if pack.Cast[0].Role != "supporting" || pack.Cast[1].Role != "npc" {
			t.Fatalf("unexpected cast roles: %+v", pack.Cast)
		}
		if !reflect.DeepEqual(pack.Roster(), []string{"Sherlock Holmes", "Watson", "Lestrade"}) {
			t.Fatalf("unexpected roster: %v", pack.Roster())
		}
		meta := pack.Metadata()
		if meta["speech_style"] != "clipped" || meta["setting"] != "London, 1881" || meta["pack_id"] != "baker-street" {
			t.Fatalf("unexpected metadata: %v", meta)
		}
		if _, ok := meta["worldview"]; ok {
			t.Fatalf("empty fields must be left out: %v", meta)
		}
	})

	t.Run("crlf line endings", func(t *testing.T) {
		content := []byte("---\r\ncharacter: Irene Adler\r\n---\r\nSinger.\r\n")
		pack, err := ParsePack(content)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if pack.Character != "Irene Adler" {
			t.Fatalf("unexpected character %q", pack.Character)
		}
	})

	t.Run("no frontmatter", func(t *testing.T) {
		_, err := ParsePack([]byte("Just text"))
		if !errors.Is(err, ErrNoFrontmatter) {
			t.Fatalf("expected ErrNoFrontmatter, got %v", err)
		}
	})

	t.Run("missing closing marker", func(t *testing.T) {
		_, err := ParsePack([]byte("---\ncharacter: Holmes\n"))
		if !errors.Is(err, ErrNoFrontmatter) {
			t.Fatalf("expected ErrNoFrontmatter, got %v", err)
		}
	})

	t.Run("invalid yaml", func(t *testing.T) {
		_, err := ParsePack([]byte("---\ncharacter: [\n---\n"))
		if !errors.Is(err, ErrInvalidYAML) {
			t.Fatalf("expected ErrInvalidYAML, got %v", err)
		}
	})

	t.Run("missing character", func(t *testing.T) {
		_, err := ParsePack([]byte("---\nid: nobody\n---\n"))
		if !errors.Is(err, ErrMissingCharacter) {
			t.Fatalf("expected ErrMissingCharacter, got %v", err)
		}
	})

	t.Run("cast duplicates player", func(t *testing.T) {
		_, err := ParsePack([]byte("---\ncharacter: Holmes\ncast:\n  - name: holmes\n---\n"))
		if err == nil {
			t.Fatalf("expected error")
		}
	})

	t.Run("cast cannot be player", func(t *testing.T) {
		_, err := ParsePack([]byte("---\ncharacter: Holmes\ncast:\n  - name: Watson\n    role: player\n---\n"))
		if err == nil {
			t.Fatalf("expected error")
		}
	})
}

func TestLoadPacks(t *testing.T) {
	dir := t.TempDir()
	writePack(t, dir, "holmes.md", holmesPack)
	writePack(t, dir, "adler.md", "---\ncharacter: Irene Adler\n---\n")
	writePack(t, dir, "notes.md", "no frontmatter here")
	writePack(t, dir, "broken.md", "---\nid: broken\n---\n")
	writePack(t, dir, "dupe/other.md", "---\nid: baker-street\ncharacter: Mycroft\n---\n")
	writePack(t, dir, ".drafts/hidden.md", "---\ncharacter: Moran\n---\n")
	writePack(t, dir, "readme.txt", "---\ncharacter: Nobody\n---\n")

	packs, errs, err := LoadPacks(dir)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	var ids []string
	for _, p := range packs {
		ids = append(ids, p.ID)
	}
	if !reflect.DeepEqual(ids, []string{"adler", "baker-street"}) {
		t.Fatalf("unexpected packs: %v", ids)
	}
	if len(errs) != 2 {
		t.Fatalf("expected broken and duplicate pack errors, got %v", errs)
	}

	pack, err := FindPack(dir, "adler")
	if err != nil {
		t.Fatalf("find pack: %v", err)
	}
	if pack.SourceFile != filepath.Join(dir, "adler.md") {
		t.Fatalf("unexpected source file %q", pack.SourceFile)
	}
	if _, err := FindPack(dir, "moran"); err == nil {
		t.Fatalf("expected missing pack error")
	}

	if _, _, err := LoadPacks(filepath.Join(dir, "missing")); err == nil {
		t.Fatalf("expected error for missing directory")
	}
}

func writePack(t *testing.T, dir, name, contents string) {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("creating %s: %v", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, []byte(contents), 0o600); err != nil {
		t.Fatalf("writing %s: %v", path, err)
	}
}
