package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Pack is a playable character pack: a markdown file whose frontmatter
// describes the player character and cast and whose body is the backstory.
type Pack struct {
	ID          string         `yaml:"id" json:"id"`
	Character   string         `yaml:"character" json:"character"`
	Title       string         `yaml:"title" json:"title,omitempty"`
	Setting     string         `yaml:"setting" json:"setting,omitempty"`
	Traits      map[string]any `yaml:"traits" json:"traits,omitempty"`
	Worldview   string         `yaml:"worldview" json:"worldview,omitempty"`
	SpeechStyle string         `yaml:"speech_style" json:"speech_style,omitempty"`
	Difficulty  string         `yaml:"difficulty" json:"difficulty,omitempty"`
	Cast        []CastMember   `yaml:"cast" json:"cast,omitempty"`
	Backstory   string         `yaml:"-" json:"backstory,omitempty"`
	SourceFile  string         `yaml:"-" json:"-"`
}

type CastMember struct {
	Name   string         `yaml:"name" json:"name"`
	Role   string         `yaml:"role" json:"role,omitempty"`
	Traits map[string]any `yaml:"traits" json:"traits,omitempty"`
}

var (
	ErrNoFrontmatter    = errors.New("no frontmatter found")
	ErrInvalidYAML      = errors.New("invalid YAML in frontmatter")
	ErrMissingCharacter = errors.New("frontmatter missing required 'character' field")
)

func ParsePackFile(path string) (*Pack, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	pack, err := ParsePack(data)
	if err != nil {
		return nil, err
	}
	pack.SourceFile = path
	if pack.ID == "" {
		pack.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	return pack, nil
}

func ParsePack(content []byte) (*Pack, error) {
	trimmed := bytes.TrimLeft(content, "\ufeff\n\r\t ")
	trimmed = bytes.ReplaceAll(trimmed, []byte("\r\n"), []byte("\n"))
	if !bytes.HasPrefix(trimmed, []byte("---\n")) {
		return nil, ErrNoFrontmatter
	}

	rest := trimmed[len("---\n"):]
	end := bytes.Index(rest, []byte("---\n"))
	if end == -1 {
		return nil, ErrNoFrontmatter
	}

	var pack Pack
	if err := yaml.Unmarshal(rest[:end], &pack); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidYAML, err)
	}
	pack.Backstory = strings.TrimSpace(string(rest[end+len("---\n"):]))
	pack.ID = strings.TrimSpace(pack.ID)
	pack.Character = strings.TrimSpace(pack.Character)
	if pack.Character == "" {
		return nil, ErrMissingCharacter
	}

	if err := ValidateCast(&pack); err != nil {
		return nil, err
	}
	return &pack, nil
}

// ValidateCast trims cast names, defaults roles and rejects duplicates,
// the player included.
func ValidateCast(pack *Pack) error {
	seen := map[string]struct{}{strings.ToLower(pack.Character): {}}
	for i := range pack.Cast {
		member := &pack.Cast[i]
		member.Name = strings.TrimSpace(member.Name)
		if member.Name == "" {
			return fmt.Errorf("cast member %d name is required", i)
		}
		key := strings.ToLower(member.Name)
		if _, exists := seen[key]; exists {
			return fmt.Errorf("duplicate cast name: %s", member.Name)
		}
		seen[key] = struct{}{}

		member.Role = strings.ToLower(strings.TrimSpace(member.Role))
		switch member.Role {
		case "":
			member.Role = "supporting"
		case "supporting", "npc":
		default:
			return fmt.Errorf("cast member %s has unsupported role %q", member.Name, member.Role)
		}
	}
	return nil
}

// Roster lists every named character in the pack, player first.
func (p *Pack) Roster() []string {
	names := []string{p.Character}
	for _, m := range p.Cast {
		names = append(names, m.Name)
	}
	return names
}

// Metadata is the session metadata a pack seeds.
func (p *Pack) Metadata() map[string]any {
	meta := map[string]any{"pack_id": p.ID}
	set := func(key, value string) {
		if value != "" {
			meta[key] = value
		}
	}
	set("setting", p.Setting)
	set("worldview", p.Worldview)
	set("speech_style", p.SpeechStyle)
	set("difficulty", p.Difficulty)
	set("backstory", p.Backstory)
	if len(p.Traits) > 0 {
		meta["traits"] = p.Traits
	}
	return meta
}

// LoadPacks parses every markdown pack under dir. Files without
// frontmatter are skipped; other failures are collected and the walk goes on.
func LoadPacks(dir string) ([]*Pack, []error, error) {
	files, err := walkMarkdownFiles(dir)
	if err != nil {
		return nil, nil, fmt.Errorf("walking packs in %s: %w", dir, err)
	}

	var (
		packs []*Pack
		errs  []error
	)
	seen := make(map[string]string)
	for _, path := range files {
		pack, err := ParsePackFile(path)
		if err != nil {
			if errors.Is(err, ErrNoFrontmatter) {
				continue
			}
			errs = append(errs, fmt.Errorf("parsing %s: %w", path, err))
			continue
		}
		if prev, ok := seen[pack.ID]; ok {
			errs = append(errs, fmt.Errorf("duplicate pack id %q in %s and %s", pack.ID, prev, path))
			continue
		}
		seen[pack.ID] = path
		packs = append(packs, pack)
	}

	sort.Slice(packs, func(i, j int) bool { return packs[i].ID < packs[j].ID })
	return packs, errs, nil
}

// FindPack loads dir and returns the pack with the given id.
func FindPack(dir, id string) (*Pack, error) {
	packs, _, err := LoadPacks(dir)
	if err != nil {
		return nil, err
	}
	for _, p := range packs {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, fmt.Errorf("pack %q not found in %s", id, dir)
}

func walkMarkdownFiles(root string) ([]string, error) {
	var files []string
	if root == "" {
		return files, nil
	}
	root = filepath.Clean(root)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(strings.ToLower(d.Name()), ".md") {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}
