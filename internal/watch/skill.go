package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Skill is the metadata a SKILL.md file declares, minus the bundled
// marketplace/ecosystem features the teacher's internal/skills carried
// (this package only needs enough to drive invoked_skills and to know
// which files invalidate the cache, not a whole skill package manager).
type Skill struct {
	Name        string
	Description string
	Body        string
	Path        string // directory containing SKILL.md
}

// loadSkillMD parses a SKILL.md file: YAML frontmatter between "---" lines,
// followed by a Markdown body.
func loadSkillMD(path string) (Skill, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Skill{}, err
	}
	content := string(data)

	var front struct {
		Name        string `yaml:"name"`
		Description string `yaml:"description"`
	}
	body := content
	if strings.HasPrefix(content, "---\n") {
		rest := content[4:]
		if end := strings.Index(rest, "\n---"); end >= 0 {
			frontMatter := rest[:end]
			if err := yaml.Unmarshal([]byte(frontMatter), &front); err != nil {
				return Skill{}, fmt.Errorf("parse SKILL.md frontmatter: %w", err)
			}
			afterMarker := rest[end+4:]
			body = strings.TrimPrefix(afterMarker, "\n")
		}
	}

	if front.Name == "" {
		front.Name = filepath.Base(filepath.Dir(path))
	}

	return Skill{
		Name:        front.Name,
		Description: front.Description,
		Body:        strings.TrimSpace(body),
		Path:        filepath.Dir(path),
	}, nil
}

// scanSkillsDir walks root for SKILL.md files one level below root
// (root/<skill-name>/SKILL.md), matching the teacher's directory-per-skill
// convention.
func scanSkillsDir(root string) ([]Skill, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var skills []Skill
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		skillMD := filepath.Join(root, entry.Name(), "SKILL.md")
		if _, err := os.Stat(skillMD); err != nil {
			continue
		}
		skill, err := loadSkillMD(skillMD)
		if err != nil {
			continue
		}
		skills = append(skills, skill)
	}
	return skills, nil
}
