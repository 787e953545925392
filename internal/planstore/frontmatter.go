package planstore

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// FrontMatter is the small TOML header a plan document may carry above its
// markdown body — provider/model attribution and free-form tags the
// refine-job worker can use to route a follow-up without re-parsing the
// whole plan body.
type FrontMatter struct {
	Provider string   `toml:"provider"`
	Model    string   `toml:"model"`
	Step     string   `toml:"step"`
	Tags     []string `toml:"tags"`
}

const frontMatterDelim = "+++"

// SplitFrontMatter separates a leading "+++\n...\n+++\n" TOML block from the
// markdown body that follows. If doc has no front-matter delimiter, it
// returns a zero FrontMatter and doc unchanged as the body.
func SplitFrontMatter(doc string) (FrontMatter, string, error) {
	trimmed := strings.TrimLeft(doc, "\n")
	if !strings.HasPrefix(trimmed, frontMatterDelim) {
		return FrontMatter{}, doc, nil
	}

	rest := trimmed[len(frontMatterDelim):]
	end := strings.Index(rest, frontMatterDelim)
	if end == -1 {
		return FrontMatter{}, "", fmt.Errorf("planstore: unterminated front-matter block")
	}

	block := strings.TrimSpace(rest[:end])
	body := strings.TrimLeft(rest[end+len(frontMatterDelim):], "\n")

	var fm FrontMatter
	if _, err := toml.Decode(block, &fm); err != nil {
		return FrontMatter{}, "", fmt.Errorf("planstore: decode front-matter: %w", err)
	}
	return fm, body, nil
}

// JoinFrontMatter renders fm as a "+++" TOML block followed by body,
// suitable for PlanRevision.Content.
func JoinFrontMatter(fm FrontMatter, body string) (string, error) {
	var sb strings.Builder
	sb.WriteString(frontMatterDelim)
	sb.WriteByte('\n')
	enc := toml.NewEncoder(&sb)
	if err := enc.Encode(fm); err != nil {
		return "", fmt.Errorf("planstore: encode front-matter: %w", err)
	}
	sb.WriteString(frontMatterDelim)
	sb.WriteByte('\n')
	sb.WriteString(body)
	return sb.String(), nil
}
