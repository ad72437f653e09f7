// Package seed provisions the initial topic set on first run. Topics come
// from a YAML file when one exists, otherwise from a built-in default set.
package seed

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/sekretar-core/internal/core/domain"
)

type topicSpec struct {
	ID           string `yaml:"id"`
	Title        string `yaml:"title"`
	Description  string `yaml:"description"`
	FormatPolicy string `yaml:"format_policy"`
	Active       *bool  `yaml:"active"`
}

type seedFile struct {
	Topics []topicSpec `yaml:"topics"`
}

// DefaultTopics is the out-of-the-box topic set for a fresh install.
func DefaultTopics() []domain.TopicCandidate {
	return []domain.TopicCandidate{
		{ID: "ideas", Title: "Ideas", Description: "Thoughts and ideas worth keeping", FormatPolicy: "Short title, body as a single idea statement.", Active: true},
		{ID: "shopping", Title: "Shopping", Description: "Things to buy", FormatPolicy: "Bullet list of items.", Active: true},
		{ID: "books", Title: "Books", Description: "Books to read or notes about books", FormatPolicy: "Title and author first, then the note.", Active: true},
		{ID: "goals", Title: "Goals", Description: "Personal goals and plans", FormatPolicy: "State as a measurable goal.", Active: true},
	}
}

// LoadTopics parses the seed file at path. A missing file falls back to
// the defaults; a malformed one is an error.
func LoadTopics(path string) ([]domain.TopicCandidate, error) {
	if path == "" {
		return DefaultTopics(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultTopics(), nil
		}
		return nil, fmt.Errorf("read topic seed file: %w", err)
	}

	var file seedFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse topic seed file: %w", err)
	}
	if len(file.Topics) == 0 {
		return nil, fmt.Errorf("topic seed file %s lists no topics", path)
	}

	out := make([]domain.TopicCandidate, 0, len(file.Topics))
	for idx, spec := range file.Topics {
		if spec.ID == "" || spec.Title == "" {
			return nil, fmt.Errorf("topic seed entry %d missing id or title", idx)
		}
		active := true
		if spec.Active != nil {
			active = *spec.Active
		}
		out = append(out, domain.TopicCandidate{
			ID:           spec.ID,
			Title:        spec.Title,
			Description:  spec.Description,
			FormatPolicy: spec.FormatPolicy,
			Active:       active,
		})
	}
	return out, nil
}

type topicSeeder interface {
	Count(ctx context.Context) (int, error)
	SeedTopics(ctx context.Context, topics []domain.TopicCandidate) error
}

// EnsureTopics seeds the topic table when it is empty. An already
// provisioned install is left untouched.
func EnsureTopics(ctx context.Context, repo topicSeeder, path string) (bool, error) {
	count, err := repo.Count(ctx)
	if err != nil {
		return false, fmt.Errorf("count existing topics: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	topics, err := LoadTopics(path)
	if err != nil {
		return false, err
	}
	if err := repo.SeedTopics(ctx, topics); err != nil {
		return false, fmt.Errorf("seed topics: %w", err)
	}
	return true, nil
}
