// Package github reads schema description files from a GitHub repository directory.
package github

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/google/go-github/v81/github"

	"github.com/bull/text2sql-server/internal/schema"
)

// Location is a directory inside a repository.
type Location struct {
	Owner    string
	Repo     string
	BasePath string
}

// ParseLocation parses "owner/repo[/path/to/dir]".
func ParseLocation(s string) (Location, error) {
	parts := strings.SplitN(strings.Trim(s, "/"), "/", 3)
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return Location{}, fmt.Errorf("invalid GitHub location %q, expected owner/repo[/path]", s)
	}
	loc := Location{Owner: parts[0], Repo: parts[1]}
	if len(parts) == 3 {
		loc.BasePath = parts[2]
	}
	return loc, nil
}

func (l Location) String() string {
	return path.Join(l.Owner, l.Repo, l.BasePath)
}

// Fetcher lists and downloads schema files below a repository directory.
type Fetcher struct {
	client *Client
	loc    Location
}

// NewFetcher creates a schema fetcher for loc.
func NewFetcher(client *Client, loc Location) *Fetcher {
	return &Fetcher{
		client: client,
		loc:    loc,
	}
}

// Location returns the directory this fetcher reads from.
func (f *Fetcher) Location() Location {
	return f.loc
}

// ListSchemas recursively lists the .json, .yaml and .yml files, relative to the base path.
func (f *Fetcher) ListSchemas(ctx context.Context) ([]string, error) {
	return f.listRecursive(ctx, f.loc.BasePath, "")
}

func (f *Fetcher) listRecursive(ctx context.Context, fullPath, relativePath string) ([]string, error) {
	var files []string

	_, dirContents, _, err := f.client.Repositories.GetContents(ctx, f.loc.Owner, f.loc.Repo, fullPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get contents of %s: %w", fullPath, err)
	}

	for _, item := range dirContents {
		name := item.GetName()
		if name == "" {
			continue
		}
		itemRelPath := path.Join(relativePath, name)

		switch item.GetType() {
		case "file":
			if schema.SupportedExt(path.Ext(name)) {
				files = append(files, itemRelPath)
			}
		case "dir":
			sub, err := f.listRecursive(ctx, path.Join(fullPath, name), itemRelPath)
			if err != nil {
				return nil, err
			}
			files = append(files, sub...)
		}
	}

	return files, nil
}

// FetchFile returns the decoded content of a file relative to the base path.
func (f *Fetcher) FetchFile(ctx context.Context, relativePath string) ([]byte, error) {
	fullPath := path.Join(f.loc.BasePath, relativePath)

	fileContent, _, _, err := f.client.Repositories.GetContents(ctx, f.loc.Owner, f.loc.Repo, fullPath, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get content of %s: %w", fullPath, err)
	}
	if fileContent == nil {
		return nil, fmt.Errorf("no file content returned for %s", fullPath)
	}

	content, err := fileContent.GetContent()
	if err != nil {
		return nil, fmt.Errorf("failed to decode content of %s: %w", fullPath, err)
	}
	return []byte(content), nil
}

// FetchSchema downloads and parses one schema file.
func (f *Fetcher) FetchSchema(ctx context.Context, relativePath string) (*schema.Database, error) {
	data, err := f.FetchFile(ctx, relativePath)
	if err != nil {
		return nil, err
	}
	db, err := schema.Parse(data, path.Ext(relativePath))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", relativePath, err)
	}
	return db, nil
}

// GetLatestCommitSHA retrieves the SHA of the most recent commit touching the base path.
func (f *Fetcher) GetLatestCommitSHA(ctx context.Context) (string, error) {
	commits, _, err := f.client.Repositories.ListCommits(ctx, f.loc.Owner, f.loc.Repo, &github.CommitsListOptions{
		Path:        f.loc.BasePath,
		ListOptions: github.ListOptions{PerPage: 1},
	})
	if err != nil {
		return "", fmt.Errorf("failed to get latest commit: %w", err)
	}

	if len(commits) == 0 {
		return "", fmt.Errorf("no commits found for path %s", f.loc.BasePath)
	}
	if commits[0].SHA == nil {
		return "", fmt.Errorf("commit SHA is nil")
	}

	return commits[0].GetSHA(), nil
}
