package recorder

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// TakeInfo describes a saved take for listing
type TakeInfo struct {
	ID         uuid.UUID
	Filename   string
	Title      string
	StartedAt  time.Time
	EventCount int
}

// TakesDir returns the takes directory path
func TakesDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "go-scribe", "takes"), nil
}

// SaveTake writes res to dir as <session id>.json and returns the path
func SaveTake(dir string, res Result) (string, error) {
	if res.SessionID == uuid.Nil {
		return "", errors.New("take has no session id")
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}

	data, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return "", err
	}

	path := filepath.Join(dir, res.SessionID.String()+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", err
	}
	return path, nil
}

// LoadTake reads a take by session id, id prefix or file path
func LoadTake(dir, ref string) (Result, error) {
	path := ref
	if !strings.HasSuffix(ref, ".json") {
		takes, err := ListTakes(dir)
		if err != nil {
			return Result{}, err
		}
		path = ""
		for _, t := range takes {
			if strings.HasPrefix(t.ID.String(), ref) {
				if path != "" {
					return Result{}, errors.Errorf("take id %q is ambiguous", ref)
				}
				path = filepath.Join(dir, t.Filename)
			}
		}
		if path == "" {
			return Result{}, errors.Errorf("no take %q in %s", ref, dir)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, err
	}
	var res Result
	if err := json.Unmarshal(data, &res); err != nil {
		return Result{}, errors.Wrapf(err, "parse %s", path)
	}
	return res, nil
}

// LatestTake loads the most recent take in dir
func LatestTake(dir string) (Result, error) {
	takes, err := ListTakes(dir)
	if err != nil {
		return Result{}, err
	}
	if len(takes) == 0 {
		return Result{}, errors.Errorf("no takes found in %s", dir)
	}
	return LoadTake(dir, filepath.Join(dir, takes[0].Filename))
}

// ListTakes returns saved takes, newest first
func ListTakes(dir string) ([]TakeInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []TakeInfo{}, nil
		}
		return nil, err
	}

	var takes []TakeInfo
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id, err := uuid.Parse(strings.TrimSuffix(name, ".json"))
		if err != nil {
			continue
		}

		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			continue
		}
		var res Result
		if err := json.Unmarshal(data, &res); err != nil {
			continue
		}
		takes = append(takes, TakeInfo{
			ID:         id,
			Filename:   name,
			Title:      res.Params.Title,
			StartedAt:  res.StartedAt,
			EventCount: res.Count,
		})
	}

	sort.Slice(takes, func(i, j int) bool {
		return takes[i].StartedAt.After(takes[j].StartedAt)
	})
	return takes, nil
}
