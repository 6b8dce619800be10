package conversation

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// FilePersister stores each conversation as an indented JSON file named after
// its id, giving external collaborators (device sync, export) a read-only
// on-disk shape of the Conversation/Message data.
type FilePersister struct {
	dir string
}

func NewFilePersister(dir string) (*FilePersister, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrapf(err, "could not create history directory %s", dir)
	}
	return &FilePersister{dir: dir}, nil
}

func (p *FilePersister) path(c *Conversation) string {
	return filepath.Join(p.dir, c.ID.String()+".json")
}

func (p *FilePersister) Insert(c *Conversation) error {
	return p.Save(c)
}

func (p *FilePersister) Save(c *Conversation) error {
	f, err := os.Create(p.path(c))
	if err != nil {
		return err
	}

	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	return encoder.Encode(c)
}

func (p *FilePersister) Delete(c *Conversation) error {
	err := os.Remove(p.path(c))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Load reads every conversation file back from disk, skipping files that do
// not parse (a half-written file from a crashed session should not take the
// whole history down).
func (p *FilePersister) Load() ([]*Conversation, error) {
	entries, err := os.ReadDir(p.dir)
	if err != nil {
		return nil, errors.Wrapf(err, "could not read history directory %s", p.dir)
	}

	ret := []*Conversation{}
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}
		b, err := os.ReadFile(filepath.Join(p.dir, entry.Name()))
		if err != nil {
			continue
		}
		c := &Conversation{}
		if err := json.Unmarshal(b, c); err != nil {
			continue
		}
		ret = append(ret, c)
	}

	return ret, nil
}

var _ Persister = (*FilePersister)(nil)
