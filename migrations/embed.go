// Package migrations holds the schema of both stores. Files are applied in name order.
package migrations

import (
	"embed"
	"io/fs"
	"sort"
)

//go:embed mysql/*.sql clickhouse/*.sql
var files embed.FS

// MySQL returns the transactional schema files in apply order.
func MySQL() ([]File, error) { return list("mysql") }

// ClickHouse returns the audit projection schema files in apply order.
func ClickHouse() ([]File, error) { return list("clickhouse") }

type File struct {
	Name string
	SQL  string
}

func list(dir string) ([]File, error) {
	entries, err := fs.ReadDir(files, dir)
	if err != nil {
		return nil, err
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	out := make([]File, 0, len(entries))
	for _, e := range entries {
		b, err := fs.ReadFile(files, dir+"/"+e.Name())
		if err != nil {
			return nil, err
		}
		out = append(out, File{Name: e.Name(), SQL: string(b)})
	}
	return out, nil
}
