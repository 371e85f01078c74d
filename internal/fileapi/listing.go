package fileapi

import (
	"bytes"
	"html/template"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/labstack/echo/v4"
)

const (
	typeDirectory = "Directory"
	typeFile      = "File"
)

var listingTemplate = template.Must(template.New("listing").Parse(`<!DOCTYPE html>
<html>
    <head>
        <meta charset="utf-8">
        <title>Index of {{ .Current }}</title>
    </head>
    <body>
        <h2>Index of {{ .Current }}</h2>
        <table width="100%" style="text-align: center">
            <thead>
                <tr>
                    <th>Name</th>
                    <th>Last Modified</th>
                    <th>Size</th>
                    <th>Type</th>
                </tr>
            </thead>
            <tbody>
            {{- if .Parent }}
            <tr>
                <td><a href="{{ .Parent }}">../</a></td>
                <td></td>
                <td></td>
                <td>Directory</td>
            </tr>
            {{- end }}
            {{- range .Entries }}
            <tr>
                <td><a href="{{ .URL }}">{{ .Name }}</a></td>
                <td>{{ .Modified.Format "2006-01-02 15:04:05" }}</td>
                <td>{{ .Size }}</td>
                <td>{{ .Type }}</td>
            </tr>
            {{- end }}
            </tbody>
        </table>
    </body>
</html>
`))

type entry struct {
	Name     string
	URL      string
	Modified time.Time
	Size     int64
	Type     string
}

type listingData struct {
	Current string
	Parent  string
	Entries []entry
}

// listing renders the directory at dir. With ?glob= the
// matching paths below dir are listed instead of its children.
func (s *server) listing(c echo.Context, dir string) error {
	rel, _ := filepath.Rel(s.base, dir)
	rel = filepath.ToSlash(rel)

	data := listingData{Current: "/"}
	if rel != "." {
		data.Current = "/" + rel + "/"
		data.Parent = "/"
		if parent := path.Dir(rel); parent != "." {
			data.Parent = "/" + parent + "/"
		}
	}

	names, err := s.entries(dir, c.QueryParam("glob"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	for _, name := range names {
		info, err := os.Lstat(filepath.Join(dir, filepath.FromSlash(name)))
		if err != nil {
			continue
		}

		e := entry{
			Name:     name,
			URL:      path.Join("/", rel, name),
			Modified: info.ModTime(),
			Size:     info.Size(),
			Type:     typeFile,
		}
		switch {
		case info.IsDir():
			e.Type = typeDirectory
			e.URL += "/"
		case !info.Mode().IsRegular():
			continue
		}
		data.Entries = append(data.Entries, e)
	}

	sort.Slice(data.Entries, func(i, j int) bool {
		a, b := data.Entries[i], data.Entries[j]
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.Name < b.Name
	})

	var buf bytes.Buffer
	if err := listingTemplate.Execute(&buf, data); err != nil {
		return err
	}
	return c.HTMLBlob(http.StatusOK, buf.Bytes())
}

func (s *server) entries(dir, pattern string) ([]string, error) {
	if pattern == "" {
		children, err := os.ReadDir(dir)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(children))
		for _, child := range children {
			names = append(names, child.Name())
		}
		return names, nil
	}

	if !doublestar.ValidatePattern(pattern) {
		return nil, doublestar.ErrBadPattern
	}
	return doublestar.Glob(os.DirFS(dir), pattern, doublestar.WithFilesOnly())
}
