package script

import (
	"bytes"
	"path"
	"sort"
	"strings"
	"text/template"
)

const (
	// Marker is emitted by every generated script on exit.
	Marker = "## JOB FINISHED MARKER ##"
	// WorkDir is where dependencies are installed and
	// relative download paths are resolved.
	WorkDir = "/tmp/cbng-core"
	// ReadyFile is touched by scripts without run commands.
	ReadyFile = "/tmp/container_ready"
	// SecretEnvVar carries the file API key into the job.
	SecretEnvVar = "CBNG_TRAINER_FILE_API_KEY"
	// DefaultSecretHeaderPath is used when no header path
	// is set in the Options.
	DefaultSecretHeaderPath = "/tmp/.cbng-trainer-auth"

	releaseURL = "https://github.com/cluebotng/core/releases"
	editSet    = "edits.xml"
)

var (
	coreBinaries = []string{"cluebotng", "create_ann", "create_bayes_db", "print_bayes_db"}
	modelFiles   = []string{"data/bayes.db", "data/two_bayes.db", "data/main_ann.fann"}
)

// Options control which segments a script contains.
type Options struct {
	// ReleaseRef is the cluebotng/core release tag
	// dependencies are fetched from. Empty means latest.
	ReleaseRef string
	// DownloadBinsURL overrides where model files are
	// fetched from.
	DownloadBinsURL string
	// DownloadEditSetURL is fetched to edits.xml.
	DownloadEditSetURL string
	// SkipDependencySetup omits the binary, config and
	// model downloads.
	SkipDependencySetup bool
	// SkipBinarySetup keeps the binary and config
	// downloads but omits the model files.
	SkipBinarySetup bool
	// DownloadFileURLs maps paths to URLs. A nil URL
	// removes a download implied by the other options.
	DownloadFileURLs map[string]*string
	// RunCommands are executed in order. Without any the
	// script idles after setup.
	RunCommands []string
	// ConfigureSecretHeader writes an Authorization header
	// for upload_file from SecretEnvVar.
	ConfigureSecretHeader bool
	SecretHeaderPath      string
}

// URL is a helper for building DownloadFileURLs entries.
func URL(u string) *string {
	return &u
}

type download struct {
	Path string
	URL  string
}

type templateData struct {
	Marker       string
	WorkDir      string
	ReadyFile    string
	SecretEnv    string
	HeaderPath   string
	Dependencies bool
	Binaries     []string
	ReleaseURL   string
	Dirs         []string
	Downloads    []download
	Commands     []string
}

const scriptTemplate = `#!/bin/bash
trap 'echo "{{ .Marker }}"' EXIT
trap 'exit 143' TERM INT
set -xe
{{- if .HeaderPath }}

set +x
install -m 600 /dev/null {{ quote .HeaderPath }}
echo "Authorization: Bearer ${{ .SecretEnv }}" > {{ quote .HeaderPath }}
set -x
{{- end }}

upload_file() {
  local source="$1"
  local target="$2"
  if [ ! -s "$source" ]; then
    echo "Skipping empty upload of $source"
    return 0
  fi
  local status
  status=$(curl -s -o /dev/null -w '%{http_code}'{{ if .HeaderPath }} -H @{{ quote .HeaderPath }}{{ end }} --data-binary @"$source" "$target")
  if [ "$status" != "200" ] && [ "$status" != "201" ]; then
    echo "Failed to upload $source to $target: $status"
    return 1
  fi
}

mkdir -p {{ quote .WorkDir }}
cd {{ quote .WorkDir }}
{{- if .Dependencies }}

for bin in{{ range .Binaries }} {{ . }}{{ end }}; do
  curl --fail -sL --output "{{ .WorkDir }}/$bin" "{{ .ReleaseURL }}/$bin"
  chmod 755 "{{ .WorkDir }}/$bin"
done
curl --fail -sL --output /tmp/conf.tar.gz {{ quote (printf "%s/conf.tar.gz" .ReleaseURL) }}
tar -C {{ quote .WorkDir }} -xf /tmp/conf.tar.gz
sed -i s'/, "train_outputs"//g' {{ quote (printf "%s/conf/cluebotng.conf" .WorkDir) }}
{{- end }}
{{- if .Downloads }}
{{ range .Dirs }}
mkdir -p {{ quote . }}
{{- end }}
{{- range .Downloads }}
curl --fail -sL --output {{ quote .Path }} {{ quote .URL }}
{{- end }}
{{- end }}
{{ if .Commands }}
{{- range .Commands }}
{{ . }}
{{- end }}
{{- else }}
touch {{ quote .ReadyFile }}
sleep infinity
{{- end }}
`

var tmpl = template.Must(template.New("script").
	Funcs(template.FuncMap{"quote": Quote}).
	Parse(scriptTemplate))

// Build renders the bootstrap script for a job.
func Build(opts Options) string {
	data := templateData{
		Marker:       Marker,
		WorkDir:      WorkDir,
		ReadyFile:    ReadyFile,
		SecretEnv:    SecretEnvVar,
		Dependencies: !opts.SkipDependencySetup,
		Binaries:     coreBinaries,
		ReleaseURL:   ReleaseURL(opts.ReleaseRef),
		Commands:     opts.RunCommands,
	}

	if opts.ConfigureSecretHeader {
		data.HeaderPath = opts.SecretHeaderPath
		if data.HeaderPath == "" {
			data.HeaderPath = DefaultSecretHeaderPath
		}
	}

	data.Downloads = downloads(opts)
	data.Dirs = parentDirs(data.Downloads)

	var buf bytes.Buffer
	// executing a parsed template against its own data
	// type can only fail on a broken writer
	_ = tmpl.Execute(&buf, data)
	return buf.String()
}

// ReleaseURL returns the base URL release assets for a
// ref are downloaded from.
func ReleaseURL(ref string) string {
	if ref == "" {
		return releaseURL + "/latest/download"
	}
	return releaseURL + "/download/" + ref
}

func downloads(opts Options) []download {
	files := map[string]string{}

	if !opts.SkipDependencySetup && !opts.SkipBinarySetup {
		base := strings.TrimSuffix(opts.DownloadBinsURL, "/")
		if base == "" {
			base = ReleaseURL(opts.ReleaseRef)
		}
		for _, f := range modelFiles {
			files[f] = base + "/" + path.Base(f)
		}
	}

	if opts.DownloadEditSetURL != "" {
		files[editSet] = opts.DownloadEditSetURL
	}

	for p, u := range opts.DownloadFileURLs {
		if u == nil {
			delete(files, p)
			continue
		}
		files[p] = *u
	}

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	result := make([]download, 0, len(paths))
	for _, p := range paths {
		result = append(result, download{Path: p, URL: files[p]})
	}
	return result
}

func parentDirs(files []download) []string {
	seen := map[string]struct{}{}
	var dirs []string

	for _, f := range files {
		dir := path.Dir(f.Path)
		if dir == "." || dir == "/" {
			continue
		}
		if _, ok := seen[dir]; ok {
			continue
		}
		seen[dir] = struct{}{}
		dirs = append(dirs, dir)
	}

	sort.Strings(dirs)
	return dirs
}

// Quote single quotes s for bash.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}
