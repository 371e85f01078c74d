package script

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func lines(s string) []string {
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}

func indexOf(t *testing.T, all []string, prefix string) int {
	t.Helper()
	for i, l := range all {
		if strings.HasPrefix(l, prefix) {
			return i
		}
	}
	t.Fatalf("no line starting with %q", prefix)
	return -1
}

func lastIndex(all []string, line string) int {
	idx := -1
	for i, l := range all {
		if l == line {
			idx = i
		}
	}
	return idx
}

func TestBuildMarkerTrapFirst(t *testing.T) {
	out := lines(Build(Options{RunCommands: []string{"false"}}))

	assert.Equal(t, "#!/bin/bash", out[0])
	assert.Equal(t, `trap 'echo "`+Marker+`"' EXIT`, out[1])
	assert.Less(t, indexOf(t, out, "trap 'echo"), indexOf(t, out, "set -xe"))
	assert.Less(t, indexOf(t, out, "trap 'echo"), indexOf(t, out, "curl"))
}

func TestBuildDefaultDownloads(t *testing.T) {
	script := Build(Options{
		ReleaseRef:         "v1.2.3",
		DownloadEditSetURL: "https://files/edits.xml",
		RunCommands:        []string{"./cluebotng -c conf -m trial_run -f edits.xml"},
	})

	assert.Contains(t, script, "for bin in cluebotng create_ann create_bayes_db print_bayes_db; do")
	assert.Contains(t, script, "https://github.com/cluebotng/core/releases/download/v1.2.3/conf.tar.gz")
	assert.Contains(t, script, `sed -i s'/, "train_outputs"//g'`)
	assert.Contains(t, script, "curl --fail -sL --output 'data/bayes.db' 'https://github.com/cluebotng/core/releases/download/v1.2.3/bayes.db'")
	assert.Contains(t, script, "curl --fail -sL --output 'data/two_bayes.db'")
	assert.Contains(t, script, "curl --fail -sL --output 'data/main_ann.fann'")
	assert.Contains(t, script, "curl --fail -sL --output 'edits.xml' 'https://files/edits.xml'")
	assert.Equal(t, 1, strings.Count(script, "mkdir -p 'data'"))
	assert.True(t, strings.HasSuffix(script, "./cluebotng -c conf -m trial_run -f edits.xml\n"))
}

func TestBuildLatestRelease(t *testing.T) {
	assert.Contains(t, Build(Options{}), "https://github.com/cluebotng/core/releases/latest/download/conf.tar.gz")
}

func TestBuildDownloadBinsURL(t *testing.T) {
	script := Build(Options{DownloadBinsURL: "https://files/target/instance/bins/"})
	assert.Contains(t, script, "'data/bayes.db' 'https://files/target/instance/bins/bayes.db'")
}

func TestBuildSkipBinarySetup(t *testing.T) {
	script := Build(Options{
		SkipBinarySetup: true,
		DownloadFileURLs: map[string]*string{
			"data/main_bayes_train.dat": URL("https://files/main_bayes_train.dat"),
		},
		RunCommands: []string{"true"},
	})

	assert.Contains(t, script, "for bin in")
	assert.NotContains(t, script, "data/bayes.db")
	assert.Contains(t, script, "'data/main_bayes_train.dat' 'https://files/main_bayes_train.dat'")
}

func TestBuildSkipDependencySetup(t *testing.T) {
	script := Build(Options{SkipDependencySetup: true, RunCommands: []string{"true"}})

	assert.NotContains(t, script, "for bin in")
	assert.NotContains(t, script, "conf.tar.gz")
	assert.NotContains(t, script, "curl --fail")
}

func TestBuildNullSubtractsImpliedDownload(t *testing.T) {
	script := Build(Options{
		DownloadFileURLs: map[string]*string{
			"data/two_bayes.db": nil,
			"data/unknown.db":   nil,
		},
	})

	assert.Contains(t, script, "'data/bayes.db'")
	assert.NotContains(t, script, "two_bayes.db")
	assert.NotContains(t, script, "unknown.db")
}

func TestBuildOverrideReplacesImpliedDownload(t *testing.T) {
	script := Build(Options{
		DownloadFileURLs: map[string]*string{
			"data/bayes.db": URL("https://files/custom.db"),
		},
	})

	assert.Contains(t, script, "'data/bayes.db' 'https://files/custom.db'")
	assert.Equal(t, 1, strings.Count(script, "--output 'data/bayes.db'"))
}

func TestBuildMkdirPerParent(t *testing.T) {
	script := Build(Options{
		SkipDependencySetup: true,
		DownloadFileURLs: map[string]*string{
			"trialreport/thresholdtable.txt": URL("https://f/1"),
			"trialreport/report.txt":         URL("https://f/2"),
			"data/a.dat":                     URL("https://f/3"),
			"data/b.dat":                     URL("https://f/4"),
			"top.txt":                        URL("https://f/5"),
		},
		RunCommands: []string{"true"},
	})

	out := lines(script)
	var mkdirs []string
	for _, l := range out {
		if strings.HasPrefix(l, "mkdir -p") && l != "mkdir -p '"+WorkDir+"'" {
			mkdirs = append(mkdirs, l)
		}
	}

	assert.Equal(t, []string{"mkdir -p 'data'", "mkdir -p 'trialreport'"}, mkdirs)
	assert.Less(t, indexOf(t, out, "mkdir -p 'trialreport'"), indexOf(t, out, "curl --fail -sL --output 'trialreport/report.txt'"))
}

func TestBuildIdle(t *testing.T) {
	out := lines(Build(Options{SkipDependencySetup: true}))

	assert.Equal(t, "touch '"+ReadyFile+"'", out[len(out)-2])
	assert.Equal(t, "sleep infinity", out[len(out)-1])
}

func TestBuildSecretHeader(t *testing.T) {
	script := Build(Options{ConfigureSecretHeader: true, SecretHeaderPath: "/tmp/abc", RunCommands: []string{"true"}})
	out := lines(script)

	assert.Contains(t, script, `echo "Authorization: Bearer $CBNG_TRAINER_FILE_API_KEY" > '/tmp/abc'`)
	assert.Contains(t, script, "-H @'/tmp/abc'")
	assert.Less(t, indexOf(t, out, "set +x"), indexOf(t, out, `echo "Authorization`))
	assert.Less(t, indexOf(t, out, `echo "Authorization`), lastIndex(out, "set -x"))

	assert.Contains(t, Build(Options{ConfigureSecretHeader: true}), DefaultSecretHeaderPath)
}

func TestBuildNoSecretHeader(t *testing.T) {
	script := Build(Options{RunCommands: []string{"true"}})
	assert.NotContains(t, script, "Authorization")
	assert.NotContains(t, script, "-H @")
}

func TestBuildDeterministic(t *testing.T) {
	opts := Options{
		DownloadFileURLs: map[string]*string{
			"a/1": URL("u1"), "b/2": URL("u2"), "c/3": URL("u3"), "d/4": URL("u4"),
		},
		RunCommands: []string{"true"},
	}
	assert.Equal(t, Build(opts), Build(opts))
}

func TestQuote(t *testing.T) {
	assert.Equal(t, `'plain'`, Quote("plain"))
	assert.Equal(t, `'it'"'"'s'`, Quote("it's"))
}
