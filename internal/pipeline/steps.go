package pipeline

import (
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/cluebotng/trainer/internal/script"
	"github.com/google/uuid"
)

// Step names in execution order.
const (
	StoreEditSets     = "store-edit-sets"
	BayesTrain        = "bayes-train"
	CreateMainBayesDB = "create-main-bayes-db"
	CreateTwoBayesDB  = "create-two-bayes-db"
	AnnTrain          = "ann-train"
	CreateAnn         = "create-ann"
	TrialReport       = "trial-report"
	CreatePlots       = "create-plots"
)

const falsePositivesPlot = `
set terminal png
set output 'falsepositives.png'

set title 'Vandalism Detection Rate by False Positives'
set xlabel 'False Positive Rate'
set ylabel 'Portion of Vandalism'
set xrange [0.0:0.02]
set grid

plot 'thresholdtable.txt' using 3:2 title 'Vandalism Detection Rate' with lines
`

const thresholdsPlot = `
set terminal png
set output 'thresholds.png'

set title 'Detection Rates By Threshold'
set xlabel 'Score Vandalism Threshold'
set ylabel 'Detection Rate'

plot 'thresholdtable.txt' using 1:2 title 'Correct Positive %' with lines, 'thresholdtable.txt' using 1:3 title 'False Positive %' with lines
`

var (
	plots = []struct{ name, body string }{
		{"falsepositives", falsePositivesPlot},
		{"thresholds", thresholdsPlot},
	}
	trialFiles = []string{
		"debug.xml",
		"details.txt",
		"falsenegatives.txt",
		"falsepositives.txt",
		"report.txt",
		"thresholdtable.txt",
	}
)

// Step is one job of the pipeline.
type Step struct {
	Name    string
	Options script.Options
}

// Steps returns the steps for cfg in execution order. The trial
// steps are only included when a trial set is configured.
func (cfg Config) Steps() []Step {
	artifacts := cfg.path(Artifacts, "")
	train := cfg.path(EditSets, "train.xml")
	trainer := func(name, run string, downloads map[string]string, uploads ...string) Step {
		commands := []string{
			fmt.Sprintf("echo %s", script.Quote("Executing "+name)),
			"cd " + script.WorkDir + " && " + run,
		}
		for _, f := range uploads {
			commands = append(commands, upload("data/"+f, artifacts+"/"+f))
		}

		urls := map[string]*string{}
		for p, f := range downloads {
			urls[p] = script.URL(artifacts + "/" + f)
		}

		return Step{Name: name, Options: script.Options{
			ReleaseRef:            cfg.ReleaseRef,
			DownloadEditSetURL:    train,
			SkipBinarySetup:       true,
			DownloadFileURLs:      urls,
			ConfigureSecretHeader: true,
			RunCommands:           commands,
		}}
	}

	steps := []Step{
		cfg.storeEditSets(),
		trainer(BayesTrain,
			"mkdir -p data/ && ./cluebotng -c conf -m bayes_train -f edits.xml",
			nil,
			"main_bayes_train.dat", "two_bayes_train.dat"),
		trainer(CreateMainBayesDB,
			"./create_bayes_db data/bayes.db data/main_bayes_train.dat",
			map[string]string{"data/main_bayes_train.dat": "main_bayes_train.dat"},
			"bayes.db"),
		trainer(CreateTwoBayesDB,
			"./create_bayes_db data/two_bayes.db data/two_bayes_train.dat",
			map[string]string{"data/two_bayes_train.dat": "two_bayes_train.dat"},
			"two_bayes.db"),
		trainer(AnnTrain,
			"./cluebotng -c conf -m ann_train -f edits.xml",
			map[string]string{"data/bayes.db": "bayes.db", "data/two_bayes.db": "two_bayes.db"},
			"main_ann_train.dat"),
		trainer(CreateAnn,
			"./create_ann data/main_ann.fann data/main_ann_train.dat 150 0.037 100",
			map[string]string{"data/main_ann_train.dat": "main_ann_train.dat"},
			"main_ann.fann"),
	}

	if cfg.TrialURL != "" {
		steps = append(steps, cfg.trialReport(), cfg.createPlots())
	}
	return steps
}

func (cfg Config) storeEditSets() Step {
	type transfer struct{ from, to string }
	transfers := []transfer{{cfg.TrainingURL, cfg.path(EditSets, "train.xml")}}
	if cfg.TrialURL != "" {
		transfers = append(transfers, transfer{cfg.TrialURL, cfg.path(EditSets, "trial.xml")})
	}

	var commands []string
	for _, t := range transfers {
		temp := "/tmp/" + strings.ReplaceAll(uuid.NewString(), "-", "")
		commands = append(commands,
			fmt.Sprintf("echo %s", script.Quote(fmt.Sprintf("Downloading '%s' to '%s'", t.from, temp))),
			fmt.Sprintf("curl --fail --progress-bar -sL --output %s %s", script.Quote(temp), script.Quote(t.from)),
			upload(temp, t.to),
		)
	}

	return Step{Name: StoreEditSets, Options: script.Options{
		SkipDependencySetup:   true,
		ConfigureSecretHeader: true,
		RunCommands:           commands,
	}}
}

func (cfg Config) trialReport() Step {
	report := cfg.path(Trial, "")
	commands := []string{
		"echo 'Executing trial_run'",
		"cd " + script.WorkDir + " && mkdir -p trialreport/ && ./cluebotng -c conf -m trial_run -f edits.xml",
	}
	for _, f := range trialFiles {
		commands = append(commands, upload("trialreport/"+f, report+"/"+f))
	}

	return Step{Name: TrialReport, Options: script.Options{
		ReleaseRef:            cfg.ReleaseRef,
		DownloadBinsURL:       cfg.path(Artifacts, ""),
		DownloadEditSetURL:    cfg.path(EditSets, "trial.xml"),
		ConfigureSecretHeader: true,
		RunCommands:           commands,
	}}
}

func (cfg Config) createPlots() Step {
	report := cfg.path(Trial, "")

	var commands []string
	for _, p := range plots {
		encoded := base64.StdEncoding.EncodeToString([]byte(p.body))
		commands = append(commands,
			"cd "+script.WorkDir+"/trialreport",
			"set +e",
			fmt.Sprintf("base64 -d <<<%s > %s.gnuplot", encoded, p.name),
			fmt.Sprintf("echo 'Generating plot for %s'", p.name),
			fmt.Sprintf("gnuplot-qt %s.gnuplot", p.name),
			fmt.Sprintf(
				`if [ -s "%[1]s.gnuplot" ] && [ -s "%[1]s.png" ]; then %[2]s; %[3]s; fi`,
				p.name,
				upload(p.name+".gnuplot", report+"/"+p.name+".gnuplot"),
				upload(p.name+".png", report+"/"+p.name+".png"),
			),
			"set -e",
		)
	}

	return Step{Name: CreatePlots, Options: script.Options{
		SkipDependencySetup: true,
		DownloadFileURLs: map[string]*string{
			"trialreport/thresholdtable.txt": script.URL(report + "/thresholdtable.txt"),
		},
		ConfigureSecretHeader: true,
		RunCommands:           commands,
	}}
}

func upload(source, target string) string {
	return fmt.Sprintf("upload_file %s %s", script.Quote(source), script.Quote(target))
}
