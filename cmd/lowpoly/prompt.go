package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/AlecAivazis/survey/v2"
	"github.com/AlecAivazis/survey/v2/terminal"
)

// prompter fills in options interactively.
type prompter interface {
	Ask(ctx context.Context, opts *options) error
}

type surveyPrompter struct{}

func newSurveyPrompter() prompter {
	return surveyPrompter{}
}

// errAborted is returned when the user interrupts a prompt.
var errAborted = errors.New("prompt aborted")

func (surveyPrompter) Ask(ctx context.Context, opts *options) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	questions := []*survey.Question{
		{
			Name:     "file",
			Prompt:   &survey.Input{Message: "Image file:", Default: opts.file, Help: "JPEG or PNG"},
			Validate: survey.ComposeValidators(survey.Required, fileExists),
		},
		{
			Name:     "numPoints",
			Prompt:   &survey.Input{Message: "Number of points:", Default: strconv.Itoa(opts.numPoints)},
			Validate: isInteger,
		},
		{
			Name:     "detailLevel",
			Prompt:   &survey.Input{Message: "Detail level:", Default: strconv.Itoa(opts.detailLevel)},
			Validate: isInteger,
		},
	}

	var answers struct {
		File        string `survey:"file"`
		NumPoints   string `survey:"numPoints"`
		DetailLevel string `survey:"detailLevel"`
	}
	if err := survey.Ask(questions, &answers); err != nil {
		if errors.Is(err, terminal.InterruptErr) {
			return errAborted
		}
		return err
	}
	return applyAnswers(opts, answers.File, answers.NumPoints, answers.DetailLevel)
}

func applyAnswers(opts *options, file, numPoints, detailLevel string) error {
	points, err := strconv.Atoi(numPoints)
	if err != nil {
		return fmt.Errorf("number of points: %w", err)
	}
	detail, err := strconv.Atoi(detailLevel)
	if err != nil {
		return fmt.Errorf("detail level: %w", err)
	}
	opts.file = file
	opts.numPoints = points
	opts.detailLevel = detail
	return nil
}

func fileExists(ans interface{}) error {
	path, _ := ans.(string)
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("cannot open %q", path)
	}
	if info.IsDir() {
		return fmt.Errorf("%q is a directory", path)
	}
	return nil
}

func isInteger(ans interface{}) error {
	s, _ := ans.(string)
	if _, err := strconv.Atoi(s); err != nil {
		return errors.New("please enter an integer")
	}
	return nil
}
