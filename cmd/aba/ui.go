package main

import (
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"
)

var (
	userPrompt      = color.New(color.FgGreen).FprintfFunc()
	assistantPrompt = color.New(color.FgCyan).FprintfFunc()
	statusLine      = color.New(color.FgBlue).FprintfFunc()
	successLine     = color.New(color.FgGreen).FprintfFunc()
	errorLine       = color.New(color.FgRed).FprintfFunc()
)

func getSpinner(w io.Writer, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(color.CyanString(description)),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionSetWidth(20),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetRenderBlankState(true),
		progressbar.OptionClearOnFinish(),
	)
}

// withSpinner runs fn while a spinner is shown on w.
func withSpinner[T any](w io.Writer, description string, fn func() (T, error)) (T, error) {
	spinner := getSpinner(w, description)
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				spinner.Add(1)
			}
		}
	}()

	v, err := fn()
	close(done)
	<-stopped
	spinner.Finish()
	return v, err
}

// preview shortens chunk text for the sources list.
func preview(text string, n int) string {
	r := []rune(strings.Join(strings.Fields(text), " "))
	if len(r) > n {
		r = r[:n]
	}
	return string(r)
}
