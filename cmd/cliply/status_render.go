package main

import (
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
)

const (
	ansiReset = "\x1b[0m"
	ansiRed   = "\x1b[31m"
	ansiGreen = "\x1b[32m"
)

const checkLabelWidth = 24

func renderCheckLine(label string, ok bool, detail string, colorize bool) string {
	status := "OK"
	color := ansiGreen
	if !ok {
		status = "FAIL"
		color = ansiRed
	}
	if detail != "" {
		status = fmt.Sprintf("[%s] %s", status, detail)
	} else {
		status = fmt.Sprintf("[%s]", status)
	}
	line := fmt.Sprintf("  %-*s %s", checkLabelWidth, label+":", status)
	if colorize {
		return color + line + ansiReset
	}
	return line
}

func shouldColorize(writer io.Writer) bool {
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}
