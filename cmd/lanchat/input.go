package main

import (
	"bufio"
	"io"

	"github.com/sirupsen/logrus"
)

// readLines feeds r line by line into the returned channel, which is closed
// at EOF. The reader goroutine cannot be interrupted and exits with the
// process.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		if err := scanner.Err(); err != nil {
			logrus.WithError(err).Warn("read console input failed")
		}
	}()
	return lines
}
