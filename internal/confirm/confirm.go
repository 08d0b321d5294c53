// Package confirm implements the yes/no gate shown before a sweep touches
// the filesystem.
package confirm

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// IsAffirmative reports whether answer is exactly "y" or "Y" after trimming
// surrounding whitespace.
func IsAffirmative(answer string) bool {
	answer = strings.TrimSpace(answer)
	return answer == "y" || answer == "Y"
}

// Ask prints question followed by " (y/n): " and reads a single line from in.
// Only "y"/"Y" is an assent; anything else, including empty input or EOF, is
// a refusal.
func Ask(in io.Reader, out io.Writer, question string) (bool, error) {
	if _, err := fmt.Fprintf(out, "%s (y/n): ", question); err != nil {
		return false, err
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return false, fmt.Errorf("confirm: read answer: %w", err)
	}
	return IsAffirmative(line), nil
}
