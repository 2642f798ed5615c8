package board

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// Parse reads a board file: a "RxC" header line followed by exactly R*C
// card lines in row-major order, each a non-empty run of non-whitespace
// characters. Trailing blank lines are tolerated; a blank line anywhere
// between the header and the last card is an error. The returned board has
// every card face down, no controllers and no players.
func Parse(r io.Reader) (*Board, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read board file: %w", err)
	}
	lines := strings.Split(string(data), "\n")

	if len(lines) == 0 || lines[0] == "" {
		return nil, &ParseError{Line: 1, Msg: "missing RxC header"}
	}
	rows, cols, err := parseDim(lines[0])
	if err != nil {
		return nil, &ParseError{Line: 1, Msg: err.Error()}
	}

	n := rows * cols
	values := make([]string, 0, n)
	for i, line := range lines[1:] {
		lineno := i + 2
		if line == "" {
			// Only blank lines may follow the last card.
			for _, rest := range lines[1+i:] {
				if rest != "" {
					return nil, &ParseError{Line: lineno, Msg: "blank line inside card list"}
				}
			}
			break
		}
		if len(values) == n {
			return nil, &ParseError{Line: lineno, Msg: fmt.Sprintf("more than %d cards", n)}
		}
		if !validCardValue(line) {
			return nil, &ParseError{Line: lineno, Msg: fmt.Sprintf("card %q contains whitespace", line)}
		}
		values = append(values, line)
	}
	if len(values) != n {
		return nil, &ParseError{Msg: fmt.Sprintf("got %d cards, want %d", len(values), n)}
	}

	b, err := New(rows, cols, values)
	if err != nil {
		return nil, &ParseError{Msg: err.Error()}
	}
	return b, nil
}

// ParseFile reads and parses the board file at path.
func ParseFile(path string) (*Board, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open board file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

func parseDim(header string) (rows, cols int, err error) {
	r, c, ok := strings.Cut(header, "x")
	if !ok {
		return 0, 0, fmt.Errorf("header %q is not RxC", header)
	}
	rows, err = parseDigits(r)
	if err == nil {
		cols, err = parseDigits(c)
	}
	if err != nil {
		return 0, 0, fmt.Errorf("header %q is not RxC", header)
	}
	if rows < 1 || cols < 1 {
		return 0, 0, fmt.Errorf("dimensions %dx%d out of range", rows, cols)
	}
	return rows, cols, nil
}

// parseDigits accepts only an unsigned decimal run, unlike Atoi which also
// takes signs.
func parseDigits(s string) (int, error) {
	if s == "" {
		return 0, fmt.Errorf("empty number")
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("bad digit %q", r)
		}
	}
	return strconv.Atoi(s)
}
