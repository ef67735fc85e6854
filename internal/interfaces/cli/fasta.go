package cli

import (
	"bufio"
	"io"
	"os"
	"strings"

	"github.com/helixforge/helixforge/pkg/errors"
)

// ReadFASTA parses sequences from FASTA input.  Multi-line records are
// concatenated; header lines are discarded, only the residue payload matters
// for seeding.  Bare sequence lines without a header are accepted too, so a
// plain one-sequence-per-line file also works.
func ReadFASTA(r io.Reader) ([]string, error) {
	var (
		sequences []string
		current   strings.Builder
		inRecord  bool
	)

	flush := func() {
		if current.Len() > 0 {
			sequences = append(sequences, current.String())
			current.Reset()
		}
	}

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "" || strings.HasPrefix(line, ";"):
			continue
		case strings.HasPrefix(line, ">"):
			flush()
			inRecord = true
		case inRecord:
			current.WriteString(line)
		default:
			// Headerless input: one sequence per line.
			sequences = append(sequences, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeBadRequest, "failed to read sequence input")
	}
	flush()

	if len(sequences) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "no sequences found in input")
	}
	return sequences, nil
}

// ReadFASTAFile reads sequences from a FASTA file on disk.
func ReadFASTAFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeBadRequest, "failed to open seed file")
	}
	defer f.Close()
	return ReadFASTA(f)
}
