package route

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
)

// maxTraceLine bounds a single trace line.
const maxTraceLine = 64 * 1024

// DecodeTrace reads a JSON-lines trace, one Fix object per line. Blank lines
// and lines starting with '#' are skipped.
func DecodeTrace(r io.Reader) ([]Fix, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxTraceLine)
	var fixes []Fix
	for n := 1; sc.Scan(); n++ {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 || line[0] == '#' {
			continue
		}
		var f Fix
		if err := json.Unmarshal(line, &f); err != nil {
			return nil, fmt.Errorf("trace line %d: %w", n, err)
		}
		fixes = append(fixes, f)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}
	return fixes, nil
}

// EncodeTrace writes fixes in the form DecodeTrace reads.
func EncodeTrace(w io.Writer, fixes []Fix) error {
	enc := json.NewEncoder(w)
	for _, f := range fixes {
		if err := enc.Encode(f); err != nil {
			return err
		}
	}
	return nil
}
