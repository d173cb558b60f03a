// Package sumfile reads and writes build input manifests: one
// "algo:hash entity" line per input, base58 hashes, sorted by entity.
package sumfile

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/mr-tron/base58"
)

type entry struct {
	algo string
	hash []byte
}

type Sumfile struct {
	sums map[string]entry
}

func (s *Sumfile) init() {
	if s.sums == nil {
		s.sums = make(map[string]entry)
	}
}

// Add records the checksum for an entity, replacing any previous one,
// and returns its rendered "algo:hash" form.
func (s *Sumfile) Add(entity, algo string, h []byte) (string, error) {
	s.init()
	s.sums[entity] = entry{algo: algo, hash: h}

	return algo + ":" + base58.Encode(h), nil
}

func (s *Sumfile) Lookup(entity string) (string, []byte, bool) {
	e, ok := s.sums[entity]
	if !ok {
		return "", nil, false
	}

	return e.algo, e.hash, true
}

func (s *Sumfile) Len() int {
	return len(s.sums)
}

func (s *Sumfile) Save(w io.Writer) error {
	entities := make([]string, 0, len(s.sums))
	for k := range s.sums {
		entities = append(entities, k)
	}

	sort.Strings(entities)

	for _, entity := range entities {
		e := s.sums[entity]

		_, err := fmt.Fprintf(w, "%s:%s %s\n", e.algo, base58.Encode(e.hash), entity)
		if err != nil {
			return err
		}
	}

	return nil
}

// Load merges entries from a manifest. Lines that don't parse are
// skipped; a bad hash is an error.
func (s *Sumfile) Load(r io.Reader) error {
	s.init()

	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := sc.Text()

		colon := strings.IndexByte(line, ':')
		space := strings.IndexByte(line, ' ')
		if colon == -1 || space == -1 || colon > space {
			continue
		}

		h, err := base58.Decode(line[colon+1 : space])
		if err != nil {
			return err
		}

		entity := strings.TrimSpace(line[space+1:])
		s.sums[entity] = entry{algo: line[:colon], hash: h}
	}

	return sc.Err()
}
