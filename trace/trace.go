// Package trace parses memory access traces for the cachesim CLI.
//
// The format is line-based, one access per line:
//
//	F <addr>              instruction fetch
//	R <addr> <size>       load of 1, 2, or 4 bytes
//	W <addr> <size> <val> store of 1, 2, or 4 bytes
//
// Addresses and values are hexadecimal, with or without a 0x prefix.
// Blank lines and lines starting with # are ignored.
package trace

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sarchlab/cachesim/timing/cache"
)

// Kind distinguishes the three access types.
type Kind int

// Access kinds.
const (
	KindFetch Kind = iota
	KindLoad
	KindStore
)

// An Access is one parsed trace line.
type Access struct {
	Kind    Kind
	Address uint32
	Size    cache.AccessSize
	Value   uint32
}

// ParseFile reads and parses a trace file.
func ParseFile(path string) ([]Access, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace file: %w", err)
	}
	defer f.Close()

	accesses, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return accesses, nil
}

// Parse parses a trace from r.
func Parse(r io.Reader) ([]Access, error) {
	var accesses []Access

	scanner := bufio.NewScanner(r)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		access, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		accesses = append(accesses, access)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read trace: %w", err)
	}

	return accesses, nil
}

func parseLine(line string) (Access, error) {
	fields := strings.Fields(line)

	switch strings.ToUpper(fields[0]) {
	case "F":
		if len(fields) != 2 {
			return Access{}, fmt.Errorf("fetch takes 1 operand, got %d", len(fields)-1)
		}
		addr, err := parseHex(fields[1])
		if err != nil {
			return Access{}, err
		}
		return Access{Kind: KindFetch, Address: addr, Size: cache.SizeWord}, nil

	case "R":
		if len(fields) != 3 {
			return Access{}, fmt.Errorf("load takes 2 operands, got %d", len(fields)-1)
		}
		addr, err := parseHex(fields[1])
		if err != nil {
			return Access{}, err
		}
		size, err := parseSize(fields[2])
		if err != nil {
			return Access{}, err
		}
		return Access{Kind: KindLoad, Address: addr, Size: size}, nil

	case "W":
		if len(fields) != 4 {
			return Access{}, fmt.Errorf("store takes 3 operands, got %d", len(fields)-1)
		}
		addr, err := parseHex(fields[1])
		if err != nil {
			return Access{}, err
		}
		size, err := parseSize(fields[2])
		if err != nil {
			return Access{}, err
		}
		value, err := parseHex(fields[3])
		if err != nil {
			return Access{}, err
		}
		return Access{Kind: KindStore, Address: addr, Size: size, Value: value}, nil
	}

	return Access{}, fmt.Errorf("unknown access kind %q", fields[0])
}

func parseHex(s string) (uint32, error) {
	s = strings.TrimPrefix(strings.ToLower(s), "0x")
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("bad hex value %q: %w", s, err)
	}
	return uint32(v), nil
}

func parseSize(s string) (cache.AccessSize, error) {
	v, err := strconv.Atoi(s)
	if err != nil || !cache.AccessSize(v).Valid() {
		return 0, fmt.Errorf("bad access size %q (want 1, 2, or 4)", s)
	}
	return cache.AccessSize(v), nil
}
