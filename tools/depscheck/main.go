package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
)

type packageInfo struct {
	ImportPath string
	Imports    []string
}

const modulePath = "bombfield/server"

// edgeLayers may only be imported by the binaries, the app wiring and each
// other. The authority core must not reach them.
var edgeLayers = []string{
	modulePath + "/internal/net/ws",
	modulePath + "/internal/net/intake",
	modulePath + "/internal/client",
	modulePath + "/internal/app",
}

var allowedImporters = []string{
	modulePath + "/cmd/",
	modulePath + "/internal/app",
	modulePath + "/internal/net",
	modulePath + "/internal/client",
}

func main() {
	cmd := exec.Command("go", "list", "-json", "./...")
	cmd.Env = os.Environ()
	output, err := cmd.Output()
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			os.Stderr.Write(exitErr.Stderr)
		}
		fmt.Fprintf(os.Stderr, "depscheck: failed to list packages: %v\n", err)
		os.Exit(1)
	}

	violations, err := check(bytes.NewReader(output))
	if err != nil {
		fmt.Fprintf(os.Stderr, "depscheck: %v\n", err)
		os.Exit(1)
	}
	if len(violations) > 0 {
		fmt.Fprintln(os.Stderr, "depscheck: found forbidden imports:")
		for _, violation := range violations {
			fmt.Fprintf(os.Stderr, "  %s\n", violation)
		}
		os.Exit(1)
	}
}

// check reads the concatenated JSON objects printed by go list and reports
// every core package importing an edge layer.
func check(r io.Reader) ([]string, error) {
	decoder := json.NewDecoder(r)
	var violations []string
	for {
		var pkg packageInfo
		if err := decoder.Decode(&pkg); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to decode package info: %w", err)
		}
		if allowed(pkg.ImportPath) {
			continue
		}
		for _, imp := range pkg.Imports {
			if isEdge(imp) {
				violations = append(violations, fmt.Sprintf("%s -> %s", pkg.ImportPath, imp))
			}
		}
	}
	sort.Strings(violations)
	return violations, nil
}

func allowed(path string) bool {
	for _, prefix := range allowedImporters {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

func isEdge(path string) bool {
	for _, edge := range edgeLayers {
		if path == edge || strings.HasPrefix(path, edge+"/") {
			return true
		}
	}
	return false
}
