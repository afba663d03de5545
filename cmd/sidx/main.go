// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

// Command sidx is a directory-backed CLI over the sparse-vector
// inverted-index engine, modeled on cmd/sdb's subcommand dispatch
// (spec §1 "the CLI / glue that turns host calls into
// create/insert/commit/search operations" -- left to the implementer).
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"sigs.k8s.io/yaml"

	"github.com/sneller-labs/sidx/engine"
	"github.com/sneller-labs/sidx/merge"
	"github.com/sneller-labs/sidx/ramindex"
	"github.com/sneller-labs/sidx/search"
)

var (
	dashv    bool
	dashh    bool
	dashtopk int
)

func init() {
	flag.BoolVar(&dashv, "v", false, "verbose")
	flag.BoolVar(&dashh, "h", false, "show usage help")
	flag.IntVar(&dashtopk, "k", 10, "top-k for search")
}

func exitf(f string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, f, args...)
	os.Exit(1)
}

func logf(f string, args ...interface{}) {
	if dashv {
		fmt.Fprintf(os.Stderr, f+"\n", args...)
	}
}

// loadSettings accepts a settings.json or settings.yaml file, mirroring
// cmd/sdb's "create <db> <definition.json|definition.yaml>" convention
// (SPEC_FULL.md AMBIENT STACK: sigs.k8s.io/yaml round-tripped through
// the same json tags).
func loadSettings(p string) []byte {
	b, err := ioutil.ReadFile(p)
	if err != nil {
		exitf("reading %s: %s\n", p, err)
	}
	if strings.HasSuffix(p, ".yaml") || strings.HasSuffix(p, ".yml") {
		b, err = yaml.YAMLToJSON(b)
		if err != nil {
			exitf("converting %s: %s\n", p, err)
		}
	}
	return b
}

// vectorFile is the on-disk JSON shape accepted by 'insert' and
// 'search': a flat list of {"dim":..,"weight":..} pairs, the same pair
// shape ramindex.Pair and search.Term both use.
type vectorFile []struct {
	Dim    uint32  `json:"dim"`
	Weight float32 `json:"weight"`
}

func loadVector(p string) vectorFile {
	b, err := ioutil.ReadFile(p)
	if err != nil {
		exitf("reading %s: %s\n", p, err)
	}
	var v vectorFile
	if err := json.Unmarshal(b, &v); err != nil {
		exitf("decoding %s: %s\n", p, err)
	}
	return v
}

func report(res engine.Result) {
	if !res.OK {
		exitf("%s\n", res.Message)
	}
	logf("ok")
}

// create initializes dir (creating it if necessary) and persists the
// decoded settings as dir/settings.json so that later, separate 'sidx
// insert' invocations -- each a fresh process with its own Engine --
// can recover the same create_index configuration (spec §6's Engine is
// meant to be a single long-lived host handle; the CLI fakes that by
// round-tripping settings through the segment directory itself).
func create(dir, settingsPath string) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		exitf("creating %s: %s\n", dir, err)
	}
	b := loadSettings(settingsPath)
	e := engine.New()
	res := e.CreateIndex(dir, b)
	report(res)
	if err := ioutil.WriteFile(filepath.Join(dir, "settings.json"), b, 0o644); err != nil {
		exitf("writing settings.json: %s\n", err)
	}
	report(e.FreeWriter(dir))
}

func insert(dir string, rowID uint32, vecPath string) {
	e := engine.New()
	report(e.CreateIndex(dir, loadSettings(filepath.Join(dir, "settings.json"))))
	v := loadVector(vecPath)
	pairs := make([]ramindex.Pair, len(v))
	for i, p := range v {
		pairs[i] = ramindex.Pair{Dim: p.Dim, Weight: p.Weight}
	}
	res := e.Insert(dir, rowID, pairs)
	report(res)
	report(e.Commit(dir))
	report(e.FreeWriter(dir))
}

func searchCmd(dir, vecPath, filterPath string) {
	e := engine.New()
	report(e.LoadReader(dir))
	v := loadVector(vecPath)
	terms := make([]search.Term, len(v))
	for i, p := range v {
		terms[i] = search.Term{Dim: p.Dim, Weight: p.Weight}
	}
	var filterBytes []byte
	if filterPath != "" {
		b, err := ioutil.ReadFile(filterPath)
		if err != nil {
			exitf("reading %s: %s\n", filterPath, err)
		}
		filterBytes = b
	}
	results, res := e.Search(dir, terms, filterBytes, dashtopk)
	if !res.OK {
		exitf("%s\n", res.Message)
	}
	for _, r := range results {
		fmt.Printf("%d\t%g\n", r.RowID, r.Score)
	}
}

func mergeCmd(dir string) {
	b := loadSettings(filepath.Join(dir, "settings.json"))
	var s engine.Settings
	if err := json.Unmarshal(b, &s); err != nil {
		exitf("decoding settings.json: %s\n", err)
	}
	cfg := s.InvertedIndexConfig
	e := engine.New()
	report(e.MergeAll(dir, merge.Options{
		ElementType:   cfg.ElementType,
		WeightType:    cfg.WeightType,
		Quantized:     cfg.Quantized,
		Storage:       cfg.Storage,
		RowIDsArchive: cfg.RowIDsArchive,
	}))
}

func stat(dir string) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.meta.json"))
	if err != nil {
		exitf("%s\n", err)
	}
	for _, m := range matches {
		b, err := ioutil.ReadFile(m)
		if err != nil {
			exitf("%s\n", err)
		}
		fmt.Printf("%s:\n%s\n", filepath.Base(m), string(b))
	}
}

func main() {
	flag.Parse()
	args := flag.Args()
	if len(args) == 0 || dashh {
		fmt.Fprintf(os.Stderr, "usage:\n")
		fmt.Fprintf(os.Stderr, "    %s create <dir> <settings.json|settings.yaml>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "    %s insert <dir> <row_id> <vector.json>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "    %s [-k <n>] search <dir> <query.json> [filter.bin]\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "    %s merge <dir>\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "    %s stat <dir>\n", os.Args[0])
		flag.Usage()
		os.Exit(1)
	}

	switch args[0] {
	case "create":
		if len(args) != 3 {
			exitf("usage: create <dir> <settings.json|settings.yaml>\n")
		}
		create(args[1], args[2])
	case "insert":
		if len(args) != 4 {
			exitf("usage: insert <dir> <row_id> <vector.json>\n")
		}
		rowID, err := strconv.ParseUint(args[2], 10, 32)
		if err != nil {
			exitf("bad row_id %q: %s\n", args[2], err)
		}
		insert(args[1], uint32(rowID), args[3])
	case "search":
		if len(args) < 3 || len(args) > 4 {
			exitf("usage: search <dir> <query.json> [filter.bin]\n")
		}
		filter := ""
		if len(args) == 4 {
			filter = args[3]
		}
		searchCmd(args[1], args[2], filter)
	case "merge":
		if len(args) != 2 {
			exitf("usage: merge <dir>\n")
		}
		mergeCmd(args[1])
	case "stat":
		if len(args) != 2 {
			exitf("usage: stat <dir>\n")
		}
		stat(args[1])
	default:
		exitf("commands: create, insert, search, merge, stat\n")
	}
}
