package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/trace"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/tracegen"
)

func main() {
	scenario := flag.String("scenario", "mixed", "trace scenario: "+strings.Join(tracegen.SupportedScenarios(), "|"))
	count := flag.Int("count", 12, "number of bursts to emit")
	out := flag.String("out", "artifacts/traces/synthetic.json", "output trace path")
	flag.Parse()

	tr, err := tracegen.Generate(*scenario, *count)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to generate trace: %v\n", err)
		os.Exit(1)
	}

	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "create output directory failed: %v\n", err)
		os.Exit(1)
	}

	file, err := os.Create(*out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create output file failed: %v\n", err)
		os.Exit(1)
	}
	defer file.Close()

	if err := trace.WriteJSON(file, tr); err != nil {
		fmt.Fprintf(os.Stderr, "write trace failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("wrote %s trace with %d sessions and %d packets to %s\n", *scenario, len(tr.Sessions), tr.PacketCount(), *out)
}
