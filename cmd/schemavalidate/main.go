package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/analyzercfg"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/engine"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/schema"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/trace"
	"github.com/ogulcanaydogan/radio-burst-toolkit/pkg/tracegen"
	"gopkg.in/yaml.v3"
)

type check struct {
	name string
	run  func(root string) error
}

var version = "dev"

var kindSchemas = map[string][]string{
	"report":  {"docs", "contracts", "v1", "burst-report.schema.json"},
	"summary": {"docs", "contracts", "v1", "run-summary.schema.json"},
	"config":  {"config", "analyzer.schema.json"},
}

func main() {
	if len(os.Args) == 2 && (os.Args[1] == "--version" || os.Args[1] == "version") {
		fmt.Println(version)
		return
	}

	kind := flag.String("kind", "", "validate one document: report|summary|config")
	input := flag.String("input", "", "document to validate with -kind")
	schemaPath := flag.String("schema", "", "schema override for -kind")
	flag.Parse()

	root := projectRoot()
	if *kind != "" || *input != "" {
		if *kind == "" || *input == "" {
			fmt.Fprintln(os.Stderr, "-kind and -input must be given together")
			os.Exit(2)
		}
		if err := validateDocument(root, *kind, *input, *schemaPath); err != nil {
			fmt.Fprintf(os.Stderr, "schema validation failed (%s): %v\n", *input, err)
			os.Exit(1)
		}
		fmt.Printf("ok: %s %s\n", *kind, *input)
		return
	}

	checks := []check{
		{name: "schema document parse", run: validateSchemaDocuments},
		{name: "contract sample payloads", run: validateContractSamples},
		{name: "analyzer config schema", run: validateAnalyzerConfigAgainstSchema},
		{name: "analyzer config loader", run: validateAnalyzerConfigLoader},
	}

	for _, c := range checks {
		if err := c.run(root); err != nil {
			fmt.Fprintf(os.Stderr, "schema validation failed (%s): %v\n", c.name, err)
			os.Exit(1)
		}
		fmt.Printf("ok: %s\n", c.name)
	}
}

func validateDocument(root, kind, input, schemaOverride string) error {
	parts, ok := kindSchemas[kind]
	if !ok {
		return fmt.Errorf("unsupported kind %q", kind)
	}
	schemaPath := schemaOverride
	if schemaPath == "" {
		schemaPath = filepath.Join(append([]string{root}, parts...)...)
	}

	data, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("read %s: %w", input, err)
	}
	if kind == "config" {
		var yamlPayload interface{}
		if err := yaml.Unmarshal(data, &yamlPayload); err != nil {
			return fmt.Errorf("parse config yaml %s: %w", input, err)
		}
		return schema.ValidateAgainstSchema(schemaPath, normalizeYAML(yamlPayload))
	}
	return schema.ValidateBytes(schemaPath, data)
}

func validateSchemaDocuments(root string) error {
	for _, parts := range kindSchemas {
		path := filepath.Join(append([]string{root}, parts...)...)
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read schema %s: %w", path, err)
		}
		var payload interface{}
		if err := json.Unmarshal(data, &payload); err != nil {
			return fmt.Errorf("parse schema json %s: %w", path, err)
		}
		if err := schema.CompileSchema(path); err != nil {
			return err
		}
	}
	return nil
}

func validateContractSamples(root string) error {
	cfg, err := analyzercfg.Load(filepath.Join(root, "config", "analyzer.yaml"))
	if err != nil {
		return fmt.Errorf("load analyzer config: %w", err)
	}
	prof, err := analyzercfg.ResolveProfile(cfg)
	if err != nil {
		return err
	}
	tr, err := tracegen.Generate("mixed", 12)
	if err != nil {
		return err
	}
	res, err := engine.New(engine.Config{Workers: cfg.Workers}).Analyze(context.Background(), tr, &prof, trace.Filter{})
	if err != nil {
		return fmt.Errorf("analyze sample trace: %w", err)
	}
	report := schema.BuildReport("schema-sample", time.Now().UTC(), "tracegen:mixed", prof, res)

	checks := []struct {
		schemaPath string
		payload    interface{}
	}{
		{schemaPath: filepath.Join(root, "docs", "contracts", "v1", "burst-report.schema.json"), payload: report},
		{schemaPath: filepath.Join(root, "docs", "contracts", "v1", "run-summary.schema.json"), payload: report.Summary()},
	}

	for _, c := range checks {
		if err := schema.ValidateAgainstSchema(c.schemaPath, c.payload); err != nil {
			return err
		}
	}
	return nil
}

func validateAnalyzerConfigAgainstSchema(root string) error {
	return validateDocument(root, "config", filepath.Join(root, "config", "analyzer.yaml"), "")
}

func validateAnalyzerConfigLoader(root string) error {
	configPath := filepath.Join(root, "config", "analyzer.yaml")
	cfg, err := analyzercfg.Load(configPath)
	if err != nil {
		return fmt.Errorf("load analyzer config %s: %w", configPath, err)
	}
	if _, err := analyzercfg.ResolveProfile(cfg); err != nil {
		return fmt.Errorf("resolve profile of %s: %w", configPath, err)
	}
	return nil
}

func normalizeYAML(v interface{}) interface{} {
	switch x := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, value := range x {
			out[k] = normalizeYAML(value)
		}
		return out
	case map[interface{}]interface{}:
		out := make(map[string]interface{}, len(x))
		for k, value := range x {
			out[fmt.Sprint(k)] = normalizeYAML(value)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(x))
		for i := range x {
			out[i] = normalizeYAML(x[i])
		}
		return out
	default:
		return x
	}
}

func projectRoot() string {
	_, filename, _, ok := runtime.Caller(0)
	if !ok {
		return "."
	}
	return filepath.Clean(filepath.Join(filepath.Dir(filename), "..", ".."))
}
