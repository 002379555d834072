package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/weavedoc/weave/internal/extract"
	"github.com/weavedoc/weave/internal/lsp"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

const yamlConfig = `
servers:
  - id: pyls
    command: pylsp
    args: ["--verbose"]
    languages: [python]
    priority: 2
    settings:
      pylsp:
        plugins: all
  - id: remote-md
    url: ws://localhost:9257/lsp
    languages: [markdown]
logging:
  level: debug
  trace: messages
  log_all_communication: true
`

const tomlConfig = `
[[servers]]
id = "pyls"
command = "pylsp"
args = ["--verbose"]
languages = ["python"]
priority = 2

[logging]
level = "warn"
trace = "verbose"
`

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "weave.yaml", yamlConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if len(cfg.Servers) != 2 {
		t.Fatalf("servers = %d, want 2", len(cfg.Servers))
	}
	want := ServerConfig{
		ID:        "pyls",
		Command:   "pylsp",
		Args:      []string{"--verbose"},
		Languages: []string{"python"},
		Priority:  2,
		Settings:  map[string]any{"pylsp": map[string]any{"plugins": "all"}},
	}
	if diff := cmp.Diff(want, cfg.Servers[0]); diff != "" {
		t.Errorf("server mismatch (-want +got):\n%s", diff)
	}
	if cfg.Servers[1].URL != "ws://localhost:9257/lsp" {
		t.Errorf("url = %q", cfg.Servers[1].URL)
	}
	if cfg.Trace() != lsp.TraceMessages {
		t.Errorf("trace = %q, want messages", cfg.Trace())
	}
	if !cfg.Logging.LogAllCommunication {
		t.Error("log_all_communication not decoded")
	}
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "weave.toml", tomlConfig)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Servers) != 1 || cfg.Servers[0].ID != "pyls" {
		t.Fatalf("servers = %+v, want pyls", cfg.Servers)
	}
	if cfg.Trace() != lsp.TraceVerbose {
		t.Errorf("trace = %q, want verbose", cfg.Trace())
	}
}

func TestLoadUnsupportedExtension(t *testing.T) {
	path := writeFile(t, "weave.json", `{}`)
	if _, err := Load(path); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("err = %v, want ErrUnsupportedFormat", err)
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{Servers: []ServerConfig{
			{ID: "pyls", Command: "pylsp", Languages: []string{"python"}},
		}}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"missing id", func(c *Config) { c.Servers[0].ID = "" }, "no id"},
		{"duplicate id", func(c *Config) {
			c.Servers = append(c.Servers, c.Servers[0])
		}, "duplicate"},
		{"no command or url", func(c *Config) { c.Servers[0].Command = "" }, "neither"},
		{"both command and url", func(c *Config) { c.Servers[0].URL = "ws://x" }, "both"},
		{"no languages", func(c *Config) { c.Servers[0].Languages = nil }, "no languages"},
		{"bad trace", func(c *Config) { c.Logging.Trace = "loud" }, "trace"},
		{"extractor without script", func(c *Config) {
			c.Extractors = []ExtractorConfig{{HostLanguage: "python"}}
		}, "exactly one"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestServerSpecs(t *testing.T) {
	cfg := &Config{Servers: []ServerConfig{
		{
			ID:        "pyls",
			Command:   "pylsp",
			Env:       map[string]string{"PYTHONPATH": "/opt/lib"},
			Languages: []string{"python"},
			Priority:  3,
		},
	}}
	specs := cfg.ServerSpecs()
	if len(specs) != 1 {
		t.Fatalf("specs = %d, want 1", len(specs))
	}
	if specs[0].ID != "pyls" || specs[0].Priority != 3 || !specs[0].ServesLanguage("python") {
		t.Errorf("spec = %+v", specs[0])
	}
	if diff := cmp.Diff(map[string]string{"PYTHONPATH": "/opt/lib"}, specs[0].Env); diff != "" {
		t.Errorf("env mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildExtractors(t *testing.T) {
	cfg := &Config{Extractors: []ExtractorConfig{{
		HostLanguage: "python",
		Kind:         extract.KindCode,
		Script: `
function has_foreign_code(text) return false end
function extract_foreign_code(text) return {} end
`,
	}}}

	reg := extract.NewRegistry()
	closers, err := cfg.BuildExtractors(reg)
	if err != nil {
		t.Fatalf("BuildExtractors: %v", err)
	}
	defer closeAll(closers)

	if got := reg.For("python", extract.KindCode); len(got) != 1 {
		t.Errorf("registered extractors = %d, want 1", len(got))
	}
}

func TestBuildExtractorsBadScript(t *testing.T) {
	cfg := &Config{Extractors: []ExtractorConfig{{
		HostLanguage: "python",
		Script:       "function (",
	}}}

	if _, err := cfg.BuildExtractors(extract.NewRegistry()); err == nil {
		t.Error("BuildExtractors succeeded with a broken script")
	}
}
