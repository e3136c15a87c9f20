// Package registry manages the node configuration file: named remote nodes,
// named calling AE titles, and the active selection of each.
package registry

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Node describes one remote application entity.
type Node struct {
	Host        string `yaml:"host"`
	Port        int    `yaml:"port"`
	AETitle     string `yaml:"ae_title"`
	Description string `yaml:"description,omitempty"`
}

// Address returns the host:port dial string for the node.
func (n Node) Address() string {
	return fmt.Sprintf("%s:%d", n.Host, n.Port)
}

// CallingAET is a named local identity to present to remote nodes.
type CallingAET struct {
	AETitle     string `yaml:"ae_title"`
	Description string `yaml:"description,omitempty"`
}

// Config is the on-disk registry schema.
type Config struct {
	Nodes             map[string]Node       `yaml:"nodes"`
	CurrentNode       string                `yaml:"current_node"`
	CallingAETs       map[string]CallingAET `yaml:"calling_aets"`
	CurrentCallingAET string                `yaml:"current_calling_aet"`
}

// Overrides carries the environment variables honored on top of the file.
type Overrides struct {
	ConfigPath   string `env:"DICOMQR_CONFIG"`
	DownloadRoot string `env:"DICOMQR_DOWNLOAD_ROOT"`
}

// OverridesFromEnv reads the DICOMQR_* environment variables.
func OverridesFromEnv() (Overrides, error) {
	var o Overrides
	if err := env.Parse(&o); err != nil {
		return Overrides{}, fmt.Errorf("parse env: %w", err)
	}
	return o, nil
}

// Registry is a loaded configuration plus its source path. Mutating calls
// rewrite the file so the selection survives across processes.
type Registry struct {
	mu   sync.Mutex
	path string
	cfg  Config
}

// Load reads and validates a registry file.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry file: %w", err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	return &Registry{path: path, cfg: *cfg}, nil
}

// Parse unmarshals and validates registry YAML.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse registry YAML: %w", err)
	}
	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func validate(cfg *Config) error {
	if len(cfg.Nodes) == 0 {
		return fmt.Errorf("registry: no nodes configured")
	}
	for name, node := range cfg.Nodes {
		if node.Host == "" {
			return fmt.Errorf("registry: node %q has no host", name)
		}
		if node.Port <= 0 || node.Port > 65535 {
			return fmt.Errorf("registry: node %q has invalid port %d", name, node.Port)
		}
		if node.AETitle == "" || len(node.AETitle) > 16 {
			return fmt.Errorf("registry: node %q has invalid ae_title %q", name, node.AETitle)
		}
	}
	if _, ok := cfg.Nodes[cfg.CurrentNode]; !ok {
		return fmt.Errorf("registry: current_node %q not found", cfg.CurrentNode)
	}
	if len(cfg.CallingAETs) == 0 {
		return fmt.Errorf("registry: no calling_aets configured")
	}
	for name, aet := range cfg.CallingAETs {
		if aet.AETitle == "" || len(aet.AETitle) > 16 {
			return fmt.Errorf("registry: calling AET %q has invalid ae_title %q", name, aet.AETitle)
		}
	}
	if _, ok := cfg.CallingAETs[cfg.CurrentCallingAET]; !ok {
		return fmt.Errorf("registry: current_calling_aet %q not found", cfg.CurrentCallingAET)
	}
	return nil
}

// Nodes lists configured node names in stable order.
func (r *Registry) Nodes() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.cfg.Nodes))
	for name := range r.cfg.Nodes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// CallingAETs lists configured calling AE title names in stable order.
func (r *Registry) CallingAETs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.cfg.CallingAETs))
	for name := range r.cfg.CallingAETs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Node returns a configured node by name.
func (r *Registry) Node(name string) (Node, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	node, ok := r.cfg.Nodes[name]
	if !ok {
		return Node{}, fmt.Errorf("registry: node %q not found", name)
	}
	return node, nil
}

// Current returns the active node name and its entry.
func (r *Registry) Current() (string, Node) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg.CurrentNode, r.cfg.Nodes[r.cfg.CurrentNode]
}

// CurrentCallingAET returns the active local identity name and AE title.
func (r *Registry) CurrentCallingAET() (string, string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg.CurrentCallingAET, r.cfg.CallingAETs[r.cfg.CurrentCallingAET].AETitle
}

// SwitchNode makes name the active node and persists the change.
func (r *Registry) SwitchNode(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cfg.Nodes[name]; !ok {
		return fmt.Errorf("registry: node %q not found", name)
	}
	r.cfg.CurrentNode = name
	return r.save()
}

// SwitchCallingAET makes name the active local identity and persists the
// change.
func (r *Registry) SwitchCallingAET(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.cfg.CallingAETs[name]; !ok {
		return fmt.Errorf("registry: calling AET %q not found", name)
	}
	r.cfg.CurrentCallingAET = name
	return r.save()
}

// save rewrites the registry file. Callers hold r.mu.
func (r *Registry) save() error {
	data, err := yaml.Marshal(&r.cfg)
	if err != nil {
		return fmt.Errorf("marshal registry: %w", err)
	}
	if err := os.WriteFile(r.path, data, 0o644); err != nil {
		return fmt.Errorf("write registry file: %w", err)
	}
	return nil
}
