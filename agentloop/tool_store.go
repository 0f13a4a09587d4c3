package agentloop

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/martinemde/wand/workspace"
)

// ToolArgsEnv carries the JSON arguments of a call to a stored tool's
// command.
const ToolArgsEnv = "WAND_TOOL_ARGS"

var toolNamePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,63}$`)

// ToolManifest describes a tool created at runtime. Its command runs in the
// workspace shell with the call arguments in $WAND_TOOL_ARGS.
type ToolManifest struct {
	Name        string            `yaml:"name" json:"name"`
	Description string            `yaml:"description" json:"description"`
	Command     string            `yaml:"command" json:"command"`
	Parameters  map[string]string `yaml:"parameters,omitempty" json:"parameters,omitempty"`
	Temporary   bool              `yaml:"temporary,omitempty" json:"temporary,omitempty"`
	CreatedAt   time.Time         `yaml:"created_at" json:"created_at"`
}

// Validate checks the manifest can be saved and registered.
func (m ToolManifest) Validate() error {
	if !toolNamePattern.MatchString(m.Name) {
		return fmt.Errorf("invalid tool name %q: use lowercase letters, digits and underscores", m.Name)
	}
	if strings.TrimSpace(m.Command) == "" {
		return fmt.Errorf("tool %s: command is required", m.Name)
	}
	return nil
}

// Definition returns the tool definition shown to the model.
func (m ToolManifest) Definition() ToolDefinition {
	props := map[string]any{}
	for name, desc := range m.Parameters {
		props[name] = prop("string", desc)
	}
	return ToolDefinition{
		Name:        m.Name,
		Description: m.Description,
		Parameters:  objectSchema(nil, props),
	}
}

// Tool returns the manifest as a registrable tool.
func (m ToolManifest) Tool() RegisteredTool {
	return RegisteredTool{
		Definition: m.Definition(),
		Func: func(ctx context.Context, args map[string]any, env ExecutionEnvironment) (string, error) {
			data, err := json.Marshal(args)
			if err != nil {
				return "", fmt.Errorf("encode arguments: %w", err)
			}
			result, err := env.ExecCommand(ctx, m.Command, DefaultCommandTimeoutMs, "", map[string]string{ToolArgsEnv: string(data)})
			if err != nil {
				return "", err
			}
			return formatExecResult(result, DefaultCommandTimeoutMs), nil
		},
	}
}

// ToolStore keeps tool manifests as YAML files under
// <root>/.wand/tools.
type ToolStore struct {
	dir string
}

// NewToolStore returns the store of a workspace.
func NewToolStore(root string) *ToolStore {
	return &ToolStore{dir: filepath.Join(root, workspace.MetaDir, "tools")}
}

// Dir returns the manifest directory.
func (s *ToolStore) Dir() string { return s.dir }

func (s *ToolStore) path(name string) string {
	return filepath.Join(s.dir, name+".yaml")
}

// Save writes a manifest, replacing any tool of the same name.
func (s *ToolStore) Save(m ToolManifest) error {
	if err := m.Validate(); err != nil {
		return err
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC().Truncate(time.Second)
	}
	data, err := yaml.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode tool %s: %w", m.Name, err)
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create tool directory: %w", err)
	}
	tmp := s.path(m.Name) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write tool %s: %w", m.Name, err)
	}
	return os.Rename(tmp, s.path(m.Name))
}

// Load reads one manifest.
func (s *ToolStore) Load(name string) (ToolManifest, error) {
	var m ToolManifest
	data, err := os.ReadFile(s.path(name))
	if err != nil {
		return m, fmt.Errorf("load tool %s: %w", name, err)
	}
	if err := yaml.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("decode tool %s: %w", name, err)
	}
	return m, m.Validate()
}

// List returns every valid manifest sorted by name. Unreadable manifests are
// skipped and reported in the joined error.
func (s *ToolStore) List() ([]ToolManifest, error) {
	entries, err := os.ReadDir(s.dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}

	var manifests []ToolManifest
	var errs []error
	for _, e := range entries {
		name, ok := strings.CutSuffix(e.Name(), ".yaml")
		if e.IsDir() || !ok {
			continue
		}
		m, err := s.Load(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		manifests = append(manifests, m)
	}
	sort.Slice(manifests, func(i, j int) bool { return manifests[i].Name < manifests[j].Name })
	return manifests, errors.Join(errs...)
}

// Remove deletes a manifest.
func (s *ToolStore) Remove(name string) error {
	if err := os.Remove(s.path(name)); err != nil {
		return fmt.Errorf("remove tool %s: %w", name, err)
	}
	return nil
}

// ClearTemporary deletes every temporary tool and returns their names.
func (s *ToolStore) ClearTemporary() ([]string, error) {
	manifests, listErr := s.List()
	var removed []string
	var errs []error
	if listErr != nil {
		errs = append(errs, listErr)
	}
	for _, m := range manifests {
		if !m.Temporary {
			continue
		}
		if err := s.Remove(m.Name); err != nil {
			errs = append(errs, err)
			continue
		}
		removed = append(removed, m.Name)
	}
	return removed, errors.Join(errs...)
}

// RegisterStoredTools registers every stored tool whose name is not already
// taken. It returns the names it registered.
func RegisterStoredTools(reg *ToolRegistry, store *ToolStore) ([]string, error) {
	manifests, err := store.List()
	var names []string
	for _, m := range manifests {
		if reg.Get(m.Name) != nil {
			continue
		}
		reg.Register(m.Tool())
		names = append(names, m.Name)
	}
	return names, err
}

// RegisterToolStoreTools adds create_tool and list_tools, which let the
// model extend its own toolset.
func RegisterToolStoreTools(reg *ToolRegistry, store *ToolStore) {
	reg.Register(RegisteredTool{
		Definition: ToolDefinition{
			Name: "create_tool",
			Description: "Create a new tool backed by a shell command. The command receives the call arguments as a JSON object in $" +
				ToolArgsEnv + ". The tool can be called from the next reply on.",
			Parameters: objectSchema([]string{"name", "description", "command"}, map[string]any{
				"name":        prop("string", "Tool name: lowercase letters, digits and underscores."),
				"description": prop("string", "What the tool does."),
				"command":     prop("string", "Shell command to run."),
				"parameters":  prop("object", "Parameter names mapped to descriptions."),
				"temporary":   prop("boolean", "Remove the tool when temporary tools are cleared. Default: false."),
			}),
		},
		Func: func(_ context.Context, args map[string]any, _ ExecutionEnvironment) (string, error) {
			m := ToolManifest{}
			m.Name, _ = GetStringArg(args, "name")
			m.Description, _ = GetStringArg(args, "description")
			m.Command, _ = GetStringArg(args, "command")
			m.Temporary, _ = GetBoolArg(args, "temporary")
			if params, ok := args["parameters"].(map[string]any); ok {
				m.Parameters = make(map[string]string, len(params))
				for k, v := range params {
					m.Parameters[k] = fmt.Sprint(v)
				}
			}

			if existing := reg.Get(m.Name); existing != nil {
				if _, err := store.Load(m.Name); err != nil {
					return "", fmt.Errorf("tool %s already exists and is built in", m.Name)
				}
			}
			if err := store.Save(m); err != nil {
				return "", err
			}
			reg.Register(m.Tool())
			return fmt.Sprintf("Created tool %s", m.Name), nil
		},
	})

	reg.Register(RegisteredTool{
		Definition: ToolDefinition{
			Name:        "list_tools",
			Description: "List the tools created in this workspace.",
			Parameters:  objectSchema(nil, map[string]any{}),
		},
		Func: func(context.Context, map[string]any, ExecutionEnvironment) (string, error) {
			manifests, err := store.List()
			if len(manifests) == 0 {
				if err != nil {
					return "", err
				}
				return "No tools have been created.", nil
			}
			var sb strings.Builder
			for _, m := range manifests {
				kind := ""
				if m.Temporary {
					kind = " (temporary)"
				}
				fmt.Fprintf(&sb, "- %s%s: %s\n", m.Name, kind, m.Description)
			}
			return sb.String(), nil
		},
	})
}
