package forwardedit

import (
	"os"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Suffix          string                `yaml:"suffix"`
	Mode            Mode                  `yaml:"mode"`
	InstallRuntime  bool                  `yaml:"install_runtime"`
	RuntimeTemplate string                `yaml:"runtime_template"`
	Strict          bool                  `yaml:"strict"`
	IgnoreDirs      []string              `yaml:"ignore_dirs"`
	IgnoreFiles     []string              `yaml:"ignore_files"`
	IgnoreClasses   map[string]IgnoreList `yaml:"ignore_classes"`
	Checkout        CheckoutConfig        `yaml:"checkout"`
}

// CheckoutConfig pins a third-party source checkout the tool is run against.
// Ignore paths are relative to Subdir.
type CheckoutConfig struct {
	Subdir        string                `yaml:"subdir"`
	Revision      string                `yaml:"revision"`
	Required      []string              `yaml:"required"`
	IgnoreDirs    []string              `yaml:"ignore_dirs"`
	IgnoreFiles   []string              `yaml:"ignore_files"`
	IgnoreClasses map[string]IgnoreList `yaml:"ignore_classes"`
}

func DefaultConfig() *Config {
	return &Config{
		Suffix:         ".py",
		Mode:           ModeToggle,
		InstallRuntime: true,
		IgnoreClasses:  map[string]IgnoreList{},
		Checkout:       DefaultCheckoutConfig(),
	}
}

// DefaultCheckoutConfig describes the CPython Lib/ tree the rewriter was
// first validated against.
func DefaultCheckoutConfig() CheckoutConfig {
	return CheckoutConfig{
		Subdir:   "Lib",
		Revision: "7b87e8af0cb8df0d76e8ab18a9b12affb4526103",
		Required: []string{"Doc", "Grammar", "Lib", "LICENSE", "Python", "PCbuild", "configure", ".git"},
		IgnoreDirs: []string{
			"test",
		},
		IgnoreFiles: []string{
			"lib2to3/tests/data/py2_test_grammar.py",
			"lib2to3/tests/data/crlf.py",
		},
		IgnoreClasses: map[string]IgnoreList{
			// metaclass wizardry
			"enum.py": {
				IgnoreClass("Enum"),
				IgnoreClass("ReprEnum"),
				IgnoreClass("IntEnum"),
				IgnoreClass("StrEnum"),
				IgnoreClass("FlagBoundary"),
				IgnoreClass("Flag"),
				IgnoreClass("IntFlag"),
				IgnoreClass("EnumCheck"),
			},
			"re/__init__.py":  {IgnoreClass("RegexFlag")},
			"re/_compiler.py": {IgnoreClass("_CompileData")},
		},
	}
}

func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return DefaultConfig(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, newConfigError("%v", err)
	}

	config := DefaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, newConfigError("%s: %v", path, err)
	}

	if err := NewDefaultValidator().ValidateConfig(config); err != nil {
		return nil, err
	}
	return config, nil
}

// TreeRun builds the run configuration for root from the config file.
func (c *Config) TreeRun(root string, mode Mode) TreeRunConfig {
	return TreeRunConfig{
		Root:           root,
		Mode:           mode,
		IgnoreDirs:     append([]string(nil), c.IgnoreDirs...),
		IgnoreFiles:    append([]string(nil), c.IgnoreFiles...),
		IgnoreMap:      copyIgnoreMap(c.IgnoreClasses),
		InstallRuntime: c.InstallRuntime,
		Strict:         c.Strict,
	}
}

func copyIgnoreMap(m map[string]IgnoreList) map[string]IgnoreList {
	out := make(map[string]IgnoreList, len(m))
	for k, v := range m {
		out[k] = append(IgnoreList(nil), v...)
	}
	return out
}
