package profile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"sigs.k8s.io/yaml"

	"github.com/anchorageoss/fpga-aes-harness/device"
)

// Format is a profile file encoding
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

type fileProfile struct {
	Name            string          `toml:"name" json:"name"`
	ProgramTimeout  string          `toml:"program_timeout" json:"program_timeout"`
	ProgramAttempts int             `toml:"program_attempts" json:"program_attempts"`
	AwaitTimeout    string          `toml:"await_timeout" json:"await_timeout"`
	Completion      *fileCompletion `toml:"completion" json:"completion"`
	Registers       []fileRegister  `toml:"registers" json:"registers"`
}

type fileCompletion struct {
	Kind     string `toml:"kind" json:"kind"`
	Delay    string `toml:"delay" json:"delay"`
	Register string `toml:"register" json:"register"`
	Interval string `toml:"interval" json:"interval"`
}

type fileRegister struct {
	Name      string `toml:"name" json:"name"`
	Address   uint32 `toml:"address" json:"address"`
	Width     int    `toml:"width" json:"width"`
	Direction string `toml:"direction" json:"direction"`
}

// FormatFor picks the format from a file extension. YAML covers JSON.
func FormatFor(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml", ".json":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unsupported profile extension %q (want .toml, .yaml, .yml or .json)", filepath.Ext(path))
	}
}

// Load reads and resolves the profile at path
func Load(path string) (Profile, error) {
	format, err := FormatFor(path)
	if err != nil {
		return Profile{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, fmt.Errorf("profile load failed (%s): %w", path, err)
	}
	p, err := Parse(data, format)
	if err != nil {
		return Profile{}, fmt.Errorf("profile %s: %w", path, err)
	}
	return p, nil
}

// Parse decodes and resolves a profile
func Parse(data []byte, format Format) (Profile, error) {
	var raw fileProfile
	switch format {
	case FormatTOML:
		meta, err := toml.Decode(string(data), &raw)
		if err != nil {
			return Profile{}, fmt.Errorf("parse toml: %w", err)
		}
		if undecoded := meta.Undecoded(); len(undecoded) > 0 {
			return Profile{}, fmt.Errorf("unknown profile keys: %v", undecoded)
		}
	case FormatYAML:
		if err := yaml.UnmarshalStrict(data, &raw); err != nil {
			return Profile{}, fmt.Errorf("parse yaml: %w", err)
		}
	default:
		return Profile{}, fmt.Errorf("unknown profile format %q", format)
	}
	return resolve(raw)
}

func resolve(raw fileProfile) (Profile, error) {
	p := Default()

	if name := strings.TrimSpace(raw.Name); name != "" {
		p.Name = name
	}

	if len(raw.Registers) > 0 {
		regs := make([]device.Register, 0, len(raw.Registers))
		for _, fr := range raw.Registers {
			dir, err := device.ParseDirection(fr.Direction)
			if err != nil {
				return Profile{}, fmt.Errorf("register %q: %w", fr.Name, err)
			}
			regs = append(regs, device.Register{
				Name:      strings.TrimSpace(fr.Name),
				Address:   fr.Address,
				Width:     fr.Width,
				Direction: dir,
			})
		}
		m, err := device.NewRegisterMap(regs...)
		if err != nil {
			return Profile{}, err
		}
		p.Registers = m
	}

	var err error
	if p.ProgramTimeout, err = parseDuration("program_timeout", raw.ProgramTimeout, p.ProgramTimeout); err != nil {
		return Profile{}, err
	}
	if p.AwaitTimeout, err = parseDuration("await_timeout", raw.AwaitTimeout, p.AwaitTimeout); err != nil {
		return Profile{}, err
	}
	if raw.ProgramAttempts < 0 {
		return Profile{}, fmt.Errorf("program_attempts must not be negative, got %d", raw.ProgramAttempts)
	}
	if raw.ProgramAttempts > 0 {
		p.ProgramAttempts = raw.ProgramAttempts
	}

	if raw.Completion != nil {
		c, err := resolveCompletion(*raw.Completion, p.Registers)
		if err != nil {
			return Profile{}, err
		}
		p.Completion = c
	}
	return p, nil
}

func resolveCompletion(fc fileCompletion, regs device.RegisterMap) (device.CompletionStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(fc.Kind)) {
	case "", CompletionFixed:
		d, err := parseDuration("completion.delay", fc.Delay, device.DefaultCompletionDelay)
		if err != nil {
			return nil, err
		}
		return device.FixedDelay{Delay: d}, nil

	case CompletionPoll:
		name := strings.TrimSpace(fc.Register)
		if name == "" {
			name = device.RegDone
		}
		r, err := regs.Get(name)
		if err != nil {
			return nil, fmt.Errorf("completion.register: %w", err)
		}
		if r.Direction != device.DirectionRead {
			return nil, fmt.Errorf("completion.register %s must be a read register", r.Name)
		}
		interval, err := parseDuration("completion.interval", fc.Interval, device.DefaultPollInterval)
		if err != nil {
			return nil, err
		}
		return device.PollFlag{Register: r, Interval: interval}, nil

	default:
		return nil, fmt.Errorf("unknown completion kind %q (want %s or %s)", fc.Kind, CompletionFixed, CompletionPoll)
	}
}

func parseDuration(field, raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", field, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s must not be negative, got %s", field, d)
	}
	return d, nil
}
