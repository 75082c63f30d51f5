package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

var variants = map[string]Features{
	"sgx530": MakeFeatureBuilder().
		WithName("sgx530").
		WithNumInternalRegs(3).
		WithMaxFetchCount(8).
		Build(),
	"sgx535": MakeFeatureBuilder().
		WithName("sgx535").
		WithNumInternalRegs(3).
		WithPackPartialWriteBug(true).
		Build(),
	"sgx540": MakeFeatureBuilder().
		WithName("sgx540").
		WithNumInternalRegs(3).
		WithFNRM(true).
		WithPackPartialWriteBug(true).
		Build(),
	"sgx543": MakeFeatureBuilder().
		WithName("sgx543").
		WithNoPairing(true).
		WithUnifiedInternalRegs(true).
		WithNumInternalRegs(4).
		WithTestFormatControl(true).
		WithFNRM(true).
		WithIMA32(true).
		Build(),
	"sgx544": MakeFeatureBuilder().
		WithName("sgx544").
		WithNoPairing(true).
		WithUnifiedInternalRegs(true).
		WithNumInternalRegs(4).
		WithTestFormatControl(true).
		WithFNRM(true).
		WithIMA32(true).
		WithVisTest(true).
		Build(),
	"sgx554": MakeFeatureBuilder().
		WithName("sgx554").
		WithNoPairing(true).
		WithUnifiedInternalRegs(true).
		WithNumInternalRegs(4).
		WithTestFormatControl(true).
		WithFNRM(true).
		WithIMA32(true).
		WithVisTest(true).
		Build(),
}

// Variant returns the preset descriptor with the given name.
func Variant(name string) (Features, error) {
	f, ok := variants[name]
	if !ok {
		return Features{}, fmt.Errorf("unknown variant %q", name)
	}

	return f, nil
}

// VariantNames lists the preset names in sorted order.
func VariantNames() []string {
	names := make([]string, 0, len(variants))
	for name := range variants {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// featureFile is the on-disk form of a descriptor. Unset fields keep the
// value of the base preset.
type featureFile struct {
	Base                string `yaml:"base"`
	Name                string `yaml:"name"`
	NoPairing           *bool  `yaml:"no_pairing"`
	UnifiedInternalRegs *bool  `yaml:"unified_internal_regs"`
	NumInternalRegs     *int   `yaml:"num_internal_regs"`
	TestFormatControl   *bool  `yaml:"test_format_control"`
	HasFNRM             *bool  `yaml:"fnrm"`
	HasIMA32            *bool  `yaml:"ima32"`
	HasVisTest          *bool  `yaml:"vistest"`
	PackPartialWriteBug *bool  `yaml:"pack_partial_write_bug"`
	MaxRepeat           *int   `yaml:"max_repeat"`
	MaxFetchCount       *int   `yaml:"max_fetch_count"`
}

// LoadFeaturesFromYAML reads a descriptor from a YAML file.
func LoadFeaturesFromYAML(path string) (Features, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Features{}, err
	}

	return ParseFeatures(data)
}

// ParseFeatures decodes a YAML descriptor.
func ParseFeatures(data []byte) (Features, error) {
	var ff featureFile
	if err := yaml.Unmarshal(data, &ff); err != nil {
		return Features{}, fmt.Errorf("parse features: %w", err)
	}

	b := MakeFeatureBuilder()
	if ff.Base != "" {
		base, err := Variant(ff.Base)
		if err != nil {
			return Features{}, err
		}

		b = b.From(base)
	}

	f := b.f
	if ff.Name != "" {
		f.Name = ff.Name
	}

	setBool(&f.NoPairing, ff.NoPairing)
	setBool(&f.UnifiedInternalRegs, ff.UnifiedInternalRegs)
	setBool(&f.TestFormatControl, ff.TestFormatControl)
	setBool(&f.HasFNRM, ff.HasFNRM)
	setBool(&f.HasIMA32, ff.HasIMA32)
	setBool(&f.HasVisTest, ff.HasVisTest)
	setBool(&f.PackPartialWriteBug, ff.PackPartialWriteBug)
	setInt(&f.NumInternalRegs, ff.NumInternalRegs)
	setInt(&f.MaxRepeat, ff.MaxRepeat)
	setInt(&f.MaxFetchCount, ff.MaxFetchCount)

	if err := f.Validate(); err != nil {
		return Features{}, err
	}

	return f, nil
}

func setBool(dst *bool, v *bool) {
	if v != nil {
		*dst = *v
	}
}

func setInt(dst *int, v *int) {
	if v != nil {
		*dst = *v
	}
}
