package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// EqualizerConfig is the persisted equalizer state exchanged over EQUALIZER_CONFIG.
// Properties is the serialized EqualizerSettings (may be empty).
type EqualizerConfig struct {
	Enabled    bool
	Properties string
}

// EqualizerSettings is the structured form of the equalizer properties blob.
//
// Wire format: "Equalizer;curPreset=0;numBands=3;band1Level=0;band2Level=-300;band3Level=150".
// Band levels are in millibels.
type EqualizerSettings struct {
	CurrentPreset int
	BandLevels    []int
}

const equalizerSettingsTag = "Equalizer"

// String serializes the settings. ParseEqualizerSettings(s.String()) yields s.
func (s EqualizerSettings) String() string {
	var b strings.Builder
	b.WriteString(equalizerSettingsTag)
	fmt.Fprintf(&b, ";curPreset=%d;numBands=%d", s.CurrentPreset, len(s.BandLevels))
	for i, level := range s.BandLevels {
		fmt.Fprintf(&b, ";band%dLevel=%d", i+1, level)
	}
	return b.String()
}

// ParseEqualizerSettings decodes the properties blob produced by String.
func ParseEqualizerSettings(raw string) (EqualizerSettings, error) {
	parts := strings.Split(raw, ";")
	if len(parts) < 3 || parts[0] != equalizerSettingsTag {
		return EqualizerSettings{}, NewValidationError("equalizer_properties", raw, "not an equalizer settings string")
	}

	values := make(map[string]int, len(parts)-1)
	for _, part := range parts[1:] {
		key, value, ok := strings.Cut(part, "=")
		if !ok {
			return EqualizerSettings{}, NewValidationError("equalizer_properties", part, "expected key=value")
		}
		n, err := strconv.Atoi(value)
		if err != nil {
			return EqualizerSettings{}, NewValidationError(key, value, "not an integer")
		}
		values[key] = n
	}

	bands, ok := values["numBands"]
	if !ok || bands < 0 {
		return EqualizerSettings{}, NewValidationError("numBands", raw, "missing band count")
	}
	settings := EqualizerSettings{
		CurrentPreset: values["curPreset"],
		BandLevels:    make([]int, bands),
	}
	for i := range settings.BandLevels {
		level, ok := values[fmt.Sprintf("band%dLevel", i+1)]
		if !ok {
			return EqualizerSettings{}, NewValidationError(fmt.Sprintf("band%dLevel", i+1), raw, "missing band level")
		}
		settings.BandLevels[i] = level
	}
	return settings, nil
}
