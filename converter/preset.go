package converter

import (
	"os"

	"github.com/binzume/axconv/actorx"
	"gopkg.in/yaml.v2"
)

// Preset carries conversion settings, usually loaded from an
// .axpreset.yaml file next to the input. Zero values keep the converter
// defaults.
type Preset struct {
	// Scale overrides the unit scale of the conversion being run
	// (0.01 for psk to glb, 100 for glb to psk).
	Scale float32 `yaml:"scale"`

	// FpsSource selects the written sequence rate: "project" (default),
	// "custom" or "segment".
	FpsSource  string  `yaml:"fpsSource"`
	CustomFps  float64 `yaml:"customFps"`
	ProjectFps float64 `yaml:"projectFps"`

	Sequences []*PresetSequence `yaml:"sequences"`
	Markers   []*PresetMarker   `yaml:"markers"`

	CompressionRatio float64 `yaml:"compressionRatio"`
	KeyQuota         int     `yaml:"keyQuota"`
	RootMotion       bool    `yaml:"rootMotion"`
	ExactNames       bool    `yaml:"exactNames"`

	ForceUnlit bool `yaml:"forceUnlit"`
}

// PresetSequence is an authored frame range. Names may use the "A/B"
// forward/reverse syntax, names starting with "#" are skipped.
type PresetSequence struct {
	Name  string  `yaml:"name"`
	Start float64 `yaml:"start"`
	End   float64 `yaml:"end"`
	Rate  float64 `yaml:"fps"`
	Muted bool    `yaml:"muted"`
}

type PresetMarker struct {
	Name  string `yaml:"name"`
	Frame int    `yaml:"frame"`
}

func LoadPreset(path string) (*Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var p Preset
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Preset) segments() []actorx.Segment {
	var segments []actorx.Segment
	for _, s := range p.Sequences {
		segments = append(segments, actorx.Segment{
			Name:  s.Name,
			Start: s.Start,
			End:   s.End,
			Rate:  s.Rate,
			Muted: s.Muted,
		})
	}
	return segments
}

func (p *Preset) markers() []actorx.Marker {
	var markers []actorx.Marker
	for _, m := range p.Markers {
		markers = append(markers, actorx.Marker{Name: m.Name, Frame: m.Frame})
	}
	return markers
}

func (p *Preset) rateSource() actorx.RateSource {
	switch p.FpsSource {
	case "custom":
		return actorx.RateCustom
	case "segment":
		return actorx.RateSegmentMin
	}
	return actorx.RateProject
}

// MeshImportOption maps the preset onto the psk to glTF conversion.
func (p *Preset) MeshImportOption() *PSKToGLTFOption {
	return &PSKToGLTFOption{
		Scale:      p.Scale,
		ForceUnlit: p.ForceUnlit,
	}
}

// AnimationImportOption maps the preset onto the psa to glTF
// conversion. A custom fps overrides the rates stored in the psa.
func (p *Preset) AnimationImportOption() *PSAToGLTFOption {
	opt := &PSAToGLTFOption{
		Scale:      p.Scale,
		ExactNames: p.ExactNames,
	}
	if p.FpsSource == "custom" {
		opt.FrameRate = float32(p.CustomFps)
	}
	return opt
}

// MeshExportOption maps the preset onto the glTF to psk conversion.
func (p *Preset) MeshExportOption() *GLTFToPSKOption {
	return &GLTFToPSKOption{Scale: p.Scale}
}

// AnimationExportOption maps the preset onto the glTF to psa
// conversion.
func (p *Preset) AnimationExportOption() *GLTFToPSAOption {
	return &GLTFToPSAOption{
		Scale:            p.Scale,
		RateSource:       p.rateSource(),
		ProjectRate:      p.ProjectFps,
		CustomRate:       p.CustomFps,
		CompressionRatio: p.CompressionRatio,
		KeyQuota:         p.KeyQuota,
		RootMotion:       p.RootMotion,
		Segments:         p.segments(),
		Markers:          p.markers(),
	}
}
