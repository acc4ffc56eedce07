package converter

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/binzume/axconv/actorx"
)

func TestLoadPreset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.axpreset.yaml")
	data := []byte(`
scale: 1
fpsSource: custom
customFps: 60
projectFps: 24
compressionRatio: 0.5
keyQuota: 2
rootMotion: true
exactNames: true
forceUnlit: true
sequences:
  - name: Run/RunBack
    start: 0
    end: 30
    fps: 60
  - name: "#setup"
    start: 31
    end: 40
    muted: true
markers:
  - name: Hit
    frame: 12
`)
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatal("WriteFile: ", err)
	}
	p, err := LoadPreset(path)
	if err != nil {
		t.Fatal("LoadPreset: ", err)
	}

	opt := p.AnimationExportOption()
	if opt.Scale != 1 || opt.RateSource != actorx.RateCustom || opt.CustomRate != 60 || opt.ProjectRate != 24 {
		t.Error("export option: ", opt.Scale, opt.RateSource, opt.CustomRate, opt.ProjectRate)
	}
	if opt.CompressionRatio != 0.5 || opt.KeyQuota != 2 || !opt.RootMotion {
		t.Error("sampling: ", opt.CompressionRatio, opt.KeyQuota, opt.RootMotion)
	}
	if len(opt.Segments) != 2 {
		t.Fatal("segments: ", len(opt.Segments))
	}
	s := opt.Segments[0]
	if s.Name != "Run/RunBack" || s.Start != 0 || s.End != 30 || s.Rate != 60 || s.Muted {
		t.Error("segment: ", s)
	}
	if !opt.Segments[1].Muted {
		t.Error("muted segment: ", opt.Segments[1])
	}
	if len(opt.Markers) != 1 || opt.Markers[0].Name != "Hit" || opt.Markers[0].Frame != 12 {
		t.Error("markers: ", opt.Markers)
	}

	mi := p.MeshImportOption()
	if mi.Scale != 1 || !mi.ForceUnlit {
		t.Error("mesh import option: ", mi.Scale, mi.ForceUnlit)
	}
	ai := p.AnimationImportOption()
	if ai.FrameRate != 60 || !ai.ExactNames {
		t.Error("animation import option: ", ai.FrameRate, ai.ExactNames)
	}
}

func TestLoadPresetDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.axpreset.yaml")
	if err := os.WriteFile(path, []byte("{}\n"), 0644); err != nil {
		t.Fatal("WriteFile: ", err)
	}
	p, err := LoadPreset(path)
	if err != nil {
		t.Fatal("LoadPreset: ", err)
	}
	opt := p.AnimationExportOption()
	if opt.RateSource != actorx.RateProject {
		t.Error("rate source: ", opt.RateSource)
	}
	ai := p.AnimationImportOption()
	if ai.FrameRate != 0 {
		t.Error("frame rate: ", ai.FrameRate)
	}
}

func TestLoadPresetMissing(t *testing.T) {
	if _, err := LoadPreset(filepath.Join(t.TempDir(), "none.yaml")); err == nil {
		t.Error("missing file accepted")
	}
}
