package main

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/binzume/axconv/actorx"
	"github.com/binzume/axconv/converter"
	"github.com/binzume/axconv/geom"
	"github.com/binzume/axconv/gltfutil"

	_ "github.com/ftrvxmtrx/tga"
)

func logWarnings(warnings []string) {
	for _, w := range warnings {
		logger.Warn(w)
	}
}

// convertMesh writes a psk mesh as a skinned glb or gltf, appending any
// extra .psa inputs as animations.
func convertMesh(input, output string, animations []string, meshOptions *converter.PSKToGLTFOption, animOptions *converter.PSAToGLTFOption) error {
	ext := strings.ToLower(filepath.Ext(output))
	if ext != ".glb" && ext != ".gltf" {
		return fmt.Errorf("unsupported output type: %v", ext)
	}

	doc, err := actorx.LoadPSK(input)
	if err != nil {
		return err
	}
	logWarnings(doc.Warnings)
	logger.Debugf("%s: %d points, %d wedges, %d faces, %d bones", input, len(doc.Points), len(doc.Wedges), len(doc.Faces), len(doc.Bones))

	name := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	conv := converter.NewPSKToGLTFConverter(meshOptions)
	gltfdoc, err := conv.Convert(doc, name, filepath.Dir(input))
	if err != nil {
		return err
	}
	logWarnings(conv.Warnings)

	for _, f := range animations {
		if strings.ToLower(filepath.Ext(f)) != ".psa" {
			return fmt.Errorf("unsupported input type: %v", filepath.Ext(f))
		}
		anim, err := actorx.LoadPSA(f)
		if err != nil {
			return err
		}
		logWarnings(anim.Warnings)
		warnings, err := converter.AddAnimationToGlb(gltfdoc, anim, animOptions)
		if err != nil {
			return err
		}
		logWarnings(warnings)
	}

	logger.Infof("out: %s", output)
	return gltfutil.Save(gltfdoc, output)
}

// convertScene writes a glb scene as psk or psa. A glb or gltf output
// repacks the scene as a single file instead, scaled when requested.
func convertScene(input, output string, pre *converter.Preset, scale float64) error {
	doc, err := gltfutil.Load(input)
	if err != nil {
		return err
	}
	logger.Infof("out: %s", output)
	switch strings.ToLower(filepath.Ext(output)) {
	case ".psk", ".pskx":
		conv := converter.NewGLTFToPSKConverter(pre.MeshExportOption())
		mesh, err := conv.Convert(doc)
		if err != nil {
			return err
		}
		logWarnings(conv.Warnings)
		return actorx.SavePSK(mesh, output)
	case ".psa":
		conv := converter.NewGLTFToPSAConverter(pre.AnimationExportOption())
		anim, err := conv.Convert(doc)
		if err != nil {
			return err
		}
		logWarnings(conv.Warnings)
		return actorx.SavePSA(anim, output)
	case ".glb", ".gltf":
		if err := gltfutil.ToSingleFile(doc, filepath.Dir(input)); err != nil {
			return err
		}
		if scale != 0 && scale != 1 {
			s := float32(scale)
			if err := gltfutil.Transform(doc, geom.NewVector3(s, s, s), nil); err != nil {
				return err
			}
		}
		return gltfutil.Save(doc, output)
	}
	return fmt.Errorf("unsupported output type: %v", filepath.Ext(output))
}

func inspectAnimation(input string) error {
	doc, err := actorx.LoadPSA(input)
	if err != nil {
		return err
	}
	logWarnings(doc.Warnings)
	logger.Infof("%s: %d bones, %d sequences, %d keys", input, len(doc.Bones), len(doc.Sequences), len(doc.Keys))
	for i := range doc.Sequences {
		seq := &doc.Sequences[i]
		group := seq.Group
		if group == "" {
			group = "-"
		}
		logger.Infof("  %s (%s): %d frames at %g fps", seq.Name, group, seq.FrameCount, seq.FrameRate)
	}
	return nil
}
