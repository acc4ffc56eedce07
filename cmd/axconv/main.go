package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/binzume/axconv/converter"
	"github.com/charmbracelet/log"
)

var logger = log.NewWithOptions(os.Stderr, log.Options{ReportTimestamp: false})

func defaultOutputFile(input string) string {
	ext := strings.ToLower(filepath.Ext(input))
	base := input[0 : len(input)-len(ext)]
	if ext == ".psk" || ext == ".pskx" {
		return base + ".glb"
	} else if ext == ".glb" || ext == ".gltf" {
		return base + ".psk"
	}
	return input + ".glb"
}

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s input.psk [input.psa ...] [output.glb]\n", os.Args[0])
		flag.PrintDefaults()
	}
	scale := flag.Float64("scale", 0, "unit scale, 0:default")
	unlit := flag.Bool("unlit", false, "unlit all materials")
	preset := flag.String("preset", "", "preset file (default: <input>.axpreset.yaml)")
	sequences := flag.String("sequences", "", "comma separated sequence filter (.psa inputs)")
	rootMotion := flag.Bool("rootmotion", false, "keep root bone motion (.psa output)")
	texLimit := flag.Int("texlimit", 0, "max texture resolution, 0:unlimited")
	texCompress := flag.Bool("texcompress", false, "recompress textures as png or jpeg")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	if *verbose {
		logger.SetLevel(log.DebugLevel)
	}
	if flag.NArg() == 0 {
		flag.Usage()
		return
	}
	input := flag.Arg(0)
	output := ""
	inputN := flag.NArg() - 1
	if ext := strings.ToLower(filepath.Ext(flag.Arg(inputN))); inputN < 1 || ext == ".psa" || ext == ".psk" {
		inputN = flag.NArg()
		output = defaultOutputFile(input)
	} else {
		output = flag.Arg(inputN)
	}

	presetFile := *preset
	if presetFile == "" {
		presetFile = input[0:len(input)-len(filepath.Ext(input))] + ".axpreset.yaml"
		if _, err := os.Stat(presetFile); err != nil {
			presetFile = ""
		}
	}
	pre := &converter.Preset{}
	if presetFile != "" {
		p, err := converter.LoadPreset(presetFile)
		if err != nil {
			logger.Fatal(err)
		}
		logger.Debugf("preset: %s", presetFile)
		pre = p
	}
	if *scale != 0 {
		pre.Scale = float32(*scale)
	}
	if *unlit {
		pre.ForceUnlit = true
	}
	if *rootMotion {
		pre.RootMotion = true
	}
	var seqFilter []string
	if *sequences != "" {
		seqFilter = strings.Split(*sequences, ",")
	}

	var err error
	switch strings.ToLower(filepath.Ext(input)) {
	case ".psk", ".pskx":
		meshOptions := pre.MeshImportOption()
		meshOptions.TextureResolutionLimit = *texLimit
		meshOptions.TextureReCompress = *texCompress
		animOptions := pre.AnimationImportOption()
		animOptions.Sequences = seqFilter
		err = convertMesh(input, output, flag.Args()[1:inputN], meshOptions, animOptions)
	case ".psa":
		err = inspectAnimation(input)
	case ".glb", ".gltf":
		err = convertScene(input, output, pre, *scale)
	default:
		err = fmt.Errorf("unsupported input type: %v", filepath.Ext(input))
	}
	if err != nil {
		logger.Fatal(err)
	}
}
