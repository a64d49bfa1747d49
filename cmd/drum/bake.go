package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"drumkit/ibl"
	"drumkit/liberr"
	"drumkit/libio"
	"drumkit/liblog"
)

type bakeCmdArgs struct {
	logArgs
	bake     bakeArgs
	out      string
	compress int
}

func createBakeCommand() *command {

	args := bakeCmdArgs{
		bake:     defaultBakeArgs(),
		compress: 1,
	}

	flags := flag.NewFlagSet("bake", flag.ExitOnError)

	registerLogFlags(flags, &args.logArgs)
	registerBakeFlags(flags, &args.bake)

	flags.StringVar(&args.out, "out", args.out, "the output directory")
	flags.StringVar(&args.out, "o", args.out, "shorthand for out")
	flags.IntVar(&args.compress, "compress", args.compress, "the compression level from 0 (none) to 10 (high)")
	flags.IntVar(&args.compress, "c", args.compress, "shorthand for compress")

	return &command{
		Name: "bake",
		Help: "bake .iblenv and .f32 lighting caches from equirectangular images",
		Run: func(self *command) error {
			if self.Flags.NArg() < 1 || args.compress < 0 || args.compress > 10 {
				printCommandUsage(self, " file-glob...")
			}
			setupLogging(args.logArgs)

			if args.out == "" {
				var err error
				if args.out, err = os.Getwd(); err != nil {
					return err
				}
			}
			if _, err := os.Stat(args.out); err != nil {
				return liberr.Wrap(liberr.KindIo, args.out, fmt.Errorf("cannot stat output directory: %w", err))
			}

			inputs, err := gatherInputFiles(self.Flags.Args())
			if err != nil {
				return err
			}
			return runBake(args, inputs)
		},
		Flags: flags,
	}
}

func gatherInputFiles(globs []string) ([]string, error) {
	matched := []string{}
	for _, g := range globs {
		m, err := filepath.Glob(g)
		if err != nil {
			return nil, err
		}
		if len(m) == 0 {
			return nil, liberr.Wrap(liberr.KindIo, g, os.ErrNotExist)
		}
		matched = append(matched, m...)
	}
	return matched, nil
}

func runBake(args bakeCmdArgs, inputFiles []string) error {
	device, err := args.bake.deviceType()
	if err != nil {
		return err
	}

	pipeline, err := ibl.NewPipeline(args.bake.impl, device, args.bake.settings)
	if err != nil {
		return err
	}
	defer pipeline.Release()
	baker := ibl.NewBaker(pipeline)

	log := liblog.Logger()
	start := time.Now()
	for i, p := range inputFiles {
		log.Info("processing file", "index", i+1, "total", len(inputFiles), "path", filepath.ToSlash(filepath.Clean(p)))
		if err := bakeFile(args, baker, p); err != nil {
			return err
		}
	}
	log.Info("baked files", "count", len(inputFiles), "duration", time.Since(start))
	return nil
}

func bakeFile(args bakeCmdArgs, baker *ibl.Baker, p string) error {
	src, err := ibl.LoadEquirect(p)
	if err != nil {
		return err
	}

	result, err := baker.Bake(src)
	if err != nil {
		return err
	}

	base := filepath.Join(args.out, strings.TrimSuffix(filepath.Base(p), filepath.Ext(p)))
	envs := []struct {
		suffix string
		env    *ibl.Env
	}{
		{"_irradiance", result.Irradiance},
		{"_prefiltered", result.Prefiltered},
	}
	for _, e := range envs {
		name := base + e.suffix + ".iblenv"
		liblog.Logger().Info("writing", "path", filepath.ToSlash(name), "size", e.env.BaseSize, "levels", e.env.Levels)
		if err := ibl.WriteIblEnvFile(name, e.env, ibl.OptCompress(args.compress-1)); err != nil {
			return err
		}
	}

	compression := libio.FloatImageCompressionNone
	if args.compress > 0 {
		compression = libio.FloatImageCompressionFixedPoint16Lz4
	}
	name := base + "_brdf.f32"
	liblog.Logger().Info("writing", "path", filepath.ToSlash(name), "size", result.BrdfLut.Width)
	return libio.WriteFloatImageFile(name, result.BrdfLut, compression)
}
