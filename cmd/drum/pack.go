package main

import (
	"flag"
	"runtime"

	"drumkit/libpack"
	"drumkit/libscn"
	"drumkit/libtex"
)

type packArgs struct {
	logArgs
	bake bakeArgs

	out    string
	config string
	assets []string

	equirect    string
	irradiance  string
	prefiltered string
	brdf        string

	compress             bool
	srgb                 bool
	mipmaps              mipmapsFlag
	containerCompression int
	workers              int
}

func createPackCommand() *command {

	args := packArgs{
		bake:    defaultBakeArgs(),
		mipmaps: libtex.MipmapsAuto,
		workers: runtime.NumCPU(),
	}

	flags := flag.NewFlagSet("pack", flag.ExitOnError)

	registerLogFlags(flags, &args.logArgs)
	registerBakeFlags(flags, &args.bake)

	flags.StringVar(&args.out, "out", args.out, "the output drum file")
	flags.StringVar(&args.out, "o", args.out, "shorthand for out")
	flags.StringVar(&args.config, "config", args.config, "a json file with default arguments")
	flags.StringVar(&args.equirect, "equirect", args.equirect, "an equirectangular hdr image to bake the environment from")
	flags.StringVar(&args.irradiance, "irradiance", args.irradiance, "a pre-baked irradiance cubemap image or .iblenv file")
	flags.StringVar(&args.prefiltered, "prefiltered", args.prefiltered, "a pre-baked prefiltered cubemap image or .iblenv file")
	flags.StringVar(&args.brdf, "brdf", args.brdf, "a pre-baked brdf lookup table image or .f32 file")
	flags.BoolVar(&args.compress, "compress", args.compress, "block compress textures")
	flags.BoolVar(&args.compress, "c", args.compress, "shorthand for compress")
	flags.BoolVar(&args.srgb, "srgb", args.srgb, "treat color textures as srgb")
	flags.Var(&args.mipmaps, "mipmaps", "the mip level count or auto")
	flags.IntVar(&args.containerCompression, "container-compression", args.containerCompression, "the lz4 level of the container sections, -1 disables compression")
	flags.IntVar(&args.workers, "workers", args.workers, "the number of parallel texture jobs")

	return &command{
		Name: "pack",
		Help: "pack scenes and their textures into a drum file",
		Run: func(self *command) error {
			args.assets = self.Flags.Args()
			if args.config != "" {
				cfg, err := loadPackConfig(args.config)
				if err != nil {
					return err
				}
				if err := cfg.apply(&args, visited(self.Flags)); err != nil {
					return err
				}
			}
			if args.out == "" || len(args.assets) == 0 {
				printCommandUsage(self, " asset...")
			}
			setupLogging(args.logArgs)

			return runPack(args)
		},
		Flags: flags,
	}
}

func runPack(args packArgs) error {
	device, err := args.bake.deviceType()
	if err != nil {
		return err
	}

	opts := libpack.DefaultOptions()
	opts.Assets = args.assets
	opts.Environment = libscn.EnvironmentSources{
		Equirect:    args.equirect,
		Irradiance:  args.irradiance,
		Prefiltered: args.prefiltered,
		BrdfLut:     args.brdf,
	}
	opts.Compress = args.compress
	opts.Srgb = args.srgb
	opts.Mipmaps = int(args.mipmaps)
	opts.ContainerCompression = args.containerCompression
	opts.Impl = args.bake.impl
	opts.Device = device
	opts.Bake = args.bake.settings
	opts.Workers = args.workers

	_, err = libpack.PackFile(args.out, opts)
	return err
}
